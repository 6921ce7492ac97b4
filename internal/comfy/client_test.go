package comfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer emulates the ComfyUI endpoints the client touches.
type stubServer struct {
	t          *testing.T
	promptID   string
	execErr    string // non-empty: push an execution_error instead of executed
	rejectWith string // non-empty: /prompt returns this error payload
	uploaded   string
	upgrader   websocket.Upgrader
}

func (s *stubServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"system":{}}`))
	})

	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(s.t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("image")
		require.NoError(s.t, err)
		f.Close()
		s.uploaded = hdr.Filename
		assert.Equal(s.t, "input", r.FormValue("type"))
		json.NewEncoder(w).Encode(map[string]string{"name": "srv_" + hdr.Filename})
	})

	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		if s.rejectWith != "" {
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"type": s.rejectWith},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": s.promptID})
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		require.NoError(s.t, err)
		defer conn.Close()

		conn.WriteJSON(map[string]any{
			"type": "progress",
			"data": map[string]any{"value": 5, "max": 10},
		})
		if s.execErr != "" {
			conn.WriteJSON(map[string]any{
				"type": "execution_error",
				"data": map[string]any{"prompt_id": s.promptID, "exception_message": s.execErr},
			})
		} else {
			conn.WriteJSON(map[string]any{
				"type": "executed",
				"data": map[string]any{"prompt_id": s.promptID},
			})
		}
		// Give the client a moment to read before the connection drops.
		time.Sleep(50 * time.Millisecond)
	})

	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"` + s.promptID + `": {"outputs": {
			"10": {"gifs": [{"filename": "wan22_t2v_00001.mp4", "subfolder": "", "type": "output"}]},
			"11": {"images": [{"filename": "flux_edit_00001.png", "subfolder": "sub", "type": "output"}]}
		}}}`))
	})

	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file-bytes-" + r.URL.Query().Get("filename")))
	})

	return mux
}

func newStub(t *testing.T) (*stubServer, *Client) {
	s := &stubServer{t: t, promptID: "prompt-123"}
	srv := httptest.NewServer(s.handler())
	t.Cleanup(srv.Close)
	return s, New(srv.URL)
}

func TestPing(t *testing.T) {
	_, c := newStub(t)
	assert.True(t, c.Ping(context.Background()))

	down := New("http://127.0.0.1:1") // nothing listens here
	assert.False(t, down.Ping(context.Background()))
}

func TestUploadImage(t *testing.T) {
	s, c := newStub(t)

	dir := t.TempDir()
	img := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(img, []byte("png-bytes"), 0644))

	name, err := c.UploadImage(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "srv_cat.png", name)
	assert.Equal(t, "cat.png", s.uploaded)
}

func TestRun_Executed(t *testing.T) {
	_, c := newStub(t)

	var sawProgress bool
	outputs, err := c.Run(context.Background(), map[string]any{"1": "node"}, func(pct float64) {
		sawProgress = true
		assert.InDelta(t, 50.0, pct, 0.01)
	})
	require.NoError(t, err)
	assert.True(t, sawProgress)

	require.Len(t, outputs, 2)
	names := []string{outputs[0].Filename, outputs[1].Filename}
	assert.Contains(t, names, "wan22_t2v_00001.mp4")
	assert.Contains(t, names, "flux_edit_00001.png")
}

func TestRun_ExecutionError(t *testing.T) {
	s, c := newStub(t)
	s.execErr = "OOM on MPS backend"

	_, err := c.Run(context.Background(), map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OOM on MPS backend")
}

func TestRun_Rejected(t *testing.T) {
	s, c := newStub(t)
	s.rejectWith = "invalid_prompt"

	_, err := c.Run(context.Background(), map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestDownload(t *testing.T) {
	_, c := newStub(t)

	dir := t.TempDir()
	path, err := c.Download(context.Background(), OutputFile{Filename: "out.png"}, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file-bytes-out.png", string(data))
}

func TestWait_ContextDeadline(t *testing.T) {
	s := &stubServer{t: t, promptID: "p"}
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p"})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		time.Sleep(2 * time.Second) // never report completion
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, map[string]any{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
