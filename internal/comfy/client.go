// Package comfy implements a client for the ComfyUI HTTP/WebSocket API.
// Workflows are queued over HTTP and completion is tracked over the
// /ws push channel, which reports progress, node execution and errors.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// OutputFile describes one generated file as reported by /history.
type OutputFile struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ProgressFunc is called with sampling progress in [0, 100].
type ProgressFunc func(percent float64)

// Client talks to a single ComfyUI server.
type Client struct {
	baseURL string
	httpc   *http.Client
	dialer  *websocket.Dialer
}

// New creates a client for the server at baseURL (e.g. "http://127.0.0.1:8188").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 60 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
}

// Ping reports whether the server is up, using the /system_stats endpoint.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// UploadImage uploads a local image into the server's input folder and
// returns the filename assigned by the server.
func (c *Client) UploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy image data: %w", err)
	}
	if err := w.WriteField("type", "input"); err != nil {
		return "", err
	}
	if err := w.WriteField("overwrite", "true"); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload image: server returned %s", resp.Status)
	}

	var result struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.Name == "" {
		result.Name = filepath.Base(path)
	}
	return result.Name, nil
}

// queueAs submits a workflow graph for execution under the given client ID
// and returns the prompt ID.
func (c *Client) queueAs(ctx context.Context, graph any, clientID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"prompt":    graph,
		"client_id": clientID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		PromptID string          `json:"prompt_id"`
		Error    json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode queue response: %w", err)
	}
	if len(result.Error) > 0 && string(result.Error) != "null" {
		return "", fmt.Errorf("comfyui rejected prompt: %s", result.Error)
	}
	if result.PromptID == "" {
		return "", fmt.Errorf("comfyui returned no prompt_id")
	}

	log.Printf("[ComfyUI] Queued prompt: %s", result.PromptID)
	return result.PromptID, nil
}

// wsEvent is the envelope for messages on the /ws channel.
type wsEvent struct {
	Type string `json:"type"`
	Data struct {
		PromptID         string  `json:"prompt_id"`
		Value            float64 `json:"value"`
		Max              float64 `json:"max"`
		ExceptionMessage string  `json:"exception_message"`
	} `json:"data"`
}

// dialWS opens the push channel for the given client ID.
func (c *Client) dialWS(ctx context.Context, clientID string) (*websocket.Conn, error) {
	wsURL := strings.Replace(strings.Replace(c.baseURL, "https://", "wss://", 1), "http://", "ws://", 1)
	wsURL += "/ws?clientId=" + url.QueryEscape(clientID)

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return conn, nil
}

// waitOn reads push events until the prompt finishes, then returns its
// output files. The context bounds the whole wait; progress (if non-nil)
// receives sampling progress updates.
func (c *Client) waitOn(ctx context.Context, conn *websocket.Conn, promptID string, progress ProgressFunc) ([]OutputFile, error) {
	// Unblock ReadMessage when the context expires.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("wait for prompt %s: %w", promptID, ctx.Err())
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("websocket closed before prompt %s finished", promptID)
			}
			return nil, fmt.Errorf("read websocket: %w", err)
		}

		var ev wsEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue // binary preview frames and other noise
		}

		switch ev.Type {
		case "progress":
			if progress != nil && ev.Data.Max > 0 {
				progress(ev.Data.Value / ev.Data.Max * 100)
			}
		case "executed":
			if ev.Data.PromptID == promptID {
				log.Printf("[ComfyUI] Prompt %s complete", promptID)
				return c.History(ctx, promptID)
			}
		case "execution_error":
			if ev.Data.PromptID == promptID {
				return nil, fmt.Errorf("execution error: %s", ev.Data.ExceptionMessage)
			}
		}
	}
}

// History fetches the output files recorded for a completed prompt.
func (c *Client) History(ctx context.Context, promptID string) ([]OutputFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	var history map[string]struct {
		Outputs map[string]map[string]json.RawMessage `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	entry, ok := history[promptID]
	if !ok {
		return nil, nil
	}

	var outputs []OutputFile
	for _, nodeOutput := range entry.Outputs {
		// Different sink nodes report under different keys.
		for _, key := range []string{"images", "gifs", "videos"} {
			raw, ok := nodeOutput[key]
			if !ok {
				continue
			}
			var files []OutputFile
			if err := json.Unmarshal(raw, &files); err != nil {
				continue
			}
			outputs = append(outputs, files...)
		}
	}
	return outputs, nil
}

// Download fetches an output file via /view and writes it into destDir,
// returning the local path.
func (c *Client) Download(ctx context.Context, f OutputFile, destDir string) (string, error) {
	folderType := f.Type
	if folderType == "" {
		folderType = "output"
	}

	q := url.Values{}
	q.Set("filename", f.Filename)
	q.Set("subfolder", f.Subfolder)
	q.Set("type", folderType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", f.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: server returned %s", f.Filename, resp.Status)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	outPath := filepath.Join(destDir, f.Filename)
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("write %s: %w", outPath, err)
	}
	return outPath, nil
}

// Run queues a workflow and waits for its outputs in one call. The push
// channel is connected before the prompt is queued so a fast job's
// "executed" event cannot be missed.
func (c *Client) Run(ctx context.Context, graph any, progress ProgressFunc) ([]OutputFile, error) {
	clientID := uuid.NewString()

	conn, err := c.dialWS(ctx, clientID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	promptID, err := c.queueAs(ctx, graph, clientID)
	if err != nil {
		return nil, err
	}
	return c.waitOn(ctx, conn, promptID, progress)
}
