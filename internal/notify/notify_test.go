package notify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBot records the calls the notifier makes.
type mockBot struct {
	messages  []*bot.SendMessageParams
	photos    []*bot.SendPhotoParams
	documents []*bot.SendDocumentParams
	err       error
}

func (m *mockBot) SendMessage(ctx context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	m.messages = append(m.messages, p)
	return &models.Message{}, m.err
}

func (m *mockBot) SendPhoto(ctx context.Context, p *bot.SendPhotoParams) (*models.Message, error) {
	m.photos = append(m.photos, p)
	return &models.Message{}, m.err
}

func (m *mockBot) SendDocument(ctx context.Context, p *bot.SendDocumentParams) (*models.Message, error) {
	m.documents = append(m.documents, p)
	return &models.Message{}, m.err
}

func testNotifier(m *mockBot) *Notifier {
	return &Notifier{bot: m, chatID: "42"}
}

func TestSend(t *testing.T) {
	m := &mockBot{}
	n := testNotifier(m)

	require.NoError(t, n.Send(context.Background(), "hello"))
	require.Len(t, m.messages, 1)
	assert.Equal(t, "42", m.messages[0].ChatID)
	assert.Equal(t, "hello", m.messages[0].Text)
}

func TestSend_TruncatesLongMessages(t *testing.T) {
	m := &mockBot{}
	n := testNotifier(m)

	require.NoError(t, n.Send(context.Background(), strings.Repeat("x", 5000)))
	require.Len(t, m.messages, 1)
	assert.Len(t, m.messages[0].Text, 3800)
}

func TestSend_TruncatesOnRuneBoundary(t *testing.T) {
	m := &mockBot{}
	n := testNotifier(m)

	// 3-byte runes never line up with the byte limit, so a naive byte
	// slice would cut one mid-character.
	require.NoError(t, n.Send(context.Background(), strings.Repeat("あ", 1300)))
	require.Len(t, m.messages, 1)
	sent := m.messages[0].Text
	assert.True(t, utf8.ValidString(sent))
	assert.LessOrEqual(t, len(sent), 3800)
}

func TestSend_EmptyMessage(t *testing.T) {
	n := testNotifier(&mockBot{})
	err := n.Send(context.Background(), "   \n ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty message")
}

func TestSendPhoto(t *testing.T) {
	m := &mockBot{}
	n := testNotifier(m)

	img := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0644))

	require.NoError(t, n.SendPhoto(context.Background(), img, "done"))
	require.Len(t, m.photos, 1)
	assert.Equal(t, "done", m.photos[0].Caption)

	upload, ok := m.photos[0].Photo.(*models.InputFileUpload)
	require.True(t, ok)
	assert.Equal(t, "out.png", upload.Filename)
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New("", "42")
	assert.Error(t, err)

	_, err = New("123:abc", "")
	assert.Error(t, err)
}

func TestReadMessage(t *testing.T) {
	t.Run("literal argument", func(t *testing.T) {
		msg, err := ReadMessage("hi", "", strings.NewReader("ignored"))
		require.NoError(t, err)
		assert.Equal(t, "hi", msg)
	})

	t.Run("stdin via dash", func(t *testing.T) {
		msg, err := ReadMessage("-", "", strings.NewReader("from stdin"))
		require.NoError(t, err)
		assert.Equal(t, "from stdin", msg)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "msg.txt")
		require.NoError(t, os.WriteFile(path, []byte("from file"), 0644))
		msg, err := ReadMessage("", path, nil)
		require.NoError(t, err)
		assert.Equal(t, "from file", msg)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadMessage("", "/nonexistent", nil)
		assert.Error(t, err)
	})
}
