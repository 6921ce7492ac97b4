// Package notify sends Telegram messages for job results and hook events.
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// maxMessageLen leaves margin under Telegram's 4096-char limit.
const maxMessageLen = 3800

// botAPI abstracts the Telegram bot methods used by the notifier,
// enabling testing with mocks.
type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

// Notifier sends messages to a fixed chat.
type Notifier struct {
	bot    botAPI
	chatID string
}

// New creates a notifier. Both the bot token and the chat ID are required.
func New(token, chatID string) (*Notifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram chat ID is not configured")
	}

	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{bot: b, chatID: chatID}, nil
}

// Send delivers a plain-text message, truncated to the Telegram limit.
func (n *Notifier) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty message")
	}
	if len(text) > maxMessageLen {
		// Back up to a rune boundary so Japanese text is not cut
		// mid-character.
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	log.Printf("[Notify] Message sent to chat %s (%d chars)", n.chatID, len(text))
	return nil
}

// SendPhoto uploads an image file with an optional caption.
func (n *Notifier) SendPhoto(ctx context.Context, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	_, err = n.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  n.chatID,
		Photo:   &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	log.Printf("[Notify] Photo sent to chat %s (%s)", n.chatID, filepath.Base(path))
	return nil
}

// SendDocument uploads an arbitrary file (videos go out as documents so
// Telegram doesn't recompress them).
func (n *Notifier) SendDocument(ctx context.Context, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	_, err = n.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   n.chatID,
		Document: &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:  caption,
	})
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	log.Printf("[Notify] Document sent to chat %s (%s)", n.chatID, filepath.Base(path))
	return nil
}

// ReadMessage resolves the message text for the CLI: a literal argument,
// "-" or no argument for stdin, or --file contents.
func ReadMessage(arg, file string, stdin io.Reader) (string, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read message file: %w", err)
		}
		return string(data), nil
	case arg == "" || arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		return arg, nil
	}
}
