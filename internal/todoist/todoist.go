// Package todoist is a small client for the Todoist REST API (v1),
// covering the daily digest and overdue rescheduling.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jarvis/internal/version"
)

const defaultBaseURL = "https://api.todoist.com/api/v1"

// Task is a Todoist task. Priority runs 1 (normal) to 4 (urgent).
type Task struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Priority int    `json:"priority"`
	Due      *Due   `json:"due"`
}

// Due carries the due date; datetime-due tasks use RFC3339 in Date.
type Due struct {
	Date string `json:"date"`
}

// Client talks to the Todoist API with a bearer token.
type Client struct {
	token   string
	baseURL string
	httpc   *http.Client
}

// New returns a client, or an error when the token is missing.
func New(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("todoist API token is not configured")
	}
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type filterPage struct {
	Results    []Task `json:"results"`
	NextCursor string `json:"next_cursor"`
}

// Filter pages through /tasks/filter for the given query.
func (c *Client) Filter(ctx context.Context, query string) ([]Task, error) {
	var all []Task
	cursor := ""
	for {
		params := url.Values{"query": {query}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/tasks/filter?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", version.UserAgent())

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("querying tasks: %w", err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("todoist returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		var page filterPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding task page: %w", err)
		}
		all = append(all, page.Results...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// Today renders the daily digest with priority markers.
func (c *Client) Today(ctx context.Context) (string, error) {
	tasks, err := c.Filter(ctx, "today")
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "📋 今日のタスクなし", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 今日のタスク (%d件):\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "  %s %s (id:%s)\n", priorityMarker(t.Priority), t.Content, t.ID)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func priorityMarker(p int) string {
	switch p {
	case 4:
		return "🔴"
	case 3:
		return "🟡"
	default:
		return "⚪"
	}
}

// RescheduleResult counts the outcome of a bulk reschedule.
type RescheduleResult struct {
	Total  int
	Moved  int
	Errors int
}

// RescheduleOverdue moves every overdue task to the target date
// (YYYY-MM-DD). Tasks due at a specific time keep their time of day.
func (c *Client) RescheduleOverdue(ctx context.Context, target string) (RescheduleResult, error) {
	if _, err := time.Parse("2006-01-02", target); err != nil {
		return RescheduleResult{}, fmt.Errorf("target date %q: %w", target, err)
	}
	tasks, err := c.Filter(ctx, "overdue")
	if err != nil {
		return RescheduleResult{}, err
	}
	res := RescheduleResult{Total: len(tasks)}
	for _, t := range tasks {
		payload := map[string]string{"due_date": target}
		if t.Due != nil {
			if _, timePart, ok := strings.Cut(t.Due.Date, "T"); ok {
				if timePart == "" {
					timePart = "00:00:00Z"
				}
				payload = map[string]string{"due_datetime": target + "T" + timePart}
			}
		}
		if err := c.updateTask(ctx, t.ID, payload); err != nil {
			log.Printf("[Todoist] Reschedule of %s failed: %v", t.ID, err)
			res.Errors++
			continue
		}
		res.Moved++
	}
	return res, nil
}

func (c *Client) updateTask(ctx context.Context, id string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/tasks/"+id, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("todoist returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
