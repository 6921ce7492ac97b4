// Package wip maintains the markdown work-in-progress tracker: a
// single state file with In Progress, Blocked and Done sections of
// `| task | note | timestamp |` rows.
package wip

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	headerInProgress = "## 🔴 作業中 (In Progress)"
	headerBlocked    = "## 🟡 ブロック中 (Blocked)"
	headerDone       = "## ✅ 完了 (Done)"

	doneRetention = 30 * 24 * time.Hour
)

const template = `# WIP Tracker
# 🦞/Claude Code が更新。新チャットで必ず読む。

` + headerInProgress + `

` + headerBlocked + `

` + headerDone + `
`

// Tracker edits the state file in place.
type Tracker struct {
	Path string

	now func() time.Time
}

// NewTracker points at a state file, creating parent directories as
// needed on first write.
func NewTracker(path string) *Tracker {
	return &Tracker{Path: path, now: time.Now}
}

func (t *Tracker) load() (string, error) {
	data, err := os.ReadFile(t.Path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
			return "", fmt.Errorf("creating state directory: %w", err)
		}
		if err := os.WriteFile(t.Path, []byte(template), 0o644); err != nil {
			return "", fmt.Errorf("creating tracker file: %w", err)
		}
		return template, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading tracker: %w", err)
	}
	return string(data), nil
}

func (t *Tracker) save(content string) error {
	return os.WriteFile(t.Path, []byte(content), 0o644)
}

func (t *Tracker) timestamp() string {
	return t.now().Format("2006-01-02 15:04")
}

func taskRow(task, note, ts string) string {
	return fmt.Sprintf("| %s | %s | %s |", task, note, ts)
}

// List returns the tracker contents, creating the template first if
// the file does not exist yet.
func (t *Tracker) List() (string, error) {
	return t.load()
}

// Add files a new task under In Progress. Duplicate tasks are rejected.
func (t *Tracker) Add(task, note string) error {
	if task == "" {
		return fmt.Errorf("task name is required")
	}
	content, err := t.load()
	if err != nil {
		return err
	}
	if strings.Contains(content, "| "+task+" |") {
		return fmt.Errorf("task already tracked: %s", task)
	}
	content = strings.Replace(content, headerInProgress,
		headerInProgress+"\n"+taskRow(task, note, t.timestamp()), 1)
	return t.save(content)
}

// Done moves a task to the Done section with a result note.
func (t *Tracker) Done(task, result string) error {
	if result == "" {
		result = "完了"
	}
	return t.move(task, headerDone, result)
}

// Block moves a task to the Blocked section with the blocking reason.
func (t *Tracker) Block(task, reason string) error {
	return t.move(task, headerBlocked, reason)
}

func (t *Tracker) move(task, targetHeader, note string) error {
	content, err := t.load()
	if err != nil {
		return err
	}
	needle := "| " + task + " |"
	var kept []string
	found := false
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, needle) {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return fmt.Errorf("task not found: %s", task)
	}
	var out []string
	for _, line := range kept {
		out = append(out, line)
		if strings.Contains(line, targetHeader) {
			out = append(out, taskRow(task, note, t.timestamp()))
		}
	}
	return t.save(strings.Join(out, "\n"))
}

// Clean drops Done rows older than the retention window and returns
// how many were removed.
func (t *Tracker) Clean() (int, error) {
	content, err := t.load()
	if err != nil {
		return 0, err
	}
	cutoff := t.now().Add(-doneRetention).Format("2006-01-02")
	var out []string
	inDone := false
	removed := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, headerDone) {
			inDone = true
			out = append(out, line)
			continue
		}
		if inDone && strings.HasPrefix(line, "## ") {
			inDone = false
		}
		if inDone && strings.HasPrefix(line, "|") {
			parts := strings.Split(line, "|")
			if len(parts) >= 4 {
				date := strings.TrimSpace(parts[3])
				if len(date) >= 10 && date[:10] < cutoff {
					removed++
					continue
				}
			}
		}
		out = append(out, line)
	}
	if err := t.save(strings.Join(out, "\n")); err != nil {
		return 0, err
	}
	return removed, nil
}
