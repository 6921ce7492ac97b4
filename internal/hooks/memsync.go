package hooks

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// memSyncDebounce suppresses duplicate syncs when several hook events
// fire for the same state change in quick succession.
const memSyncDebounce = 5 * time.Second

// MemSync mirrors the work-in-progress tracker into the persistent
// memory directory at session end, so the next session starts with an
// accurate task list even if the transcript is gone.
type MemSync struct {
	WIPFile    string
	MemoryDir  string
	JournalDir string
	ProjectDir string
}

// Run is best effort and always allows the event.
func (m *MemSync) Run(in Input) int {
	if m.WIPFile == "" || m.MemoryDir == "" {
		return 0
	}
	unlock, ok := m.lock()
	if !ok {
		return 0
	}
	defer unlock()
	if m.recentlySynced() {
		return 0
	}

	data, err := os.ReadFile(m.WIPFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[MemSync] Cannot read WIP file: %v", err)
		}
		return 0
	}
	active, blocked := parseWIPSections(string(data))
	if err := m.writeTaskState(active, blocked); err != nil {
		log.Printf("[MemSync] Task state write failed: %v", err)
		return 0
	}
	if err := m.appendJournal(in, len(active), len(blocked)); err != nil {
		log.Printf("[MemSync] Journal append failed: %v", err)
	}
	m.stamp()
	log.Printf("[MemSync] Synced %d active / %d blocked task(s)", len(active), len(blocked))
	return 0
}

// lock takes an exclusive-create lock file. Stale locks older than a
// minute are broken: a crashed hook must not wedge syncing forever.
func (m *MemSync) lock() (func(), bool) {
	path := filepath.Join(m.MemoryDir, ".memsync.lock")
	if err := os.MkdirAll(m.MemoryDir, 0o755); err != nil {
		return nil, false
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if fi, serr := os.Stat(path); serr == nil && time.Since(fi.ModTime()) > time.Minute {
			os.Remove(path)
			f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		}
		if err != nil {
			return nil, false
		}
	}
	f.Close()
	return func() { os.Remove(path) }, true
}

func (m *MemSync) stampPath() string {
	return filepath.Join(m.MemoryDir, ".memsync.stamp")
}

func (m *MemSync) recentlySynced() bool {
	fi, err := os.Stat(m.stampPath())
	return err == nil && time.Since(fi.ModTime()) < memSyncDebounce
}

func (m *MemSync) stamp() {
	now := time.Now()
	if err := os.WriteFile(m.stampPath(), []byte(now.Format(time.RFC3339)), 0o644); err != nil {
		return
	}
	_ = os.Chtimes(m.stampPath(), now, now)
}

// parseWIPSections pulls `| task | note | timestamp |` rows out of the
// tracker's 作業中 and ブロック中 sections. Separator and header rows
// are skipped.
func parseWIPSections(text string) (active, blocked []string) {
	section := ""
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.ToLower(trimmed)
			switch {
			case strings.Contains(heading, "作業中"), strings.Contains(heading, "in progress"):
				section = "active"
			case strings.Contains(heading, "ブロック中"), strings.Contains(heading, "blocked"):
				section = "blocked"
			default:
				section = ""
			}
			continue
		}
		if section == "" || !strings.HasPrefix(trimmed, "|") {
			continue
		}
		if strings.Contains(trimmed, "---") || strings.Contains(trimmed, "タスク") {
			continue
		}
		var cells []string
		for _, c := range strings.Split(trimmed, "|") {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) == 0 {
			continue
		}
		item := cells[0]
		if len(cells) > 1 && cells[1] != "" {
			item += " (" + cells[1] + ")"
		}
		switch section {
		case "active":
			active = append(active, item)
		case "blocked":
			blocked = append(blocked, item)
		}
	}
	return active, blocked
}

func (m *MemSync) writeTaskState(active, blocked []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task state\n\nLast synced: %s\n\n", time.Now().Format(time.RFC3339))
	b.WriteString("## Active\n\n")
	for _, t := range active {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	if len(active) == 0 {
		b.WriteString("(none)\n")
	}
	b.WriteString("\n## Blocked\n\n")
	for _, t := range blocked {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	if len(blocked) == 0 {
		b.WriteString("(none)\n")
	}
	return os.WriteFile(filepath.Join(m.MemoryDir, "task-state.md"), []byte(b.String()), 0o644)
}

func (m *MemSync) appendJournal(in Input, active, blocked int) error {
	if m.JournalDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.JournalDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(m.JournalDir, time.Now().Format("2006-01-02")+".md")
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s memory sync, session %s\n\n%d active, %d blocked task(s) mirrored to task-state.md\n",
		time.Now().Format("15:04"), shortSession(in.SessionID), active, blocked)
	if snap := m.gitSnapshot(); snap != "" {
		fmt.Fprintf(&b, "\nRepo state:\n```\n%s\n```\n", snap)
	}
	return appendFile(path, b.String())
}

// gitSnapshot grabs the recent commits and dirty files so the journal
// entry captures where the checkout stood at session end.
func (m *MemSync) gitSnapshot() string {
	if m.ProjectDir == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var parts []string
	if out, err := runShell(ctx, m.ProjectDir, "git", "log", "--oneline", "-5"); err == nil {
		parts = append(parts, strings.TrimSpace(string(out)))
	}
	if out, err := runShell(ctx, m.ProjectDir, "git", "status", "--porcelain"); err == nil {
		if s := strings.TrimSpace(string(out)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
