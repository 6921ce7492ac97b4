package hooks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const transcriptBackupKeep = 10

// Notifier is the optional outbound channel for hook events.
type Notifier interface {
	Send(text string) error
}

// PreCompact preserves session context before the transcript is
// compacted: it backs up the raw transcript, distills the user's
// requests and the files touched into a journal entry, and leaves a
// recovery note for the next context window.
type PreCompact struct {
	BackupDir  string
	JournalDir string
	Notify     Notifier
}

// transcriptLine is the subset of a transcript JSONL record we read.
type transcriptLine struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

var filePathPattern = regexp.MustCompile(`(?:^|[\s"'` + "`" + `])((?:/|~/|\./)[\w./-]+\.\w{1,8})`)

// Run never returns a blocking exit code. Context preservation is best
// effort and a failure must not stall the session.
func (p *PreCompact) Run(in Input) int {
	if in.TranscriptPath == "" {
		return 0
	}
	backup, err := p.backupTranscript(in)
	if err != nil {
		log.Printf("[PreCompact] Backup failed: %v", err)
	}
	requests, files := p.distill(in.TranscriptPath)
	if err := p.writeJournal(in, requests, files, backup); err != nil {
		log.Printf("[PreCompact] Journal write failed: %v", err)
	}
	if err := p.writeRecoveryNote(in, requests, files); err != nil {
		log.Printf("[PreCompact] Recovery note failed: %v", err)
	}
	if p.Notify != nil {
		msg := fmt.Sprintf("🗜 Context compaction (%s) for session %s: %d request(s) preserved",
			in.Trigger, shortSession(in.SessionID), len(requests))
		if err := p.Notify.Send(msg); err != nil {
			log.Printf("[PreCompact] Notify failed: %v", err)
		}
	}
	return 0
}

func (p *PreCompact) backupTranscript(in Input) (string, error) {
	if p.BackupDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(p.BackupDir, 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(in.TranscriptPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := fmt.Sprintf("transcript-%s-%s.jsonl",
		time.Now().Format("20060102-150405"), shortSession(in.SessionID))
	dst := filepath.Join(p.BackupDir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	p.pruneBackups()
	return dst, nil
}

// pruneBackups keeps the newest transcriptBackupKeep backups.
func (p *PreCompact) pruneBackups() {
	matches, err := filepath.Glob(filepath.Join(p.BackupDir, "transcript-*.jsonl"))
	if err != nil || len(matches) <= transcriptBackupKeep {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-transcriptBackupKeep] {
		if err := os.Remove(old); err != nil {
			log.Printf("[PreCompact] Cannot prune %s: %v", old, err)
		}
	}
}

// distill scans the transcript for user requests and file paths
// mentioned anywhere in the conversation.
func (p *PreCompact) distill(path string) (requests []string, files []string) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	seen := make(map[string]bool)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var line transcriptLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		text := contentText(line.Message.Content)
		if text == "" {
			continue
		}
		if line.Message.Role == "user" && !strings.HasPrefix(text, "<") {
			requests = append(requests, summarize(text))
		}
		for _, m := range filePathPattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				files = append(files, m[1])
			}
		}
	}
	if len(requests) > 10 {
		requests = requests[len(requests)-10:]
	}
	sort.Strings(files)
	return requests, files
}

// contentText flattens a message content field, which is either a plain
// string or a list of typed blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func summarize(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if r := []rune(text); len(r) > 200 {
		text = string(r[:200]) + "…"
	}
	return text
}

func (p *PreCompact) writeJournal(in Input, requests, files []string, backup string) error {
	if p.JournalDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.JournalDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(p.JournalDir, time.Now().Format("2006-01-02")+".md")
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s compaction (%s) — session %s\n\n",
		time.Now().Format("15:04"), in.Trigger, shortSession(in.SessionID))
	if backup != "" {
		fmt.Fprintf(&b, "Transcript backup: %s\n\n", backup)
	}
	if len(requests) > 0 {
		b.WriteString("Requests this session:\n")
		for _, r := range requests {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	if len(files) > 0 {
		b.WriteString("Files mentioned:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return appendFile(path, b.String())
}

// writeRecoveryNote drops a small file next to the journal that the
// post-compaction context can re-read to pick up where it left off.
func (p *PreCompact) writeRecoveryNote(in Input, requests, files []string) error {
	if p.JournalDir == "" {
		return nil
	}
	path := filepath.Join(p.JournalDir, "last-compaction.md")
	var b strings.Builder
	fmt.Fprintf(&b, "# Compaction recovery note\n\nSession: %s\nTrigger: %s\nTime: %s\n\n",
		in.SessionID, in.Trigger, time.Now().Format(time.RFC3339))
	if len(requests) > 0 {
		fmt.Fprintf(&b, "Most recent request:\n%s\n\n", requests[len(requests)-1])
	}
	if len(files) > 0 {
		b.WriteString("Files in play:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "unknown"
	}
	return id
}
