package hooks

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const stopMaxRetries = 3

// codeExtensions are the file types whose changes trigger validation.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".ts": true, ".js": true,
	".sh": true, ".sql": true, ".yaml": true, ".yml": true,
}

// credentialPatterns flag secrets accidentally committed into added lines.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*["'][A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`(?i)secret\s*[:=]\s*["'][A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`(?i)password\s*[:=]\s*["'][^"']{8,}`),
	regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`\b\d{6,10}:[A-Za-z0-9_-]{35}\b`), // bot token shape
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
}

// StopCheck is the Stop hook: when the agent is about to finish after
// editing code, it verifies the test suite still passes and that no
// credential-looking strings were added. A per-session retry counter
// caps how many times the stop can be bounced back so a persistently
// red suite cannot trap the session forever.
type StopCheck struct {
	ProjectDir  string
	TestCommand string
	StateDir    string // defaults to os.TempDir()

	run commandRunner
}

type commandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func runShell(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// NewStopCheck builds a validator over the given project checkout.
func NewStopCheck(projectDir, testCommand string) *StopCheck {
	return &StopCheck{
		ProjectDir:  projectDir,
		TestCommand: testCommand,
		StateDir:    os.TempDir(),
		run:         runShell,
	}
}

// Run returns (exitCode, stderrMessage). Exit 2 sends the message back
// to the agent and keeps the session alive.
func (s *StopCheck) Run(ctx context.Context, in Input) (int, string) {
	if s.ProjectDir == "" {
		return 0, ""
	}
	files, err := s.changedCodeFiles(ctx)
	if err != nil {
		log.Printf("[StopCheck] Cannot inspect working tree: %v", err)
		return 0, ""
	}
	if len(files) == 0 {
		s.resetRetries(in.SessionID)
		return 0, ""
	}
	if s.retries(in.SessionID) >= stopMaxRetries {
		log.Printf("[StopCheck] Retry limit reached for session %s, allowing stop", shortSession(in.SessionID))
		s.resetRetries(in.SessionID)
		return 0, ""
	}

	var problems []string
	if leaks := s.scanCredentials(ctx); len(leaks) > 0 {
		problems = append(problems, "Added lines look like credentials:")
		problems = append(problems, leaks...)
	}
	if s.TestCommand != "" {
		if out, err := s.runTests(ctx); err != nil {
			problems = append(problems, fmt.Sprintf("Test command failed (%v):", err))
			problems = append(problems, tail(string(out), 30))
		}
	}
	if len(problems) == 0 {
		s.resetRetries(in.SessionID)
		return 0, ""
	}
	s.bumpRetries(in.SessionID)
	msg := fmt.Sprintf("Code changed in %d file(s) but validation failed. Fix before stopping:\n%s",
		len(files), strings.Join(problems, "\n"))
	return 2, msg
}

// changedCodeFiles lists modified or untracked files with a code
// extension, per git status.
func (s *StopCheck) changedCodeFiles(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, s.ProjectDir, "git", "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		name := strings.TrimSpace(line[3:])
		// Renames come through as "old -> new".
		if i := strings.Index(name, " -> "); i >= 0 {
			name = name[i+4:]
		}
		if codeExtensions[filepath.Ext(name)] {
			files = append(files, name)
		}
	}
	return files, nil
}

// scanCredentials looks at lines added in the uncommitted diff.
func (s *StopCheck) scanCredentials(ctx context.Context) []string {
	out, err := s.run(ctx, s.ProjectDir, "git", "diff", "HEAD")
	if err != nil {
		return nil
	}
	var leaks []string
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		for _, re := range credentialPatterns {
			if re.MatchString(line) {
				leaks = append(leaks, "  "+strings.TrimSpace(line))
				break
			}
		}
	}
	return leaks
}

func (s *StopCheck) runTests(ctx context.Context) ([]byte, error) {
	tctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	log.Printf("[StopCheck] Running: %s", s.TestCommand)
	return s.run(tctx, s.ProjectDir, "sh", "-c", s.TestCommand)
}

func (s *StopCheck) retryFile(sessionID string) string {
	return filepath.Join(s.StateDir, "stopcheck-"+shortSession(sessionID)+".count")
}

func (s *StopCheck) retries(sessionID string) int {
	data, err := os.ReadFile(s.retryFile(sessionID))
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return n
}

func (s *StopCheck) bumpRetries(sessionID string) {
	n := s.retries(sessionID) + 1
	_ = os.WriteFile(s.retryFile(sessionID), []byte(strconv.Itoa(n)), 0o644)
}

func (s *StopCheck) resetRetries(sessionID string) {
	_ = os.Remove(s.retryFile(sessionID))
}

func tail(s string, lines int) string {
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}
