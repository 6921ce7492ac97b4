// Package hooks implements the coding-assistant lifecycle hooks: the
// PreToolUse command guard, PreCompact context preservation, the Stop
// self-validation gate and the session memory sync.
//
// Hook payloads arrive as JSON on stdin. The exit code is the protocol:
// 0 allows the event, 2 blocks it with stderr fed back to the agent.
package hooks

import (
	"encoding/json"
	"io"
)

// Input is the hook payload delivered on stdin.
type Input struct {
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path"`
	Trigger        string          `json:"trigger"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
}

// BashInput is the tool_input shape for shell commands.
type BashInput struct {
	Command string `json:"command"`
}

// ReadInput parses a hook payload. Unparseable input yields a zero Input
// rather than an error: hooks must fail open, never break the session.
func ReadInput(r io.Reader) Input {
	var in Input
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return Input{}
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}
	}
	return in
}

// Command extracts the shell command from a Bash tool invocation, or ""
// for other tools.
func (in Input) Command() string {
	if in.ToolName != "Bash" || len(in.ToolInput) == 0 {
		return ""
	}
	var bi BashInput
	if err := json.Unmarshal(in.ToolInput, &bi); err != nil {
		return ""
	}
	return bi.Command
}
