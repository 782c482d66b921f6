package agent

import (
	"context"
	"fmt"
)

// SkillTool is the tool name the runtime uses when the agent invokes a skill.
const SkillTool = "Skill"

// PermissionBypass skips interactive tool-use confirmation.
const PermissionBypass = "bypassPermissions"

// Runtime starts agent sessions. Implementations must be safe for
// concurrent use; every Query owns its own Stream.
type Runtime interface {
	// Query starts a session for prompt. Cancelling ctx abandons the session.
	Query(ctx context.Context, prompt string, opts Options) (Stream, error)
}

// Stream yields the messages of one session in emission order. Next
// returns io.EOF once the session has ended cleanly.
type Stream interface {
	Next() (Message, error)
	Close() error
}

// PresetClaudeCode is the runtime's built-in system prompt, the only preset
// the CLI runtime supports.
const PresetClaudeCode = "claude_code"

// SystemPrompt selects a preset system prompt and text appended to it.
type SystemPrompt struct {
	Preset string `yaml:"preset" json:"preset,omitempty"`
	Append string `yaml:"append" json:"append,omitempty"`
}

// Options configures a single session.
type Options struct {
	AllowedTools   []string
	PermissionMode string
	SystemPrompt   SystemPrompt
	SettingSources []string
	PluginDirs     []string
	MaxTurns       int
	// Model is empty to use the runtime default.
	Model string
	Cwd   string
	// Stderr receives diagnostic output of the runtime process, one line at
	// a time. It may be called from a goroutine other than the reader.
	Stderr func(line string)
}

// ExitError reports a runtime process that exited unsuccessfully.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("agent runtime exited with code %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }
