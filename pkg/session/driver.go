// Package session drives a single agent session and reduces its event stream
// into a trace of invoked skills, tool calls and result metadata.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jdgilhuly/go_skill_evals/pkg/agent"
	"github.com/jdgilhuly/go_skill_evals/pkg/log"
	"github.com/jdgilhuly/go_skill_evals/pkg/trace"
)

// DefaultAllowedTools is the tool allow-list granted to every session.
var DefaultAllowedTools = []string{agent.SkillTool, "Read", "Glob", "Grep", "Bash"}

// DefaultSystemPrompt keeps the runtime's own preset and forbids
// clarifying questions so sessions never stall waiting for input.
var DefaultSystemPrompt = agent.SystemPrompt{
	Preset: agent.PresetClaudeCode,
	Append: "Never ask clarifying questions. Invoke skills directly.",
}

// Config configures a Driver. Zero-valued fields take the defaults above.
type Config struct {
	Runtime        agent.Runtime
	AllowedTools   []string
	PermissionMode string
	SystemPrompt   agent.SystemPrompt
	SettingSources []string
	// PluginDirs are the directories skills are loaded from.
	PluginDirs []string
	// Cwd is the working directory of each session.
	Cwd    string
	Logger log.Logger
}

// Driver opens sessions on an agent runtime.
type Driver struct {
	cfg Config
	log log.Logger
}

// NewDriver creates a Driver, filling unset options with defaults.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("session driver requires an agent runtime")
	}
	if len(cfg.AllowedTools) == 0 {
		cfg.AllowedTools = DefaultAllowedTools
	}
	if cfg.PermissionMode == "" {
		cfg.PermissionMode = agent.PermissionBypass
	}
	if cfg.SystemPrompt == (agent.SystemPrompt{}) {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if len(cfg.SettingSources) == 0 {
		cfg.SettingSources = []string{"project"}
	}
	return &Driver{cfg: cfg, log: log.OrNop(cfg.Logger)}, nil
}

type handler func(d *Driver, tr *trace.Session, msg agent.Message)

var handlers = map[agent.MessageKind]handler{
	agent.KindAssistant: (*Driver).onAssistant,
	agent.KindResult:    (*Driver).onResult,
}

// Run opens one session for prompt and consumes its stream to the end. The
// returned trace is never nil: on error it holds whatever was observed
// before the failure, including captured stderr.
func (d *Driver) Run(ctx context.Context, prompt string, maxTurns int, model string) (*trace.Session, error) {
	tr := trace.New()
	defer tr.Finish()

	opts := agent.Options{
		AllowedTools:   d.cfg.AllowedTools,
		PermissionMode: d.cfg.PermissionMode,
		SystemPrompt:   d.cfg.SystemPrompt,
		SettingSources: d.cfg.SettingSources,
		PluginDirs:     d.cfg.PluginDirs,
		MaxTurns:       maxTurns,
		Model:          model,
		Cwd:            d.cfg.Cwd,
		Stderr:         tr.AppendStderr,
	}

	stream, err := d.cfg.Runtime.Query(ctx, prompt, opts)
	if err != nil {
		return tr, fmt.Errorf("starting session: %w", err)
	}
	defer stream.Close()

	for {
		msg, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return tr, nil
		}
		if err != nil {
			return tr, err
		}
		if h, ok := handlers[msg.Kind()]; ok {
			h(d, tr, msg)
		} else {
			d.log.Debugw("ignoring message", "kind", msg.Kind())
		}
	}
}

func (d *Driver) onAssistant(tr *trace.Session, msg agent.Message) {
	am := msg.(agent.AssistantMessage)
	for _, b := range am.Content {
		tu, ok := b.(agent.ToolUseBlock)
		if !ok {
			continue
		}
		tr.AddToolCall(tu.Name, tu.Input)
		if skill := tu.SkillName(); skill != "" {
			d.log.Debugw("skill invoked", "skill", skill)
			tr.AddSkill(skill)
		}
	}
}

func (d *Driver) onResult(tr *trace.Session, msg agent.Message) {
	rm := msg.(agent.ResultMessage)
	d.log.Debugw("session finished", "session_id", rm.SessionID, "turns", rm.NumTurns, "is_error", rm.IsError)
	tr.SetResult(trace.Meta{
		SessionID:    rm.SessionID,
		TotalCostUSD: rm.TotalCostUSD,
		NumTurns:     rm.NumTurns,
		IsError:      rm.IsError,
		DurationMS:   rm.DurationMS,
		Result:       rm.Result,
	})
}
