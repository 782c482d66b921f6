// Package mock provides a scripted agent runtime that replays canned
// sessions instead of launching a real agent. Fixtures are keyed by prompt.
package mock

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdgilhuly/go_skill_evals/pkg/agent"
)

// Fixture defines the scripted sessions for a single prompt.
type Fixture struct {
	Prompt          string         `yaml:"prompt" json:"prompt"`
	Responses       []MockResponse `yaml:"responses" json:"responses"`
	DefaultResponse *MockResponse  `yaml:"default_response" json:"default_response"`
}

// MockResponse scripts one session.
type MockResponse struct {
	// Skills are emitted as Skill tool invocations, in order.
	Skills []string `yaml:"skills" json:"skills"`
	// ToolCalls are emitted after the skills.
	ToolCalls []ToolCall     `yaml:"tool_calls" json:"tool_calls"`
	Text      string         `yaml:"text" json:"text"`
	Stderr    []string       `yaml:"stderr" json:"stderr"`
	Result    *ResultFixture `yaml:"result" json:"result"`
	Error     string         `yaml:"error" json:"error"`
	Delay     time.Duration  `yaml:"delay" json:"delay"`
	// Hang blocks the session until its context is cancelled.
	Hang bool `yaml:"hang" json:"hang"`
}

// ToolCall is a non-skill tool invocation.
type ToolCall struct {
	Name  string         `yaml:"name" json:"name"`
	Input map[string]any `yaml:"input" json:"input"`
}

// ResultFixture is the terminal result record of a scripted session.
type ResultFixture struct {
	SessionID    string   `yaml:"session_id" json:"session_id"`
	TotalCostUSD *float64 `yaml:"total_cost_usd" json:"total_cost_usd"`
	NumTurns     int      `yaml:"num_turns" json:"num_turns"`
	IsError      bool     `yaml:"is_error" json:"is_error"`
	Result       string   `yaml:"result" json:"result"`
}

// File is the on-disk fixture format.
type File struct {
	Fixtures        []Fixture     `yaml:"fixtures"`
	DefaultResponse *MockResponse `yaml:"default_response"`
}

// QueryRecord captures a single session request for later inspection.
type QueryRecord struct {
	Prompt    string        `json:"prompt"`
	Options   agent.Options `json:"-"`
	Timestamp time.Time     `json:"timestamp"`
}

// Runtime replays fixtures as agent sessions. It implements agent.Runtime
// and is safe for concurrent use.
type Runtime struct {
	fixtures map[string]*Fixture
	fallback *MockResponse
	callIdx  map[string]int
	calls    []QueryRecord
	mu       sync.Mutex
}

// NewRuntime creates a Runtime pre-loaded with fixtures. fallback answers
// prompts that have no fixture; it may be nil.
func NewRuntime(fixtures []Fixture, fallback *MockResponse) *Runtime {
	r := &Runtime{
		fixtures: make(map[string]*Fixture),
		fallback: fallback,
		callIdx:  make(map[string]int),
	}
	for i := range fixtures {
		f := fixtures[i]
		r.fixtures[f.Prompt] = &f
	}
	return r
}

// Load reads a fixture file.
func Load(path string) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures %s: %w", path, err)
	}
	return NewRuntime(f.Fixtures, f.DefaultResponse), nil
}

// Register adds or replaces the fixture for its prompt.
func (r *Runtime) Register(f Fixture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixtures[f.Prompt] = &f
	delete(r.callIdx, f.Prompt)
}

// Query implements agent.Runtime. It returns the next sequential response
// for prompt, falling back to the fixture's default response and then to
// the runtime-wide fallback. Prompts with no script are an error.
func (r *Runtime) Query(ctx context.Context, prompt string, opts agent.Options) (agent.Stream, error) {
	resp, err := r.resolve(prompt, opts)
	if err != nil {
		return nil, err
	}

	if opts.Stderr != nil {
		for _, line := range resp.Stderr {
			opts.Stderr(line)
		}
	}

	return &stream{
		ctx:  ctx,
		resp: resp,
		msgs: script(resp),
	}, nil
}

func (r *Runtime) resolve(prompt string, opts agent.Options) (MockResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, QueryRecord{Prompt: prompt, Options: opts, Timestamp: time.Now()})

	f, ok := r.fixtures[prompt]
	if !ok {
		if r.fallback != nil {
			return *r.fallback, nil
		}
		return MockResponse{}, fmt.Errorf("no fixture configured for prompt %q", prompt)
	}

	idx := r.callIdx[prompt]
	switch {
	case idx < len(f.Responses):
		r.callIdx[prompt] = idx + 1
		return f.Responses[idx], nil
	case f.DefaultResponse != nil:
		return *f.DefaultResponse, nil
	case r.fallback != nil:
		return *r.fallback, nil
	}
	return MockResponse{}, fmt.Errorf("fixture for prompt %q: sequential responses exhausted and no default_response configured", prompt)
}

// GetCalls returns a copy of all recorded queries.
func (r *Runtime) GetCalls() []QueryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]QueryRecord, len(r.calls))
	copy(out, r.calls)
	return out
}

// GetCallsForPrompt returns recorded queries filtered to prompt.
func (r *Runtime) GetCallsForPrompt(prompt string) []QueryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []QueryRecord
	for _, c := range r.calls {
		if c.Prompt == prompt {
			out = append(out, c)
		}
	}
	return out
}

// script renders a response as the message sequence a real runtime would
// emit: an init notice, one assistant turn with all tool invocations, then
// the result record.
func script(resp MockResponse) []agent.Message {
	msgs := []agent.Message{
		agent.SystemMessage{Subtype: "init", Data: map[string]any{"type": "system", "subtype": "init"}},
	}

	var blocks []agent.Block
	if resp.Text != "" {
		blocks = append(blocks, agent.TextBlock{Text: resp.Text})
	}
	n := 0
	for _, s := range resp.Skills {
		n++
		blocks = append(blocks, agent.ToolUseBlock{
			ID:    fmt.Sprintf("toolu_%02d", n),
			Name:  agent.SkillTool,
			Input: map[string]any{"skill": s},
		})
	}
	for _, tc := range resp.ToolCalls {
		n++
		blocks = append(blocks, agent.ToolUseBlock{
			ID:    fmt.Sprintf("toolu_%02d", n),
			Name:  tc.Name,
			Input: tc.Input,
		})
	}
	if len(blocks) > 0 {
		msgs = append(msgs, agent.AssistantMessage{Model: "replay", Content: blocks})
	}

	if resp.Result != nil {
		msgs = append(msgs, agent.ResultMessage{
			Subtype:      "success",
			SessionID:    resp.Result.SessionID,
			TotalCostUSD: resp.Result.TotalCostUSD,
			NumTurns:     resp.Result.NumTurns,
			IsError:      resp.Result.IsError,
			Result:       resp.Result.Result,
		})
	}
	return msgs
}

type stream struct {
	ctx     context.Context
	resp    MockResponse
	msgs    []agent.Message
	pos     int
	started bool
}

func (s *stream) Next() (agent.Message, error) {
	if !s.started {
		s.started = true
		if err := s.wait(); err != nil {
			return nil, err
		}
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos < len(s.msgs) {
		m := s.msgs[s.pos]
		s.pos++
		return m, nil
	}
	if s.resp.Error != "" {
		return nil, fmt.Errorf("mock session error: %s", s.resp.Error)
	}
	return nil, io.EOF
}

// wait applies the scripted delay or hang before the first message.
func (s *stream) wait() error {
	if s.resp.Hang {
		<-s.ctx.Done()
		return s.ctx.Err()
	}
	if s.resp.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.resp.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *stream) Close() error { return nil }
