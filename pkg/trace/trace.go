package trace

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Session captures what happened during one agent session: the skills it
// invoked, every tool call, the runtime's result record and its stderr.
type Session struct {
	Skills    []string        `json:"skills"`
	ToolCalls []ToolCallTrace `json:"tool_calls"`
	Meta      Meta            `json:"meta"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`

	stderr []string
	mu     sync.Mutex
}

// ToolCallTrace records a single tool invocation requested by the agent.
type ToolCallTrace struct {
	ToolName  string         `json:"tool_name"`
	Input     map[string]any `json:"input"`
	Timestamp time.Time      `json:"timestamp"`
}

// Meta is the runtime's own account of the session, copied from its
// terminal result record.
type Meta struct {
	SessionID    string   `json:"session_id,omitempty"`
	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`
	NumTurns     int      `json:"num_turns"`
	IsError      bool     `json:"is_error"`
	DurationMS   int64    `json:"duration_ms"`
	Result       string   `json:"result,omitempty"`
	Stderr       string   `json:"stderr,omitempty"`
	// HasResult is false when the stream ended without a result record.
	HasResult bool `json:"has_result"`
}

// New creates a new Session and marks the start time.
func New() *Session {
	return &Session{
		StartTime: time.Now(),
	}
}

// AddToolCall appends a tool call record to the trace.
func (s *Session) AddToolCall(name string, input map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolCalls = append(s.ToolCalls, ToolCallTrace{
		ToolName:  name,
		Input:     input,
		Timestamp: time.Now(),
	})
}

// AddSkill appends an invoked skill. Empty names are ignored.
func (s *Session) AddSkill(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skills = append(s.Skills, name)
}

// SetResult replaces the session metadata with the runtime's result record,
// keeping the captured stderr.
func (s *Session) SetResult(m Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Stderr = s.Meta.Stderr
	m.HasResult = true
	s.Meta = m
}

// AppendStderr records one line of runtime diagnostic output. It is safe to
// call from the runtime's stderr reader goroutine.
func (s *Session) AppendStderr(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stderr = append(s.stderr, line)
}

// Stderr returns the captured diagnostic output.
func (s *Session) Stderr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.stderr, "\n")
}

// Finish marks the trace as complete, records the end time and duration and
// copies the captured stderr into Meta.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.Meta.Stderr = strings.Join(s.stderr, "\n")
}

// GetSkills returns a copy of the invoked skills in emission order.
func (s *Session) GetSkills() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Skills))
	copy(out, s.Skills)
	return out
}

// GetToolCalls returns a copy of all recorded tool calls.
func (s *Session) GetToolCalls() []ToolCallTrace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolCallTrace, len(s.ToolCalls))
	copy(out, s.ToolCalls)
	return out
}

// GetMeta returns the current session metadata.
func (s *Session) GetMeta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Meta
}

// JSON serializes the trace to indented JSON bytes.
func (s *Session) JSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(s, "", "  ")
}
