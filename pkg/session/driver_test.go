package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdgilhuly/go_skill_evals/pkg/agent"
	"github.com/jdgilhuly/go_skill_evals/pkg/mock"
)

// sliceRuntime replays a fixed message list and then returns err.
type sliceRuntime struct {
	msgs   []agent.Message
	err    error
	stderr []string
}

func (r *sliceRuntime) Query(ctx context.Context, prompt string, opts agent.Options) (agent.Stream, error) {
	for _, l := range r.stderr {
		opts.Stderr(l)
	}
	return &sliceStream{msgs: r.msgs, err: r.err}, nil
}

type sliceStream struct {
	msgs   []agent.Message
	err    error
	closed bool
}

func (s *sliceStream) Next() (agent.Message, error) {
	if len(s.msgs) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type failingRuntime struct{ err error }

func (r failingRuntime) Query(context.Context, string, agent.Options) (agent.Stream, error) {
	return nil, r.err
}

func skillUse(id, skill string) agent.ToolUseBlock {
	return agent.ToolUseBlock{ID: id, Name: agent.SkillTool, Input: map[string]any{"skill": skill}}
}

func TestNewDriver_Defaults(t *testing.T) {
	d, err := NewDriver(Config{Runtime: &sliceRuntime{}})
	require.NoError(t, err)

	assert.Equal(t, DefaultAllowedTools, d.cfg.AllowedTools)
	assert.Equal(t, agent.PermissionBypass, d.cfg.PermissionMode)
	assert.Equal(t, DefaultSystemPrompt, d.cfg.SystemPrompt)
	assert.Equal(t, []string{"project"}, d.cfg.SettingSources)
}

func TestNewDriver_NoRuntime(t *testing.T) {
	_, err := NewDriver(Config{})
	assert.Error(t, err)
}

func TestRun_CollectsSkillsAndToolCalls(t *testing.T) {
	cost := 0.05
	rt := &sliceRuntime{msgs: []agent.Message{
		agent.SystemMessage{Subtype: "init"},
		agent.AssistantMessage{Content: []agent.Block{
			agent.TextBlock{Text: "Checking lineage."},
			skillUse("t1", "databricks-lineage"),
			agent.ToolUseBlock{ID: "t2", Name: "Bash", Input: map[string]any{"command": "ls"}},
		}},
		agent.UserMessage{Content: []agent.Block{agent.ToolResultBlock{ToolUseID: "t1", Content: "ok"}}},
		agent.AssistantMessage{Content: []agent.Block{
			skillUse("t3", "plugin:databricks-docs"),
			agent.ToolUseBlock{ID: "t4", Name: agent.SkillTool, Input: map[string]any{}},
		}},
		agent.UnknownMessage{Type: "stream_event"},
		agent.ResultMessage{SessionID: "s-1", TotalCostUSD: &cost, NumTurns: 2},
	}}

	d, err := NewDriver(Config{Runtime: rt})
	require.NoError(t, err)

	tr, err := d.Run(context.Background(), "Show lineage", 5, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"databricks-lineage", "plugin:databricks-docs"}, tr.GetSkills())

	calls := tr.GetToolCalls()
	require.Len(t, calls, 4)
	assert.Equal(t, "Bash", calls[1].ToolName)
	assert.Equal(t, "ls", calls[1].Input["command"])

	meta := tr.GetMeta()
	assert.True(t, meta.HasResult)
	assert.Equal(t, "s-1", meta.SessionID)
	assert.Equal(t, 2, meta.NumTurns)
	assert.False(t, tr.EndTime.IsZero())
}

func TestRun_LastResultWins(t *testing.T) {
	rt := &sliceRuntime{msgs: []agent.Message{
		agent.ResultMessage{SessionID: "first", NumTurns: 1},
		agent.ResultMessage{SessionID: "second", NumTurns: 3},
	}}
	d, err := NewDriver(Config{Runtime: rt})
	require.NoError(t, err)

	tr, err := d.Run(context.Background(), "p", 5, "")
	require.NoError(t, err)
	assert.Equal(t, "second", tr.GetMeta().SessionID)
	assert.Equal(t, 3, tr.GetMeta().NumTurns)
}

func TestRun_NoResultRecord(t *testing.T) {
	rt := &sliceRuntime{msgs: []agent.Message{
		agent.AssistantMessage{Content: []agent.Block{skillUse("t1", "a")}},
	}}
	d, err := NewDriver(Config{Runtime: rt})
	require.NoError(t, err)

	tr, err := d.Run(context.Background(), "p", 5, "")
	require.NoError(t, err)
	assert.False(t, tr.GetMeta().HasResult)
	assert.Equal(t, []string{"a"}, tr.GetSkills())
}

func TestRun_StreamErrorKeepsPartialTrace(t *testing.T) {
	boom := errors.New("transport closed")
	rt := &sliceRuntime{
		msgs:   []agent.Message{agent.AssistantMessage{Content: []agent.Block{skillUse("t1", "a")}}},
		err:    boom,
		stderr: []string{"error: auth expired"},
	}
	d, err := NewDriver(Config{Runtime: rt})
	require.NoError(t, err)

	tr, err := d.Run(context.Background(), "p", 5, "")
	require.ErrorIs(t, err, boom)
	require.NotNil(t, tr)
	assert.Equal(t, []string{"a"}, tr.GetSkills())
	assert.Equal(t, "error: auth expired", tr.GetMeta().Stderr)
}

func TestRun_QueryError(t *testing.T) {
	boom := errors.New("binary not found")
	d, err := NewDriver(Config{Runtime: failingRuntime{err: boom}})
	require.NoError(t, err)

	tr, err := d.Run(context.Background(), "p", 5, "")
	require.ErrorIs(t, err, boom)
	assert.NotNil(t, tr)
	assert.Empty(t, tr.GetSkills())
}

func TestRun_PassesSessionOptions(t *testing.T) {
	rt := mock.NewRuntime(nil, &mock.MockResponse{})
	d, err := NewDriver(Config{
		Runtime:    rt,
		PluginDirs: []string{"/repo"},
		Cwd:        "/repo",
	})
	require.NoError(t, err)

	_, err = d.Run(context.Background(), "Find the workspace", 7, "haiku")
	require.NoError(t, err)

	calls := rt.GetCalls()
	require.Len(t, calls, 1)
	opts := calls[0].Options
	assert.Equal(t, "Find the workspace", calls[0].Prompt)
	assert.Equal(t, 7, opts.MaxTurns)
	assert.Equal(t, "haiku", opts.Model)
	assert.Equal(t, []string{"Skill", "Read", "Glob", "Grep", "Bash"}, opts.AllowedTools)
	assert.Equal(t, "bypassPermissions", opts.PermissionMode)
	assert.Equal(t, "claude_code", opts.SystemPrompt.Preset)
	assert.Equal(t, "Never ask clarifying questions. Invoke skills directly.", opts.SystemPrompt.Append)
	assert.Equal(t, []string{"project"}, opts.SettingSources)
	assert.Equal(t, []string{"/repo"}, opts.PluginDirs)
	assert.Equal(t, "/repo", opts.Cwd)
	assert.NotNil(t, opts.Stderr)
}

func TestRun_ReplayRuntime(t *testing.T) {
	rt := mock.NewRuntime([]mock.Fixture{{
		Prompt: "Draw the architecture",
		Responses: []mock.MockResponse{{
			Skills: []string{"databricks-workspace", "excalidraw-diagram"},
			Stderr: []string{"plugins loaded"},
			Result: &mock.ResultFixture{SessionID: "r-1", NumTurns: 3},
		}},
	}}, nil)
	d, err := NewDriver(Config{Runtime: rt})
	require.NoError(t, err)

	tr, err := d.Run(context.Background(), "Draw the architecture", 5, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"databricks-workspace", "excalidraw-diagram"}, tr.GetSkills())
	assert.Equal(t, "r-1", tr.GetMeta().SessionID)
	assert.Equal(t, "plugins loaded", tr.GetMeta().Stderr)
}

func TestRun_ContextCancelled(t *testing.T) {
	rt := mock.NewRuntime(nil, &mock.MockResponse{Hang: true})
	d, err := NewDriver(Config{Runtime: rt})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = d.Run(ctx, "p", 5, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
