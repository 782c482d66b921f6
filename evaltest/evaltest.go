package evaltest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jdgilhuly/go_skill_evals/pkg/agent"
	"github.com/jdgilhuly/go_skill_evals/pkg/judge"
	"github.com/jdgilhuly/go_skill_evals/pkg/mock"
	"github.com/jdgilhuly/go_skill_evals/pkg/result"
	"github.com/jdgilhuly/go_skill_evals/pkg/runner"
	"github.com/jdgilhuly/go_skill_evals/pkg/session"
	"github.com/jdgilhuly/go_skill_evals/pkg/suite"
	"github.com/jdgilhuly/go_skill_evals/pkg/trace"
)

// Option configures a Harness.
type Option func(*Harness)

// WithRuntime sets the agent runtime sessions are opened on. If not set, a
// replay runtime is used whose sessions invoke no skill.
func WithRuntime(rt agent.Runtime) Option {
	return func(h *Harness) {
		h.runtime = rt
	}
}

// WithSession sets the session options used for every prompt. Its Runtime
// field is ignored; use WithRuntime instead.
func WithSession(cfg session.Config) Option {
	return func(h *Harness) {
		h.session = cfg
	}
}

// WithPluginDirs sets the directories skills are loaded from.
func WithPluginDirs(dirs ...string) Option {
	return func(h *Harness) {
		h.session.PluginDirs = dirs
	}
}

// WithTimeout sets the per-session timeout. Defaults to 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) {
		h.timeout = d
	}
}

// WithMaxTurns sets the turn budget of each session. Only the first
// maxTurns invoked skills are considered by assertions.
func WithMaxTurns(n int) Option {
	return func(h *Harness) {
		h.maxTurns = n
	}
}

// WithModel overrides the model of each session.
func WithModel(model string) Option {
	return func(h *Harness) {
		h.model = model
	}
}

// WithResultFile configures the harness to write a run summary to a JSON
// file when all cases are complete. The file can be compared with
// `skill-evals diff`.
func WithResultFile(path string) Option {
	return func(h *Harness) {
		h.resultFile = path
	}
}

// Harness provides the scaffolding for running skill routing cases as
// standard Go tests. It is tied to a *testing.T and manages the shared
// agent runtime.
type Harness struct {
	t          *testing.T
	runtime    agent.Runtime
	session    session.Config
	timeout    time.Duration
	maxTurns   int
	model      string
	resultFile string
	start      time.Time

	mu      sync.Mutex
	results []result.TestResult
}

// New creates a Harness bound to the given *testing.T. Options can be used
// to override the runtime and session settings. Sensible defaults are
// applied for anything not configured.
func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()
	h := &Harness{
		t:        t,
		runtime:  NewReplayRuntime(),
		timeout:  30 * time.Second,
		maxTurns: suite.DefaultMaxTurns,
		start:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.resultFile != "" {
		t.Cleanup(func() {
			h.writeResults()
		})
	}
	return h
}

// Run executes a named routing case as a subtest. The provided function
// receives a *TestCase with helpers for scripting the session, sending the
// prompt, and making assertions.
func (h *Harness) Run(name string, fn func(tc *TestCase)) {
	h.t.Helper()
	h.t.Run(name, func(t *testing.T) {
		t.Helper()
		tc := &TestCase{
			t:       t,
			harness: h,
			name:    name,
		}
		t.Cleanup(tc.record)
		fn(tc)
	})
}

// RunSuite runs every case of s as a subtest and fails the subtests whose
// expectation is not met. Per-case max_turns and model settings apply.
func (h *Harness) RunSuite(s *suite.Suite) {
	h.t.Helper()
	driver := h.driver(h.runtime)
	exec := runner.NewExecutor(driver, h.timeout, nil)

	for _, c := range s.Tests {
		h.t.Run(c.Name, func(t *testing.T) {
			t.Helper()
			r := exec.Execute(context.Background(), c)
			h.add(r)
			if r.Passed {
				return
			}
			t.Errorf("expected '%s', got '%s'", r.Expected, r.Actual)
			if r.Error != "" {
				t.Errorf("error: %s", r.Error)
			}
		})
	}
}

// AssertPassRate checks the pass percentage over every case run so far.
func (h *Harness) AssertPassRate(m RateMatcher) {
	h.t.Helper()
	h.mu.Lock()
	stats := result.ComputeStats(h.results)
	h.mu.Unlock()

	if stats.Total == 0 {
		h.t.Error("AssertPassRate called before any case ran")
		return
	}
	if !m.Match(stats.PassPercentage) {
		h.t.Errorf("pass rate %.1f%% (%d/%d) does not satisfy %s",
			stats.PassPercentage, stats.PassedCount, stats.Total, m)
	}
}

// Results returns the results recorded so far.
func (h *Harness) Results() []result.TestResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]result.TestResult(nil), h.results...)
}

func (h *Harness) add(r result.TestResult) {
	h.mu.Lock()
	h.results = append(h.results, r)
	h.mu.Unlock()
}

func (h *Harness) driver(rt agent.Runtime) *session.Driver {
	cfg := h.session
	cfg.Runtime = rt
	d, err := session.NewDriver(cfg)
	if err != nil {
		h.t.Fatalf("evaltest: %v", err)
	}
	return d
}

// writeResults saves all recorded results as a run summary.
func (h *Harness) writeResults() {
	summary := result.NewSummary(h.t.Name(), h.Results(), result.DefaultThreshold, h.start, time.Now())
	if err := summary.Save(h.resultFile); err != nil {
		h.t.Errorf("evaltest: %v", err)
	}
}

// TestCase provides methods to script, run and assert a single routing case.
type TestCase struct {
	t        *testing.T
	harness  *Harness
	name     string
	script   *mock.MockResponse
	trace    *trace.Session
	expected string
	duration time.Duration
	err      error
	executed bool
}

// MockSkills scripts this case's session to invoke skills in order,
// replacing the harness runtime for this case only.
func (tc *TestCase) MockSkills(skills ...string) {
	tc.t.Helper()
	tc.script = &mock.MockResponse{
		Skills: skills,
		Result: &mock.ResultFixture{SessionID: "mock-" + tc.name, NumTurns: len(skills) + 1},
	}
}

// MockResponse scripts this case's session with a full replay response.
func (tc *TestCase) MockResponse(resp mock.MockResponse) {
	tc.t.Helper()
	tc.script = &resp
}

// Prompt opens one session for text and waits for it to finish. A session
// error fails the case. It returns the session trace.
func (tc *TestCase) Prompt(text string) *trace.Session {
	tc.t.Helper()
	h := tc.harness

	rt := h.runtime
	if tc.script != nil {
		rt = NewReplayRuntime(mock.Fixture{Prompt: text, DefaultResponse: tc.script})
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	start := time.Now()
	tr, err := h.driver(rt).Run(ctx, text, h.maxTurns, h.model)
	tc.duration = time.Since(start)
	tc.trace = tr
	tc.executed = true
	if err != nil {
		tc.err = err
		tc.t.Errorf("session error: %v", err)
		if stderr := tr.Stderr(); stderr != "" {
			tc.t.Logf("stderr: %s", stderr)
		}
	}
	return tr
}

// Skills returns the invoked skills considered by assertions: at most the
// harness's max turns, in invocation order.
func (tc *TestCase) Skills() []string {
	if tc.trace == nil {
		return nil
	}
	skills := tc.trace.GetSkills()
	if tc.harness.maxTurns > 0 && len(skills) > tc.harness.maxTurns {
		skills = skills[:tc.harness.maxTurns]
	}
	return skills
}

// Trace returns the session trace for inspection.
func (tc *TestCase) Trace() *trace.Session {
	return tc.trace
}

// record adds the case outcome to the harness once the subtest finishes.
func (tc *TestCase) record() {
	r := result.TestResult{
		Name:     tc.name,
		Passed:   !tc.t.Failed(),
		Expected: tc.expected,
		Actual:   judge.DisplaySkills(tc.Skills()),
		Skills:   tc.Skills(),
		Duration: tc.duration,
	}
	if tc.err != nil {
		r.Expected = result.ExpectedCompletion
		r.Actual = result.ActualError
		r.Error = tc.err.Error()
	}
	if tc.trace != nil {
		meta := tc.trace.GetMeta()
		r.SessionID = meta.SessionID
		r.TotalCostUSD = meta.TotalCostUSD
		r.NumTurns = meta.NumTurns
	}
	tc.harness.add(r)
}
