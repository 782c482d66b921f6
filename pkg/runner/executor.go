package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jdgilhuly/go_skill_evals/pkg/judge"
	"github.com/jdgilhuly/go_skill_evals/pkg/log"
	"github.com/jdgilhuly/go_skill_evals/pkg/result"
	"github.com/jdgilhuly/go_skill_evals/pkg/suite"
	"github.com/jdgilhuly/go_skill_evals/pkg/trace"
)

// DefaultTimeout bounds a single test case.
const DefaultTimeout = 180 * time.Second

// ErrTimeout is returned when a session does not finish within the
// executor's timeout.
var ErrTimeout = errors.New("session timed out")

// SessionRunner runs one agent session. session.Driver implements it.
type SessionRunner interface {
	Run(ctx context.Context, prompt string, maxTurns int, model string) (*trace.Session, error)
}

// Executor turns a test case into a result. Implementations never return
// an error: every failure is folded into the result.
type Executor interface {
	Execute(ctx context.Context, tc suite.TestCase) result.TestResult
}

// CaseExecutor runs a test case through a session and judges the skills it
// invoked.
type CaseExecutor struct {
	sessions SessionRunner
	timeout  time.Duration
	log      log.Logger
}

// NewExecutor creates a CaseExecutor. A non-positive timeout selects
// DefaultTimeout.
func NewExecutor(sessions SessionRunner, timeout time.Duration, logger log.Logger) *CaseExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CaseExecutor{sessions: sessions, timeout: timeout, log: log.OrNop(logger)}
}

// Execute runs tc and returns its result.
func (e *CaseExecutor) Execute(ctx context.Context, tc suite.TestCase) result.TestResult {
	start := time.Now()
	e.log.Debugw("starting test", "name", tc.Name, "prompt", clip(tc.Prompt, 120))

	tr, err := e.runSession(ctx, tc)

	var res result.TestResult
	switch {
	case errors.Is(err, ErrTimeout):
		e.log.Debugw("test timed out", "name", tc.Name, "timeout", e.timeout)
		res = result.Incomplete(tc.Name, result.ActualTimeout, "Timed out after "+seconds(e.timeout)+"s")
	case err != nil:
		msg := err.Error()
		if tr != nil {
			if stderr := strings.TrimSpace(tr.Stderr()); stderr != "" {
				e.log.Debugw("runtime stderr", "name", tc.Name, "stderr", stderr)
				msg += "\nstderr: " + stderr
			}
		}
		e.log.Debugw("test errored", "name", tc.Name, "error", err)
		res = result.Incomplete(tc.Name, result.ActualError, msg)
	case tr == nil:
		res = result.Incomplete(tc.Name, result.ActualError, "session returned no trace")
	default:
		res = e.judge(tc, tr)
	}

	if tr != nil {
		if data, err := tr.JSON(); err == nil {
			res.Trace = data
		} else {
			e.log.Debugw("encoding trace", "name", tc.Name, "error", err)
		}
	}
	res.Duration = time.Since(start)
	return res
}

// runSession runs the session on its own goroutine so a runtime that
// ignores cancellation cannot hold the case past its timeout. The
// abandoned goroutine finishes into a buffered channel.
func (e *CaseExecutor) runSession(ctx context.Context, tc suite.TestCase) (*trace.Session, error) {
	caseCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	maxTurns := tc.MaxTurns
	if maxTurns <= 0 {
		maxTurns = suite.DefaultMaxTurns
	}

	type outcome struct {
		tr  *trace.Session
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("session panicked: %v", r)}
			}
		}()
		tr, err := e.sessions.Run(caseCtx, tc.Prompt, maxTurns, tc.Model)
		done <- outcome{tr: tr, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-caseCtx.Done():
		out = outcome{err: caseCtx.Err()}
	}

	if out.err != nil && ctx.Err() == nil && errors.Is(caseCtx.Err(), context.DeadlineExceeded) {
		return out.tr, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}
	return out.tr, out.err
}

func (e *CaseExecutor) judge(tc suite.TestCase, tr *trace.Session) result.TestResult {
	meta := tr.GetMeta()
	e.log.Debugw("session complete",
		"name", tc.Name,
		"session_id", meta.SessionID,
		"turns", meta.NumTurns,
		"is_error", meta.IsError,
		"duration_ms", meta.DurationMS,
	)
	if meta.Result != "" {
		e.log.Debugw("result preview", "name", tc.Name, "result", clip(meta.Result, 1000))
	}
	for _, call := range tr.GetToolCalls() {
		e.log.Debugw("tool call", "name", tc.Name, "tool", call.ToolName, "input", call.Input)
	}

	invoked := tr.GetSkills()
	maxTurns := tc.MaxTurns
	if maxTurns <= 0 {
		maxTurns = suite.DefaultMaxTurns
	}
	if len(invoked) > maxTurns {
		invoked = invoked[:maxTurns]
	}

	v := judge.Evaluate(tc.Expectation(), invoked)
	e.log.Debugw("evaluation", "name", tc.Name, "passed", v.Pass, "expected", v.Expected, "actual", v.Actual)

	return result.TestResult{
		Name:         tc.Name,
		Passed:       v.Pass,
		Expected:     v.Expected,
		Actual:       v.Actual,
		Skills:       invoked,
		SessionID:    meta.SessionID,
		TotalCostUSD: meta.TotalCostUSD,
		NumTurns:     meta.NumTurns,
	}
}

// seconds renders d in whole seconds when possible ("180"), otherwise with
// the shortest exact decimal ("0.05").
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
