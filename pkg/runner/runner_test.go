package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jdgilhuly/go_skill_evals/pkg/result"
	"github.com/jdgilhuly/go_skill_evals/pkg/suite"
)

// funcExecutor adapts a function to Executor.
type funcExecutor func(ctx context.Context, tc suite.TestCase) result.TestResult

func (f funcExecutor) Execute(ctx context.Context, tc suite.TestCase) result.TestResult {
	return f(ctx, tc)
}

func passAll(_ context.Context, tc suite.TestCase) result.TestResult {
	return result.TestResult{Name: tc.Name, Passed: true, Expected: "a", Actual: "a"}
}

// recordingProgress captures progress notifications as strings.
type recordingProgress struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingProgress) add(e string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingProgress) RunStarted(total, workers int) {
	p.add(fmt.Sprintf("run %d/%d", total, workers))
}
func (p *recordingProgress) CaseStarted(tc suite.TestCase) { p.add("start " + tc.Name) }
func (p *recordingProgress) CaseFinished(r result.TestResult) {
	p.add(fmt.Sprintf("finish %s %v", r.Name, r.Passed))
}

func suiteOf(names ...string) *suite.Suite {
	s := &suite.Suite{Name: "routing", Files: []string{"test-cases/skill-routing.yaml"}}
	for _, n := range names {
		s.Tests = append(s.Tests, suite.TestCase{Name: n, Prompt: "prompt for " + n})
	}
	return s
}

func TestRun_Sequential(t *testing.T) {
	p := &recordingProgress{}
	r := New(Config{Parallel: 1}, funcExecutor(passAll))

	summary := r.Run(context.Background(), suiteOf("a", "b"), p)

	want := []string{"run 2/1", "start a", "finish a true", "start b", "finish b true"}
	if diff := cmp.Diff(want, p.events); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	if summary.SuiteName != "routing" {
		t.Errorf("SuiteName = %q, want routing", summary.SuiteName)
	}
	if len(summary.Files) != 1 {
		t.Errorf("Files = %v, want one file", summary.Files)
	}
	if !summary.Passed {
		t.Error("all-pass run should pass")
	}
}

func TestRun_ParallelSubmissionOrder(t *testing.T) {
	names := []string{"c0", "c1", "c2", "c3", "c4", "c5"}
	// Later cases finish first.
	exec := funcExecutor(func(ctx context.Context, tc suite.TestCase) result.TestResult {
		var idx int
		fmt.Sscanf(tc.Name, "c%d", &idx)
		time.Sleep(time.Duration(len(names)-idx) * 10 * time.Millisecond)
		return passAll(ctx, tc)
	})
	p := &recordingProgress{}
	r := New(Config{Parallel: 3}, exec)

	summary := r.Run(context.Background(), suiteOf(names...), p)

	var got []string
	for _, res := range summary.Results {
		got = append(got, res.Name)
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Errorf("result order mismatch (-want +got):\n%s", diff)
	}

	wantEvents := []string{"run 6/3"}
	for _, n := range names {
		wantEvents = append(wantEvents, "finish "+n+" true")
	}
	if diff := cmp.Diff(wantEvents, p.events); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var maxConcurrent, current atomic.Int32
	exec := funcExecutor(func(ctx context.Context, tc suite.TestCase) result.TestResult {
		c := current.Add(1)
		for {
			old := maxConcurrent.Load()
			if c <= old || maxConcurrent.CompareAndSwap(old, c) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return passAll(ctx, tc)
	})

	r := New(Config{Parallel: 2}, exec)
	summary := r.Run(context.Background(), suiteOf("a", "b", "c", "d", "e"), nil)

	if len(summary.Results) != 5 {
		t.Fatalf("len(Results) = %d, want 5", len(summary.Results))
	}
	if maxConcurrent.Load() > 2 {
		t.Errorf("maxConcurrent = %d, want <= 2", maxConcurrent.Load())
	}
}

func TestRun_PanicIsolation(t *testing.T) {
	exec := funcExecutor(func(ctx context.Context, tc suite.TestCase) result.TestResult {
		if tc.Name == "bad" {
			panic("executor bug")
		}
		return passAll(ctx, tc)
	})

	for _, parallel := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallel=%d", parallel), func(t *testing.T) {
			r := New(Config{Parallel: parallel}, exec)
			summary := r.Run(context.Background(), suiteOf("ok-1", "bad", "ok-2"), nil)

			if len(summary.Results) != 3 {
				t.Fatalf("len(Results) = %d, want 3", len(summary.Results))
			}
			bad := summary.Results[1]
			if bad.Passed || bad.Expected != "completion" || bad.Actual != "error" {
				t.Errorf("bad result = %+v, want completion/error failure", bad)
			}
			if !bad.Aborted {
				t.Error("panicking case should be marked aborted")
			}
			if !strings.Contains(bad.Error, "executor bug") {
				t.Errorf("Error = %q, want panic value", bad.Error)
			}
			if !summary.Results[0].Passed || !summary.Results[2].Passed {
				t.Error("sibling cases should be unaffected")
			}
			if summary.Stats.PassedCount != 2 {
				t.Errorf("PassedCount = %d, want 2", summary.Stats.PassedCount)
			}
		})
	}
}

func TestRun_Threshold(t *testing.T) {
	tests := []struct {
		name     string
		failing  int
		wantPass bool
	}{
		{"19 of 20", 1, true},
		{"18 of 20", 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for i := 0; i < 20; i++ {
				names = append(names, fmt.Sprintf("case-%02d", i))
			}
			exec := funcExecutor(func(ctx context.Context, tc suite.TestCase) result.TestResult {
				var idx int
				fmt.Sscanf(tc.Name, "case-%d", &idx)
				if idx < tt.failing {
					return result.TestResult{Name: tc.Name, Expected: "a", Actual: "null"}
				}
				return passAll(ctx, tc)
			})

			summary := New(Config{Parallel: 5}, exec).Run(context.Background(), suiteOf(names...), nil)
			if summary.Passed != tt.wantPass {
				t.Errorf("Passed = %v, want %v (%.1f%%)", summary.Passed, tt.wantPass, summary.Stats.PassPercentage)
			}
		})
	}
}

func TestRun_Empty(t *testing.T) {
	summary := New(Config{Parallel: 4}, funcExecutor(passAll)).Run(context.Background(), suiteOf(), nil)
	if summary.Stats.Total != 0 || summary.Passed {
		t.Errorf("empty run: total=%d passed=%v, want 0/false", summary.Stats.Total, summary.Passed)
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{}, funcExecutor(passAll))
	if r.cfg.Parallel != 1 {
		t.Errorf("Parallel = %d, want 1", r.cfg.Parallel)
	}
	if r.cfg.Threshold != result.DefaultThreshold {
		t.Errorf("Threshold = %v, want %v", r.cfg.Threshold, result.DefaultThreshold)
	}
}
