package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/jdgilhuly/go_skill_evals/pkg/log"
	"github.com/jdgilhuly/go_skill_evals/pkg/result"
	"github.com/jdgilhuly/go_skill_evals/pkg/suite"
)

// DefaultParallel is the default number of concurrently running cases.
const DefaultParallel = 15

// Config controls runner behavior.
type Config struct {
	// Parallel is the number of cases run at once. Values of 1 or less run
	// the suite sequentially.
	Parallel int
	// Threshold is the pass percentage the suite must reach.
	Threshold float64
	Logger    log.Logger
}

// Progress receives per-case notifications. In sequential mode CaseStarted
// precedes each case and CaseFinished follows it. In parallel mode
// CaseFinished is called once per case, in submission order, after every
// case has completed.
type Progress interface {
	RunStarted(total, workers int)
	CaseStarted(tc suite.TestCase)
	CaseFinished(r result.TestResult)
}

// Runner orchestrates suite execution with bounded concurrency.
type Runner struct {
	cfg  Config
	exec Executor
	log  log.Logger
}

// New creates a Runner that executes cases with exec.
func New(cfg Config, exec Executor) *Runner {
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = result.DefaultThreshold
	}
	return &Runner{cfg: cfg, exec: exec, log: log.OrNop(cfg.Logger)}
}

// Run executes every case in s and aggregates the results. progress may be
// nil. Failures of individual cases never abort the run.
func (r *Runner) Run(ctx context.Context, s *suite.Suite, progress Progress) *result.Summary {
	if progress == nil {
		progress = nopProgress{}
	}
	start := time.Now()
	r.log.Debugw("running tests", "suite", s.Name, "count", len(s.Tests), "parallel", r.cfg.Parallel)

	var results []result.TestResult
	if r.cfg.Parallel > 1 {
		progress.RunStarted(len(s.Tests), r.cfg.Parallel)
		results = r.runParallel(ctx, s.Tests)
		for _, res := range results {
			progress.CaseFinished(res)
		}
	} else {
		progress.RunStarted(len(s.Tests), 1)
		results = make([]result.TestResult, 0, len(s.Tests))
		for _, tc := range s.Tests {
			progress.CaseStarted(tc)
			res := r.executeSafely(ctx, tc)
			results = append(results, res)
			progress.CaseFinished(res)
		}
	}

	summary := result.NewSummary(s.Name, results, r.cfg.Threshold, start, time.Now())
	summary.Files = s.Files
	return summary
}

type caseParam struct {
	idx     int
	ctx     context.Context
	tc      suite.TestCase
	results []result.TestResult
	wg      *sync.WaitGroup
}

// runParallel submits every case to a worker pool sized to Parallel. The
// pool is the admission gate: at most Parallel sessions are live at once.
// Results are stored by case position so reporting follows submission
// order.
func (r *Runner) runParallel(ctx context.Context, cases []suite.TestCase) []result.TestResult {
	results := make([]result.TestResult, len(cases))

	pool, err := ants.NewPoolWithFunc(r.cfg.Parallel, func(args any) {
		p := args.(*caseParam)
		defer p.wg.Done()
		p.results[p.idx] = r.executeSafely(p.ctx, p.tc)
	})
	if err != nil {
		r.log.Errorw("creating worker pool", "error", err)
		for i, tc := range cases {
			results[i] = aborted(tc.Name, fmt.Errorf("create worker pool: %w", err))
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, tc := range cases {
		wg.Add(1)
		p := &caseParam{idx: i, ctx: ctx, tc: tc, results: results, wg: &wg}
		if err := pool.Invoke(p); err != nil {
			wg.Done()
			r.log.Warnw("scheduling test", "name", tc.Name, "error", err)
			results[i] = aborted(tc.Name, err)
		}
	}
	wg.Wait()
	return results
}

// executeSafely runs one case and converts a panic escaping the executor
// into a failing result.
func (r *Runner) executeSafely(ctx context.Context, tc suite.TestCase) (res result.TestResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("test panicked", "name", tc.Name, "panic", rec)
			res = aborted(tc.Name, fmt.Errorf("%v", rec))
		}
	}()
	return r.exec.Execute(ctx, tc)
}

func aborted(name string, err error) result.TestResult {
	res := result.Incomplete(name, result.ActualError, err.Error())
	res.Aborted = true
	return res
}

type nopProgress struct{}

func (nopProgress) RunStarted(int, int)            {}
func (nopProgress) CaseStarted(suite.TestCase)     {}
func (nopProgress) CaseFinished(result.TestResult) {}
