package result

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultThreshold is the minimum pass percentage for a suite to pass.
const DefaultThreshold = 95.0

// Values used for cases that did not complete.
const (
	ExpectedCompletion = "completion"
	ActualTimeout      = "timeout"
	ActualError        = "error"
)

// TestResult is the outcome of one test case. Only Passed decides the
// verdict; the remaining fields are diagnostics.
type TestResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	// Error is set only when the case did not complete.
	Error string `json:"error,omitempty"`
	// Aborted marks a case that failed outside its executor, for example
	// when it could not be scheduled.
	Aborted bool `json:"aborted,omitempty"`
	// Reviewed marks a verdict set by a human reviewer.
	Reviewed bool `json:"reviewed,omitempty"`

	Skills       []string      `json:"skills,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	TotalCostUSD *float64      `json:"total_cost_usd,omitempty"`
	NumTurns     int           `json:"num_turns,omitempty"`
	Duration     time.Duration `json:"duration"`
	// Trace is the session trace, kept so saved runs can be inspected.
	Trace json.RawMessage `json:"trace,omitempty"`
}

// Incomplete builds the failing result of a case that timed out or errored.
func Incomplete(name, actual, errMsg string) TestResult {
	return TestResult{
		Name:     name,
		Passed:   false,
		Expected: ExpectedCompletion,
		Actual:   actual,
		Error:    errMsg,
	}
}

// Summary is the aggregate outcome of a suite run. It is also the structure
// persisted to JSON for each run.
type Summary struct {
	RunID     string        `json:"run_id"`
	SuiteName string        `json:"suite_name"`
	Files     []string      `json:"files,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Threshold float64       `json:"threshold"`
	Stats     Stats         `json:"stats"`
	// Passed is true when the pass percentage meets the threshold.
	Passed  bool         `json:"passed"`
	Results []TestResult `json:"results"`
}

// Stats holds aggregate statistics for the run.
type Stats struct {
	Total          int           `json:"total"`
	PassedCount    int           `json:"passed_count"`
	FailedCount    int           `json:"failed_count"`
	ErroredCount   int           `json:"errored_count"`
	PassPercentage float64       `json:"pass_percentage"`
	TotalCostUSD   float64       `json:"total_cost_usd"`
	LatencyP50     time.Duration `json:"latency_p50"`
	LatencyP95     time.Duration `json:"latency_p95"`
}

// NewSummary aggregates results into a Summary with a fresh run ID. A
// threshold of zero or less selects DefaultThreshold.
func NewSummary(suiteName string, results []TestResult, threshold float64, start, end time.Time) *Summary {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	s := &Summary{
		RunID:     uuid.NewString(),
		SuiteName: suiteName,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Threshold: threshold,
		Results:   results,
		Stats:     ComputeStats(results),
	}
	s.Passed = s.Stats.PassPercentage >= threshold
	return s
}

// Recompute refreshes Stats and Passed after results were changed.
func (s *Summary) Recompute() {
	s.Stats = ComputeStats(s.Results)
	s.Passed = s.Stats.PassPercentage >= s.Threshold
}

// ComputeStats calculates aggregate statistics from a slice of TestResults.
// The pass percentage of an empty run is zero.
func ComputeStats(results []TestResult) Stats {
	s := Stats{Total: len(results)}
	if len(results) == 0 {
		return s
	}

	var durations []time.Duration
	for _, r := range results {
		switch {
		case r.Passed:
			s.PassedCount++
		case r.Error != "":
			s.ErroredCount++
		default:
			s.FailedCount++
		}
		if r.TotalCostUSD != nil {
			s.TotalCostUSD += *r.TotalCostUSD
		}
		durations = append(durations, r.Duration)
	}

	s.PassPercentage = float64(s.PassedCount) * 100 / float64(s.Total)

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	s.LatencyP50 = percentile(durations, 0.5)
	s.LatencyP95 = percentile(durations, 0.95)

	return s
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-frac) + float64(sorted[upper])*frac)
}

// Failed returns the failing results in run order.
func (s *Summary) Failed() []TestResult {
	var out []TestResult
	for _, r := range s.Results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// ExitCode is 0 when the suite met its threshold and 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.Passed {
		return 0
	}
	return 1
}

// DefaultPath returns the default output file path for a run summary.
func DefaultPath(outputDir, suiteName string, startTime time.Time) string {
	filename := fmt.Sprintf("%s-%s.json", startTime.Format("20060102-150405"), suiteName)
	return filepath.Join(outputDir, filename)
}

// Save writes the Summary as pretty-printed JSON to the given path.
// Parent directories are created automatically.
func (s *Summary) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating result directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result to %s: %w", path, err)
	}

	return nil
}

// LoadSummary reads a Summary from a JSON file.
func LoadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file %s: %w", path, err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing result file %s: %w", path, err)
	}

	return &s, nil
}
