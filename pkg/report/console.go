package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jdgilhuly/go_skill_evals/pkg/result"
	"github.com/jdgilhuly/go_skill_evals/pkg/suite"
)

// Console prints run progress and the final summary as plain lines. It
// implements runner.Progress.
type Console struct {
	w        io.Writer
	color    bool
	parallel bool
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

// RunStarted prints the worker banner for parallel runs.
func (c *Console) RunStarted(total, workers int) {
	c.parallel = workers > 1
	if c.parallel {
		fmt.Fprintf(c.w, "Running %d tests with %d workers...\n", total, workers)
	}
}

// CaseStarted announces a case in sequential runs.
func (c *Console) CaseStarted(tc suite.TestCase) {
	fmt.Fprintf(c.w, "Running: %s...\n", tc.Name)
}

// CaseFinished prints the status of a finished case.
func (c *Console) CaseFinished(r result.TestResult) {
	switch {
	case !c.parallel:
		fmt.Fprintf(c.w, "  %s\n", c.passFail(r))
	case r.Aborted:
		fmt.Fprintf(c.w, "  %s: %s - %s\n", r.Name, c.paint(colorYellow, "ERROR"), r.Error)
	default:
		fmt.Fprintf(c.w, "  %s: %s\n", r.Name, c.passFail(r))
	}
}

func (c *Console) passFail(r result.TestResult) string {
	if r.Passed {
		return c.paint(colorGreen, "PASS")
	}
	return c.paint(colorRed, "FAIL")
}

func (c *Console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + colorReset
}

// PrintSummary writes the pass/fail framing of a finished run.
func (c *Console) PrintSummary(s *result.Summary) {
	PrintSummary(c.w, s, c.color)
}

// PrintSummary writes the results line, the threshold verdict and a listing
// of failing cases.
func PrintSummary(w io.Writer, s *result.Summary, color bool) {
	paint := func(code, text string) string {
		if !color {
			return text
		}
		return code + text + colorReset
	}

	st := s.Stats
	threshold := strconv.FormatFloat(s.Threshold, 'f', -1, 64)

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 50))
	fmt.Fprintf(w, "Results: %d/%d passed (%.1f%%)\n", st.PassedCount, st.Total, st.PassPercentage)

	if st.PassedCount == st.Total {
		fmt.Fprintf(w, "\n%s\n", paint(colorGreen, "All tests passed!"))
		return
	}

	failed := s.Failed()
	if s.Passed {
		fmt.Fprintf(w, "\n%s\n", paint(colorYellow, fmt.Sprintf("PASSED with warnings (>= %s%% threshold met)", threshold)))
		fmt.Fprintf(w, "\nWarning: %d test(s) failed but within acceptable threshold:\n", len(failed))
	} else {
		fmt.Fprintf(w, "\n%s\n", paint(colorRed, fmt.Sprintf("FAILED (%.1f%% < %s%% threshold)", st.PassPercentage, threshold)))
		fmt.Fprintf(w, "\nFailed tests:\n")
	}

	for _, r := range failed {
		fmt.Fprintf(w, "  - %s: expected '%s', got '%s'\n", r.Name, r.Expected, r.Actual)
		if r.Error != "" {
			fmt.Fprintf(w, "    Error: %s\n", r.Error)
		}
	}
}
