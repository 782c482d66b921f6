package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/jdgilhuly/go_skill_evals/pkg/result"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// ColorEnabled reports whether f is a terminal that should receive ANSI
// colors. Setting NO_COLOR disables color.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StatusLabel returns a colored status string for terminal display.
func StatusLabel(r result.TestResult) string {
	switch StatusLabelPlain(r) {
	case "PASS":
		return colorGreen + "PASS" + colorReset
	case "ERROR":
		return colorYellow + "ERROR" + colorReset
	}
	return colorRed + "FAIL" + colorReset
}

// StatusLabelPlain returns an uncolored status string. Cases that did not
// complete are reported as ERROR.
func StatusLabelPlain(r result.TestResult) string {
	if r.Passed {
		return "PASS"
	}
	if r.Error != "" {
		return "ERROR"
	}
	return "FAIL"
}

func label(r result.TestResult, color bool) string {
	if color {
		return StatusLabel(r)
	}
	return StatusLabelPlain(r)
}

// FormatDuration formats a duration for table display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatCost formats an optional USD cost.
func FormatCost(c *float64) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("$%.4f", *c)
}

// PrintSummaryTable writes a per-case table of run results.
func PrintSummaryTable(w io.Writer, summary *result.Summary, color bool) {
	sep := strings.Repeat("-", 96)
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %-28s  %-7s  %-24s  %-20s  %5s  %8s\n", "CASE", "STATUS", "EXPECTED", "ACTUAL", "TURNS", "LATENCY")
	fmt.Fprintf(w, "%s\n", sep)

	for _, r := range summary.Results {
		// Pad before coloring so escape codes do not break alignment.
		status := fmt.Sprintf("%-7s", StatusLabelPlain(r))
		if color {
			status = strings.Replace(status, StatusLabelPlain(r), StatusLabel(r), 1)
		}
		fmt.Fprintf(w, "  %-28s  %s  %-24s  %-20s  %5d  %8s\n",
			truncate(r.Name, 28), status, truncate(r.Expected, 24), truncate(r.Actual, 20),
			r.NumTurns, FormatDuration(r.Duration))
	}

	fmt.Fprintf(w, "%s\n", sep)
	s := summary.Stats
	if color {
		fmt.Fprintf(w, "  %s%d passed%s  %s%d failed%s  %s%d errored%s  | %.1f%% | %s total\n",
			colorGreen, s.PassedCount, colorReset,
			colorRed, s.FailedCount, colorReset,
			colorYellow, s.ErroredCount, colorReset,
			s.PassPercentage, FormatDuration(summary.Duration))
	} else {
		fmt.Fprintf(w, "  %d passed  %d failed  %d errored  | %.1f%% | %s total\n",
			s.PassedCount, s.FailedCount, s.ErroredCount,
			s.PassPercentage, FormatDuration(summary.Duration))
	}
	fmt.Fprintf(w, "  p50 %s | p95 %s | cost: $%.4f\n",
		FormatDuration(s.LatencyP50), FormatDuration(s.LatencyP95), s.TotalCostUSD)
	fmt.Fprintf(w, "%s\n", sep)
}

// PrintVerbose writes the summary table followed by per-case details.
func PrintVerbose(w io.Writer, summary *result.Summary, color bool) {
	PrintSummaryTable(w, summary, color)

	fmt.Fprintf(w, "\n--- Detailed Results ---\n\n")

	for _, r := range summary.Results {
		fmt.Fprintf(w, "Case: %s [%s]\n", r.Name, label(r, color))
		fmt.Fprintf(w, "  Expected: %s\n", r.Expected)
		fmt.Fprintf(w, "  Actual:   %s\n", r.Actual)
		if len(r.Skills) > 0 {
			fmt.Fprintf(w, "  Skills:   %s\n", strings.Join(r.Skills, ", "))
		}
		if r.SessionID != "" {
			fmt.Fprintf(w, "  Session:  %s\n", r.SessionID)
		}
		fmt.Fprintf(w, "  Turns:    %d\n", r.NumTurns)
		fmt.Fprintf(w, "  Cost:     %s\n", FormatCost(r.TotalCostUSD))
		fmt.Fprintf(w, "  Latency:  %s\n", FormatDuration(r.Duration))
		if r.Error != "" {
			fmt.Fprintf(w, "  Error:    %s\n", r.Error)
		}
		fmt.Fprintln(w)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
