// Package review lets a human override verdicts in a saved run, for example
// to accept a routing to a skill that is also correct for the prompt.
package review

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jdgilhuly/go_skill_evals/pkg/result"
)

// Filter determines which tests are shown for review.
type Filter string

const (
	// FilterFail shows tests that completed but routed to the wrong skill.
	FilterFail  Filter = "fail"
	FilterError Filter = "error"
	FilterAll   Filter = "all"
)

// ParseFilter converts a string to a Filter, defaulting to FilterFail.
func ParseFilter(s string) Filter {
	switch strings.ToLower(s) {
	case "error", "errors":
		return FilterError
	case "all":
		return FilterAll
	default:
		return FilterFail
	}
}

// Reviewer handles interactive review of a saved run.
type Reviewer struct {
	In  io.Reader
	Out io.Writer
}

// Review presents the filtered tests for grading, applies the grades and
// recomputes the summary's stats and threshold verdict. It returns the
// number of tests graded.
func (r *Reviewer) Review(summary *result.Summary, filter Filter) (int, error) {
	indices := filterResults(summary.Results, filter)
	if len(indices) == 0 {
		fmt.Fprintf(r.Out, "No tests match filter %q.\n", string(filter))
		return 0, nil
	}

	scanner := bufio.NewScanner(r.In)
	reviewed := 0

	for i, idx := range indices {
		tr := &summary.Results[idx]
		fmt.Fprintf(r.Out, "\n--- Test %d of %d ---\n", i+1, len(indices))
		printResult(r.Out, tr)

		fmt.Fprintf(r.Out, "\nGrade [pass/fail/skip]: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if !applyGrade(tr, input) {
			fmt.Fprintf(r.Out, "  Skipped.\n")
			continue
		}
		reviewed++
		fmt.Fprintf(r.Out, "  Graded: %s\n", verdict(tr.Passed))
	}

	summary.Recompute()

	return reviewed, scanner.Err()
}

func filterResults(results []result.TestResult, filter Filter) []int {
	var indices []int
	for i, tr := range results {
		switch filter {
		case FilterFail:
			if !tr.Passed && tr.Error == "" {
				indices = append(indices, i)
			}
		case FilterError:
			if tr.Error != "" {
				indices = append(indices, i)
			}
		case FilterAll:
			indices = append(indices, i)
		}
	}
	return indices
}

func printResult(w io.Writer, tr *result.TestResult) {
	fmt.Fprintf(w, "Name:     %s\n", tr.Name)
	fmt.Fprintf(w, "Verdict:  %s\n", verdict(tr.Passed))
	fmt.Fprintf(w, "Expected: %s\n", tr.Expected)
	fmt.Fprintf(w, "Actual:   %s\n", tr.Actual)
	if tr.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", truncateStr(tr.Error, 500))
	}
}

// applyGrade sets the verdict from input and reports whether input was a
// grade. Anything other than pass or fail skips the test.
func applyGrade(tr *result.TestResult, input string) bool {
	switch input {
	case "pass", "p":
		tr.Passed = true
	case "fail", "f":
		tr.Passed = false
	default:
		return false
	}
	tr.Reviewed = true
	return true
}

func verdict(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
