package diff

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jdgilhuly/go_skill_evals/pkg/result"
)

// Category classifies a test case comparison.
type Category string

const (
	Fixed     Category = "fixed"
	Regressed Category = "regressed"
	Unchanged Category = "unchanged"
	New       Category = "new"
	Removed   Category = "removed"
)

// CaseDiff represents the comparison of a single test case between two runs.
type CaseDiff struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	StatusA  string   `json:"status_a,omitempty"`
	StatusB  string   `json:"status_b,omitempty"`
	ActualA  string   `json:"actual_a,omitempty"`
	ActualB  string   `json:"actual_b,omitempty"`
	Expected string   `json:"expected"`
}

// RoutingChanged reports whether the routed skill differs between runs even
// though the verdict did not.
func (cd CaseDiff) RoutingChanged() bool {
	return cd.Category == Unchanged && cd.ActualA != cd.ActualB
}

// DiffResult holds the full comparison between two runs.
type DiffResult struct {
	RunA     string     `json:"run_a"`
	RunB     string     `json:"run_b"`
	PassPctA float64    `json:"pass_pct_a"`
	PassPctB float64    `json:"pass_pct_b"`
	Cases    []CaseDiff `json:"cases"`
	Summary
}

// Summary holds counts by category.
type Summary struct {
	Fixed     int `json:"fixed"`
	Regressed int `json:"regressed"`
	Unchanged int `json:"unchanged"`
	New       int `json:"new"`
	Removed   int `json:"removed"`
}

// Compare produces a diff between two saved runs. Test cases are matched by
// name; cases present in both runs are classified by their pass/fail
// transition.
func Compare(a, b *result.Summary) *DiffResult {
	dr := &DiffResult{
		RunA:     a.RunID,
		RunB:     b.RunID,
		PassPctA: a.Stats.PassPercentage,
		PassPctB: b.Stats.PassPercentage,
	}

	aMap := make(map[string]result.TestResult, len(a.Results))
	for _, r := range a.Results {
		aMap[r.Name] = r
	}

	seen := make(map[string]bool, len(b.Results))
	for _, rB := range b.Results {
		seen[rB.Name] = true

		cd := CaseDiff{
			Name:     rB.Name,
			StatusB:  statusStr(rB),
			ActualB:  rB.Actual,
			Expected: rB.Expected,
		}

		rA, inA := aMap[rB.Name]
		switch {
		case !inA:
			cd.Category = New
			dr.Summary.New++
		case !rA.Passed && rB.Passed:
			cd.Category = Fixed
			dr.Summary.Fixed++
		case rA.Passed && !rB.Passed:
			cd.Category = Regressed
			dr.Summary.Regressed++
		default:
			cd.Category = Unchanged
			dr.Summary.Unchanged++
		}
		if inA {
			cd.StatusA = statusStr(rA)
			cd.ActualA = rA.Actual
		}

		dr.Cases = append(dr.Cases, cd)
	}

	for _, rA := range a.Results {
		if !seen[rA.Name] {
			dr.Cases = append(dr.Cases, CaseDiff{
				Name:     rA.Name,
				Category: Removed,
				StatusA:  statusStr(rA),
				ActualA:  rA.Actual,
				Expected: rA.Expected,
			})
			dr.Summary.Removed++
		}
	}

	return dr
}

// HasRegressions reports whether any test that passed in run A fails in run B.
func (dr *DiffResult) HasRegressions() bool {
	return dr.Summary.Regressed > 0
}

// Filter returns a new DiffResult with only cases matching the given
// categories. Pass nil to include all.
func (dr *DiffResult) Filter(categories []Category) *DiffResult {
	if len(categories) == 0 {
		return dr
	}

	catSet := make(map[Category]bool, len(categories))
	for _, c := range categories {
		catSet[c] = true
	}

	filtered := &DiffResult{
		RunA:     dr.RunA,
		RunB:     dr.RunB,
		PassPctA: dr.PassPctA,
		PassPctB: dr.PassPctB,
		Summary:  dr.Summary,
	}
	for _, cd := range dr.Cases {
		if catSet[cd.Category] {
			filtered.Cases = append(filtered.Cases, cd)
		}
	}
	return filtered
}

// ParseCategories converts a comma-separated list such as "fixed,regressed"
// into categories.
func ParseCategories(s string) ([]Category, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var cats []Category
	for _, part := range strings.Split(s, ",") {
		c := Category(strings.TrimSpace(part))
		switch c {
		case Fixed, Regressed, Unchanged, New, Removed:
			cats = append(cats, c)
		default:
			return nil, fmt.Errorf("unknown diff category %q", part)
		}
	}
	return cats, nil
}

// JSON serializes the diff result.
func (dr *DiffResult) JSON() ([]byte, error) {
	return json.MarshalIndent(dr, "", "  ")
}

// PrintTable writes a formatted diff table.
func (dr *DiffResult) PrintTable(w io.Writer) {
	sep := strings.Repeat("-", 90)
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %-28s  %-10s  %-7s  %-7s  %-26s\n", "CASE", "CHANGE", "RUN A", "RUN B", "ROUTED")
	fmt.Fprintf(w, "%s\n", sep)

	for _, cd := range dr.Cases {
		name := cd.Name
		if len(name) > 28 {
			name = name[:25] + "..."
		}

		routed := cd.ActualB
		switch cd.Category {
		case Removed:
			routed = cd.ActualA
		case New:
		default:
			if cd.ActualA != cd.ActualB {
				routed = cd.ActualA + " -> " + cd.ActualB
			}
		}

		fmt.Fprintf(w, "  %-28s  %-10s  %-7s  %-7s  %s\n",
			name, string(cd.Category), dash(cd.StatusA), dash(cd.StatusB), routed)
	}

	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %d fixed  %d regressed  %d unchanged  %d new  %d removed\n",
		dr.Summary.Fixed, dr.Summary.Regressed, dr.Summary.Unchanged,
		dr.Summary.New, dr.Summary.Removed)
	fmt.Fprintf(w, "  pass rate %.1f%% -> %.1f%% (%+.1f)\n",
		dr.PassPctA, dr.PassPctB, dr.PassPctB-dr.PassPctA)
	fmt.Fprintf(w, "%s\n", sep)
}

// PrintMarkdown writes the diff as a markdown table, suitable for PR comments.
func (dr *DiffResult) PrintMarkdown(w io.Writer) {
	fmt.Fprintf(w, "### Skill routing: %s vs %s\n\n", dr.RunA, dr.RunB)
	fmt.Fprintf(w, "Pass rate: %.1f%% -> %.1f%%\n\n", dr.PassPctA, dr.PassPctB)
	fmt.Fprintln(w, "| Case | Change | Expected | Run A | Run B |")
	fmt.Fprintln(w, "|------|--------|----------|-------|-------|")
	for _, cd := range dr.Cases {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			cd.Name, cd.Category, cd.Expected, cell(cd.StatusA, cd.ActualA), cell(cd.StatusB, cd.ActualB))
	}
	fmt.Fprintf(w, "\n%d fixed, %d regressed, %d unchanged, %d new, %d removed\n",
		dr.Summary.Fixed, dr.Summary.Regressed, dr.Summary.Unchanged,
		dr.Summary.New, dr.Summary.Removed)
}

func cell(status, actual string) string {
	if status == "" {
		return "-"
	}
	return fmt.Sprintf("%s (`%s`)", status, actual)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func statusStr(r result.TestResult) string {
	if r.Passed {
		return "pass"
	}
	if r.Error != "" {
		return "error"
	}
	return "fail"
}
