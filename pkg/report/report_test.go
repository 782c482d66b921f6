package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jdgilhuly/go_skill_evals/pkg/result"
)

func sampleSummary() *result.Summary {
	cost := 0.0125
	return &result.Summary{
		RunID:     "test-run",
		SuiteName: "skill-routing",
		Duration:  3 * time.Second,
		Threshold: 95,
		Stats: result.Stats{
			Total:          3,
			PassedCount:    1,
			FailedCount:    1,
			ErroredCount:   1,
			PassPercentage: 33.333333333333336,
			TotalCostUSD:   0.0125,
			LatencyP50:     200 * time.Millisecond,
			LatencyP95:     900 * time.Millisecond,
		},
		Results: []result.TestResult{
			{Name: "pass-case", Passed: true, Expected: "databricks-lineage", Actual: "databricks-lineage",
				Skills: []string{"databricks-lineage"}, SessionID: "s-1", TotalCostUSD: &cost, NumTurns: 2, Duration: 100 * time.Millisecond},
			{Name: "fail-case", Expected: "all of [A, B]", Actual: "A", Duration: 200 * time.Millisecond},
			{Name: "error-case", Expected: "completion", Actual: "timeout", Error: "Timed out after 180s", Duration: 900 * time.Millisecond},
		},
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		name   string
		r      result.TestResult
		expect string
	}{
		{"pass", result.TestResult{Passed: true}, "PASS"},
		{"fail", result.TestResult{Passed: false}, "FAIL"},
		{"error", result.TestResult{Error: "err"}, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := StatusLabelPlain(tt.r)
			if label != tt.expect {
				t.Errorf("StatusLabelPlain() = %q, want %q", label, tt.expect)
			}

			colored := StatusLabel(tt.r)
			if !strings.Contains(colored, tt.expect) {
				t.Errorf("StatusLabel() = %q, should contain %q", colored, tt.expect)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500us"},
		{150 * time.Millisecond, "150ms"},
		{2500 * time.Millisecond, "2.5s"},
		{0, "0us"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatDuration(tt.d)
			if got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestFormatCost(t *testing.T) {
	c := 0.5
	if got := FormatCost(&c); got != "$0.5000" {
		t.Errorf("FormatCost(0.5) = %q, want $0.5000", got)
	}
	if got := FormatCost(nil); got != "-" {
		t.Errorf("FormatCost(nil) = %q, want -", got)
	}
}

func TestPrintSummaryTable_Plain(t *testing.T) {
	var buf bytes.Buffer
	PrintSummaryTable(&buf, sampleSummary(), false)
	output := buf.String()

	for _, want := range []string{
		"CASE", "STATUS", "EXPECTED", "ACTUAL", "TURNS", "LATENCY",
		"pass-case", "PASS",
		"fail-case", "FAIL",
		"error-case", "ERROR",
		"1 passed", "1 failed", "1 errored",
		"33.3%",
		"p50 200ms", "p95 900ms",
		"cost: $0.0125",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(output, "\033[") {
		t.Error("plain output should not contain ANSI codes")
	}
}

func TestPrintSummaryTable_Colored(t *testing.T) {
	var buf bytes.Buffer
	PrintSummaryTable(&buf, sampleSummary(), true)
	output := buf.String()

	if !strings.Contains(output, colorGreen) {
		t.Error("colored output missing green ANSI code")
	}
	if !strings.Contains(output, colorRed) {
		t.Error("colored output missing red ANSI code")
	}
}

func TestPrintVerbose(t *testing.T) {
	var buf bytes.Buffer
	PrintVerbose(&buf, sampleSummary(), false)
	output := buf.String()

	for _, want := range []string{
		"Detailed Results",
		"Case: pass-case [PASS]",
		"Skills:   databricks-lineage",
		"Session:  s-1",
		"Cost:     $0.0125",
		"Case: error-case [ERROR]",
		"Error:    Timed out after 180s",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("verbose output missing %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"a-very-long-case-name-that-exceeds", 20, "a-very-long-case-..."},
		{"exact", 5, "exact"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := truncate(tt.input, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}

func TestColorEnabled_NotTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if ColorEnabled(f) {
		t.Error("regular file should not enable color")
	}
}

func TestColorEnabled_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ColorEnabled(os.Stdout) {
		t.Error("NO_COLOR should disable color")
	}
}
