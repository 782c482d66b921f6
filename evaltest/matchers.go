package evaltest

import "fmt"

// RateMatcher matches a pass percentage in [0, 100].
type RateMatcher interface {
	Match(pct float64) bool
	String() string
}

type rateAbove struct {
	threshold float64
}

// Above returns a matcher that passes when the pass rate is strictly greater
// than threshold.
func Above(threshold float64) RateMatcher {
	return rateAbove{threshold: threshold}
}

func (m rateAbove) Match(pct float64) bool {
	return pct > m.threshold
}

func (m rateAbove) String() string {
	return fmt.Sprintf("pass rate > %.1f%%", m.threshold)
}

type rateAtLeast struct {
	min float64
}

// AtLeast returns a matcher that passes when the pass rate is at least min,
// the same comparison the suite threshold uses.
func AtLeast(min float64) RateMatcher {
	return rateAtLeast{min: min}
}

func (m rateAtLeast) Match(pct float64) bool {
	return pct >= m.min
}

func (m rateAtLeast) String() string {
	return fmt.Sprintf("pass rate >= %.1f%%", m.min)
}

// AllPassed returns a matcher that requires every case to pass.
func AllPassed() RateMatcher {
	return AtLeast(100)
}
