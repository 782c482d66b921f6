package judge

import (
	"fmt"
	"strings"
)

// Mode selects how an Expectation is checked against invoked skills.
type Mode string

const (
	// ModeAll passes when every listed skill was invoked.
	ModeAll Mode = "all"
	// ModeOneOf passes when at least one listed skill was invoked.
	ModeOneOf Mode = "one_of"
	// ModeSingle passes when the single listed skill was invoked.
	ModeSingle Mode = "single"
	// ModeNone passes when no skill was invoked.
	ModeNone Mode = "none"
)

// nullDisplay is rendered for an empty expectation or an empty invocation list.
const nullDisplay = "null"

// Expectation is the resolved expectation of one test case.
type Expectation struct {
	Mode   Mode     `json:"mode"`
	Skills []string `json:"skills,omitempty"`
}

// String renders the expectation the way it is shown in reports:
// "all of [a, b]", "one of [a, b]", "a" or "null".
func (e Expectation) String() string {
	switch e.Mode {
	case ModeAll:
		return "all of " + bracketed(e.Skills)
	case ModeOneOf:
		return "one of " + bracketed(e.Skills)
	case ModeSingle:
		if len(e.Skills) > 0 {
			return e.Skills[0]
		}
	}
	return nullDisplay
}

// Verdict is the outcome of checking one Expectation.
type Verdict struct {
	Pass     bool   `json:"pass"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Evaluate checks invoked against exp. The invoked list is expected to be
// truncated by the caller; order only matters for the Actual rendering.
func Evaluate(exp Expectation, invoked []string) Verdict {
	set := NewSkillSet(invoked)

	var pass bool
	switch exp.Mode {
	case ModeAll:
		pass = true
		for _, s := range exp.Skills {
			if !Matches(s, set) {
				pass = false
				break
			}
		}
	case ModeOneOf:
		for _, s := range exp.Skills {
			if Matches(s, set) {
				pass = true
				break
			}
		}
	case ModeSingle:
		pass = len(exp.Skills) > 0 && Matches(exp.Skills[0], set)
	default:
		pass = len(invoked) == 0
	}

	return Verdict{
		Pass:     pass,
		Expected: exp.String(),
		Actual:   DisplaySkills(invoked),
	}
}

// DisplaySkills joins invoked skills with ", " or returns "null" when empty.
func DisplaySkills(invoked []string) string {
	if len(invoked) == 0 {
		return nullDisplay
	}
	return strings.Join(invoked, ", ")
}

func bracketed(skills []string) string {
	return fmt.Sprintf("[%s]", strings.Join(skills, ", "))
}
