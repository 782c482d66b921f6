package evaltest

import (
	"fmt"

	"github.com/jdgilhuly/go_skill_evals/pkg/judge"
)

// Expect asserts that the invoked skills satisfy exp.
func (tc *TestCase) Expect(exp judge.Expectation) {
	tc.t.Helper()
	tc.expected = exp.String()
	if !tc.executed {
		tc.t.Error("Expect called before Prompt()")
		return
	}
	v := judge.Evaluate(exp, tc.Skills())
	if !v.Pass {
		tc.t.Errorf("expected '%s', got '%s'", v.Expected, v.Actual)
	}
}

// AssertSkillInvoked asserts that the named skill was invoked. A bare name
// also matches a plugin-qualified invocation such as "plugin:name".
func (tc *TestCase) AssertSkillInvoked(skill string) {
	tc.t.Helper()
	tc.Expect(judge.Expectation{Mode: judge.ModeSingle, Skills: []string{skill}})
}

// AssertAllSkills asserts that every named skill was invoked.
func (tc *TestCase) AssertAllSkills(skills ...string) {
	tc.t.Helper()
	tc.Expect(judge.Expectation{Mode: judge.ModeAll, Skills: skills})
}

// AssertOneOf asserts that at least one of the named skills was invoked.
func (tc *TestCase) AssertOneOf(skills ...string) {
	tc.t.Helper()
	tc.Expect(judge.Expectation{Mode: judge.ModeOneOf, Skills: skills})
}

// AssertNoSkill asserts that no skill was invoked.
func (tc *TestCase) AssertNoSkill() {
	tc.t.Helper()
	tc.Expect(judge.Expectation{Mode: judge.ModeNone})
}

// AssertToolCalled asserts that the named tool was called at least once.
func (tc *TestCase) AssertToolCalled(toolName string) {
	tc.t.Helper()
	if tc.trace == nil {
		tc.t.Error("AssertToolCalled called before Prompt()")
		return
	}
	for _, call := range tc.trace.GetToolCalls() {
		if call.ToolName == toolName {
			return
		}
	}
	tc.t.Errorf("tool %q was not called", toolName)
}

// AssertToolNotCalled asserts that the named tool was never called.
func (tc *TestCase) AssertToolNotCalled(toolName string) {
	tc.t.Helper()
	if tc.trace == nil {
		tc.t.Error("AssertToolNotCalled called before Prompt()")
		return
	}
	for _, call := range tc.trace.GetToolCalls() {
		if call.ToolName == toolName {
			tc.t.Errorf("tool %q was called but should not have been", toolName)
			return
		}
	}
}

// AssertToolCalledWith asserts the named tool was called with input that is
// a superset of the given input (subset match).
func (tc *TestCase) AssertToolCalledWith(toolName string, input map[string]any) {
	tc.t.Helper()
	if tc.trace == nil {
		tc.t.Error("AssertToolCalledWith called before Prompt()")
		return
	}
	for _, call := range tc.trace.GetToolCalls() {
		if call.ToolName == toolName && isSubset(input, call.Input) {
			return
		}
	}
	tc.t.Errorf("tool %q was not called with input %v", toolName, input)
}

// isSubset checks whether every key/value in subset exists in superset
// with the same value (compared via fmt.Sprintf).
func isSubset(subset, superset map[string]any) bool {
	for k, v := range subset {
		sv, ok := superset[k]
		if !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", sv) {
			return false
		}
	}
	return true
}
