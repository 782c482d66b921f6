// Package evaltest provides Go testing integration for skill routing evals,
// allowing routing cases to be written and run as standard Go test functions.
//
// The package provides a Harness that wraps *testing.T and manages shared
// configuration (agent runtime, plugin directories, per-session timeout).
// Each case is run as a subtest via Harness.Run, receiving a TestCase with
// helpers for scripting sessions, sending a prompt, and asserting which
// skills were invoked. Whole YAML suites can be run with Harness.RunSuite.
//
// Example usage:
//
//	func TestRouting(t *testing.T) {
//	    h := evaltest.New(t, evaltest.WithRuntime(rt))
//	    h.Run("lineage", func(tc *evaltest.TestCase) {
//	        tc.Prompt("Show the upstream tables of main.sales.orders")
//	        tc.AssertSkillInvoked("databricks-lineage")
//	        tc.AssertToolCalled("Skill")
//	    })
//	    h.AssertPassRate(evaltest.AtLeast(95))
//	}
package evaltest
