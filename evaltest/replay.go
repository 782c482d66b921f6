package evaltest

import "github.com/jdgilhuly/go_skill_evals/pkg/mock"

// Route returns a fixture whose sessions for prompt invoke skills in order,
// every time the prompt is sent.
func Route(prompt string, skills ...string) mock.Fixture {
	return mock.Fixture{
		Prompt:          prompt,
		DefaultResponse: &mock.MockResponse{Skills: skills},
	}
}

// NewReplayRuntime creates a replay runtime over fixtures. Prompts without a
// fixture get a session that invokes no skill.
func NewReplayRuntime(fixtures ...mock.Fixture) *mock.Runtime {
	return mock.NewRuntime(fixtures, &mock.MockResponse{})
}
