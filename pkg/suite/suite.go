package suite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jdgilhuly/go_skill_evals/pkg/judge"
	"gopkg.in/yaml.v3"
)

// DefaultMaxTurns is used for test cases that do not set max_turns.
const DefaultMaxTurns = 5

// ErrNoMatch is returned by Filter when no test case name contains the
// filter string.
var ErrNoMatch = errors.New("no tests match filter")

// Suite is a collection of skill routing test cases loaded from one or more
// YAML files.
type Suite struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tests       []TestCase `yaml:"tests"`

	// Files lists the files the tests were loaded from, in load order.
	Files []string `yaml:"-"`
}

// TestCase is a single prompt and the skill invocations it should produce.
// At most one of ExpectedSkill, ExpectedSkills and ExpectedSkillOneOf should
// be set; with none set the case expects no skill to be invoked.
type TestCase struct {
	Name               string   `yaml:"name" json:"name"`
	Prompt             string   `yaml:"prompt" json:"prompt"`
	ExpectedSkill      string   `yaml:"expected_skill,omitempty" json:"expected_skill,omitempty"`
	ExpectedSkills     []string `yaml:"expected_skills,omitempty" json:"expected_skills,omitempty"`
	ExpectedSkillOneOf []string `yaml:"expected_skill_one_of,omitempty" json:"expected_skill_one_of,omitempty"`
	MaxTurns           int      `yaml:"max_turns,omitempty" json:"max_turns,omitempty"`
	Model              string   `yaml:"model,omitempty" json:"model,omitempty"`
}

// Expectation resolves the case's expectation fields. When several are set,
// expected_skills wins over expected_skill_one_of, which wins over
// expected_skill.
func (tc TestCase) Expectation() judge.Expectation {
	switch {
	case len(tc.ExpectedSkills) > 0:
		return judge.Expectation{Mode: judge.ModeAll, Skills: tc.ExpectedSkills}
	case len(tc.ExpectedSkillOneOf) > 0:
		return judge.Expectation{Mode: judge.ModeOneOf, Skills: tc.ExpectedSkillOneOf}
	case tc.ExpectedSkill != "":
		return judge.Expectation{Mode: judge.ModeSingle, Skills: []string{tc.ExpectedSkill}}
	default:
		return judge.Expectation{Mode: judge.ModeNone}
	}
}

// expectationFields returns the names of the expectation fields that are set.
func (tc TestCase) expectationFields() []string {
	var fields []string
	if len(tc.ExpectedSkills) > 0 {
		fields = append(fields, "expected_skills")
	}
	if len(tc.ExpectedSkillOneOf) > 0 {
		fields = append(fields, "expected_skill_one_of")
	}
	if tc.ExpectedSkill != "" {
		fields = append(fields, "expected_skill")
	}
	return fields
}

// Load reads a single Suite from a YAML file. The document is checked
// against the test case schema before decoding.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test file %s: %w", path, err)
	}
	if err := ValidateDocument(data); err != nil {
		return nil, fmt.Errorf("invalid test file %s: %w", path, err)
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing test file %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.Files = []string{path}
	s.applyDefaults()
	return &s, nil
}

// LoadPattern loads every file matching a doublestar pattern such as
// "test-cases/**/*.yaml" and merges them into one Suite, in lexical file
// order. A directory loads the YAML files directly inside it, and any other
// plain path is loaded as-is.
func LoadPattern(pattern string) (*Suite, error) {
	if !hasMeta(pattern) {
		if fi, err := os.Stat(pattern); err == nil && fi.IsDir() {
			suites, err := LoadDir(pattern)
			if err != nil {
				return nil, err
			}
			if len(suites) == 0 {
				return nil, fmt.Errorf("no test files in %s", pattern)
			}
			return Merge(filepath.Base(filepath.Clean(pattern)), suites...), nil
		}
		return Load(pattern)
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expanding test file pattern %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no test files match %s", pattern)
	}
	sort.Strings(matches)

	suites := make([]*Suite, 0, len(matches))
	for _, m := range matches {
		s, err := Load(m)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return Merge(pattern, suites...), nil
}

// LoadDir loads all .yaml and .yml files from dir as Suites, in file name
// order. Subdirectories are skipped.
func LoadDir(dir string) ([]*Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading test case directory %s: %w", dir, err)
	}

	var suites []*Suite
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		s, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}

	return suites, nil
}

// Merge concatenates the tests of several suites under a new name.
func Merge(name string, suites ...*Suite) *Suite {
	if len(suites) == 1 {
		return suites[0]
	}
	merged := &Suite{Name: name}
	for _, s := range suites {
		merged.Tests = append(merged.Tests, s.Tests...)
		merged.Files = append(merged.Files, s.Files...)
	}
	return merged
}

// Validate checks that the Suite has the minimum required fields and that
// test case names are unique.
func (s *Suite) Validate() error {
	if len(s.Tests) == 0 {
		return fmt.Errorf("suite %q must have at least one test", s.Name)
	}

	var errs []error
	seen := make(map[string]int, len(s.Tests))
	for i, tc := range s.Tests {
		if tc.Name == "" {
			errs = append(errs, fmt.Errorf("test %d has no name", i))
			continue
		}
		if tc.Prompt == "" {
			errs = append(errs, fmt.Errorf("test %q has no prompt", tc.Name))
		}
		if tc.MaxTurns < 1 {
			errs = append(errs, fmt.Errorf("test %q: max_turns must be >= 1, got %d", tc.Name, tc.MaxTurns))
		}
		if prev, dup := seen[tc.Name]; dup {
			errs = append(errs, fmt.Errorf("test %q is defined twice (tests %d and %d)", tc.Name, prev, i))
			continue
		}
		seen[tc.Name] = i
	}
	return errors.Join(errs...)
}

// Warnings reports configuration problems that do not stop a run, such as
// test cases that set more than one expectation field.
func (s *Suite) Warnings() []string {
	var warnings []string
	for _, tc := range s.Tests {
		fields := tc.expectationFields()
		if len(fields) > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"test %q sets %s; only %s is evaluated",
				tc.Name, strings.Join(fields, " and "), fields[0]))
		}
	}
	return warnings
}

// Filter returns a new suite containing only tests whose name contains
// substr. An empty substr returns the suite unchanged. ErrNoMatch is
// returned when nothing matches.
func (s *Suite) Filter(substr string) (*Suite, error) {
	if substr == "" {
		return s, nil
	}

	filtered := &Suite{
		Name:        s.Name,
		Description: s.Description,
		Files:       s.Files,
	}
	for _, tc := range s.Tests {
		if strings.Contains(tc.Name, substr) {
			filtered.Tests = append(filtered.Tests, tc)
		}
	}
	if len(filtered.Tests) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, substr)
	}
	return filtered, nil
}

// ApplyModel sets model on every test that does not choose its own.
func (s *Suite) ApplyModel(model string) {
	if model == "" {
		return
	}
	for i := range s.Tests {
		if s.Tests[i].Model == "" {
			s.Tests[i].Model = model
		}
	}
}

func (s *Suite) applyDefaults() {
	for i := range s.Tests {
		if s.Tests[i].MaxTurns == 0 {
			s.Tests[i].MaxTurns = DefaultMaxTurns
		}
	}
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
