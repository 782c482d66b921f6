package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdgilhuly/go_skill_evals/pkg/agent"
	"github.com/jdgilhuly/go_skill_evals/pkg/log"
	"github.com/jdgilhuly/go_skill_evals/pkg/session"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "skill-evals.yaml"

// Config holds the top-level eval runner configuration.
type Config struct {
	Timeout         time.Duration `yaml:"timeout"`
	Parallel        int           `yaml:"parallel"`
	Threshold       float64       `yaml:"threshold"`
	OutputDir       string        `yaml:"output_dir"`
	DefaultTestFile string        `yaml:"default_test_file"`
	Agent           AgentConfig   `yaml:"agent"`
}

// AgentConfig configures the agent runtime and the options of every session.
type AgentConfig struct {
	Command        string             `yaml:"command"`
	Args           []string           `yaml:"args"`
	AllowedTools   []string           `yaml:"allowed_tools"`
	PermissionMode string             `yaml:"permission_mode"`
	SystemPrompt   agent.SystemPrompt `yaml:"system_prompt"`
	SettingSources []string           `yaml:"setting_sources"`
	PluginDirs     []string           `yaml:"plugin_dirs"`
	Cwd            string             `yaml:"cwd"`
	Env            map[string]string  `yaml:"env"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Timeout:         180 * time.Second,
		Parallel:        15,
		Threshold:       95.0,
		OutputDir:       "results/",
		DefaultTestFile: "test-cases/skill-routing.yaml",
		Agent: AgentConfig{
			Command:        "claude",
			AllowedTools:   slices.Clone(session.DefaultAllowedTools),
			PermissionMode: agent.PermissionBypass,
			SystemPrompt:   session.DefaultSystemPrompt,
			SettingSources: []string{"project"},
			PluginDirs:     []string{"."},
			Cwd:            ".",
		},
	}
}

// Load reads and parses a YAML config file at the given path.
// It returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads config from the given path. If the file does not exist,
// it returns the default configuration. Other errors (e.g. parse failures)
// are still returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// ResolvePaths makes the agent's relative plugin directories and working
// directory absolute, relative to base.
func (c *Config) ResolvePaths(base string) error {
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", base, err)
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(abs, p)
	}
	for i, d := range c.Agent.PluginDirs {
		c.Agent.PluginDirs[i] = resolve(d)
	}
	c.Agent.Cwd = resolve(c.Agent.Cwd)
	return nil
}

// Validate checks the config for required fields and returns a descriptive
// error if any are missing or invalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Parallel < 1 {
		errs = append(errs, fmt.Errorf("parallel must be >= 1, got %d", c.Parallel))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0, got %s", c.Timeout))
	}
	if c.Threshold <= 0 || c.Threshold > 100 {
		errs = append(errs, fmt.Errorf("threshold must be in (0, 100], got %g", c.Threshold))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}
	if c.Agent.Command == "" {
		errs = append(errs, errors.New("agent.command must not be empty"))
	}
	if p := c.Agent.SystemPrompt.Preset; p != "" && p != agent.PresetClaudeCode {
		errs = append(errs, fmt.Errorf("agent.system_prompt.preset must be %q, got %q", agent.PresetClaudeCode, p))
	}
	if !slices.Contains(c.Agent.AllowedTools, agent.SkillTool) {
		errs = append(errs, fmt.Errorf("agent.allowed_tools must include %s", agent.SkillTool))
	}

	return errors.Join(errs...)
}

// CLIConfig returns the command-line runtime configuration.
func (c *Config) CLIConfig() agent.CLIConfig {
	return agent.CLIConfig{
		Command: c.Agent.Command,
		Args:    c.Agent.Args,
		Env:     c.Agent.Env,
	}
}

// SessionConfig returns the session driver configuration for rt.
func (c *Config) SessionConfig(rt agent.Runtime, logger log.Logger) session.Config {
	return session.Config{
		Runtime:        rt,
		AllowedTools:   c.Agent.AllowedTools,
		PermissionMode: c.Agent.PermissionMode,
		SystemPrompt:   c.Agent.SystemPrompt,
		SettingSources: c.Agent.SettingSources,
		PluginDirs:     c.Agent.PluginDirs,
		Cwd:            c.Agent.Cwd,
		Logger:         logger,
	}
}
