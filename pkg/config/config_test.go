package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jdgilhuly/go_skill_evals/pkg/agent"
)

func TestLoad(t *testing.T) {
	yaml := `
timeout: 120s
parallel: 4
threshold: 90
output_dir: output/
default_test_file: test-cases/edge-cases.yaml
agent:
  command: /usr/local/bin/claude
  args: [--debug]
  allowed_tools: [Skill, Read]
  system_prompt:
    append: Answer tersely.
  plugin_dirs: [plugins/databricks-skills, /opt/skills]
  cwd: ..
  env:
    CLAUDE_CODE_USE_BEDROCK: "1"
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Timeout != 120*time.Second {
		t.Errorf("Timeout = %s, want 120s", cfg.Timeout)
	}
	if cfg.Parallel != 4 {
		t.Errorf("Parallel = %d, want 4", cfg.Parallel)
	}
	if cfg.Threshold != 90 {
		t.Errorf("Threshold = %v, want 90", cfg.Threshold)
	}
	if cfg.OutputDir != "output/" {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, "output/")
	}
	if cfg.DefaultTestFile != "test-cases/edge-cases.yaml" {
		t.Errorf("DefaultTestFile = %q", cfg.DefaultTestFile)
	}

	a := cfg.Agent
	if a.Command != "/usr/local/bin/claude" {
		t.Errorf("Agent.Command = %q", a.Command)
	}
	if len(a.AllowedTools) != 2 || a.AllowedTools[1] != "Read" {
		t.Errorf("Agent.AllowedTools = %v, want [Skill Read]", a.AllowedTools)
	}
	// Unset nested fields keep their defaults.
	if a.SystemPrompt.Preset != "claude_code" {
		t.Errorf("SystemPrompt.Preset = %q, want default claude_code", a.SystemPrompt.Preset)
	}
	if a.SystemPrompt.Append != "Answer tersely." {
		t.Errorf("SystemPrompt.Append = %q", a.SystemPrompt.Append)
	}
	if a.PermissionMode != agent.PermissionBypass {
		t.Errorf("PermissionMode = %q, want default", a.PermissionMode)
	}
	if a.Env["CLAUDE_CODE_USE_BEDROCK"] != "1" {
		t.Errorf("Env = %v", a.Env)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/skill-evals.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoadOrDefault_FileExists(t *testing.T) {
	yaml := `
parallel: 20
timeout: 45s
`
	path := writeTemp(t, yaml)
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Parallel != 20 {
		t.Errorf("Parallel = %d, want 20", cfg.Parallel)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %s, want 45s", cfg.Timeout)
	}
	if cfg.OutputDir != "results/" {
		t.Errorf("OutputDir = %q, want default %q", cfg.OutputDir, "results/")
	}
}

func TestLoadOrDefault_FileMissing(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/skill-evals.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}

	def := Default()
	if cfg.Parallel != def.Parallel {
		t.Errorf("Parallel = %d, want default %d", cfg.Parallel, def.Parallel)
	}
	if cfg.Timeout != def.Timeout {
		t.Errorf("Timeout = %s, want default %s", cfg.Timeout, def.Timeout)
	}
}

func TestLoadOrDefault_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{bad yaml")
	_, err := LoadOrDefault(path)
	if err == nil {
		t.Fatal("LoadOrDefault() expected error for invalid YAML, got nil")
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"parallel", func(c *Config) { c.Parallel = 0 }, "parallel"},
		{"timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"threshold zero", func(c *Config) { c.Threshold = 0 }, "threshold"},
		{"threshold above 100", func(c *Config) { c.Threshold = 101 }, "threshold"},
		{"output dir", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"command", func(c *Config) { c.Agent.Command = "" }, "agent.command"},
		{"skill tool", func(c *Config) { c.Agent.AllowedTools = []string{"Read"} }, "must include Skill"},
		{"preset", func(c *Config) { c.Agent.SystemPrompt.Preset = "minimal" }, "agent.system_prompt.preset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_EmptyPreset(t *testing.T) {
	cfg := Default()
	cfg.Agent.SystemPrompt.Preset = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error for empty preset: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected multiple errors")
	}
	msg := err.Error()
	for _, want := range []string{"parallel", "timeout", "threshold", "output_dir", "agent.command", "allowed_tools"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing mention of %q: %s", want, msg)
		}
	}
}

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Agent.PluginDirs = []string{".", "plugins/databricks-skills", "/opt/skills"}
	cfg.Agent.Cwd = "."

	if err := cfg.ResolvePaths(base); err != nil {
		t.Fatalf("ResolvePaths() error: %v", err)
	}

	want := []string{base, filepath.Join(base, "plugins/databricks-skills"), "/opt/skills"}
	for i, w := range want {
		if cfg.Agent.PluginDirs[i] != w {
			t.Errorf("PluginDirs[%d] = %q, want %q", i, cfg.Agent.PluginDirs[i], w)
		}
	}
	if cfg.Agent.Cwd != base {
		t.Errorf("Cwd = %q, want %q", cfg.Agent.Cwd, base)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := Default()
	cfg.Agent.Cwd = "/repo"
	sc := cfg.SessionConfig(nil, nil)

	if sc.Cwd != "/repo" {
		t.Errorf("Cwd = %q, want /repo", sc.Cwd)
	}
	if sc.PermissionMode != agent.PermissionBypass {
		t.Errorf("PermissionMode = %q", sc.PermissionMode)
	}
	if len(sc.AllowedTools) != 5 {
		t.Errorf("AllowedTools = %v, want 5 tools", sc.AllowedTools)
	}
}

func TestCLIConfig(t *testing.T) {
	cfg := Default()
	cfg.Agent.Args = []string{"--debug"}
	cc := cfg.CLIConfig()
	if cc.Command != "claude" || len(cc.Args) != 1 {
		t.Errorf("CLIConfig() = %+v", cc)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Parallel != 15 {
		t.Errorf("Default Parallel = %d, want 15", cfg.Parallel)
	}
	if cfg.Timeout != 180*time.Second {
		t.Errorf("Default Timeout = %s, want 180s", cfg.Timeout)
	}
	if cfg.Threshold != 95 {
		t.Errorf("Default Threshold = %v, want 95", cfg.Threshold)
	}
	if cfg.DefaultTestFile != "test-cases/skill-routing.yaml" {
		t.Errorf("Default DefaultTestFile = %q", cfg.DefaultTestFile)
	}
	if cfg.Agent.SystemPrompt.Append != "Never ask clarifying questions. Invoke skills directly." {
		t.Errorf("Default SystemPrompt.Append = %q", cfg.Agent.SystemPrompt.Append)
	}

	// Defaults must not alias the session package's shared slice.
	cfg.Agent.AllowedTools[0] = "Changed"
	if Default().Agent.AllowedTools[0] != "Skill" {
		t.Error("Default() AllowedTools aliases shared state")
	}
}

// writeTemp writes content to a temp YAML file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "skill-evals.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
