package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jdgilhuly/go_skill_evals/pkg/diff"
	"github.com/jdgilhuly/go_skill_evals/pkg/result"
	"github.com/jdgilhuly/go_skill_evals/pkg/review"
	"github.com/jdgilhuly/go_skill_evals/pkg/runner"
	"github.com/jdgilhuly/go_skill_evals/pkg/suite"
)

// --- validate command ---

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [test-file...]",
		Short: "Validate config and test files",
		Long: `Check the config file and test files for errors.

Validates YAML syntax, the test case schema, required fields and unique
test names. Test cases that set more than one expectation field are
reported as warnings; --strict turns them into errors.`,
		RunE: runValidate,
	}
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	strict, _ := cmd.Flags().GetBool("strict")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	fmt.Fprintf(out, "Config %q is valid.\n", cfgPath)

	if len(args) == 0 {
		args = []string{cfg.DefaultTestFile}
	}

	var errs []error
	for _, pattern := range args {
		s, err := suite.LoadPattern(pattern)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pattern, err))
			continue
		}
		warnings := s.Warnings()
		for _, w := range warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
		if strict && len(warnings) > 0 {
			errs = append(errs, fmt.Errorf("%s: %d warning(s) in strict mode", pattern, len(warnings)))
			continue
		}
		fmt.Fprintf(out, "Test file %q is valid (%d tests).\n", pattern, len(s.Tests))
	}
	return errors.Join(errs...)
}

// --- list command ---

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [test-file]",
		Short: "List test cases and their expectations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := suite.LoadPattern(testFile(args, cfg))
			if err != nil {
				return err
			}
			filter, _ := cmd.Flags().GetString("filter")
			s, err = s.Filter(filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d tests)\n", s.Name, len(s.Tests))
			for _, tc := range s.Tests {
				fmt.Fprintf(out, "  %-32s %-40s max_turns=%d\n", tc.Name, tc.Expectation(), tc.MaxTurns)
			}
			return nil
		},
	}
	cmd.Flags().StringP("filter", "f", "", "Only list tests whose name contains this substring")
	return cmd
}

// --- diff command ---

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <run-a.json> <run-b.json>",
		Short: "Compare two saved runs",
		Long: `Compare results from two runs saved with --output or --save.

Shows which tests were fixed, which regressed, and which routed to a
different skill. Useful for evaluating skill description changes or model
upgrades.`,
		Args: cobra.ExactArgs(2),
		RunE: runDiff,
	}
	cmd.Flags().String("format", "table", "Output format: table, json, markdown")
	cmd.Flags().String("only", "", "Comma-separated categories to show (fixed, regressed, unchanged, new, removed)")
	cmd.Flags().Bool("fail-on-regression", false, "Exit 1 when any test regressed")
	return cmd
}

func runDiff(cmd *cobra.Command, args []string) error {
	a, err := result.LoadSummary(args[0])
	if err != nil {
		return err
	}
	b, err := result.LoadSummary(args[1])
	if err != nil {
		return err
	}

	only, _ := cmd.Flags().GetString("only")
	cats, err := diff.ParseCategories(only)
	if err != nil {
		return err
	}
	full := diff.Compare(a, b)
	dr := full.Filter(cats)

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "table":
		dr.PrintTable(out)
	case "markdown":
		dr.PrintMarkdown(out)
	case "json":
		data, err := dr.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	default:
		return fmt.Errorf("unknown format %q (want table, json or markdown)", format)
	}

	if failOn, _ := cmd.Flags().GetBool("fail-on-regression"); failOn && full.HasRegressions() {
		return exitCode(1)
	}
	return nil
}

// --- review command ---

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <run.json>",
		Short: "Review and override verdicts in a saved run",
		Long: `Interactively grade tests of a saved run.

By default only tests that completed but routed to the wrong skill are
shown. Graded tests are marked as reviewed and the suite verdict is
recomputed against the run's threshold. The run file is updated in place
unless --output is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := result.LoadSummary(args[0])
			if err != nil {
				return err
			}

			filter, _ := cmd.Flags().GetString("filter")
			rv := &review.Reviewer{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			n, err := rv.Review(summary, review.ParseFilter(filter))
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}

			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = args[0]
			}
			if err := summary.Save(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nReviewed %d test(s); %d/%d passed (%.1f%%). Saved to %s\n",
				n, summary.Stats.PassedCount, summary.Stats.Total, summary.Stats.PassPercentage, out)
			return nil
		},
	}
	cmd.Flags().String("filter", "fail", "Tests to review: fail, error, all")
	cmd.Flags().StringP("output", "o", "", "Write the reviewed run here instead of updating it in place")
	return cmd
}

// --- init command ---

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new skill eval project",
		Long: `Scaffold a new skill eval project with an example configuration,
test file, and a results directory.

Creates the following structure:
  skill-evals.yaml              - Main configuration file
  test-cases/skill-routing.yaml - Example test cases
  results/                      - Run result output directory`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, d := range []string{"test-cases", "results"} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
		fmt.Fprintf(out, "  created %s/\n", d)
	}

	if err := writeYAML(cmd, "skill-evals.yaml", exampleConfig()); err != nil {
		return err
	}
	if err := writeYAML(cmd, filepath.Join("test-cases", "skill-routing.yaml"), exampleSuite()); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSkill eval project initialized. Run 'skill-evals validate' to check your files.")
	return nil
}

func writeYAML(cmd *cobra.Command, path string, data any) error {
	out := cmd.OutOrStdout()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "  skipped %s (already exists)\n", path)
		return nil
	}

	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(out, "  created %s\n", path)
	return nil
}

func exampleConfig() map[string]any {
	return map[string]any{
		"timeout":           "180s",
		"parallel":          runner.DefaultParallel,
		"threshold":         result.DefaultThreshold,
		"output_dir":        "results/",
		"default_test_file": "test-cases/skill-routing.yaml",
		"agent": map[string]any{
			"command":     "claude",
			"plugin_dirs": []string{"."},
		},
	}
}

func exampleSuite() map[string]any {
	return map[string]any{
		"name":        "skill-routing",
		"description": "Prompts and the skills they should route to",
		"tests": []map[string]any{
			{
				"name":           "example-single-skill",
				"prompt":         "Show me the upstream tables of main.sales.orders",
				"expected_skill": "databricks-lineage",
			},
			{
				"name":                  "example-either-skill",
				"prompt":                "How many rows are in main.sales.orders?",
				"expected_skill_one_of": []string{"databricks-sql", "databricks-query"},
			},
			{
				"name":   "example-no-skill",
				"prompt": "Thanks, that's all.",
			},
		},
	}
}
