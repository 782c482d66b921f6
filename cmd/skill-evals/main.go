package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdgilhuly/go_skill_evals/pkg/agent"
	"github.com/jdgilhuly/go_skill_evals/pkg/config"
	"github.com/jdgilhuly/go_skill_evals/pkg/log"
	"github.com/jdgilhuly/go_skill_evals/pkg/mock"
	"github.com/jdgilhuly/go_skill_evals/pkg/report"
	"github.com/jdgilhuly/go_skill_evals/pkg/result"
	"github.com/jdgilhuly/go_skill_evals/pkg/runner"
	"github.com/jdgilhuly/go_skill_evals/pkg/session"
	"github.com/jdgilhuly/go_skill_evals/pkg/suite"
)

// exitCode ends the process with a status but no error message; whatever
// the user needs to see has already been printed.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	var code exitCode
	switch {
	case err == nil:
	case errors.As(err, &code):
		os.Exit(int(code))
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skill-evals [test-file]",
		Short: "Skill routing eval harness",
		Long: `Run prompts through the agent and check which skills it invokes.

Each test case in the YAML test file names the skill (or skills) a prompt
should route to. The suite passes when at least the threshold percentage
of cases (95% by default) pass. The test file may be a directory or a
glob such as 'test-cases/**/*.yaml'.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSuite,
	}

	f := root.Flags()
	f.Int("timeout", 180, "Timeout per test in seconds")
	f.BoolP("verbose", "v", false, "Verbose output")
	f.IntP("parallel", "j", runner.DefaultParallel, "Number of parallel workers")
	f.StringP("filter", "f", "", "Only run tests whose name contains this substring")
	f.StringP("model", "m", "", "Model for tests that do not set one")
	f.Float64("threshold", result.DefaultThreshold, "Pass percentage required for the suite to pass")
	f.String("replay", "", "Replay sessions from a fixture file instead of running the agent")
	f.StringP("output", "o", "", "Save the run summary as JSON to this path")
	f.Bool("save", false, "Save the run summary under the configured output directory")
	root.PersistentFlags().StringP("config", "c", config.DefaultFile, "Path to config file")

	root.AddCommand(newValidateCmd(), newListCmd(), newDiffCmd(), newReviewCmd(), newInitCmd())
	return root
}

// loadConfig reads the config file named by --config. Relative agent paths
// are resolved against the config file's directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ResolvePaths(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides config values with the flags the user set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("timeout") {
		secs, _ := fs.GetInt("timeout")
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	if fs.Changed("parallel") {
		cfg.Parallel, _ = fs.GetInt("parallel")
	}
	if fs.Changed("threshold") {
		cfg.Threshold, _ = fs.GetFloat64("threshold")
	}
}

func testFile(args []string, cfg *config.Config) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.DefaultTestFile
}

func runSuite(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fs := cmd.Flags()
	verbose, _ := fs.GetBool("verbose")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.New(cmd.ErrOrStderr(), verbose)
	defer logger.Sync() //nolint:errcheck

	s, err := suite.LoadPattern(testFile(args, cfg))
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid test file: %w", err)
	}
	for _, w := range s.Warnings() {
		logger.Warn(w)
	}

	filter, _ := fs.GetString("filter")
	s, err = s.Filter(filter)
	if errors.Is(err, suite.ErrNoMatch) {
		fmt.Fprintf(out, "No tests match filter: %s\n", filter)
		return exitCode(1)
	}
	if err != nil {
		return err
	}
	model, _ := fs.GetString("model")
	s.ApplyModel(model)

	rt, err := newRuntime(cmd, cfg, logger)
	if err != nil {
		return err
	}
	driver, err := session.NewDriver(cfg.SessionConfig(rt, logger))
	if err != nil {
		return err
	}
	exec := runner.NewExecutor(driver, cfg.Timeout, logger)
	r := runner.New(runner.Config{
		Parallel:  cfg.Parallel,
		Threshold: cfg.Threshold,
		Logger:    logger,
	}, exec)

	logger.Debugw("starting run",
		"tests", len(s.Tests), "files", s.Files,
		"parallel", cfg.Parallel, "timeout", cfg.Timeout, "threshold", cfg.Threshold)

	color := colorEnabled(out)
	console := report.NewConsole(out, color)
	summary := r.Run(cmd.Context(), s, console)

	if verbose {
		fmt.Fprintln(out)
		report.PrintVerbose(out, summary, color)
	}
	console.PrintSummary(summary)

	if err := saveSummary(cmd, cfg, summary); err != nil {
		return err
	}
	if code := summary.ExitCode(); code != 0 {
		return exitCode(code)
	}
	return nil
}

// newRuntime returns the replay runtime when --replay is set and the agent
// CLI otherwise.
func newRuntime(cmd *cobra.Command, cfg *config.Config, logger log.Logger) (agent.Runtime, error) {
	replay, _ := cmd.Flags().GetString("replay")
	if replay == "" {
		return agent.NewCLI(cfg.CLIConfig(), logger), nil
	}
	rt, err := mock.Load(replay)
	if err != nil {
		return nil, fmt.Errorf("loading replay fixtures: %w", err)
	}
	logger.Debugw("replaying sessions", "fixtures", replay)
	return rt, nil
}

func saveSummary(cmd *cobra.Command, cfg *config.Config, summary *result.Summary) error {
	path, _ := cmd.Flags().GetString("output")
	if save, _ := cmd.Flags().GetBool("save"); save && path == "" {
		path = result.DefaultPath(cfg.OutputDir, summary.SuiteName, summary.StartTime)
	}
	if path == "" {
		return nil
	}
	if err := summary.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nResults saved to %s\n", path)
	return nil
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && report.ColorEnabled(f)
}
