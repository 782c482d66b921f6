package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jdgilhuly/go_skill_evals/pkg/log"
)

const (
	defaultCommand = "claude"
	maxLineBytes   = 8 * 1024 * 1024
	// waitDelay bounds how long a finished or cancelled session waits for
	// descendants that still hold its output open.
	waitDelay = 2 * time.Second
)

// CLIConfig configures the command-line agent runtime.
type CLIConfig struct {
	// Command is the runtime binary. Defaults to "claude".
	Command string
	// Args are inserted before the generated flags.
	Args []string
	// Env is added to the inherited process environment.
	Env map[string]string
}

// CLI runs each session as a child process speaking the stream-json output
// format on stdout. The prompt is written to the child's stdin.
type CLI struct {
	cfg CLIConfig
	log log.Logger
}

// NewCLI creates a CLI runtime.
func NewCLI(cfg CLIConfig, logger log.Logger) *CLI {
	if cfg.Command == "" {
		cfg.Command = defaultCommand
	}
	return &CLI{cfg: cfg, log: log.OrNop(logger)}
}

// BuildArgs returns the command-line arguments for a session with opts.
func (c *CLI) BuildArgs(opts Options) []string {
	args := append([]string{}, c.cfg.Args...)
	args = append(args, "--print", "--output-format", "stream-json", "--verbose")
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.SystemPrompt.Append != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt.Append)
	}
	if len(opts.SettingSources) > 0 {
		args = append(args, "--setting-sources", strings.Join(opts.SettingSources, ","))
	}
	for _, dir := range opts.PluginDirs {
		args = append(args, "--plugin-dir", dir)
	}
	return args
}

// Query starts the runtime process in its own process group. The group is
// killed when ctx is cancelled or the stream is closed, so background
// processes started by the agent's tools do not outlive the session.
func (c *CLI) Query(ctx context.Context, prompt string, opts Options) (Stream, error) {
	args := c.BuildArgs(opts)
	c.log.Debugw("starting agent runtime", "command", c.cfg.Command, "args", args, "cwd", opts.Cwd)

	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	cmd.Dir = opts.Cwd
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(os.Environ(), envList(c.cfg.Env)...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	// Output goes through pipe writers so that Wait can reap the process
	// while the stream is still being read, and WaitDelay can cut off
	// descendants that keep the runtime's stdout or stderr open.
	pr, pw := io.Pipe()
	stderr := &lineWriter{sink: opts.Stderr}
	cmd.Stdout = pw
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("starting %s: %w", c.cfg.Command, err)
	}

	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	s := &cliStream{
		ctx:  ctx,
		cmd:  cmd,
		out:  pr,
		sc:   sc,
		done: make(chan struct{}),
		log:  c.log,
	}
	go s.reap(pw, stderr)
	return s, nil
}

type cliStream struct {
	ctx  context.Context
	cmd  *exec.Cmd
	out  *io.PipeReader
	sc   *bufio.Scanner
	done chan struct{}
	log  log.Logger

	waitErr error
}

func (s *cliStream) Next() (Message, error) {
	for s.sc.Scan() {
		line := bytes.TrimSpace(s.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		return ParseMessage(line)
	}
	if err := s.sc.Err(); err != nil {
		return nil, fmt.Errorf("reading runtime output: %w", err)
	}
	<-s.done
	if s.waitErr != nil {
		return nil, s.waitErr
	}
	return nil, io.EOF
}

// Close kills the process group, stops reading its output and waits for
// the process to be reaped.
func (s *cliStream) Close() error {
	s.out.Close()
	if err := killProcessGroup(s.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Debugw("killing runtime process group", "error", err)
	}
	<-s.done

	err := s.waitErr
	var exitErr *ExitError
	if errors.As(err, &exitErr) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// reap waits for the process and its output copiers, then ends the stdout
// stream. waitErr is written before done is closed.
func (s *cliStream) reap(pw *io.PipeWriter, stderr *lineWriter) {
	defer close(s.done)
	err := s.cmd.Wait()
	stderr.flush()
	pw.Close()

	switch {
	case err == nil:
	case s.ctx.Err() != nil:
		s.waitErr = s.ctx.Err()
	case errors.Is(err, exec.ErrWaitDelay):
		s.log.Debugw("runtime exited with descendants holding its output open")
	default:
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			s.waitErr = &ExitError{Code: ee.ExitCode(), Err: err}
		} else {
			s.waitErr = fmt.Errorf("waiting for runtime: %w", err)
		}
	}
}

// lineWriter splits the runtime's stderr into lines for sink. Write is
// called from a single copying goroutine.
type lineWriter struct {
	sink func(string)
	buf  []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineBytes {
		w.flush()
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	if w.sink != nil {
		w.sink(string(bytes.TrimRight(line, "\r")))
	}
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
