// Package shell is the command shell scripts and the interactive
// front end hand command lines to. Lines are interpreted by mvdan/sh
// with a few built-in commands layered on as exec middleware.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/atinylittleshell/eluash/internal/history"
	"github.com/atinylittleshell/eluash/internal/version"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ExecMiddleware wraps an ExecHandlerFunc, e.g. to intercept commands.
type ExecMiddleware = func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc

// LuaEntry runs the Lua interpreter for the `lua` builtin. args holds
// the words after `lua`.
type LuaEntry func(ctx context.Context, args []string) error

type Options struct {
	Logger  *zap.Logger
	History *history.HistoryManager // optional

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is appended to the process environment.
	Env []string

	// Lua backs the `lua` builtin. When nil the builtin reports that
	// Lua is unavailable.
	Lua LuaEntry

	// Middleware runs before the builtins.
	Middleware []ExecMiddleware
}

type Shell struct {
	runner  *interp.Runner
	history *history.HistoryManager
	logger  *zap.Logger
	stderr  io.Writer

	// running is set while the main runner executes; nested calls
	// (a Lua script calling back into the shell) use a subshell.
	running atomic.Bool
}

func New(opts Options) (*Shell, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	s := &Shell{
		history: opts.History,
		logger:  opts.Logger,
		stderr:  opts.Stderr,
	}

	shellPath, err := os.Executable()
	if err != nil {
		shellPath = "eluash"
	}
	env := expand.ListEnviron(append(
		append(os.Environ(),
			fmt.Sprintf("SHELL=%s", shellPath),
			fmt.Sprintf("ELUASH_VERSION=%s", version.String()),
		),
		opts.Env...,
	)...)

	middleware := append([]ExecMiddleware{}, opts.Middleware...)
	if opts.History != nil {
		middleware = append(middleware, history.NewHistoryCommandHandler(opts.History))
	}
	middleware = append(middleware, newBuiltinHandler(opts.Lua, opts.History != nil))

	runner, err := interp.New(
		interp.Interactive(true),
		interp.Env(env),
		interp.StdIO(opts.Stdin, opts.Stdout, opts.Stderr),
		interp.ExecHandlers(middleware...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create shell runner: %w", err)
	}
	s.runner = runner

	return s, nil
}

// Execute runs one command line and returns its exit status. The line is
// recorded in shell history. Parse and execution errors are reported on
// the shell's stderr; the returned error is only set for failures other
// than a non-zero exit status.
func (s *Shell) Execute(ctx context.Context, line string) (int, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil
	}

	var entry *history.HistoryEntry
	if s.history != nil {
		var err error
		entry, err = s.history.StartCommand(history.ContextShell, line, s.runner.Dir)
		if err != nil {
			s.logger.Warn("failed to record shell history", zap.Error(err))
		}
	}

	exitCode, err := s.execute(ctx, line)

	if s.history != nil {
		if _, herr := s.history.FinishCommand(entry, exitCode); herr != nil {
			s.logger.Warn("failed to finish shell history entry", zap.Error(herr))
		}
	}

	return exitCode, err
}

// ExecuteNonInteractive runs one command line like Execute without
// adding it to shell history. Scripts calling into the shell use it.
func (s *Shell) ExecuteNonInteractive(ctx context.Context, line string) (int, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil
	}
	return s.execute(ctx, line)
}

func (s *Shell) execute(ctx context.Context, line string) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(line), "eluash")
	if err != nil {
		fmt.Fprintf(s.stderr, "eluash: %v\n", err)
		return 2, nil
	}

	runner := s.runner
	if s.running.CompareAndSwap(false, true) {
		defer s.running.Store(false)
	} else {
		runner = s.runner.Subshell()
	}

	s.logger.Debug("executing shell command", zap.String("command", line))
	err = runner.Run(ctx, prog)
	if err == nil {
		return 0, nil
	}

	var exitStatus interp.ExitStatus
	if errors.As(err, &exitStatus) {
		return int(exitStatus), nil
	}

	fmt.Fprintf(s.stderr, "eluash: %v\n", err)
	return 1, err
}

// Exited reports whether the `exit` builtin has run.
func (s *Shell) Exited() bool {
	return s.runner.Exited()
}

// Dir returns the shell's working directory.
func (s *Shell) Dir() string {
	return s.runner.Dir
}

// RunScript parses and runs a script from an io.Reader in the main runner.
func (s *Shell) RunScript(ctx context.Context, reader io.Reader, name string) error {
	prog, err := syntax.NewParser().Parse(reader, name)
	if err != nil {
		return err
	}
	s.running.Store(true)
	defer s.running.Store(false)
	return s.runner.Run(ctx, prog)
}

// RunScriptFile parses and runs a script file in the main runner.
func (s *Shell) RunScriptFile(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.RunScript(ctx, f, filePath)
}

// RunInSubShell runs command in a subshell of the main runner and
// captures its output. A non-zero exit code is not an error.
func (s *Shell) RunInSubShell(ctx context.Context, command string) (string, string, int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "eluash")
	if err != nil {
		return "", "", 2, fmt.Errorf("failed to parse command: %w", err)
	}

	sub := s.runner.Subshell()
	outBuf := &syncBuffer{}
	errBuf := &syncBuffer{}
	interp.StdIO(nil, outBuf, errBuf)(sub) //nolint:errcheck

	err = sub.Run(ctx, prog)
	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return outBuf.String(), errBuf.String(), int(exitStatus), nil
		}
		return outBuf.String(), errBuf.String(), 1, err
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
