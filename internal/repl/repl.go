// Package repl provides the interactive front ends of eluash: the
// command shell prompt and the Lua interpreter prompt it can enter.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atinylittleshell/eluash/internal/egc"
	"github.com/atinylittleshell/eluash/internal/history"
	"github.com/atinylittleshell/eluash/internal/pinmap"
	"github.com/atinylittleshell/eluash/internal/repl/config"
	"github.com/atinylittleshell/eluash/internal/shell"
	"github.com/atinylittleshell/eluash/internal/styles"
	"github.com/atinylittleshell/eluash/internal/version"
	"go.uber.org/zap"
)

// ErrExit is returned when the user requests to exit the REPL.
var ErrExit = errors.New("exit requested")

// luaContinuationPrompt is shown while a Lua chunk is incomplete.
const luaContinuationPrompt = ">> "

type Options struct {
	Logger  *zap.Logger
	Config  *config.Config
	History *history.HistoryManager // optional
	GC      *egc.Controller
	Pins    *pinmap.Table // optional

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Input overrides the line reader built from Stdin.
	Input LineReader
}

type REPL struct {
	config  *config.Config
	logger  *zap.Logger
	history *history.HistoryManager
	gc      *egc.Controller
	pins    *pinmap.Table
	shell   *shell.Shell
	input   LineReader
	stdout  io.Writer
	stderr  io.Writer
}

func NewREPL(opts Options) (*REPL, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.GC == nil {
		opts.GC = egc.NewController(nil, opts.Logger)
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
	if opts.Input == nil {
		opts.Input = NewLineReader(opts.Stdin, opts.Stdout)
	}

	r := &REPL{
		config:  opts.Config,
		logger:  opts.Logger,
		history: opts.History,
		gc:      opts.GC,
		pins:    opts.Pins,
		input:   opts.Input,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
	}

	sh, err := shell.New(shell.Options{
		Logger:  opts.Logger,
		History: opts.History,
		Stdin:   opts.Stdin,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		Lua:     r.runLuaCommand,
	})
	if err != nil {
		return nil, err
	}
	r.shell = sh

	return r, nil
}

// Shell returns the command shell the REPL dispatches to.
func (r *REPL) Shell() *shell.Shell {
	return r.shell
}

// NewLuaSession creates a Lua state wired to this REPL's services.
func (r *REPL) NewLuaSession() *LuaSession {
	return NewLuaSession(LuaOptions{
		Logger:  r.logger,
		GC:      r.gc,
		History: r.history,
		Shell:   r.shell,
		Pins:    r.pins,
		Stdout:  r.stdout,
		Stderr:  r.stderr,
	})
}

// Run reads shell command lines until EOF or exit.
func (r *REPL) Run(ctx context.Context) error {
	for {
		line, err := r.input.ReadLine(r.config.Prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if _, err := r.handleBuiltinCommand(line); errors.Is(err, ErrExit) {
			return nil
		}

		if _, err := r.shell.Execute(ctx, line); err != nil {
			r.logger.Debug("shell command failed", zap.Error(err))
		}
		if r.shell.Exited() || ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// RunLua enters the Lua prompt directly.
func (r *REPL) RunLua(ctx context.Context) error {
	return r.runLuaCommand(ctx, nil)
}

// RunLuaFile runs a Lua script in a fresh state with `arg` set.
func (r *REPL) RunLuaFile(ctx context.Context, path string, args []string) error {
	session := r.NewLuaSession()
	defer session.Close()
	return runLuaFile(ctx, session, path, args)
}

func runLuaFile(ctx context.Context, session *LuaSession, path string, args []string) error {
	if err := session.RunFile(ctx, path, args); err != nil {
		return errors.New(luaErrorMessage(err))
	}
	return nil
}

// runLuaCommand backs the shell's `lua` builtin: with no arguments it
// starts an interactive Lua prompt, otherwise it runs a script.
func (r *REPL) runLuaCommand(ctx context.Context, args []string) error {
	session := r.NewLuaSession()
	defer session.Close()

	if len(args) > 0 {
		return runLuaFile(ctx, session, args[0], args[1:])
	}

	fmt.Fprintln(r.stdout, styles.HINT(fmt.Sprintf("Lua 5.1 (eluash %s), type 'exit' or press Ctrl+D to return", version.String())))
	return session.Interact(ctx, r.input, r.config.LuaPrompt, luaContinuationPrompt)
}

// handleBuiltinCommand handles commands the REPL answers itself.
// Returns true if the command was handled, and ErrExit if the REPL should exit.
func (r *REPL) handleBuiltinCommand(command string) (bool, error) {
	switch strings.TrimSpace(command) {
	case "exit", "quit":
		return true, ErrExit
	default:
		return false, nil
	}
}

// ShowWelcome prints the startup banner.
func (r *REPL) ShowWelcome() {
	fmt.Fprintln(r.stdout, styles.BANNER("eluash "+version.String()))
	board := "none"
	if r.pins != nil {
		board = r.pins.Board
	}
	fmt.Fprintln(r.stdout, styles.HINT(fmt.Sprintf("board: %s, gc: %s. Type 'help' for commands, 'lua' for the Lua prompt.", board, r.gc.Describe())))
}
