package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atinylittleshell/eluash/internal/egc"
	"github.com/atinylittleshell/eluash/internal/elua"
	"github.com/atinylittleshell/eluash/internal/history"
	"github.com/atinylittleshell/eluash/internal/pinmap"
	"github.com/atinylittleshell/eluash/internal/styles"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// LuaOptions configure a LuaSession.
type LuaOptions struct {
	Logger  *zap.Logger
	GC      *egc.Controller
	History *history.HistoryManager // optional
	Shell   elua.Shell              // optional
	Pins    *pinmap.Table           // optional
	Stdout  io.Writer
	Stderr  io.Writer
}

// LuaSession is one Lua state with the elua module loaded.
type LuaSession struct {
	L       *lua.LState
	gc      *egc.Controller
	history *history.HistoryManager
	logger  *zap.Logger
	stdout  io.Writer
	stderr  io.Writer
}

func NewLuaSession(opts LuaOptions) *LuaSession {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.GC == nil {
		opts.GC = egc.NewController(nil, opts.Logger)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	L := lua.NewState()

	svc := elua.Services{
		GC:     opts.GC,
		Stdout: opts.Stdout,
		Logger: opts.Logger,
		Shell:  opts.Shell,
	}
	// Typed nils would register functions with nothing behind them.
	if opts.History != nil {
		svc.History = opts.History
	}
	if opts.Pins != nil {
		svc.Pins = opts.Pins
	}
	elua.Open(L, svc)

	s := &LuaSession{
		L:       L,
		gc:      opts.GC,
		history: opts.History,
		logger:  opts.Logger,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
	}
	L.SetGlobal("print", L.NewFunction(s.print))
	return s
}

func (s *LuaSession) Close() {
	s.L.Close()
}

func (s *LuaSession) print(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, top)
	for i := 1; i <= top; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	fmt.Fprintln(s.stdout, strings.Join(parts, "\t"))
	return 0
}

// errIncomplete marks a chunk that needs more input.
var errIncomplete = errors.New("incomplete chunk")

// compile turns a line into a function. A leading '=' is shorthand for
// `return`.
func (s *LuaSession) compile(chunk string) (*lua.LFunction, error) {
	if strings.HasPrefix(chunk, "=") {
		chunk = "return " + chunk[1:]
	}
	fn, err := s.L.LoadString(chunk)
	if err != nil {
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) && apiErr.Type == lua.ApiErrorSyntax && strings.Contains(err.Error(), "EOF") {
			return nil, errIncomplete
		}
		return nil, err
	}
	return fn, nil
}

// Eval runs one chunk and prints any values it returns.
func (s *LuaSession) Eval(ctx context.Context, chunk string) error {
	fn, err := s.compile(chunk)
	if err != nil {
		return err
	}
	return s.call(ctx, fn, nil, true)
}

func (s *LuaSession) call(ctx context.Context, fn *lua.LFunction, args []lua.LValue, printResults bool) (err error) {
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	s.gc.BeforeChunk()

	base := s.L.GetTop()
	defer func() {
		// A full registry panics out of PCall instead of returning an error.
		if r := recover(); r != nil {
			err = fmt.Errorf("registry overflow: %v", r)
			s.resetStack(base)
		}
		if err != nil && s.gc.HandleAllocFailure(err) {
			s.logger.Info("emergency collection after lua memory error", zap.Error(err))
		}
	}()

	s.L.Push(fn)
	for _, a := range args {
		s.L.Push(a)
	}
	if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
		s.L.SetTop(base)
		return err
	}

	if printResults && s.L.GetTop() > base {
		results := make([]string, 0, s.L.GetTop()-base)
		for i := base + 1; i <= s.L.GetTop(); i++ {
			results = append(results, s.L.ToStringMeta(s.L.Get(i)).String())
		}
		fmt.Fprintln(s.stdout, strings.Join(results, "\t"))
	}
	s.L.SetTop(base)
	return nil
}

// resetStack drops whatever an aborted call left on the stack.
func (s *LuaSession) resetStack(base int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("failed to reset lua stack", zap.Any("panic", r))
		}
	}()
	s.L.SetTop(base)
}

// RunFile runs a Lua script with the global `arg` table set the way the
// standalone interpreter does.
func (s *LuaSession) RunFile(ctx context.Context, path string, args []string) error {
	argTable := s.L.NewTable()
	argTable.RawSetInt(0, lua.LString(path))
	luaArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		argTable.RawSetInt(i+1, lua.LString(a))
		luaArgs[i] = lua.LString(a)
	}
	s.L.SetGlobal("arg", argTable)

	fn, err := s.L.LoadFile(path)
	if err != nil {
		return err
	}
	return s.call(ctx, fn, luaArgs, false)
}

// Interact reads chunks until EOF or `exit`, recording each complete
// chunk in the Lua history.
func (s *LuaSession) Interact(ctx context.Context, in LineReader, prompt, continuation string) error {
	var pending []string
	for {
		p := prompt
		if len(pending) > 0 {
			p = continuation
		}
		line, err := in.ReadLine(p)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if len(pending) == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if trimmed == "exit" {
				return nil
			}
		}

		pending = append(pending, line)
		chunk := strings.Join(pending, "\n")

		fn, err := s.compile(chunk)
		if errors.Is(err, errIncomplete) {
			continue
		}
		pending = nil

		entry := s.startHistory(chunk)
		if err == nil {
			err = s.call(ctx, fn, nil, true)
		}
		exitCode := 0
		if err != nil {
			exitCode = 1
			fmt.Fprintln(s.stderr, styles.ERROR(luaErrorMessage(err)))
		}
		s.finishHistory(entry, exitCode)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *LuaSession) startHistory(chunk string) *history.HistoryEntry {
	if s.history == nil {
		return nil
	}
	entry, err := s.history.StartCommand(history.ContextLua, chunk, "")
	if err != nil {
		s.logger.Warn("failed to record lua history", zap.Error(err))
	}
	return entry
}

func (s *LuaSession) finishHistory(entry *history.HistoryEntry, exitCode int) {
	if s.history == nil {
		return
	}
	if _, err := s.history.FinishCommand(entry, exitCode); err != nil {
		s.logger.Warn("failed to finish lua history entry", zap.Error(err))
	}
}

func luaErrorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
