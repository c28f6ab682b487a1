// Package elua exposes host services to Lua scripts as the `elua`
// module: GC tuning, version reporting, history persistence, shell
// command dispatch and pin function listing.
//
// Every function validates its arguments and then makes a single call
// into the service that implements it.
package elua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/atinylittleshell/eluash/internal/egc"
	"github.com/atinylittleshell/eluash/internal/history"
	"github.com/atinylittleshell/eluash/internal/pinmap"
	"github.com/atinylittleshell/eluash/internal/version"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ModuleName is the global and require name of the module.
const ModuleName = "elua"

// GC sets the emergency collection mode.
type GC interface {
	SetMode(mode egc.Mode, limit int64) error
}

// HistorySaver writes the history of a line editing context to a file.
type HistorySaver interface {
	SaveHistory(ctx history.Context, filename string) error
}

// Shell runs one command line without recording it in history.
type Shell interface {
	ExecuteNonInteractive(ctx context.Context, line string) (int, error)
}

// PinTable is the board's pin function table.
type PinTable interface {
	ShowPinFunctions(w io.Writer, pin int)
}

// Services are the collaborators the module forwards to. GC is
// required. History, Shell and Pins are optional: without History,
// save_history raises an error; without Shell or Pins the shell and
// print_pin_functions functions are not registered.
type Services struct {
	GC      GC
	History HistorySaver
	Shell   Shell
	Pins    PinTable

	// Version defaults to version.String.
	Version func() string
	// Stdout receives console output; defaults to os.Stdout.
	Stdout io.Writer
	Logger *zap.Logger
}

type module struct {
	svc Services
}

// Open registers the module in L as a global table and as a preloaded
// module for require.
func Open(L *lua.LState, svc Services) *lua.LTable {
	if svc.Version == nil {
		svc.Version = version.String
	}
	if svc.Stdout == nil {
		svc.Stdout = os.Stdout
	}
	if svc.Logger == nil {
		svc.Logger = zap.NewNop()
	}
	if svc.GC == nil {
		svc.GC = egc.NewController(nil, svc.Logger)
	}

	m := &module{svc: svc}

	funcs := map[string]lua.LGFunction{
		"egc_setup":    m.egcSetup,
		"version":      m.version,
		"save_history": m.saveHistory,
	}
	if svc.Shell != nil {
		funcs["shell"] = m.shell
	}
	if svc.Pins != nil {
		funcs["print_pin_functions"] = m.printPinFunctions
	}

	tbl := L.NewTable()
	L.SetFuncs(tbl, funcs)
	tbl.RawSetString("EGC_NOT_ACTIVE", lua.LNumber(egc.NotActive))
	tbl.RawSetString("EGC_ON_ALLOC_FAILURE", lua.LNumber(egc.OnAllocFailure))
	tbl.RawSetString("EGC_ON_MEM_LIMIT", lua.LNumber(egc.OnMemLimit))
	tbl.RawSetString("EGC_ALWAYS", lua.LNumber(egc.Always))

	L.SetGlobal(ModuleName, tbl)
	L.PreloadModule(ModuleName, func(L *lua.LState) int {
		L.Push(tbl)
		return 1
	})

	return tbl
}

// elua.egc_setup(mode, [memlimit])
func (m *module) egcSetup(L *lua.LState) int {
	mode := checkInteger(L, 1)
	var limit int64
	if L.GetTop() >= 2 {
		limit = checkInteger(L, 2)
	}

	if err := m.svc.GC.SetMode(egc.Mode(mode), limit); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// elua.version()
func (m *module) version(L *lua.LState) int {
	L.Push(lua.LString(m.svc.Version()))
	return 1
}

// elua.save_history(filename)
func (m *module) saveHistory(L *lua.LState) int {
	if m.svc.History == nil {
		L.RaiseError("linenoise support not enabled.")
		return 0
	}
	fname := L.CheckString(1)

	err := m.svc.History.SaveHistory(history.ContextLua, fname)
	switch {
	case err == nil:
		fmt.Fprintf(m.svc.Stdout, "History saved to %s.\n", fname)
	case errors.Is(err, history.ErrHistoryNotEnabled):
		fmt.Fprintf(m.svc.Stdout, "linenoise not enabled for Lua.\n")
	case errors.Is(err, history.ErrHistoryEmpty):
		fmt.Fprintf(m.svc.Stdout, "History empty, nothing to save.\n")
	default:
		m.svc.Logger.Warn("failed to save lua history", zap.String("file", fname), zap.Error(err))
		fmt.Fprintf(m.svc.Stdout, "Unable to save history to %s.\n", fname)
	}
	return 0
}

// elua.shell(command)
func (m *module) shell(L *lua.LState) int {
	cmd := strings.Clone(L.CheckString(1))

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := m.svc.Shell.ExecuteNonInteractive(ctx, cmd); err != nil {
		m.svc.Logger.Debug("shell command failed", zap.String("command", cmd), zap.Error(err))
	}
	return 0
}

// elua.print_pin_functions([pin1], [pin2], ..., [pinn])
func (m *module) printPinFunctions(L *lua.LState) int {
	top := L.GetTop()
	if top == 0 {
		m.svc.Pins.ShowPinFunctions(m.svc.Stdout, pinmap.IgnorePin)
		return 0
	}
	for i := 1; i <= top; i++ {
		m.svc.Pins.ShowPinFunctions(m.svc.Stdout, int(checkInteger(L, i)))
	}
	return 0
}

// checkInteger reads argument n as an integer. Numbers are truncated and
// numeric strings are converted; anything else is an argument error.
func checkInteger(L *lua.LState, n int) int64 {
	switch v := L.Get(n).(type) {
	case lua.LNumber:
		return int64(v)
	case lua.LString:
		if num, ok := parseNumber(string(v)); ok {
			return int64(num)
		}
	}
	L.TypeError(n, lua.LTNumber)
	return 0
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err := strconv.ParseUint(hex, 16, 64)
		return float64(v), err == nil
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}
