package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atinylittleshell/eluash/internal/core"
	"github.com/atinylittleshell/eluash/internal/egc"
	"github.com/atinylittleshell/eluash/internal/history"
	"github.com/atinylittleshell/eluash/internal/pinmap"
	"github.com/atinylittleshell/eluash/internal/repl"
	"github.com/atinylittleshell/eluash/internal/repl/config"
	"github.com/atinylittleshell/eluash/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"
	"mvdan.cc/sh/v3/interp"
)

var command = flag.String("c", "", "run a shell command")
var chunk = flag.String("e", "", "run a Lua chunk")
var luaPrompt = flag.Bool("i", false, "start at the Lua prompt")
var boardFlag = flag.String("board", "", "pin table to load (overrides config)")

var helpFlag = flag.Bool("h", false, "display help information")
var versionFlag = flag.Bool("ver", false, "display build version")

const helpText = `eluash - a command shell with an embedded Lua interpreter

USAGE:
  eluash [options] [script.lua | script.sh] [args...]

MODES:
  eluash                  Start the interactive shell
  eluash -i               Start at the Lua prompt
  eluash script.lua a b   Run a Lua script with arguments
  eluash script.sh        Run a shell script
  eluash -c "command"     Run a shell command
  eluash -e "chunk"       Run a Lua chunk

Lua scripts can reach the host through the elua module:
  elua.egc_setup(mode, [limit])   elua.version()
  elua.save_history(file)         elua.shell(command)
  elua.print_pin_functions([pin, ...])

OPTIONS:
`

type cliOptions struct {
	command   string
	chunk     string
	luaPrompt bool
	args      []string
	stdin     io.Reader
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}

	if *helpFlag {
		fmt.Print(helpText)
		flag.PrintDefaults()
		return
	}

	loadResult, err := config.NewLoader(nil).LoadFromFile(core.ConfigFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "eluash: %v\n", err)
		os.Exit(1)
	}
	cfg := loadResult.Config
	if *boardFlag != "" {
		cfg.Board = *boardFlag
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // Flush any buffered log entries

	logger.Info("-------- new eluash session --------", zap.Any("args", os.Args))
	for _, cfgErr := range loadResult.Errors {
		fmt.Fprintf(os.Stderr, "eluash: config: %v\n", cfgErr)
	}

	historyManager, err := initializeHistoryManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eluash: history disabled: %v\n", err)
		logger.Warn("failed to initialize history manager", zap.Error(err))
	}

	gc, err := initializeGC(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eluash: %v\n", err)
	}

	pins, err := initializePins(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eluash: %v\n", err)
	}

	opts := repl.Options{
		Logger: logger,
		Config: cfg,
		GC:     gc,
		Pins:   pins,
	}
	if historyManager != nil {
		opts.History = historyManager
		defer historyManager.Close()
	}

	r, err := repl.NewREPL(opts)
	if err != nil {
		logger.Error("failed to initialize REPL", zap.Error(err))
		fmt.Fprintf(os.Stderr, "eluash: %v\n", err)
		os.Exit(1)
	}

	err = run(context.Background(), r, cliOptions{
		command:   *command,
		chunk:     *chunk,
		luaPrompt: *luaPrompt,
		args:      flag.Args(),
		stdin:     os.Stdin,
	})

	var exitStatus interp.ExitStatus
	if errors.As(err, &exitStatus) {
		os.Exit(int(exitStatus))
	}

	if err != nil {
		logger.Error("unhandled error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "eluash: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, r *repl.REPL, opts cliOptions) error {
	// eluash -c "ls"
	if opts.command != "" {
		code, err := r.Shell().Execute(ctx, opts.command)
		if err != nil {
			return err
		}
		if code != 0 {
			return interp.ExitStatus(code)
		}
		return nil
	}

	// eluash -e "print(elua.version())"
	if opts.chunk != "" {
		session := r.NewLuaSession()
		defer session.Close()
		return session.Eval(ctx, opts.chunk)
	}

	// eluash -i
	if opts.luaPrompt {
		return r.RunLua(ctx)
	}

	// eluash
	if len(opts.args) == 0 {
		if f, ok := opts.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			r.ShowWelcome()
			return r.Run(ctx)
		}
		return r.Shell().RunScript(ctx, opts.stdin, "eluash")
	}

	// eluash script.lua args... runs one script; everything after it is its arguments.
	if isLuaScript(opts.args[0]) {
		return r.RunLuaFile(ctx, opts.args[0], opts.args[1:])
	}

	// eluash a.sh b.sh
	for _, filePath := range opts.args {
		if err := r.Shell().RunScriptFile(ctx, filePath); err != nil {
			return err
		}
	}
	return nil
}

// isLuaScript checks if a file is a Lua script
func isLuaScript(filePath string) bool {
	return strings.HasSuffix(filePath, ".lua")
}

func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	logLevel, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if version.IsDev() {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{
		core.LogFile(),
	}

	// Logs only go to file so they never mix with console output.
	// Use `tail -f ~/.eluash/eluash.log` to monitor logs in real-time

	return loggerConfig.Build()
}

func initializeHistoryManager(cfg *config.Config) (*history.HistoryManager, error) {
	return history.NewHistoryManager(core.HistoryFile(), history.Options{
		Enabled: cfg.HistoryContexts(),
		MaxSave: cfg.History.MaxSave,
	})
}

// initializeGC applies the configured initial mode. The controller is
// returned even when the mode cannot be applied.
func initializeGC(cfg *config.Config, logger *zap.Logger) (*egc.Controller, error) {
	gc := egc.NewController(nil, logger)
	if err := gc.SetMode(cfg.GCMode(), cfg.GC.Limit); err != nil {
		return gc, fmt.Errorf("failed to apply gc settings: %w", err)
	}
	return gc, nil
}

func initializePins(cfg *config.Config) (*pinmap.Table, error) {
	if cfg.Board == "" {
		return nil, nil
	}
	return pinmap.LoadBoard(cfg.Board)
}
