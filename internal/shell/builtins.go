package shell

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atinylittleshell/eluash/internal/version"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"mvdan.cc/sh/v3/interp"
)

type builtinCommand struct {
	name  string
	usage string
	help  string
}

var builtinCommands = []builtinCommand{
	{"help", "help [command]", "shows help for the built-in commands"},
	{"lua", "lua [script [args...]]", "starts the Lua interpreter or runs a Lua script"},
	{"ver", "ver", "shows the eluash version"},
}

var historyCommand = builtinCommand{
	"history", "history [n | -c | -w file]", "lists, clears or saves the shell history",
}

var usageStyle = lipgloss.NewStyle().Bold(true).Width(28)

func newBuiltinHandler(lua LuaEntry, withHistory bool) ExecMiddleware {
	commands := builtinCommands
	if withHistory {
		commands = append(append([]builtinCommand{}, builtinCommands...), historyCommand)
	}

	return func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return next(ctx, args)
			}
			hc := interp.HandlerCtx(ctx)

			switch args[0] {
			case "help":
				return runHelp(hc.Stdout, hc.Stderr, commands, args[1:])
			case "ver":
				fmt.Fprintf(hc.Stdout, "eluash version %s\n", version.String())
				return nil
			case "lua":
				if lua == nil {
					fmt.Fprintln(hc.Stderr, "lua: Lua interpreter not available")
					return interp.ExitStatus(1)
				}
				if err := lua(ctx, args[1:]); err != nil {
					fmt.Fprintf(hc.Stderr, "lua: %v\n", err)
					return interp.ExitStatus(1)
				}
				return nil
			default:
				return next(ctx, args)
			}
		}
	}
}

func runHelp(stdout, stderr io.Writer, commands []builtinCommand, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(stdout, "Shell built-in commands:")
		for _, c := range commands {
			fmt.Fprintf(stdout, "  %s %s\n", usageStyle.Render(c.usage), c.help)
		}
		fmt.Fprintln(stdout, "Any other command line is run as a POSIX shell command.")
		return nil
	}

	for _, c := range commands {
		if c.name == args[0] {
			fmt.Fprintf(stdout, "%s\n  %s\n", c.usage, c.help)
			return nil
		}
	}

	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.name
	}
	msg := fmt.Sprintf("help: no help for '%s'", args[0])
	if matches := fuzzy.Find(args[0], names); len(matches) > 0 {
		suggestions := make([]string, len(matches))
		for i, m := range matches {
			suggestions[i] = m.Str
		}
		msg += fmt.Sprintf(". Did you mean: %s?", strings.Join(suggestions, ", "))
	}
	fmt.Fprintln(stderr, msg)
	return interp.ExitStatus(1)
}
