package history

import (
	"context"
	"fmt"
	"strconv"

	"mvdan.cc/sh/v3/interp"
)

const defaultListLimit = 20

// NewHistoryCommandHandler returns exec middleware implementing the
// shell's `history` builtin:
//
//	history [n]       list the last n shell commands
//	history -c        clear shell history
//	history -w FILE   save shell history to FILE
func NewHistoryCommandHandler(historyManager *HistoryManager) func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			if len(args) == 0 || args[0] != "history" {
				return next(ctx, args)
			}

			hc := interp.HandlerCtx(ctx)

			if len(args) >= 2 {
				switch args[1] {
				case "-c":
					if err := historyManager.ResetHistory(ContextShell); err != nil {
						fmt.Fprintf(hc.Stderr, "history: %v\n", err)
						return interp.ExitStatus(1)
					}
					return nil
				case "-w":
					if len(args) < 3 {
						fmt.Fprintln(hc.Stderr, "history: -w requires a file name")
						return interp.ExitStatus(2)
					}
					if err := historyManager.SaveHistory(ContextShell, args[2]); err != nil {
						fmt.Fprintf(hc.Stderr, "history: %v\n", err)
						return interp.ExitStatus(1)
					}
					return nil
				}
			}

			limit := defaultListLimit
			if len(args) >= 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					fmt.Fprintf(hc.Stderr, "history: %s: numeric argument required\n", args[1])
					return interp.ExitStatus(2)
				}
				limit = n
			}

			entries, err := historyManager.GetRecentEntries(ContextShell, limit)
			if err != nil {
				fmt.Fprintf(hc.Stderr, "history: %v\n", err)
				return interp.ExitStatus(1)
			}
			for _, entry := range entries {
				fmt.Fprintf(hc.Stdout, "%5d  %s\n", entry.ID, entry.Command)
			}
			return nil
		}
	}
}
