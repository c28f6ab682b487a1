package history

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

func runWithHandler(t *testing.T, hm *HistoryManager, command string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.StdIO(nil, &stdout, &stderr),
		interp.ExecHandlers(NewHistoryCommandHandler(hm)),
	)
	require.NoError(t, err)

	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "test")
	require.NoError(t, err)

	err = runner.Run(context.Background(), prog)
	return stdout.String(), stderr.String(), err
}

func TestHistoryCommandHandler(t *testing.T) {
	hm := newTestManager(t, Options{})
	for _, cmd := range []string{"one", "two", "three"} {
		_, err := hm.StartCommand(ContextShell, cmd, "")
		require.NoError(t, err)
	}

	t.Run("lists entries", func(t *testing.T) {
		out, _, err := runWithHandler(t, hm, "history")
		require.NoError(t, err)
		assert.Equal(t, "    1  one\n    2  two\n    3  three\n", out)
	})

	t.Run("limits entries", func(t *testing.T) {
		out, _, err := runWithHandler(t, hm, "history 1")
		require.NoError(t, err)
		assert.Equal(t, "    3  three\n", out)
	})

	t.Run("rejects bad count", func(t *testing.T) {
		_, stderr, err := runWithHandler(t, hm, "history abc")
		var status interp.ExitStatus
		require.ErrorAs(t, err, &status)
		assert.Equal(t, 2, int(status))
		assert.Contains(t, stderr, "numeric argument required")
	})

	t.Run("writes file", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "saved")
		_, _, err := runWithHandler(t, hm, "history -w "+out)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\nthree\n", string(data))
	})

	t.Run("clears", func(t *testing.T) {
		_, _, err := runWithHandler(t, hm, "history -c")
		require.NoError(t, err)

		entries, err := hm.GetRecentEntries(ContextShell, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestHistoryCommandHandler_PassesThrough(t *testing.T) {
	hm := newTestManager(t, Options{})
	out, _, err := runWithHandler(t, hm, "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}
