package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts Options) *HistoryManager {
	t.Helper()
	hm, err := NewHistoryManager(filepath.Join(t.TempDir(), "history.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { hm.Close() })
	return hm
}

func TestNewHistoryManager_WritesSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	hm, err := NewHistoryManager(filepath.Join(dir, "history.db"), Options{})
	require.NoError(t, err)
	require.NoError(t, hm.Close())

	data, err := os.ReadFile(filepath.Join(dir, "history_schema_version"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	// Reopening an existing database skips nothing and keeps working.
	hm, err = NewHistoryManager(filepath.Join(dir, "history.db"), Options{})
	require.NoError(t, err)
	defer hm.Close()
	_, err = hm.StartCommand(ContextLua, "print(1)", dir)
	assert.NoError(t, err)
}

func TestHistoryManager_StartAndFinish(t *testing.T) {
	hm := newTestManager(t, Options{})

	entry, err := hm.StartCommand(ContextShell, "ls -la", "/tmp")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "shell", entry.Context)
	assert.False(t, entry.ExitCode.Valid)

	entry, err = hm.FinishCommand(entry, 3)
	require.NoError(t, err)
	assert.True(t, entry.ExitCode.Valid)
	assert.Equal(t, int32(3), entry.ExitCode.Int32)

	entries, err := hm.GetRecentEntries(ContextShell, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int32(3), entries[0].ExitCode.Int32)
}

func TestHistoryManager_ContextsAreSeparate(t *testing.T) {
	hm := newTestManager(t, Options{})

	for _, cmd := range []string{"a = 1", "print(a)"} {
		_, err := hm.StartCommand(ContextLua, cmd, "")
		require.NoError(t, err)
	}
	_, err := hm.StartCommand(ContextShell, "ver", "")
	require.NoError(t, err)

	lua, err := hm.GetRecentEntries(ContextLua, 0)
	require.NoError(t, err)
	require.Len(t, lua, 2)
	assert.Equal(t, "a = 1", lua[0].Command)
	assert.Equal(t, "print(a)", lua[1].Command)

	require.NoError(t, hm.ResetHistory(ContextLua))

	lua, err = hm.GetRecentEntries(ContextLua, 0)
	require.NoError(t, err)
	assert.Empty(t, lua)

	shell, err := hm.GetRecentEntries(ContextShell, 0)
	require.NoError(t, err)
	assert.Len(t, shell, 1)
}

func TestHistoryManager_GetRecentEntriesLimit(t *testing.T) {
	hm := newTestManager(t, Options{})
	for _, cmd := range []string{"one", "two", "three"} {
		_, err := hm.StartCommand(ContextShell, cmd, "")
		require.NoError(t, err)
	}

	entries, err := hm.GetRecentEntries(ContextShell, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Command)
	assert.Equal(t, "three", entries[1].Command)
}

func TestHistoryManager_DisabledContext(t *testing.T) {
	hm := newTestManager(t, Options{Enabled: []Context{ContextShell}})

	assert.True(t, hm.IsEnabled(ContextShell))
	assert.False(t, hm.IsEnabled(ContextLua))

	entry, err := hm.StartCommand(ContextLua, "x = 1", "")
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = hm.FinishCommand(entry, 0)
	assert.NoError(t, err)
	assert.Nil(t, entry)

	err = hm.SaveHistory(ContextLua, filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrHistoryNotEnabled)
}

func TestHistoryManager_SaveHistory(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		hm := newTestManager(t, Options{})
		out := filepath.Join(t.TempDir(), "hist.txt")

		err := hm.SaveHistory(ContextLua, out)
		assert.ErrorIs(t, err, ErrHistoryEmpty)
		assert.NoFileExists(t, out)
	})

	t.Run("writes commands oldest first", func(t *testing.T) {
		hm := newTestManager(t, Options{})
		for _, cmd := range []string{"x = 1", "print(x)"} {
			_, err := hm.StartCommand(ContextLua, cmd, "")
			require.NoError(t, err)
		}
		out := filepath.Join(t.TempDir(), "hist.txt")

		require.NoError(t, hm.SaveHistory(ContextLua, out))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "x = 1\nprint(x)\n", string(data))
	})

	t.Run("respects max save", func(t *testing.T) {
		hm := newTestManager(t, Options{MaxSave: 1})
		for _, cmd := range []string{"first", "last"} {
			_, err := hm.StartCommand(ContextLua, cmd, "")
			require.NoError(t, err)
		}
		out := filepath.Join(t.TempDir(), "hist.txt")

		require.NoError(t, hm.SaveHistory(ContextLua, out))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "last\n", string(data))
	})

	t.Run("unwritable destination", func(t *testing.T) {
		hm := newTestManager(t, Options{})
		_, err := hm.StartCommand(ContextLua, "x = 1", "")
		require.NoError(t, err)

		err = hm.SaveHistory(ContextLua, filepath.Join(t.TempDir(), "missing", "hist.txt"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrHistoryEmpty)
		assert.NotErrorIs(t, err, ErrHistoryNotEnabled)
	})
}

func TestHistoryManager_SearchAndDelete(t *testing.T) {
	hm := newTestManager(t, Options{})
	for _, cmd := range []string{"cat a.txt", "ls", "cat b.txt"} {
		_, err := hm.StartCommand(ContextShell, cmd, "")
		require.NoError(t, err)
	}

	found, err := hm.SearchHistory(ContextShell, "cat", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "cat b.txt", found[0].Command)

	require.NoError(t, hm.DeleteEntry(found[0].ID))
	assert.Error(t, hm.DeleteEntry(found[0].ID))

	found, err = hm.SearchHistory(ContextShell, "cat", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
