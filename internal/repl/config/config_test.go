package config

import (
	"testing"

	"github.com/atinylittleshell/eluash/internal/egc"
	"github.com/atinylittleshell/eluash/internal/history"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "eLua# ", cfg.Prompt)
	assert.Equal(t, "> ", cfg.LuaPrompt)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "lm3s8962", cfg.Board)
	assert.Equal(t, egc.NotActive, cfg.GCMode())
	assert.Equal(t, []history.Context{history.ContextShell, history.ContextLua}, cfg.HistoryContexts())
}

func TestConfig_GCMode(t *testing.T) {
	cfg := DefaultConfig()

	cfg.GC.Mode = "ON_MEM_LIMIT|ALWAYS"
	assert.Equal(t, egc.OnMemLimit|egc.Always, cfg.GCMode())

	cfg.GC.Mode = "bogus"
	assert.Equal(t, egc.NotActive, cfg.GCMode())
}

func TestConfig_HistoryContextsEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Contexts = []string{}

	contexts := cfg.HistoryContexts()
	assert.NotNil(t, contexts)
	assert.Empty(t, contexts)
}
