// Package config provides configuration management for the eluash REPL.
// It handles loading and parsing of the YAML configuration file and
// mapping its values onto the Config struct.
package config

import (
	"github.com/atinylittleshell/eluash/internal/egc"
	"github.com/atinylittleshell/eluash/internal/history"
)

// Config holds all REPL configuration.
type Config struct {
	// Prompt is shown by the shell REPL.
	Prompt string `yaml:"prompt"`

	// LuaPrompt is shown by the Lua REPL.
	LuaPrompt string `yaml:"lua_prompt"`

	// LogLevel controls logging verbosity.
	LogLevel string `yaml:"log_level"`

	History HistoryConfig `yaml:"history"`
	GC      GCConfig      `yaml:"gc"`

	// Board names the built-in pin table to load. Empty disables
	// elua.print_pin_functions.
	Board string `yaml:"board"`
}

type HistoryConfig struct {
	// Contexts lists the line editors that keep history: "shell", "lua".
	Contexts []string `yaml:"contexts"`
	// MaxSave limits how many entries save_history writes; 0 writes all.
	MaxSave int `yaml:"max_save"`
}

type GCConfig struct {
	// Mode uses egc.ParseMode syntax, e.g. "ON_MEM_LIMIT|ON_ALLOC_FAILURE".
	Mode string `yaml:"mode"`
	// Limit is the memory limit in bytes for ON_MEM_LIMIT.
	Limit int64 `yaml:"limit"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Prompt:    "eLua# ",
		LuaPrompt: "> ",
		LogLevel:  "info",
		History: HistoryConfig{
			Contexts: []string{string(history.ContextShell), string(history.ContextLua)},
		},
		GC: GCConfig{
			Mode: egc.NotActive.String(),
		},
		Board: "lm3s8962",
	}
}

// HistoryContexts returns the configured history contexts.
func (c *Config) HistoryContexts() []history.Context {
	contexts := make([]history.Context, 0, len(c.History.Contexts))
	for _, name := range c.History.Contexts {
		contexts = append(contexts, history.Context(name))
	}
	return contexts
}

// GCMode returns the parsed initial GC mode. Invalid modes have already
// been reported by the loader and fall back to NotActive.
func (c *Config) GCMode() egc.Mode {
	mode, err := egc.ParseMode(c.GC.Mode)
	if err != nil {
		return egc.NotActive
	}
	return mode
}
