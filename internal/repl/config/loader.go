package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atinylittleshell/eluash/internal/egc"
	"github.com/atinylittleshell/eluash/internal/history"
	"github.com/atinylittleshell/eluash/internal/pinmap"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of configuration files.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		logger: logger,
	}
}

// LoadResult contains the result of loading a configuration file.
// Errors holds problems with individual settings; those settings keep
// their default values.
type LoadResult struct {
	Config *Config
	Errors []error
}

// LoadFromFile loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration with no error.
func (l *Loader) LoadFromFile(path string) (*LoadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig(), Errors: []error{}}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.LoadFromString(string(content))
}

// LoadFromString loads configuration from YAML source.
func (l *Loader) LoadFromString(source string) (*LoadResult, error) {
	result := &LoadResult{
		Config: DefaultConfig(),
		Errors: []error{},
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(source)))
	dec.KnownFields(true)
	if err := dec.Decode(result.Config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	l.validate(result)
	return result, nil
}

func (l *Loader) validate(result *LoadResult) {
	cfg := result.Config
	defaults := DefaultConfig()

	if _, err := zap.ParseAtomicLevel(cfg.LogLevel); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("log_level: %w", err))
		cfg.LogLevel = defaults.LogLevel
	}

	if _, err := egc.ParseMode(cfg.GC.Mode); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("gc.mode: %w", err))
		cfg.GC.Mode = defaults.GC.Mode
	}
	if cfg.GC.Limit < 0 {
		result.Errors = append(result.Errors, fmt.Errorf("gc.limit: must not be negative"))
		cfg.GC.Limit = 0
	}

	known := []string{string(history.ContextShell), string(history.ContextLua)}
	unknown, _ := lo.Difference(cfg.History.Contexts, known)
	if len(unknown) > 0 {
		result.Errors = append(result.Errors, fmt.Errorf("history.contexts: unknown contexts %v", unknown))
		cfg.History.Contexts = lo.Intersect(cfg.History.Contexts, known)
	}
	cfg.History.Contexts = lo.Uniq(cfg.History.Contexts)

	if cfg.Board != "" && !lo.Contains(pinmap.Boards(), cfg.Board) {
		result.Errors = append(result.Errors, fmt.Errorf("board: unknown board %q", cfg.Board))
		cfg.Board = defaults.Board
	}

	for _, err := range result.Errors {
		l.logger.Warn("invalid configuration value", zap.Error(err))
	}
}
