package history

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Context identifies the line editor a history entry was typed into.
type Context string

const (
	ContextShell Context = "shell"
	ContextLua   Context = "lua"
)

var (
	// ErrHistoryNotEnabled is returned when history is disabled for a context.
	ErrHistoryNotEnabled = errors.New("history not enabled")
	// ErrHistoryEmpty is returned when there is nothing to save.
	ErrHistoryEmpty = errors.New("history empty")
)

type HistoryManager struct {
	db      *gorm.DB
	enabled map[Context]bool
	// maxSave caps how many of the most recent entries SaveHistory writes; 0 means all.
	maxSave int
}

type HistoryEntry struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`

	Context   string `gorm:"index"`
	Command   string
	Directory string
	ExitCode  sql.NullInt32
}

// Options configure a HistoryManager.
type Options struct {
	// Enabled lists the contexts that record history. Nil enables all.
	Enabled []Context
	// MaxSave limits SaveHistory to the most recent entries; 0 saves all.
	MaxSave int
}

const (
	historySchemaVersion = 2
)

func NewHistoryManager(dbFilePath string, opts Options) (*HistoryManager, error) {
	dbFileExists := true
	if _, err := os.Stat(dbFilePath); errors.Is(err, os.ErrNotExist) {
		dbFileExists = false
	} else if err != nil {
		return nil, fmt.Errorf("error checking history db: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening history db: %w", err)
	}

	if needsMigration(dbFilePath, dbFileExists, db) {
		if err := db.AutoMigrate(&HistoryEntry{}); err != nil {
			return nil, fmt.Errorf("error auto-migrating history schema: %w", err)
		}
		if err := writeSchemaVersion(dbFilePath, historySchemaVersion); err != nil {
			return nil, fmt.Errorf("error writing history schema version: %w", err)
		}
	}

	enabled := map[Context]bool{ContextShell: true, ContextLua: true}
	if opts.Enabled != nil {
		enabled = lo.SliceToMap(opts.Enabled, func(c Context) (Context, bool) {
			return c, true
		})
	}

	return &HistoryManager{
		db:      db,
		enabled: enabled,
		maxSave: opts.MaxSave,
	}, nil
}

func needsMigration(dbFilePath string, dbFileExists bool, db *gorm.DB) bool {
	if !dbFileExists {
		return true
	}

	versionMatches, err := schemaVersionMatches(dbFilePath)
	if err != nil || !versionMatches {
		return true
	}

	// If the version marker is present but the table is missing (corruption or manual deletion),
	// re-run migrations to restore the schema.
	return !db.Migrator().HasTable(&HistoryEntry{})
}

func writeSchemaVersion(dbFilePath string, version int) error {
	return os.WriteFile(schemaVersionPath(dbFilePath), []byte(strconv.Itoa(version)), 0644)
}

func schemaVersionMatches(dbFilePath string) (bool, error) {
	data, err := os.ReadFile(schemaVersionPath(dbFilePath))
	if err != nil {
		return false, err
	}
	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, err
	}
	if version != historySchemaVersion {
		return false, fmt.Errorf("history schema version mismatch: got %d, want %d", version, historySchemaVersion)
	}
	return true, nil
}

func schemaVersionPath(dbFilePath string) string {
	return filepath.Join(filepath.Dir(dbFilePath), "history_schema_version")
}

// IsEnabled reports whether ctx records history.
func (historyManager *HistoryManager) IsEnabled(ctx Context) bool {
	return historyManager.enabled[ctx]
}

// StartCommand records a command typed into ctx. It returns a nil entry
// without error when history is disabled for ctx.
func (historyManager *HistoryManager) StartCommand(ctx Context, command string, directory string) (*HistoryEntry, error) {
	if !historyManager.IsEnabled(ctx) {
		return nil, nil
	}

	entry := HistoryEntry{
		Context:   string(ctx),
		Command:   command,
		Directory: directory,
	}

	result := historyManager.db.Create(&entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return &entry, nil
}

func (historyManager *HistoryManager) FinishCommand(entry *HistoryEntry, exitCode int) (*HistoryEntry, error) {
	if entry == nil {
		return nil, nil
	}

	entry.ExitCode = sql.NullInt32{Int32: int32(exitCode), Valid: true}

	result := historyManager.db.Save(entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return entry, nil
}

// GetRecentEntries returns up to limit entries of ctx, oldest first.
// A non-positive limit returns every entry.
func (historyManager *HistoryManager) GetRecentEntries(ctx Context, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	db := historyManager.db.Where("context = ?", string(ctx)).Order("id desc")
	if limit > 0 {
		db = db.Limit(limit)
	}
	result := db.Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	slices.Reverse(entries)
	return entries, nil
}

func (historyManager *HistoryManager) DeleteEntry(id uint) error {
	result := historyManager.db.Delete(&HistoryEntry{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no history entry found with id %d", id)
	}

	return nil
}

// ResetHistory deletes every entry of ctx.
func (historyManager *HistoryManager) ResetHistory(ctx Context) error {
	result := historyManager.db.Where("context = ?", string(ctx)).Delete(&HistoryEntry{})
	if result.Error != nil {
		return result.Error
	}

	return nil
}

// SearchHistory searches ctx for entries containing the given substring.
// Returns entries in reverse chronological order (most recent first).
func (historyManager *HistoryManager) SearchHistory(ctx Context, query string, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	result := historyManager.db.
		Where("context = ? AND command LIKE ?", string(ctx), "%"+query+"%").
		Order("id desc").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	return entries, nil
}

// SaveHistory writes the commands of ctx to filename, one per line,
// oldest first.
func (historyManager *HistoryManager) SaveHistory(ctx Context, filename string) error {
	if !historyManager.IsEnabled(ctx) {
		return ErrHistoryNotEnabled
	}

	entries, err := historyManager.GetRecentEntries(ctx, historyManager.maxSave)
	if err != nil {
		return fmt.Errorf("error reading history: %w", err)
	}
	if len(entries) == 0 {
		return ErrHistoryEmpty
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", filename, err)
	}

	w := bufio.NewWriter(f)
	for _, entry := range entries {
		if _, err := w.WriteString(entry.Command + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("error writing %s: %w", filename, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", filename, err)
	}
	return f.Close()
}

// Close releases the underlying database.
func (historyManager *HistoryManager) Close() error {
	sqlDB, err := historyManager.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
