// Package egc controls when the Go runtime reclaims memory on behalf of
// the embedded Lua interpreter. It mirrors the emergency garbage
// collector modes scripts know from eLua and maps each one onto the
// knobs the Go runtime offers.
package egc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Mode is a set of flags selecting when an emergency collection runs.
type Mode int

const (
	NotActive      Mode = 0
	OnAllocFailure Mode = 1
	OnMemLimit     Mode = 2
	Always         Mode = 4

	allModes = OnAllocFailure | OnMemLimit | Always
)

// alwaysGCPercent is the collection target used while Always is set.
const alwaysGCPercent = 1

var modeNames = []struct {
	mode Mode
	name string
}{
	{OnAllocFailure, "EGC_ON_ALLOC_FAILURE"},
	{OnMemLimit, "EGC_ON_MEM_LIMIT"},
	{Always, "EGC_ALWAYS"},
}

func (m Mode) String() string {
	if m == NotActive {
		return "EGC_NOT_ACTIVE"
	}
	var parts []string
	for _, n := range modeNames {
		if m&n.mode != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := m &^ allModes; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseMode accepts the names produced by String, joined with '|' and
// with or without the EGC_ prefix, or an integer.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NotActive, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		m := Mode(n)
		return m, m.validate()
	}

	var m Mode
	for _, part := range strings.Split(s, "|") {
		name := strings.ToUpper(strings.TrimSpace(part))
		if !strings.HasPrefix(name, "EGC_") {
			name = "EGC_" + name
		}
		if name == "EGC_NOT_ACTIVE" {
			continue
		}
		found := false
		for _, mn := range modeNames {
			if mn.name == name {
				m |= mn.mode
				found = true
				break
			}
		}
		if !found {
			return NotActive, fmt.Errorf("unknown EGC mode %q", part)
		}
	}
	return m, nil
}

func (m Mode) validate() error {
	if m < 0 || m&^allModes != 0 {
		return fmt.Errorf("invalid EGC mode %d", int(m))
	}
	return nil
}

// Runtime is the subset of the Go runtime the controller drives.
type Runtime interface {
	SetGCPercent(percent int) int
	SetMemoryLimit(limit int64) int64
	GC()
	FreeOSMemory()
}

// Controller applies EGC modes to a Runtime.
type Controller struct {
	mu      sync.Mutex
	rt      Runtime
	logger  *zap.Logger
	mode    Mode
	limit   int64
	percent int // GC percent in effect when the controller was created
}

// NewController captures the runtime's current collection target so
// that switching back to NotActive restores it. A nil runtime uses the
// real Go runtime.
func NewController(rt Runtime, logger *zap.Logger) *Controller {
	if rt == nil {
		rt = GoRuntime{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// SetGCPercent returns the previous value; put it straight back.
	percent := rt.SetGCPercent(100)
	rt.SetGCPercent(percent)

	return &Controller{
		rt:      rt,
		logger:  logger,
		percent: percent,
	}
}

// SetMode installs mode with the given memory limit in bytes. The limit
// only matters with OnMemLimit; zero means no limit.
func (c *Controller) SetMode(mode Mode, limit int64) error {
	if err := mode.validate(); err != nil {
		return err
	}
	if limit < 0 {
		return errors.New("memory limit must not be negative")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if mode&OnMemLimit != 0 && limit > 0 {
		c.rt.SetMemoryLimit(limit)
	} else {
		c.rt.SetMemoryLimit(math.MaxInt64)
	}

	if mode&Always != 0 {
		c.rt.SetGCPercent(alwaysGCPercent)
	} else {
		c.rt.SetGCPercent(c.percent)
	}

	c.logger.Debug("egc mode changed",
		zap.Stringer("from", c.mode),
		zap.Stringer("to", mode),
		zap.String("limit", formatLimit(limit)),
	)

	c.mode = mode
	c.limit = limit
	return nil
}

// Mode returns the active mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Limit returns the configured memory limit in bytes.
func (c *Controller) Limit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// BeforeChunk runs before each interpreter chunk. With Always set it
// forces a full collection.
func (c *Controller) BeforeChunk() {
	if c.Mode()&Always == 0 {
		return
	}
	c.rt.GC()
}

// HandleAllocFailure is called with the error a chunk failed with. When
// the error is an interpreter memory failure and OnAllocFailure is set
// it collects and returns memory to the OS, reporting true.
func (c *Controller) HandleAllocFailure(err error) bool {
	if err == nil || !IsAllocFailure(err) {
		return false
	}
	if c.Mode()&OnAllocFailure == 0 {
		return false
	}

	c.logger.Debug("egc collecting after allocation failure", zap.Error(err))
	c.rt.GC()
	c.rt.FreeOSMemory()
	return true
}

// IsAllocFailure reports whether err comes from the interpreter running
// out of registry or call stack space.
func IsAllocFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "registry overflow") ||
		strings.Contains(msg, "stack overflow") ||
		strings.Contains(msg, "not enough memory")
}

// Describe renders the active settings for display.
func (c *Controller) Describe() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode&OnMemLimit != 0 {
		return fmt.Sprintf("%s (limit %s)", c.mode, formatLimit(c.limit))
	}
	return c.mode.String()
}

func formatLimit(limit int64) string {
	if limit <= 0 {
		return "none"
	}
	return humanize.IBytes(uint64(limit))
}
