package egc

import (
	"runtime"
	"runtime/debug"
)

// GoRuntime drives the real Go runtime.
type GoRuntime struct{}

func (GoRuntime) SetGCPercent(percent int) int     { return debug.SetGCPercent(percent) }
func (GoRuntime) SetMemoryLimit(limit int64) int64 { return debug.SetMemoryLimit(limit) }
func (GoRuntime) GC()                              { runtime.GC() }
func (GoRuntime) FreeOSMemory()                    { debug.FreeOSMemory() }
