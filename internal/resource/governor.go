// Package resource samples real process/system resource usage and
// feeds it to the protocol manager (max message size) and the buffer
// manager (aggregate memory backpressure), grounded on
// src/capacity.go's DynamicCapacityManager: "measure actual resource
// usage, don't assume."
package resource

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Governor periodically samples available memory and the client
// process's own RSS.
type Governor struct {
	mu sync.RWMutex

	proc *process.Process

	availableHeapBytes int64
	processRSSBytes     int64

	memoryLimitBytes int64
	lastSampleErr    error
}

// New creates a Governor. memoryLimitBytes is the aggregate backpressure
// threshold from spec §5 (default 100 MB).
func New(memoryLimitBytes int64) *Governor {
	g := &Governor{memoryLimitBytes: memoryLimitBytes}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		g.proc = p
	}
	g.Sample()
	return g
}

// Sample refreshes the governor's view of available/used memory.
func (g *Governor) Sample() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if vm, err := mem.VirtualMemory(); err == nil {
		g.availableHeapBytes = int64(vm.Available)
	} else {
		g.lastSampleErr = err
	}

	if g.proc != nil {
		if info, err := g.proc.MemoryInfo(); err == nil && info != nil {
			g.processRSSBytes = int64(info.RSS)
		} else if err != nil {
			g.lastSampleErr = err
		}
	}
}

// Run samples on interval until stop is closed.
func (g *Governor) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.Sample()
		}
	}
}

// MaxMessageSize derives the protocol manager's max message size from
// available heap headroom (spec §4.C), capped to a sane floor/ceiling.
func (g *Governor) MaxMessageSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		floor   = 64 * 1024
		ceiling = 16 * 1024 * 1024
	)
	// Use 1% of available heap as a conservative single-message budget.
	size := g.availableHeapBytes / 100
	if size < floor {
		size = floor
	}
	if size > ceiling {
		size = ceiling
	}
	return int(size)
}

// AggregateMemoryBytes returns the process's own usage, compared
// against memoryLimitBytes by the buffer manager to emit a
// backpressure event (spec §5).
func (g *Governor) AggregateMemoryBytes() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.processRSSBytes
}

// OverMemoryLimit reports whether the process has exceeded the
// configured aggregate memory limit.
func (g *Governor) OverMemoryLimit() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.memoryLimitBytes > 0 && g.processRSSBytes > g.memoryLimitBytes
}
