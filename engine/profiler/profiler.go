package profiler

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Stats is a snapshot of the work recorded by a Profiler.
type Stats struct {
	// Items is the number of completed work items.
	Items int

	// Bytes is the total output size of the completed items.
	Bytes int64

	// Elapsed is the time since the profiler was created.
	Elapsed time.Duration

	// HeapMB is the live heap at snapshot time.
	HeapMB float64

	// GCCount is the number of completed GC cycles.
	GCCount uint32
}

// Profiler tracks conversion throughput and memory statistics.
// Outputs stats to the logger at a configurable interval. Safe for concurrent use.
type Profiler struct {
	mu             sync.Mutex
	logger         *slog.Logger
	start          time.Time
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats

	items, lastItems int
	bytes            int64
	lastTotalAlloc   uint64
}

// NewProfiler creates a new Profiler.
//
// Parameters:
//   - logger: the logger receiving periodic stats
//   - interval: the minimum time between two stats lines, one second when zero or negative
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *slog.Logger, interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Second
	}
	now := time.Now()
	return &Profiler{
		logger:         logger,
		start:          now,
		lastTime:       now,
		updateInterval: interval,
	}
}

// Tick records one completed item of the given output size.
// Logs throughput, heap usage and allocation rate when the update interval has elapsed.
//
// Parameters:
//   - size: the output size of the item in bytes
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(size int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items++
	p.bytes += int64(size)

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc

	p.logger.Info("profiler",
		"items_per_sec", float64(p.items-p.lastItems)/elapsed.Seconds(),
		"items", p.items,
		"heap_mb", float64(p.memStats.Alloc)/1024/1024,
		"alloc_rate_mb", float64(allocDelta)/1024/1024/elapsed.Seconds(),
		"gc", p.memStats.NumGC,
	)

	p.lastTime = currentTime
	p.lastItems = p.items
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Stats returns the totals recorded so far.
//
// Returns:
//   - Stats: the current totals
func (p *Profiler) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	runtime.ReadMemStats(&p.memStats)
	return Stats{
		Items:   p.items,
		Bytes:   p.bytes,
		Elapsed: time.Since(p.start),
		HeapMB:  float64(p.memStats.Alloc) / 1024 / 1024,
		GCCount: p.memStats.NumGC,
	}
}
