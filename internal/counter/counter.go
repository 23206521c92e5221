// Package counter implements the Counter component: a periodic, advisory
// emission of accumulated per-run_id event counts.
package counter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Counter accumulates per-run_id event counts and periodically logs and
// resets them. Guarded by a plain mutex rather than atomics: the read-then-
// reset pair at each tick needs atomicity across both operations, which a
// single atomic counter can't give without its own CAS loop (Open Question
// decision 4 in DESIGN.md).
type Counter struct {
	mu       sync.Mutex
	counts   map[string]int64
	logger   *zap.Logger
	interval time.Duration
}

// New constructs a Counter.
func New(logger *zap.Logger, interval time.Duration) *Counter {
	return &Counter{
		counts:   make(map[string]int64),
		logger:   logger,
		interval: interval,
	}
}

// Add records n events for run_id. Called by the Batcher once per run_id in
// each committed batch.
func (c *Counter) Add(runID string, n int64) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[runID] += n
}

// Start runs the periodic emit-and-reset loop until ctx is cancelled.
func (c *Counter) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.emit()
		}
	}
}

// emit logs the accumulated counts at INFO and resets them to zero. Loss of
// a counter tick (e.g. a panic recovered by the supervision harness before
// this runs) is non-fatal per spec.md §4.4.
func (c *Counter) emit() {
	c.mu.Lock()
	snapshot := c.counts
	c.counts = make(map[string]int64)
	c.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	fields := make([]zap.Field, 0, len(snapshot))
	var total int64
	for runID, n := range snapshot {
		fields = append(fields, zap.Int64(runID, n))
		total += n
	}
	fields = append(fields, zap.Int64("total", total))
	c.logger.Info("event counts", fields...)
}
