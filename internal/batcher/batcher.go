// Package batcher implements the Batcher: a periodic drain of the shared
// queue into a single multi-row insert, committed in one transaction.
package batcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/relaystream/filterstream/internal/counter"
	"github.com/relaystream/filterstream/internal/observability"
	"github.com/relaystream/filterstream/internal/queue"
)

var tracer = otel.Tracer("filterstream/batcher")

// TweetStore is the subset of postgres.Store the Batcher needs.
type TweetStore interface {
	EnsureSchema(ctx context.Context) error
	InsertTweets(ctx context.Context, runIDs []string, rawLines []string) error
}

// Batcher periodically drains the shared queue and commits a batch.
type Batcher struct {
	store    TweetStore
	queue    *queue.Queue
	counter  *counter.Counter
	logger   *zap.Logger
	interval time.Duration

	schemaEnsured bool
}

// New constructs a Batcher.
func New(store TweetStore, q *queue.Queue, c *counter.Counter, logger *zap.Logger, interval time.Duration) *Batcher {
	return &Batcher{
		store:    store,
		queue:    q,
		counter:  c,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the periodic drain-and-commit loop until ctx is cancelled.
func (b *Batcher) Start(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick drains exactly the events queued at tick start (spec.md §4.3's
// snapshot draining policy) and commits them in one transaction.
func (b *Batcher) tick(ctx context.Context) {
	if !b.schemaEnsured {
		if err := b.store.EnsureSchema(ctx); err != nil {
			b.logger.Error("ensure tweets schema failed, abandoning tick", zap.Error(err))
			return
		}
		b.schemaEnsured = true
	}

	n := b.queue.Len()
	if n == 0 {
		return
	}
	events := b.queue.DrainN(n)
	if len(events) == 0 {
		return
	}

	runIDs := make([]string, len(events))
	rawLines := make([]string, len(events))
	perRun := make(map[string]int64, len(events))
	for i, e := range events {
		runIDs[i] = e.RunID
		rawLines[i] = e.RawLine
		perRun[e.RunID]++
	}

	batchID := uuid.New().String()
	ctx, span := tracer.Start(ctx, "batcher.commit", trace.WithAttributes(
		attribute.String("batch_id", batchID),
		attribute.Int("event_count", len(events)),
	))
	defer span.End()

	if err := b.store.InsertTweets(ctx, runIDs, rawLines); err != nil {
		// Decision (Open Question 3): drop and log. Re-queuing risks
		// unbounded queue growth under a sustained database outage, and
		// spec.md's non-goals exclude a backpressure mechanism.
		span.RecordError(err)
		b.logger.Error("batch commit failed, dropping events", zap.String("batch_id", batchID), zap.Int("count", len(events)), zap.Error(err))
		observability.CommitFailures.Inc()
		return
	}

	b.logger.Debug("batch committed", zap.String("batch_id", batchID), zap.Int("count", len(events)))

	observability.EventsCommitted.Add(float64(len(events)))
	observability.QueueDepth.Set(float64(b.queue.Len()))
	for runID, count := range perRun {
		b.counter.Add(runID, count)
	}
}
