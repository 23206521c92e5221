// Package reconciler implements the control-plane loop that converges the
// running set of Stream Workers onto the config table.
package reconciler

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/relaystream/filterstream/internal/apperror"
	"github.com/relaystream/filterstream/internal/fingerprint"
	"github.com/relaystream/filterstream/internal/observability"
	"github.com/relaystream/filterstream/internal/queue"
	"github.com/relaystream/filterstream/internal/subscription"
	"github.com/relaystream/filterstream/internal/supervise"
	"github.com/relaystream/filterstream/internal/worker"
)

var tracer = otel.Tracer("filterstream/reconciler")

// ConfigStore is the subset of postgres.Store the Reconciler needs. Defined
// here (rather than depending on the concrete store) so tests can substitute
// an in-memory fake, matching the teacher's constructor-injection pattern
// for testability. The third return value is a top-level query/iteration
// failure, distinct from the per-row []error slice; it must never be
// conflated with "the config table is legitimately empty".
type ConfigStore interface {
	EnsureSchema(ctx context.Context) error
	LoadSubscriptions(ctx context.Context) ([]subscription.Subscription, []error, error)
}

// run is the Reconciler's in-memory record per live subscription.
type run struct {
	fingerprint string
	cancel      context.CancelFunc
	done        chan struct{}
	worker      *worker.Worker
}

// Reconciler periodically reads the config table and starts/cancels/
// replaces Stream Workers to match it.
type Reconciler struct {
	store       ConfigStore
	queue       *queue.Queue
	logger      *zap.Logger
	interval    time.Duration
	upstreamURL string
	httpClient  *http.Client

	runs          map[string]*run
	schemaEnsured bool
}

// New constructs a Reconciler.
func New(store ConfigStore, q *queue.Queue, logger *zap.Logger, interval time.Duration, upstreamURL string) *Reconciler {
	return &Reconciler{
		store:       store,
		queue:       q,
		logger:      logger,
		interval:    interval,
		upstreamURL: upstreamURL,
		httpClient:  &http.Client{Timeout: 0}, // streaming response; no overall deadline
		runs:        make(map[string]*run),
	}
}

// Start runs the reconciliation loop until ctx is cancelled, ticking
// immediately on entry and then every interval (spec.md §4.1).
func (r *Reconciler) Start(ctx context.Context) {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.cancelAll()
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick performs one reconciliation pass: ensure schema, load subscriptions,
// diff against the in-memory run map, act.
func (r *Reconciler) tick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "reconciler.tick", trace.WithAttributes(
		attribute.Int("run_count", len(r.runs)),
	))
	defer span.End()

	if !r.schemaEnsured {
		if err := r.store.EnsureSchema(ctx); err != nil {
			appErr := apperror.New(apperror.CodeDatabaseTransient, "ensure config schema failed",
				apperror.WithComponent("reconciler"), apperror.WithDetail(err.Error()))
			r.logger.Error("ensure config schema failed, abandoning tick", zap.Error(appErr))
			return
		}
		r.schemaEnsured = true
	}

	subs, errs, queryErr := r.store.LoadSubscriptions(ctx)
	if queryErr != nil {
		// A top-level query/iteration failure, not a per-row decode error:
		// abandon the tick without touching r.runs at all (spec.md §4.1
		// Errors, invariant 1). Unlike an empty config table, this is not
		// evidence that every subscription is gone.
		appErr := apperror.From(queryErr)
		r.logger.Error("config read failed, abandoning tick",
			zap.String("code", appErr.Code),
			zap.Error(appErr),
		)
		observability.ReconcileActions.WithLabelValues("read_failed").Inc()
		return
	}
	for _, err := range errs {
		r.logger.Error("config row failed to load", zap.Error(err))
	}

	desired := make(map[string]subscription.Subscription, len(subs))
	for _, sub := range subs {
		desired[sub.RunID] = sub
	}

	for runID, sub := range desired {
		fp := fingerprint.Of(sub)
		existing, ok := r.runs[runID]

		switch {
		case !ok:
			r.spawn(ctx, sub, fp)
			observability.ReconcileActions.WithLabelValues("new").Inc()

		case existing.fingerprint != fp:
			r.cancelRun(existing)
			delete(r.runs, runID)
			r.spawn(ctx, sub, fp)
			observability.ReconcileActions.WithLabelValues("changed").Inc()

		case r.isDone(existing):
			if existing.worker.TerminalErr != nil {
				r.logger.Error("worker terminated", zap.String("run_id", runID), zap.Error(existing.worker.TerminalErr))
			}
			existing.cancel()
			observability.ReconcileActions.WithLabelValues("completed").Inc()
			// Decision (Open Question 1): leave the slot dormant. Do not
			// respawn until the fingerprint changes or the row disappears,
			// to avoid a crash loop against a permanently-misconfigured
			// subscription. An operator must bump the filter content (or
			// delete/recreate the row) to force a retry. The worker has
			// already exited by this point; cancel just releases its
			// context instead of leaving it live until the row changes.

		default:
			observability.ReconcileActions.WithLabelValues("unchanged").Inc()
		}
	}

	for runID, existing := range r.runs {
		if _, stillDesired := desired[runID]; !stillDesired {
			r.cancelRun(existing)
			delete(r.runs, runID)
			observability.ReconcileActions.WithLabelValues("gone").Inc()
		}
	}
}

// spawn constructs and starts a new Stream Worker for sub, recording its Run.
// Construction is wrapped in supervise.Safe so a panic while signing a
// malformed subscription (e.g. from a corrupt OAuth1 secret) surfaces as a
// logged error instead of crashing the reconciler's goroutine.
func (r *Reconciler) spawn(ctx context.Context, sub subscription.Subscription, fp string) {
	var w *worker.Worker
	err := supervise.Safe(func() error {
		built, err := worker.New(sub, r.upstreamURL, r.httpClient, r.queue, r.logger)
		if err != nil {
			return err
		}
		w = built
		return nil
	})
	if err != nil {
		r.logger.Error("failed to construct worker", zap.String("run_id", sub.RunID), zap.Error(err))
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	supervise.Go(r.logger, "stream-worker:"+sub.RunID, func() {
		defer close(done)
		w.Run(workerCtx)
	})

	r.runs[sub.RunID] = &run{
		fingerprint: fp,
		cancel:      cancel,
		done:        done,
		worker:      w,
	}
}

// cancelRun cancels a worker without waiting for it to drain, per spec.md
// §4.1's tie-break rule: cancellation is non-blocking.
func (r *Reconciler) cancelRun(rn *run) {
	rn.cancel()
}

// isDone reports whether a run's worker has already exited.
func (r *Reconciler) isDone(rn *run) bool {
	select {
	case <-rn.done:
		return true
	default:
		return false
	}
}

// cancelAll cancels every live worker on shutdown.
func (r *Reconciler) cancelAll() {
	for _, rn := range r.runs {
		rn.cancel()
	}
}
