// Package worker implements the Stream Worker: one long-lived connect/
// retry state machine per subscription, pushing raw upstream lines onto the
// shared queue tagged with their run_id.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaystream/filterstream/internal/apperror"
	"github.com/relaystream/filterstream/internal/fingerprint"
	"github.com/relaystream/filterstream/internal/oauth1"
	"github.com/relaystream/filterstream/internal/observability"
	"github.com/relaystream/filterstream/internal/queue"
	"github.com/relaystream/filterstream/internal/subscription"
)

// state is the worker's connect state machine position (spec.md §4.2).
type state int

const (
	stateConnecting state = iota
	stateStreaming
	stateBackingOff
	stateDisconnected
	stateTerminated
	stateCancelled
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case stateBackingOff:
		return "backing_off"
	case stateDisconnected:
		return "disconnected"
	case stateTerminated:
		return "terminated"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MaxBackoff caps the exponential backoff sequence. spec.md §9 Open Question
// 2 leaves this unbounded; 320s is the default decision recorded in
// DESIGN.md, overridable via config.Config.BackoffCap.
var MaxBackoff = 320 * time.Second

// httpDoer is the subset of *http.Client the worker needs, extracted so
// tests can substitute a fake transport without a real network call.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Worker drives one subscription's connect/retry/stream lifecycle.
type Worker struct {
	sub         subscription.Subscription
	upstreamURL string
	client      httpDoer
	queue       *queue.Queue
	logger      *zap.Logger
	signed      oauth1.Signed

	// TerminalErr is set when the worker exits via Terminated; the
	// Reconciler inspects it at its next tick (spec.md §4.1 action 4).
	TerminalErr error
}

// New constructs a Worker, signing the request once per spec.md §4.2.
// Construction fails fast on a malformed subscription (spec.md §7).
func New(sub subscription.Subscription, upstreamURL string, client httpDoer, q *queue.Queue, logger *zap.Logger) (*Worker, error) {
	if err := sub.Validate(); err != nil {
		return nil, apperror.New(apperror.CodeMalformedConfig, "invalid subscription", apperror.WithRunID(sub.RunID), apperror.WithDetail(err.Error()))
	}

	// The signed body is derived from the same encoding as the reconciler's
	// change-detection fingerprint, so the two never disagree about what a
	// subscription's filter actually is.
	form, err := url.ParseQuery(fingerprint.EncodeBody(sub))
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedConfig, "encode filter body", apperror.WithRunID(sub.RunID), apperror.WithDetail(err.Error()))
	}

	signer := oauth1.Signer{
		ConsumerKey:    sub.ConsumerKey,
		ConsumerSecret: sub.ConsumerSecret,
		AccessToken:    sub.AccessToken,
		AccessSecret:   sub.AccessSecret,
	}
	signed, err := signer.Sign(http.MethodPost, upstreamURL, form)
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedConfig, "sign upstream request", apperror.WithRunID(sub.RunID), apperror.WithDetail(err.Error()))
	}

	return &Worker{
		sub:         sub,
		upstreamURL: upstreamURL,
		client:      client,
		queue:       q,
		logger:      logger,
		signed:      signed,
	}, nil
}

// Run drives the connect state machine until cancellation, upstream EOF, or
// a terminal error. It returns once the worker has exited and released its
// HTTP connection.
func (w *Worker) Run(ctx context.Context) {
	st := stateConnecting
	backoff := time.Duration(0)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker cancelled", zap.String("run_id", w.sub.RunID))
			return
		default:
		}

		switch st {
		case stateConnecting:
			resp, err := w.connect(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.TerminalErr = apperror.New(apperror.CodeNetworkFault, "connect to upstream", apperror.WithRunID(w.sub.RunID), apperror.WithDetail(err.Error()))
				w.logger.Error("worker connect failed", zap.String("run_id", w.sub.RunID), zap.Error(err))
				st = stateTerminated
				continue
			}

			switch {
			case resp.StatusCode == http.StatusOK:
				backoff = 0
				st = stateStreaming
				w.stream(ctx, resp)
				st = stateDisconnected
			case resp.StatusCode == 420 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				rateLimited := resp.StatusCode == 420
				backoff = nextBackoff(backoff, rateLimited)
				resp.Body.Close()
				observability.WorkerBackoffSeconds.Observe(backoff.Seconds())
				backoffErr := apperror.New(apperror.CodeTransientUpstream, "upstream unavailable, backing off",
					apperror.WithRunID(w.sub.RunID), apperror.WithDetail(fmt.Sprintf("status=%d", resp.StatusCode)))
				w.logger.Warn("worker backing off", zap.String("run_id", w.sub.RunID), zap.Int("status", resp.StatusCode), zap.Duration("backoff", backoff), zap.Error(backoffErr))
				st = stateBackingOff
			default:
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
				w.TerminalErr = apperror.New(apperror.CodeFatalUpstream, "unexpected upstream status", apperror.WithRunID(w.sub.RunID), apperror.WithDetail(fmt.Sprintf("status=%d body=%s", resp.StatusCode, body)))
				w.logger.Error("worker terminated by upstream", zap.String("run_id", w.sub.RunID), zap.Int("status", resp.StatusCode))
				st = stateTerminated
			}

		case stateBackingOff:
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				st = stateConnecting
			}

		case stateDisconnected, stateTerminated:
			w.logger.Info("worker exiting", zap.String("run_id", w.sub.RunID), zap.String("state", st.String()))
			return

		case stateCancelled:
			return
		}
	}
}

// nextBackoff implements spec.md §4.2's doubling sequence, capped at
// MaxBackoff per the recorded Open Question decision.
func nextBackoff(previous time.Duration, rateLimited bool) time.Duration {
	var next time.Duration
	if previous == 0 {
		if rateLimited {
			next = 60 * time.Second
		} else {
			next = 5 * time.Second
		}
	} else {
		next = previous * 2
	}
	if next > MaxBackoff {
		next = MaxBackoff
	}
	return next
}

// connect issues the signed POST and returns the raw response for the
// caller to dispatch on status code.
func (w *Worker) connect(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.upstreamURL, strings.NewReader(w.signed.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", w.signed.AuthorizationHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(w.signed.Body)))

	return w.client.Do(req)
}

// stream reads line-delimited JSON from resp.Body, enqueueing non-blank
// lines and discarding blank keep-alive lines, until EOF or cancellation.
// The response body is always closed before returning (invariant: every
// termination path releases the HTTP connection).
func (w *Worker) stream(ctx context.Context, resp *http.Response) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			w.logger.Debug("keep-alive received", zap.String("run_id", w.sub.RunID))
			continue
		}

		w.queue.Push(queue.Event{RunID: w.sub.RunID, RawLine: line})
		observability.EventsEnqueued.WithLabelValues(w.sub.RunID).Inc()
		observability.QueueDepth.Set(float64(w.queue.Len()))
	}
}
