package reconciler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relaystream/filterstream/internal/queue"
	"github.com/relaystream/filterstream/internal/subscription"
)

// fakeStore is an in-memory ConfigStore substitute, grounded on the
// teacher's pattern of small, constructor-injected structs for testability.
type fakeStore struct {
	mu      sync.Mutex
	subs    []subscription.Subscription
	ensured int
	loadErr error
}

func (f *fakeStore) EnsureSchema(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return nil
}

func (f *fakeStore) LoadSubscriptions(ctx context.Context) ([]subscription.Subscription, []error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, nil, f.loadErr
	}
	out := make([]subscription.Subscription, len(f.subs))
	copy(out, f.subs)
	return out, nil, nil
}

func (f *fakeStore) setSubs(subs []subscription.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = subs
}

func (f *fakeStore) setLoadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
}

func testSub(runID string, track ...string) subscription.Subscription {
	return subscription.Subscription{
		RunID:          runID,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "at",
		AccessSecret:   "as",
		Track:          track,
	}
}

func TestTickSpawnsNewRun(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	store := &fakeStore{subs: []subscription.Subscription{testSub("A", "cat")}}
	q := queue.New()
	r := New(store, q, zap.NewNop(), time.Hour, upstream.URL)
	defer r.cancelAll()

	r.tick(context.Background())

	if _, ok := r.runs["A"]; !ok {
		t.Fatal("expected a Run to be recorded for run_id A")
	}
	if store.ensured != 1 {
		t.Fatalf("expected EnsureSchema to be called once, got %d", store.ensured)
	}
}

func TestTickCancelsGoneRun(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	store := &fakeStore{subs: []subscription.Subscription{testSub("A", "cat")}}
	q := queue.New()
	r := New(store, q, zap.NewNop(), time.Hour, upstream.URL)
	defer r.cancelAll()

	r.tick(context.Background())
	if _, ok := r.runs["A"]; !ok {
		t.Fatal("expected run A to exist after first tick")
	}

	store.setSubs(nil)
	r.tick(context.Background())

	if _, ok := r.runs["A"]; ok {
		t.Fatal("expected run A to be removed once gone from config")
	}
}

func TestTickReplacesRunOnFingerprintChange(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	store := &fakeStore{subs: []subscription.Subscription{testSub("A", "cat")}}
	q := queue.New()
	r := New(store, q, zap.NewNop(), time.Hour, upstream.URL)
	defer r.cancelAll()

	r.tick(context.Background())
	firstWorker := r.runs["A"].worker

	store.setSubs([]subscription.Subscription{testSub("A", "dog")})
	r.tick(context.Background())

	secondWorker := r.runs["A"].worker
	if firstWorker == secondWorker {
		t.Fatal("expected a fresh worker after a fingerprint change")
	}
}

func TestTickAbandonsOnQueryErrorWithoutMutatingRuns(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	defer upstream.Close()

	store := &fakeStore{subs: []subscription.Subscription{testSub("A", "cat"), testSub("B", "dog")}}
	q := queue.New()
	r := New(store, q, zap.NewNop(), time.Hour, upstream.URL)
	defer r.cancelAll()

	r.tick(context.Background())
	if len(r.runs) != 2 {
		t.Fatalf("expected 2 runs after first tick, got %d", len(r.runs))
	}
	firstA := r.runs["A"]
	firstB := r.runs["B"]

	// A transient DB read failure must not tear down any live run, even
	// though it looks, from the diff's perspective, like every subscription
	// vanished (spec.md §4.1 Errors, invariant 1).
	store.setLoadErr(errors.New("connection reset by peer"))
	r.tick(context.Background())

	if len(r.runs) != 2 {
		t.Fatalf("expected runs to survive a query error tick, got %d", len(r.runs))
	}
	if r.runs["A"] != firstA || r.runs["B"] != firstB {
		t.Fatal("expected the exact same run entries to survive a query error tick")
	}
}

func TestTickLeavesUnchangedRunAlone(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// never respond with a body; just hang the streaming connection open
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	defer upstream.Close()

	store := &fakeStore{subs: []subscription.Subscription{testSub("A", "cat")}}
	q := queue.New()
	r := New(store, q, zap.NewNop(), time.Hour, upstream.URL)
	defer r.cancelAll()

	r.tick(context.Background())
	firstWorker := r.runs["A"].worker

	r.tick(context.Background())
	secondWorker := r.runs["A"].worker

	if firstWorker != secondWorker {
		t.Fatal("expected the same worker to remain across an unchanged tick")
	}
}
