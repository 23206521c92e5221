package queue

import (
	"fmt"
	"sync"
	"testing"
)

func TestPushAndDrainOrder(t *testing.T) {
	q := New()
	for i := 0; i < 3; i++ {
		q.Push(Event{RunID: "A", RawLine: fmt.Sprintf("%d", i)})
	}

	drained := q.DrainN(q.Len())
	if len(drained) != 3 {
		t.Fatalf("expected 3 events, got %d", len(drained))
	}
	for i, e := range drained {
		if e.RawLine != fmt.Sprintf("%d", i) {
			t.Fatalf("expected order preserved, got %q at index %d", e.RawLine, i)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after drain, got %d", q.Len())
	}
}

func TestDrainNSnapshotExcludesLateArrivals(t *testing.T) {
	q := New()
	q.Push(Event{RunID: "A", RawLine: "1"})
	q.Push(Event{RunID: "A", RawLine: "2"})

	snapshot := q.Len()
	q.Push(Event{RunID: "A", RawLine: "3"}) // arrives after the snapshot is taken

	drained := q.DrainN(snapshot)
	if len(drained) != 2 {
		t.Fatalf("expected exactly the snapshotted count, got %d", len(drained))
	}
	if q.Len() != 1 {
		t.Fatalf("expected the late arrival to remain queued, got %d", q.Len())
	}
}

func TestDrainNMoreThanAvailable(t *testing.T) {
	q := New()
	q.Push(Event{RunID: "A", RawLine: "1"})

	drained := q.DrainN(100)
	if len(drained) != 1 {
		t.Fatalf("expected to drain only what's available, got %d", len(drained))
	}
}

func TestConcurrentProducersPreserveSingleProducerOrder(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	producers := 4
	perProducer := 50

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(runID string) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Event{RunID: runID, RawLine: fmt.Sprintf("%d", i)})
			}
		}(fmt.Sprintf("run-%d", p))
	}
	wg.Wait()

	drained := q.DrainN(q.Len())
	if len(drained) != producers*perProducer {
		t.Fatalf("expected %d events, got %d", producers*perProducer, len(drained))
	}

	lastSeen := map[string]int{}
	for _, e := range drained {
		var idx int
		fmt.Sscanf(e.RawLine, "%d", &idx)
		if prev, ok := lastSeen[e.RunID]; ok && idx <= prev {
			t.Fatalf("out-of-order event for %s: saw %d after %d", e.RunID, idx, prev)
		}
		lastSeen[e.RunID] = idx
	}
}
