package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hookrelay/internal/platform/config"
)

func TestPoolDispatcher_DeliversAll(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newCountingStore()
	hook := store.add("u1", "book.added", server.URL)

	results := newResultCollector(10)
	d := newTestDeliverer(store, &recordedSleep{}, "", results)
	pool := NewPoolDispatcher(d, 2, 0)

	// queued before Start, picked up afterwards
	pool.Deliver(hook, []byte(`{"n":0}`))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 1; i < 5; i++ {
		pool.Deliver(hook, []byte(`{}`))
	}

	for i := 0; i < 5; i++ {
		r, ok := results.next(2 * time.Second)
		if !ok {
			t.Fatalf("Timed out waiting for delivery %d", i)
		}
		if r.Outcome != OutcomeSuccess {
			t.Errorf("Expected success, got %s", r)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if calls.Load() != 5 {
		t.Errorf("Expected 5 requests, got %d", calls.Load())
	}
}

func TestPoolDispatcher_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newCountingStore()
	hook := store.add("u1", "book.added", server.URL)

	results := newResultCollector(10)
	d := NewDeliverer(store, DelivererConfig{Timeout: 5 * time.Second}, results)
	pool := NewPoolDispatcher(d, 2, 0)
	pool.Start(context.Background())

	for i := 0; i < 6; i++ {
		pool.Deliver(hook, []byte(`{}`))
	}

	time.Sleep(100 * time.Millisecond)
	close(release)

	for i := 0; i < 6; i++ {
		if _, ok := results.next(2 * time.Second); !ok {
			t.Fatalf("Timed out waiting for delivery %d", i)
		}
	}
	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent deliveries, saw %d", peak.Load())
	}

	pool.Stop(context.Background())
}

func TestPoolDispatcher_QueueLimitDrops(t *testing.T) {
	store := newCountingStore()
	hook := store.add("u1", "book.added", "http://127.0.0.1:1")

	results := newResultCollector(10)
	d := newTestDeliverer(store, &recordedSleep{}, "", results)
	pool := NewPoolDispatcher(d, 1, 2)

	// not started: the first two wait in the queue, the third overflows
	for i := 0; i < 3; i++ {
		pool.Deliver(hook, []byte(`{}`))
	}

	r, ok := results.next(time.Second)
	if !ok || r.Outcome != OutcomeDropped {
		t.Fatalf("Expected overflow to be dropped, got %+v", r)
	}

	pool.Stop(context.Background())
	for i := 0; i < 2; i++ {
		r, ok := results.next(time.Second)
		if !ok || r.Outcome != OutcomeDropped {
			t.Errorf("Expected queued job to be dropped on stop, got %+v", r)
		}
	}

	pool.Deliver(hook, []byte(`{}`))
	if r, ok := results.next(time.Second); !ok || r.Outcome != OutcomeDropped {
		t.Errorf("Expected delivery after Stop to be dropped, got %+v", r)
	}
}

func TestPoolDispatcher_StopDeadlineDropsQueued(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	store := newCountingStore()
	hook := store.add("u1", "book.added", server.URL)

	results := newResultCollector(10)
	d := NewDeliverer(store, DelivererConfig{Timeout: 5 * time.Second}, results)
	pool := NewPoolDispatcher(d, 1, 0)
	pool.Start(context.Background())

	for i := 0; i < 3; i++ {
		pool.Deliver(hook, []byte(`{}`))
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the first delivery to start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	outcomes := map[Outcome]int{}
	for i := 0; i < 3; i++ {
		r, ok := results.next(2 * time.Second)
		if !ok {
			t.Fatalf("Timed out waiting for result %d", i)
		}
		outcomes[r.Outcome]++
		if r.Outcome == OutcomeDropped && r.Attempts != 0 {
			t.Errorf("Expected dropped job to have no attempts, got %d", r.Attempts)
		}
	}
	if outcomes[OutcomeDropped] != 2 {
		t.Errorf("Expected 2 queued jobs dropped, got %v", outcomes)
	}
	if outcomes[OutcomeAbandoned] != 1 {
		t.Errorf("Expected the in-flight job abandoned, got %v", outcomes)
	}
}

func TestNewDispatcher(t *testing.T) {
	d := NewDeliverer(newCountingStore(), DelivererConfig{})

	disp, err := NewDispatcher(config.WebhooksConfig{Backend: config.BackendPool, WorkerCount: 4}, d, nil, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pool, ok := disp.(*PoolDispatcher); !ok || pool.workers != 4 {
		t.Errorf("Expected pool with 4 workers, got %#v", disp)
	}

	if _, err := NewDispatcher(config.WebhooksConfig{Backend: config.BackendRedis}, d, nil, ""); err != ErrNoRedis {
		t.Errorf("Expected ErrNoRedis, got %v", err)
	}
	if _, err := NewDispatcher(config.WebhooksConfig{Backend: "kafka"}, d, nil, ""); err == nil {
		t.Error("Expected unknown backend error")
	}
}
