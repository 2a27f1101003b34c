package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestQueueDispatcher_ProduceOnly(t *testing.T) {
	mr, rdb := setupRedis(t)

	store := newCountingStore()
	hook := store.add("u1", "book.added", "http://example.com")
	d := newTestDeliverer(store, &recordedSleep{}, "")

	q := NewQueueDispatcher(rdb, d, QueueOptions{KeyPrefix: "test", Consumers: 0})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	q.Deliver(hook, []byte(`{"data":1}`))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	items, err := mr.List("test:deliveries")
	if err != nil {
		t.Fatalf("Failed to read list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 queued job, got %d", len(items))
	}

	var job DeliveryAttempt
	if err := json.Unmarshal([]byte(items[0]), &job); err != nil {
		t.Fatalf("Invalid job JSON: %v", err)
	}
	if job.HookID != hook.ID || job.Target != hook.Target || string(job.Payload) != `{"data":1}` {
		t.Errorf("Unexpected job %+v", job)
	}
	if job.ID == "" {
		t.Error("Expected a delivery id")
	}
}

func TestQueueDispatcher_EndToEnd(t *testing.T) {
	_, rdb := setupRedis(t)

	received := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get(HeaderEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newCountingStore()
	hook := store.add("u1", "book.added", server.URL)

	results := newResultCollector(4)
	d := newTestDeliverer(store, &recordedSleep{}, "", results)

	q := NewQueueDispatcher(rdb, d, QueueOptions{Consumers: 2, PopTimeout: 100 * time.Millisecond})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	q.Deliver(hook, []byte(`{}`))
	q.Deliver(hook, []byte(`{}`))

	for i := 0; i < 2; i++ {
		r, ok := results.next(3 * time.Second)
		if !ok {
			t.Fatalf("Timed out waiting for delivery %d", i)
		}
		if r.Outcome != OutcomeSuccess {
			t.Errorf("Expected success, got %s", r)
		}
		if ev := <-received; ev != "book.added" {
			t.Errorf("Expected event header, got %q", ev)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestQueueDispatcher_Consume(t *testing.T) {
	mr, rdb := setupRedis(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	store := newCountingStore()
	hook := store.add("u1", "book.added", server.URL)

	job, _ := json.Marshal(NewDeliveryAttempt(hook, []byte(`{}`)))
	mr.Lpush(QueueKey(DefaultKeyPrefix), "not json")
	mr.Lpush(QueueKey(DefaultKeyPrefix), string(job))

	results := newResultCollector(1)
	d := newTestDeliverer(store, &recordedSleep{}, "", results)
	q := NewQueueDispatcher(rdb, d, QueueOptions{PopTimeout: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Consume(ctx, 1, time.Second)
		close(done)
	}()

	r, ok := results.next(3 * time.Second)
	if !ok || r.Outcome != OutcomeRevoked {
		t.Fatalf("Expected revoked delivery, got %+v", r)
	}
	if store.deleteCount() != 1 {
		t.Errorf("Expected one delete, got %d", store.deleteCount())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Expected consumers to exit after cancel")
	}
}

func TestQueueDispatcher_StopFinishesInFlight(t *testing.T) {
	_, rdb := setupRedis(t)

	started := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newCountingStore()
	hook := store.add("u1", "book.added", server.URL)

	results := newResultCollector(1)
	d := newTestDeliverer(store, &recordedSleep{}, "", results)
	q := NewQueueDispatcher(rdb, d, QueueOptions{Consumers: 1, PopTimeout: 50 * time.Millisecond})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	q.Deliver(hook, []byte(`{}`))
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the delivery to start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	r, ok := results.next(time.Second)
	if !ok || r.Outcome != OutcomeSuccess {
		t.Errorf("Expected in-flight delivery to finish, got %+v", r)
	}
}

func TestQueueDispatcher_ConsumeGracePeriod(t *testing.T) {
	_, rdb := setupRedis(t)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newCountingStore()
	hook := store.add("u1", "book.added", server.URL)
	job, _ := json.Marshal(NewDeliveryAttempt(hook, []byte(`{}`)))
	if err := rdb.LPush(context.Background(), QueueKey(DefaultKeyPrefix), job).Err(); err != nil {
		t.Fatalf("LPUSH failed: %v", err)
	}

	results := newResultCollector(2)
	d := newTestDeliverer(store, &recordedSleep{}, "", results)
	q := NewQueueDispatcher(rdb, d, QueueOptions{PopTimeout: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Consume(ctx, 1, 2*time.Second)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the delivery to start")
	}
	cancel()
	time.Sleep(100 * time.Millisecond)
	close(release)

	r, ok := results.next(2 * time.Second)
	if !ok || r.Outcome != OutcomeSuccess {
		t.Errorf("Expected popped job to finish after cancel, got %+v", r)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Expected Consume to return")
	}
}
