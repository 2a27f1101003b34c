package webhooks

import (
	"context"
	"sync"
	"time"

	"hookrelay/internal/engine/catalog"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type delivered struct {
	Hook    models.Hook
	Payload []byte
}

// recordingDispatcher captures deliveries instead of sending them.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []delivered
}

func (d *recordingDispatcher) Deliver(hook models.Hook, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, delivered{Hook: hook, Payload: payload})
}

func (d *recordingDispatcher) Start(context.Context) error { return nil }
func (d *recordingDispatcher) Stop(context.Context) error  { return nil }

func (d *recordingDispatcher) delivered() []delivered {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivered(nil), d.jobs...)
}

// countingStore counts deletes on top of the memory repository.
type countingStore struct {
	*repositories.MemoryHookRepository
	mu      sync.Mutex
	deletes []int64
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryHookRepository: repositories.NewMemoryHookRepository()}
}

func (s *countingStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, id)
	s.mu.Unlock()
	return s.MemoryHookRepository.Delete(ctx, id)
}

func (s *countingStore) deleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deletes)
}

func (s *countingStore) add(owner, event, target string) models.Hook {
	hook := &models.Hook{Owner: owner, Event: event, Target: target}
	if err := s.Create(context.Background(), hook); err != nil {
		panic(err)
	}
	return *hook
}

// recordedSleep never waits, it only remembers the requested durations.
type recordedSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordedSleep) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func testCatalog() *catalog.Catalog {
	c, err := catalog.New([]catalog.Entry{
		{Name: "book.added", Action: "Book.created"},
		{Name: "book.changed", Action: "Book.updated"},
		{Name: "book.removed", Action: "Book.deleted+"},
		{Name: "book.read", Action: "Book.read"},
		{Name: "user.logged_in", Broadcast: true},
		{Name: "report.ready"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type Book struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	UserID string `json:"-"`
}

func (b *Book) HookOwner() (string, bool) {
	return b.UserID, b.UserID != ""
}

// customBook serializes itself.
type customBook struct {
	Title string
}

func (b customBook) SerializeHook(hook models.Hook) (any, error) {
	return map[string]any{"kind": "custom", "title": b.Title, "hook_id": hook.ID}, nil
}

// resultCollector gathers DeliveryResults from any goroutine.
type resultCollector struct {
	ch chan DeliveryResult
}

func newResultCollector(n int) *resultCollector {
	return &resultCollector{ch: make(chan DeliveryResult, n)}
}

func (c *resultCollector) DeliveryFinished(r DeliveryResult) { c.ch <- r }

func (c *resultCollector) next(timeout time.Duration) (DeliveryResult, bool) {
	select {
	case r := <-c.ch:
		return r, true
	case <-time.After(timeout):
		return DeliveryResult{}, false
	}
}
