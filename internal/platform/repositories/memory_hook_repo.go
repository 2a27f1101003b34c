package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"hookrelay/internal/platform/models"
)

// MemoryHookRepository keeps hooks in process. Reads take the shared lock,
// writes the exclusive one, so deletes never interleave with a lookup.
type MemoryHookRepository struct {
	mu     sync.RWMutex
	hooks  map[int64]models.Hook
	nextID int64
}

func NewMemoryHookRepository() *MemoryHookRepository {
	return &MemoryHookRepository{hooks: make(map[int64]models.Hook)}
}

func (r *MemoryHookRepository) Create(_ context.Context, hook *models.Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now().Unix()
	hook.ID = r.nextID
	hook.CreatedAt = now
	hook.UpdatedAt = now
	r.hooks[hook.ID] = *hook
	return nil
}

func (r *MemoryHookRepository) GetByID(_ context.Context, id int64) (*models.Hook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hook, ok := r.hooks[id]
	if !ok {
		return nil, ErrHookNotFound
	}
	return &hook, nil
}

func (r *MemoryHookRepository) ListByOwner(_ context.Context, owner string) ([]models.Hook, error) {
	hooks := r.filter(func(h models.Hook) bool { return h.Owner == owner })
	sort.Slice(hooks, func(i, j int) bool { return hooks[i].ID > hooks[j].ID })
	return hooks, nil
}

func (r *MemoryHookRepository) ListByEvent(_ context.Context, event string) ([]models.Hook, error) {
	return r.filter(func(h models.Hook) bool { return h.Event == event }), nil
}

func (r *MemoryHookRepository) ListByEventOwner(_ context.Context, event, owner string) ([]models.Hook, error) {
	return r.filter(func(h models.Hook) bool { return h.Event == event && h.Owner == owner }), nil
}

func (r *MemoryHookRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hooks[id]; !ok {
		return ErrHookNotFound
	}
	delete(r.hooks, id)
	return nil
}

func (r *MemoryHookRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

func (r *MemoryHookRepository) filter(keep func(models.Hook) bool) []models.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Hook{}
	for _, h := range r.hooks {
		if keep(h) {
			out = append(out, h)
		}
	}
	return out
}
