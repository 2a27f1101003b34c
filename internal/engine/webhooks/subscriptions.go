package webhooks

import (
	"context"
	"fmt"

	"hookrelay/internal/engine/catalog"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

// Subscriptions is the owner-scoped management side of the hook store.
type Subscriptions struct {
	catalog *catalog.Catalog
	store   HookStore
}

func NewSubscriptions(cat *catalog.Catalog, store HookStore) *Subscriptions {
	return &Subscriptions{catalog: cat, store: store}
}

// Subscribe registers target for event on behalf of owner.
func (s *Subscriptions) Subscribe(ctx context.Context, owner, event, target string) (*models.Hook, error) {
	if !s.catalog.Has(event) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	if err := models.ValidateTarget(target); err != nil {
		return nil, err
	}

	hook := &models.Hook{Owner: owner, Event: event, Target: target}
	if err := s.store.Create(ctx, hook); err != nil {
		return nil, fmt.Errorf("create hook: %w", err)
	}
	return hook, nil
}

func (s *Subscriptions) List(ctx context.Context, owner string) ([]models.Hook, error) {
	return s.store.ListByOwner(ctx, owner)
}

// Get returns the hook only when owner owns it.
func (s *Subscriptions) Get(ctx context.Context, owner string, id int64) (*models.Hook, error) {
	hook, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if hook.Owner != owner {
		return nil, repositories.ErrHookNotFound
	}
	return hook, nil
}

func (s *Subscriptions) Unsubscribe(ctx context.Context, owner string, id int64) error {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

func (s *Subscriptions) Events() []catalog.EventDefinition {
	return s.catalog.Definitions()
}
