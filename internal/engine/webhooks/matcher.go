package webhooks

import (
	"context"

	"hookrelay/internal/engine/catalog"
	"hookrelay/internal/platform/models"
)

type Matcher struct {
	store HookStore
}

func NewMatcher(store HookStore) *Matcher {
	return &Matcher{store: store}
}

// Match returns the hooks subscribed to def. Broadcast definitions ignore the
// owner; owner-scoped ones only ever return the owner's hooks, and nothing
// when there is no owner.
func (m *Matcher) Match(ctx context.Context, def catalog.EventDefinition, owner string) ([]models.Hook, error) {
	if def.Broadcast {
		return m.store.ListByEvent(ctx, def.Name)
	}
	if owner == "" {
		return nil, nil
	}
	return m.store.ListByEventOwner(ctx, def.Name, owner)
}
