package webhooks

import (
	"context"

	"hookrelay/internal/platform/models"
)

// HookStore is the subscription store the engine reads from and revokes
// through. Both repositories.HookRepository and
// repositories.MemoryHookRepository satisfy it.
type HookStore interface {
	Create(ctx context.Context, hook *models.Hook) error
	GetByID(ctx context.Context, id int64) (*models.Hook, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Hook, error)
	ListByEvent(ctx context.Context, event string) ([]models.Hook, error)
	ListByEventOwner(ctx context.Context, event, owner string) ([]models.Hook, error)
	Delete(ctx context.Context, id int64) error
}
