package webhooks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/models"
)

// Dispatcher hands (hook, payload) pairs to an asynchronous delivery path.
// Deliver never blocks on network I/O.
type Dispatcher interface {
	Deliver(hook models.Hook, payload []byte)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NewDispatcher builds the backend selected by cfg.Backend. rdb is only
// needed for the redis backend.
func NewDispatcher(cfg config.WebhooksConfig, deliverer *Deliverer, rdb *redis.Client, keyPrefix string) (Dispatcher, error) {
	switch cfg.Backend {
	case "", config.BackendPool:
		return NewPoolDispatcher(deliverer, cfg.WorkerCount, cfg.QueueSize), nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, ErrNoRedis
		}
		return NewQueueDispatcher(rdb, deliverer, QueueOptions{
			KeyPrefix: keyPrefix,
			Consumers: cfg.WorkerCount,
			QueueSize: cfg.QueueSize,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// DelivererConfigFrom maps the webhooks config section onto a DelivererConfig.
func DelivererConfigFrom(cfg config.WebhooksConfig) DelivererConfig {
	return DelivererConfig{
		Timeout: cfg.Timeout,
		Policy: RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BackoffBase: cfg.RetryBackoff,
		},
		SigningSecret: cfg.SigningSecret,
	}
}
