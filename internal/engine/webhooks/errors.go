package webhooks

import "errors"

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrUnknownBackend = errors.New("unknown delivery backend")
	ErrNoRedis        = errors.New("redis backend requires a redis client")
)
