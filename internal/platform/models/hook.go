package models

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidTarget = errors.New("target must be an absolute http or https URL")

// MaxTargetLength matches the hooks.target column.
const MaxTargetLength = 255

type Hook struct {
	ID        int64  `json:"id"`
	Owner     string `json:"owner,omitempty"` // empty when the hook has no owning principal
	Event     string `json:"event"`
	Target    string `json:"target"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// HookMeta is the "hook" block of every outbound payload.
type HookMeta struct {
	ID     int64  `json:"id"`
	Event  string `json:"event"`
	Target string `json:"target"`
}

func (h Hook) Meta() HookMeta {
	return HookMeta{ID: h.ID, Event: h.Event, Target: h.Target}
}

func (h Hook) String() string {
	return h.Event + " => " + h.Target
}

func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" || len(target) > MaxTargetLength {
		return ErrInvalidTarget
	}

	u, err := url.Parse(target)
	if err != nil {
		return ErrInvalidTarget
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidTarget
	}
	if u.Host == "" {
		return ErrInvalidTarget
	}

	return nil
}
