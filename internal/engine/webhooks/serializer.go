package webhooks

import (
	"encoding/json"
	"fmt"

	"hookrelay/internal/platform/models"
)

// HookSerializer lets an instance produce its own outbound document. The
// returned value is encoded as the whole body, no "hook" wrapper is added.
// A []byte or json.RawMessage result must already be JSON.
type HookSerializer interface {
	SerializeHook(hook models.Hook) (any, error)
}

// SerializeFunc is a process-wide fallback used for instances that do not
// implement HookSerializer.
type SerializeFunc func(instance any, hook models.Hook) (any, error)

// Payload is the default outbound document.
type Payload struct {
	Hook models.HookMeta `json:"hook"`
	Data any             `json:"data"`
}

type Serializer struct {
	Fallback SerializeFunc
}

func NewSerializer(fallback SerializeFunc) *Serializer {
	return &Serializer{Fallback: fallback}
}

// Serialize picks, in order, the instance's own HookSerializer, the
// fallback, then the default {"hook": ..., "data": ...} document.
func (s *Serializer) Serialize(instance any, hook models.Hook) ([]byte, error) {
	var (
		doc any
		err error
	)

	switch {
	case implementsSerializer(instance):
		doc, err = instance.(HookSerializer).SerializeHook(hook)
	case s != nil && s.Fallback != nil:
		doc, err = s.Fallback(instance, hook)
	default:
		doc = Payload{Hook: hook.Meta(), Data: instance}
	}
	if err != nil {
		return nil, fmt.Errorf("serialize for hook %d: %w", hook.ID, err)
	}

	return encode(doc)
}

// Raw builds the body of a custom event. Without meta the caller's payload
// is the entire body.
func (s *Serializer) Raw(payload any, hook models.Hook, withMeta bool) ([]byte, error) {
	if !withMeta {
		return encode(payload)
	}
	return encode(Payload{Hook: hook.Meta(), Data: payload})
}

func implementsSerializer(instance any) bool {
	_, ok := instance.(HookSerializer)
	return ok
}

// encode marshals doc. json.RawMessage and []byte are taken as an already
// encoded document and sent unchanged once checked.
func encode(doc any) ([]byte, error) {
	var raw []byte
	switch v := doc.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return json.Marshal(doc)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return raw, nil
}
