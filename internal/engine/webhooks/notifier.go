package webhooks

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/engine/catalog"
	"hookrelay/internal/platform/metrics"
	"hookrelay/internal/platform/models"
)

// Owned is implemented by instances that know which principal they belong
// to. ok is false when the owner cannot be determined.
type Owned interface {
	HookOwner() (owner string, ok bool)
}

// Resource names the resource type of an instance for Trigger. Without it the
// Go type name is used.
type Resource interface {
	HookResource() string
}

type customOptions struct {
	withMeta bool
}

type CustomOption func(*customOptions)

// WithoutHookMeta sends the custom payload as the whole body.
func WithoutHookMeta() CustomOption {
	return func(o *customOptions) { o.withMeta = false }
}

// Notifier classifies lifecycle notifications against the catalog and hands
// every matching hook to the dispatcher. It runs on the caller's goroutine
// and never waits on delivery.
type Notifier struct {
	catalog    *catalog.Catalog
	matcher    *Matcher
	serializer *Serializer
	dispatcher Dispatcher
}

func NewNotifier(cat *catalog.Catalog, store HookStore, serializer *Serializer, dispatcher Dispatcher) *Notifier {
	if serializer == nil {
		serializer = NewSerializer(nil)
	}
	return &Notifier{
		catalog:    cat,
		matcher:    NewMatcher(store),
		serializer: serializer,
		dispatcher: dispatcher,
	}
}

// Notify reports that instance of resourceType underwent action. Actions with
// no catalog entry are ignored. owner overrides the instance's own Owned
// answer when not empty.
func (n *Notifier) Notify(ctx context.Context, resourceType, action string, instance any, owner string) error {
	def, ok := n.catalog.Resolve(resourceType, action)
	if !ok {
		return nil
	}
	return n.fire(ctx, def, resolveOwner(instance, owner), func(hook models.Hook) ([]byte, error) {
		return n.serializer.Serialize(instance, hook)
	})
}

// Trigger is Notify with the resource type taken from the instance.
func (n *Notifier) Trigger(ctx context.Context, action string, instance any, owner string) error {
	return n.Notify(ctx, ResourceType(instance), action, instance, owner)
}

// Fire triggers the named event for instance directly.
func (n *Notifier) Fire(ctx context.Context, event string, instance any, owner string) error {
	def, ok := n.catalog.Lookup(event)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	return n.fire(ctx, def, resolveOwner(instance, owner), func(hook models.Hook) ([]byte, error) {
		return n.serializer.Serialize(instance, hook)
	})
}

// NotifyCustom sends payload for a named event without resource resolution.
// The payload goes out as "data" unless WithoutHookMeta is given.
func (n *Notifier) NotifyCustom(ctx context.Context, event string, payload any, owner string, opts ...CustomOption) error {
	def, ok := n.catalog.Lookup(event)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	o := customOptions{withMeta: true}
	for _, opt := range opts {
		opt(&o)
	}

	return n.fire(ctx, def, resolveOwner(payload, owner), func(hook models.Hook) ([]byte, error) {
		return n.serializer.Raw(payload, hook, o.withMeta)
	})
}

func (n *Notifier) fire(ctx context.Context, def catalog.EventDefinition, owner string, encode func(models.Hook) ([]byte, error)) error {
	if !def.Broadcast && owner == "" {
		log.Debug().Str("event", def.Name).Msg("dropping owner-scoped event without owner")
		return nil
	}

	hooks, err := n.matcher.Match(ctx, def, owner)
	if err != nil {
		return fmt.Errorf("match hooks for %s: %w", def.Name, err)
	}
	metrics.Notifications.WithLabelValues(def.Name, matchedLabel(len(hooks))).Inc()

	var errs []error
	for _, hook := range hooks {
		payload, err := encode(hook)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n.dispatcher.Deliver(hook, payload)
	}

	log.Debug().
		Str("event", def.Name).
		Str("owner", owner).
		Bool("broadcast", def.Broadcast).
		Int("hooks", len(hooks)).
		Msg("event dispatched")

	return errors.Join(errs...)
}

func resolveOwner(instance any, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if o, ok := instance.(Owned); ok {
		if owner, ok := o.HookOwner(); ok {
			return owner
		}
	}
	return ""
}

// ResourceType returns the catalog resource type for instance.
func ResourceType(instance any) string {
	if r, ok := instance.(Resource); ok {
		return r.HookResource()
	}
	t := reflect.TypeOf(instance)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

func matchedLabel(n int) string {
	if n == 0 {
		return "false"
	}
	return "true"
}
