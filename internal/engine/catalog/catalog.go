package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// BroadcastMarker is appended to an action ("Book.created+") to make a
// definition fire for every owner instead of only the notifying one.
const BroadcastMarker = "+"

// MaxNameLength matches the hooks.event column.
const MaxNameLength = 64

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

var (
	ErrDuplicateEvent   = errors.New("duplicate event name")
	ErrAmbiguousAction  = errors.New("resource action mapped by more than one event")
	ErrInvalidEventName = errors.New("event name must be 1-64 characters")
	ErrInvalidAction    = errors.New("action must be of the form Resource.action")
)

type EventDefinition struct {
	Name         string `json:"name"`
	ResourceType string `json:"resource_type,omitempty"`
	Action       string `json:"action,omitempty"`
	Broadcast    bool   `json:"broadcast"`
}

// Custom reports whether the definition can only be reached by name,
// never through a resource lifecycle notification.
func (d EventDefinition) Custom() bool {
	return d.ResourceType == "" && d.Action == ""
}

// Entry is the configuration form of a definition.
type Entry struct {
	Name      string `mapstructure:"name"`
	Action    string `mapstructure:"action"`
	Broadcast bool   `mapstructure:"broadcast"`
}

// Catalog is immutable once built; share it freely between goroutines.
type Catalog struct {
	byName   map[string]EventDefinition
	byAction map[string]EventDefinition
}

func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		byName:   make(map[string]EventDefinition, len(entries)),
		byAction: make(map[string]EventDefinition, len(entries)),
	}

	for _, entry := range entries {
		def, err := ParseEntry(entry)
		if err != nil {
			return nil, err
		}
		if _, exists := c.byName[def.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, def.Name)
		}
		if !def.Custom() {
			key := actionKey(def.ResourceType, def.Action)
			if other, exists := c.byAction[key]; exists {
				return nil, fmt.Errorf("%w: %s (%s, %s)", ErrAmbiguousAction, key, other.Name, def.Name)
			}
			c.byAction[key] = def
		}
		c.byName[def.Name] = def
	}

	return c, nil
}

// ParseEntry turns "Resource.action" / "Resource.action+" / "+" / "" into a definition.
func ParseEntry(entry Entry) (EventDefinition, error) {
	name := strings.TrimSpace(entry.Name)
	if name == "" || len(name) > MaxNameLength {
		return EventDefinition{}, fmt.Errorf("%w: %q", ErrInvalidEventName, entry.Name)
	}

	def := EventDefinition{Name: name, Broadcast: entry.Broadcast}

	action := strings.TrimSpace(entry.Action)
	if strings.HasSuffix(action, BroadcastMarker) {
		def.Broadcast = true
		action = strings.TrimSuffix(action, BroadcastMarker)
	}
	if action == "" {
		return def, nil
	}

	// Resource names may themselves be dotted (app.Model), the action is the last segment.
	idx := strings.LastIndex(action, ".")
	if idx <= 0 || idx == len(action)-1 {
		return EventDefinition{}, fmt.Errorf("%w: %q", ErrInvalidAction, entry.Action)
	}
	def.ResourceType = action[:idx]
	def.Action = action[idx+1:]

	return def, nil
}

// Resolve finds the definition for a lifecycle notification.
func (c *Catalog) Resolve(resourceType, action string) (EventDefinition, bool) {
	if c == nil {
		return EventDefinition{}, false
	}
	def, ok := c.byAction[actionKey(resourceType, action)]
	return def, ok
}

func (c *Catalog) Lookup(name string) (EventDefinition, bool) {
	if c == nil {
		return EventDefinition{}, false
	}
	def, ok := c.byName[name]
	return def, ok
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}

// Names returns the event names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every definition sorted by name.
func (c *Catalog) Definitions() []EventDefinition {
	names := c.Names()
	defs := make([]EventDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, c.byName[name])
	}
	return defs
}

func actionKey(resourceType, action string) string {
	return resourceType + "." + action
}
