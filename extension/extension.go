// Package extension lets modules attach typed, named state to users and
// other entities, and move that state across a process or server boundary
// as text.
//
// Each attribute is an Item registered with a Manager under a unique name.
// An item owns its values exclusively; values are keyed by the entity's
// UUID and removed when the entity is destroyed. Serialize and Unserialize
// are the replication contract: the text form is what crosses a server
// link or survives a module reload.
package extension

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrMalformed wraps every decode failure reported by Unserialize
	ErrMalformed = errors.New("malformed extension value")
	// ErrUnknownItem is returned when no item is registered under a name
	ErrUnknownItem = errors.New("unknown extension item")
	// ErrDuplicateItem is returned when an item name is already taken
	ErrDuplicateItem = errors.New("extension item already registered")
)

// Extensible is anything state can be attached to.
type Extensible interface {
	UUID() string
}

// Codec converts an attribute value to and from its text form.
// Encode must not fail for any value the codec itself produced.
type Codec[T any] interface {
	Encode(value T) string
	Decode(text string) (T, error)
}

// Item is the type-erased view of an attribute used by the Manager.
type Item interface {
	Name() string
	Serialize(e Extensible) (string, bool)
	Unserialize(e Extensible, text string) error
	Unset(e Extensible)
}

// SimpleItem stores one value of type T per entity.
type SimpleItem[T any] struct {
	name   string
	codec  Codec[T]
	mu     sync.RWMutex
	values map[string]T
}

// NewItem creates an item named name whose values are converted with codec
func NewItem[T any](name string, codec Codec[T]) *SimpleItem[T] {
	return &SimpleItem[T]{
		name:   name,
		codec:  codec,
		values: make(map[string]T),
	}
}

// Name returns the name the item is registered under
func (i *SimpleItem[T]) Name() string {
	return i.name
}

// Get returns the value attached to e, if any
func (i *SimpleItem[T]) Get(e Extensible) (T, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	v, ok := i.values[e.UUID()]
	return v, ok
}

// Set attaches v to e, replacing any previous value
func (i *SimpleItem[T]) Set(e Extensible, v T) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.values[e.UUID()] = v
}

// Unset removes the value attached to e. It is a no-op when nothing is attached.
func (i *SimpleItem[T]) Unset(e Extensible) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.values, e.UUID())
}

// Update runs fn on the current value under the item's lock and stores the
// result. fn receives the zero value and false when nothing is attached.
func (i *SimpleItem[T]) Update(e Extensible, fn func(cur T, ok bool) T) T {
	i.mu.Lock()
	defer i.mu.Unlock()

	cur, ok := i.values[e.UUID()]
	next := fn(cur, ok)
	i.values[e.UUID()] = next
	return next
}

// Len returns the number of entities with a value attached
func (i *SimpleItem[T]) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.values)
}

// Serialize returns the text form of the value attached to e
func (i *SimpleItem[T]) Serialize(e Extensible) (string, bool) {
	v, ok := i.Get(e)
	if !ok {
		return "", false
	}
	return i.codec.Encode(v), true
}

// Unserialize decodes text and attaches the result to e, replacing the
// previous value. The whole text is decoded before anything is stored. On a
// decode error the previous value is dropped rather than kept or partially
// replaced, and the error wraps ErrMalformed. Empty text unsets the value.
func (i *SimpleItem[T]) Unserialize(e Extensible, text string) error {
	if text == "" {
		i.Unset(e)
		return nil
	}

	v, err := i.codec.Decode(text)
	if err != nil {
		i.Unset(e)
		return fmt.Errorf("%w: %s: %w", ErrMalformed, i.name, err)
	}

	i.Set(e, v)
	return nil
}

// Manager keeps every registered item by name and remembers which module owns it.
type Manager struct {
	mu     sync.RWMutex
	items  map[string]Item
	owners map[string]string // item name -> owner
}

// NewManager creates an empty Manager
func NewManager() *Manager {
	return &Manager{
		items:  make(map[string]Item),
		owners: make(map[string]string),
	}
}

// Register adds item under its name on behalf of owner
func (m *Manager) Register(owner string, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[item.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, item.Name())
	}
	m.items[item.Name()] = item
	m.owners[item.Name()] = owner
	return nil
}

// Unregister removes the item registered under name
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, name)
	delete(m.owners, name)
}

// UnregisterOwner removes every item registered by owner
func (m *Manager) UnregisterOwner(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, o := range m.owners {
		if o == owner {
			delete(m.items, name)
			delete(m.owners, name)
		}
	}
}

// Lookup returns the item registered under name
func (m *Manager) Lookup(name string) (Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[name]
	return item, ok
}

// Items returns the items registered by owner sorted by name, or every item
// when owner is empty
func (m *Manager) Items(owner string) []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]Item, 0, len(m.items))
	for name, item := range m.items {
		if owner == "" || m.owners[name] == owner {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Name() < items[b].Name() })
	return items
}

// Destroy unsets every item for e. Called when the entity goes away.
func (m *Manager) Destroy(e Extensible) {
	for _, item := range m.Items("") {
		item.Unset(e)
	}
}

// Snapshot returns the serialized values attached to e for the items of
// owner (every item when owner is empty)
func (m *Manager) Snapshot(e Extensible, owner string) map[string]string {
	values := make(map[string]string)
	for _, item := range m.Items(owner) {
		if v, ok := item.Serialize(e); ok {
			values[item.Name()] = v
		}
	}
	return values
}

// Apply unserializes value into the item registered under name
func (m *Manager) Apply(e Extensible, name, value string) error {
	item, ok := m.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, name)
	}
	return item.Unserialize(e, value)
}
