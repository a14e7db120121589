package persist

import (
	"encoding/json"
	"fmt"
)

// Reader is anything that yields a current value.
type Reader[T any] interface {
	Get() T
}

// Cell is a mutable value with change watchers. A registered cell also
// serializes into saves.
type Cell[T any] struct {
	key      string
	value    T
	initial  T
	registry *Registry
	removed  bool
	watchers map[int]func(next, prev T)
	order    []int
	nextID   int
}

// CellOption configures cell allocation.
type CellOption func(*cellConfig)

type cellConfig struct {
	key string
}

// WithKey pins the registry key instead of generating one.
func WithKey(key string) CellOption {
	return func(cfg *cellConfig) {
		cfg.key = key
	}
}

// Create allocates a cell and registers it in r immediately. A value already
// pending for the key is adopted before Create returns.
func Create[T any](r *Registry, initial T, opts ...CellOption) (*Cell[T], error) {
	if r == nil {
		r = Default
	}
	cfg := cellConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cell := &Cell[T]{value: initial, initial: initial, registry: r}
	_, raw, err := r.register(cfg.key, func(key string) Handle {
		cell.key = key
		return cell
	})
	if err != nil {
		return nil, err
	}
	if raw != nil {
		end := r.BeginLoad()
		defer end()
		if err := cell.decode(raw); err != nil {
			return cell, fmt.Errorf("persist: adopt %q: %w", cell.key, err)
		}
	}
	return cell, nil
}

// MustCreate is Create that panics on error.
func MustCreate[T any](r *Registry, initial T, opts ...CellOption) *Cell[T] {
	cell, err := Create(r, initial, opts...)
	if err != nil {
		panic(err)
	}
	return cell
}

// Ref allocates a reactive cell that never serializes.
func Ref[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, initial: initial}
}

// Key returns the registry key, empty for unregistered cells.
func (c *Cell[T]) Key() string { return c.key }

// Registered reports whether the cell currently serializes.
func (c *Cell[T]) Registered() bool {
	return c.registry != nil && !c.removed
}

// Registry returns the owning registry or nil.
func (c *Cell[T]) Registry() *Registry { return c.registry }

// Get returns the current value.
func (c *Cell[T]) Get() T { return c.value }

// Current returns the value as any.
func (c *Cell[T]) Current() any { return c.value }

// Set replaces the value and notifies watchers in subscription order.
func (c *Cell[T]) Set(next T) {
	prev := c.value
	c.value = next
	revision.Add(1)
	for _, id := range append([]int(nil), c.order...) {
		if fn, ok := c.watchers[id]; ok {
			fn(next, prev)
		}
	}
}

// Update applies fn to the current value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.value))
}

// Reset restores the allocation-time value.
func (c *Cell[T]) Reset() {
	c.Set(c.initial)
}

// Watch subscribes fn to changes and returns the unsubscribe func.
func (c *Cell[T]) Watch(fn func(next, prev T)) (stop func()) {
	if fn == nil {
		return func() {}
	}
	if c.watchers == nil {
		c.watchers = map[int]func(next, prev T){}
	}
	c.nextID++
	id := c.nextID
	c.watchers[id] = fn
	c.order = append(c.order, id)
	return func() {
		delete(c.watchers, id)
		for i, existing := range c.order {
			if existing == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

func (c *Cell[T]) encode() (json.RawMessage, error) {
	return json.Marshal(c.value)
}

func (c *Cell[T]) decode(raw json.RawMessage) error {
	if c.removed {
		return ErrRemoved
	}
	var next T
	if err := json.Unmarshal(raw, &next); err != nil {
		return err
	}
	c.Set(next)
	return nil
}

func (c *Cell[T]) detach() {
	c.removed = true
}
