package feat

import (
	"fmt"

	"github.com/goliatone/go-features/pkg/persist"
)

// Reader is anything that yields a current value. Cells and computed values
// both satisfy it.
type Reader[T any] interface {
	Get() T
}

// Computed is a read-only derived value. Derivations are recomputed on read
// and cached until the next change to any persistent cell or tick.
type Computed[T any] struct {
	name   string
	read   func() T
	source Reader[T]
	static bool

	cached T
	rev    uint64
	valid  bool
	busy   bool
}

// Const wraps a fixed value.
func Const[T any](value T) *Computed[T] {
	return &Computed[T]{read: func() T { return value }, cached: value, static: true, valid: true}
}

// Derive wraps a derivation evaluated on demand.
func Derive[T any](fn func() T) *Computed[T] {
	return &Computed[T]{read: fn}
}

// Track passes reads straight through to r.
func Track[T any](r Reader[T]) *Computed[T] {
	return &Computed[T]{source: r}
}

// Get returns the current value.
func (c *Computed[T]) Get() T {
	if c == nil {
		var zero T
		return zero
	}
	if c.static {
		return c.cached
	}
	if c.source != nil {
		return c.source.Get()
	}
	rev := persist.Revision()
	if c.valid && c.rev == rev {
		return c.cached
	}
	if c.busy {
		panic(&FieldError{Field: c.name, Err: ErrCycle})
	}
	c.busy = true
	defer func() { c.busy = false }()
	value := c.read()
	c.cached, c.rev, c.valid = value, rev, true
	return value
}

// Invalidate drops the cached value so the next read recomputes.
func (c *Computed[T]) Invalidate() {
	if c != nil {
		c.valid = false
	}
}

// Name returns the field name the value was bridged under, if any.
func (c *Computed[T]) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Bridge converts input into a computed value and registers it on b as field
// name. Accepted inputs are a plain T, func() T, func(*Fields) T, a Reader[T],
// an existing *Computed[T], or a Formula. A nil input leaves the field unset
// and returns nil.
func Bridge[T any](b *Base, name string, input any) (*Computed[T], error) {
	c, err := toComputed[T](b, name, input)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	if c.name == "" {
		c.name = name
	}
	if err := b.fields.define(name, func() any { return c.Get() }); err != nil {
		return nil, err
	}
	return c, nil
}

// BridgeOr is Bridge with def standing in for a nil input.
func BridgeOr[T any](b *Base, name string, input any, def T) (*Computed[T], error) {
	if input == nil {
		input = def
	}
	return Bridge[T](b, name, input)
}

// MustBridge is Bridge that panics on error.
func MustBridge[T any](b *Base, name string, input any) *Computed[T] {
	c, err := Bridge[T](b, name, input)
	if err != nil {
		panic(err)
	}
	return c
}

func toComputed[T any](b *Base, name string, input any) (*Computed[T], error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case Formula:
		return compileFormula[T](b, name, v)
	case *Computed[T]:
		if v == nil {
			return nil, nil
		}
		return Track[T](v), nil
	case func() T:
		if v == nil {
			return nil, nil
		}
		return Derive(v), nil
	case func(*Fields) T:
		if v == nil {
			return nil, nil
		}
		fields := b.fields
		return Derive(func() T { return v(fields) }), nil
	case Reader[T]:
		return Track(v), nil
	case T:
		return Const(v), nil
	}
	value, err := convertValue[T](input)
	if err != nil {
		var zero T
		return nil, &FieldError{Feature: b.id, Field: name, Err: fmt.Errorf("%w: cannot bridge %T into %T", ErrFieldType, input, zero)}
	}
	return Const(value), nil
}
