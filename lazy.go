package feat

import (
	"errors"
	"fmt"
)

// ErrRecursiveMaterialization is returned when a lazy value is read from its
// own constructor.
var ErrRecursiveMaterialization = errors.New("feat: lazy value read during its own construction")

type lazyState uint8

const (
	lazyPending lazyState = iota
	lazyBuilding
	lazyDone
)

// Lazy defers construction until first access and then returns the same
// instance forever. Construction failures are memoized too.
type Lazy[T any] struct {
	build func() (T, error)
	value T
	err   error
	state lazyState
}

// NewLazy wraps build. build runs at most once.
func NewLazy[T any](build func() (T, error)) *Lazy[T] {
	return &Lazy[T]{build: build}
}

// Resolve materializes the value on first call.
func (l *Lazy[T]) Resolve() (T, error) {
	switch l.state {
	case lazyDone:
		return l.value, l.err
	case lazyBuilding:
		var zero T
		return zero, ErrRecursiveMaterialization
	}
	l.state = lazyBuilding
	l.value, l.err = l.run()
	l.state = lazyDone
	l.build = nil
	return l.value, l.err
}

func (l *Lazy[T]) run() (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = fmt.Errorf("feat: materialize: %w", rErr)
				return
			}
			err = fmt.Errorf("feat: materialize: %v", r)
		}
	}()
	if l.build == nil {
		return value, fmt.Errorf("feat: lazy value has no constructor")
	}
	return l.build()
}

// Get materializes the value and panics if construction failed.
func (l *Lazy[T]) Get() T {
	value, err := l.Resolve()
	if err != nil {
		panic(err)
	}
	return value
}

// Materialized reports whether construction has run.
func (l *Lazy[T]) Materialized() bool {
	return l.state == lazyDone
}
