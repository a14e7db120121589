package feat

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldNotBridged is raised when reading a field that has not been
	// bridged on the feature.
	ErrFieldNotBridged = errors.New("feat: field not bridged")
	// ErrFieldType is returned when a field input cannot produce the field's type.
	ErrFieldType = errors.New("feat: field type mismatch")
	// ErrDuplicateField is returned when a field name is bridged twice.
	ErrDuplicateField = errors.New("feat: duplicate field")
	// ErrCycle is raised when a computed value reads itself while evaluating.
	ErrCycle = errors.New("feat: computed cycle")
)

// FieldError ties a field failure to its feature.
type FieldError struct {
	Feature string
	Field   string
	Err     error
}

func (e *FieldError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("feat: feature %q field %q: %v", e.Feature, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fields is the read side of a feature's bridged values, keyed by field name.
// Derivations receive it to read sibling fields.
type Fields struct {
	owner   string
	order   []string
	readers map[string]func() any
}

func newFields(owner string) *Fields {
	return &Fields{owner: owner, readers: map[string]func() any{}}
}

// Has reports whether name is bridged.
func (f *Fields) Has(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.readers[name]
	return ok
}

// Names returns bridged field names in bridge order.
func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.order...)
}

// Lookup returns the current value of name.
func (f *Fields) Lookup(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	read, ok := f.readers[name]
	if !ok {
		return nil, false
	}
	return read(), true
}

// Value returns the current value of name and panics with a *FieldError when
// the field is not bridged.
func (f *Fields) Value(name string) any {
	value, ok := f.Lookup(name)
	if !ok {
		owner := ""
		if f != nil {
			owner = f.owner
		}
		panic(&FieldError{Feature: owner, Field: name, Err: ErrFieldNotBridged})
	}
	return value
}

// Field reads name from f as T, panicking when the field is missing or holds
// another type.
func Field[T any](f *Fields, name string) T {
	value := f.Value(name)
	typed, ok := value.(T)
	if !ok {
		var zero T
		panic(&FieldError{Feature: f.owner, Field: name, Err: fmt.Errorf("%w: have %T want %T", ErrFieldType, value, zero)})
	}
	return typed
}

func (f *Fields) define(name string, read func() any) error {
	if name == "" {
		return fmt.Errorf("feat: field name must not be empty")
	}
	if _, exists := f.readers[name]; exists {
		return &FieldError{Feature: f.owner, Field: name, Err: ErrDuplicateField}
	}
	f.readers[name] = read
	f.order = append(f.order, name)
	return nil
}

func (f *Fields) remove(name string) {
	if _, ok := f.readers[name]; !ok {
		return
	}
	delete(f.readers, name)
	for i, existing := range f.order {
		if existing == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *Fields) snapshot(names []string, mapValue func(any) any) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		value, ok := f.Lookup(name)
		if !ok {
			continue
		}
		if mapValue != nil {
			value = mapValue(value)
		}
		out[name] = value
	}
	return out
}

// samples is snapshot for compile-time typing. A field whose read panics is
// declared without a sample.
func (f *Fields) samples(names []string, mapValue func(any) any) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		out[name] = f.sample(name, mapValue)
	}
	return out
}

func (f *Fields) sample(name string, mapValue func(any) any) (value any) {
	defer func() {
		if recover() != nil {
			value = nil
		}
	}()
	value, _ = f.Lookup(name)
	if mapValue != nil {
		value = mapValue(value)
	}
	return value
}
