package feat

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-features/pkg/persist"
)

// ErrMissingField is returned when a feature lacks a field it cannot be built
// without.
var ErrMissingField = errors.New("feat: missing required field")

// Type tags the kind of a feature.
type Type string

// Visibility controls whether a feature renders.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
	None
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	case None:
		return "none"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// ParseVisibility maps a visibility name back to its value.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "visible":
		return Visible, nil
	case "hidden":
		return Hidden, nil
	case "none":
		return None, nil
	}
	return None, fmt.Errorf("%w: unknown visibility %q", ErrFieldType, s)
}

// ConstructionError reports a feature that failed to materialize.
type ConstructionError struct {
	ID   string
	Kind Type
	Err  error
}

func (e *ConstructionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("feat: construct %s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReserveID hands out the next generated id for kind in h's registry. Lazy
// constructors call it when they are declared so a feature without an explicit
// id keeps the same id, and therefore the same saved keys, no matter when it
// materializes.
func ReserveID(h Host, kind Type) string {
	if h == nil {
		h = NewHost(nil, nil, nil)
	}
	prefix := string(kind)
	if prefix == "" {
		prefix = "feature"
	}
	return h.Cells().NextID(prefix)
}

// Host bundles the process collaborators features are built against.
type Host interface {
	Cells() *persist.Registry
	Bus() *Bus
	Formulas() *FormulaEngine
}

type host struct {
	cells    *persist.Registry
	bus      *Bus
	formulas *FormulaEngine
}

// NewHost builds a Host. Nil arguments fall back to persist.Default, a new
// Bus and a default FormulaEngine.
func NewHost(cells *persist.Registry, bus *Bus, formulas *FormulaEngine) Host {
	if cells == nil {
		cells = persist.Default
	}
	if bus == nil {
		bus = NewBus()
	}
	if formulas == nil {
		formulas = NewFormulaEngine()
	}
	return &host{cells: cells, bus: bus, formulas: formulas}
}

func (h *host) Cells() *persist.Registry { return h.cells }
func (h *host) Bus() *Bus                { return h.bus }
func (h *host) Formulas() *FormulaEngine { return h.formulas }

// Base is the shared shape of every feature: identity, bridged fields,
// persistent cells, named actions and the exposed prop list.
type Base struct {
	id         string
	kind       Type
	host       Host
	fields     *Fields
	persistent map[string]persist.Handle
	actions    map[string]func()
	props      []string
	decorators []Decorator
	offs       []func()
	torn       bool
}

func newBase(h Host, kind Type, id string, decorators []Decorator) *Base {
	return &Base{
		id:         id,
		kind:       kind,
		host:       h,
		fields:     newFields(id),
		persistent: map[string]persist.Handle{},
		actions:    map[string]func(){},
		decorators: append([]Decorator(nil), decorators...),
	}
}

func (b *Base) ID() string      { return b.id }
func (b *Base) Kind() Type      { return b.kind }
func (b *Base) Host() Host      { return b.host }
func (b *Base) Fields() *Fields { return b.fields }

// Cells returns the registry this feature persists into.
func (b *Base) Cells() *persist.Registry { return b.host.Cells() }

// Visibility reads the visibility field, defaulting to Visible.
func (b *Base) Visibility() Visibility {
	if value, ok := b.fields.Lookup("visibility"); ok {
		if v, ok := value.(Visibility); ok {
			return v
		}
	}
	return Visible
}

// Visible reports whether the feature currently renders.
func (b *Base) Visible() bool {
	return b.Visibility() == Visible
}

// Persist allocates a cell keyed "<id>.<name>" in the feature's registry,
// records it as persistent data and bridges it as field name.
func Persist[T any](b *Base, name string, initial T) (*persist.Cell[T], error) {
	cell, err := persist.Create(b.Cells(), initial, persist.WithKey(b.id+"."+name))
	if err != nil {
		return nil, &FieldError{Feature: b.id, Field: name, Err: err}
	}
	if err := b.AddPersistent(name, cell); err != nil {
		b.Cells().Delete(cell)
		return nil, err
	}
	return cell, nil
}

// AddPersistent records h under name and exposes its value as a field.
func (b *Base) AddPersistent(name string, h persist.Handle) error {
	if h == nil {
		return nil
	}
	if err := b.fields.define(name, h.Current); err != nil {
		return err
	}
	b.persistent[name] = h
	return nil
}

// Persistent returns the persistent handle recorded under name.
func (b *Base) Persistent(name string) (persist.Handle, bool) {
	h, ok := b.persistent[name]
	return h, ok
}

// PersistentNames lists persistent data names sorted alphabetically.
func (b *Base) PersistentNames() []string {
	names := make([]string, 0, len(b.persistent))
	for name := range b.persistent {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DropPersistent removes name from the save and from the feature's fields.
func (b *Base) DropPersistent(name string) {
	h, ok := b.persistent[name]
	if !ok {
		return
	}
	delete(b.persistent, name)
	b.fields.remove(name)
	b.Cells().Delete(h)
}

// SetAction registers a behavior under name, replacing any previous one.
func (b *Base) SetAction(name string, fn func()) {
	if fn == nil {
		delete(b.actions, name)
		return
	}
	b.actions[name] = fn
}

// Action returns the behavior registered under name.
func (b *Base) Action(name string) (func(), bool) {
	fn, ok := b.actions[name]
	return fn, ok
}

// Call runs the named action and reports whether it existed.
func (b *Base) Call(name string) bool {
	fn, ok := b.actions[name]
	if ok {
		fn()
	}
	return ok
}

// On subscribes fn to a bus event for the lifetime of the feature.
func (b *Base) On(event Event, fn Handler) {
	b.offs = append(b.offs, b.host.Bus().On(event, fn))
}

// AddProps exposes field names to the render boundary. Duplicates are ignored.
func (b *Base) AddProps(names ...string) {
	seen := make(map[string]bool, len(b.props))
	for _, name := range b.props {
		seen[name] = true
	}
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		b.props = append(b.props, name)
	}
}

// Props returns the exposed field names in declaration order.
func (b *Base) Props() []string {
	return append([]string(nil), b.props...)
}

// Decorators returns the decorators the feature was built with.
func (b *Base) Decorators() []Decorator {
	return append([]Decorator(nil), b.decorators...)
}

// Teardown unsubscribes the feature and deletes its persistent cells.
func (b *Base) Teardown() {
	if b.torn {
		return
	}
	b.torn = true
	for _, off := range b.offs {
		off()
	}
	b.offs = nil
	for _, name := range b.PersistentNames() {
		b.Cells().Delete(b.persistent[name])
	}
}

// Builder bridges a feature's fields from its resolved options.
type Builder func(b *Base) error

// Construct runs the feature construction protocol: identity, decorator
// persistent data, build, decorator post-construct hooks in order, then
// gathered props. An empty id gets the next one from ReserveID.
func Construct(h Host, kind Type, id string, decorators []Decorator, build Builder) (*Base, error) {
	if h == nil {
		h = NewHost(nil, nil, nil)
	}
	if id == "" {
		id = ReserveID(h, kind)
	}
	b := newBase(h, kind, id, decorators)
	fail := func(err error) (*Base, error) {
		b.Teardown()
		return nil, &ConstructionError{ID: id, Kind: kind, Err: err}
	}

	for _, d := range decorators {
		provider, ok := d.(PersistentDataProvider)
		if !ok {
			continue
		}
		if err := provider.PersistentData(b); err != nil {
			return fail(err)
		}
	}
	if build != nil {
		if err := build(b); err != nil {
			return fail(err)
		}
	}
	for _, d := range decorators {
		hook, ok := d.(PostConstructor)
		if !ok {
			continue
		}
		if err := hook.PostConstruct(b); err != nil {
			return fail(err)
		}
	}
	for _, d := range decorators {
		if gatherer, ok := d.(PropGatherer); ok {
			b.AddProps(gatherer.GatheredProps()...)
		}
	}
	return b, nil
}

// Require fails with ErrMissingField when any of names is not bridged.
func Require(b *Base, names ...string) error {
	var missing []string
	for _, name := range names {
		if !b.fields.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
}
