// Package layer groups features into named layers. Each active layer owns a
// namespace of the cell registry, so a save stores its cells per layer and a
// load can drop and rebuild a layer wholesale.
package layer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/persist"
)

var (
	ErrUnknownLayer   = errors.New("layer: unknown layer")
	ErrDuplicateLayer = errors.New("layer: layer already defined")
	ErrLayerActive    = errors.New("layer: layer already active")
)

// Definition declares a layer. Build creates the layer's features through
// l.Host() and registers anything that needs tearing down with l.Own.
type Definition struct {
	ID    string
	Build func(l *Layer) error
}

// Layer is one active instance of a Definition.
type Layer struct {
	id      string
	host    feat.Host
	cells   *persist.Registry
	owned   []func()
	exposed map[string]any
}

func (l *Layer) ID() string               { return l.id }
func (l *Layer) Host() feat.Host          { return l.host }
func (l *Layer) Cells() *persist.Registry { return l.cells }

// Own registers a feature (anything with Teardown) to be torn down with the
// layer.
func (l *Layer) Own(t interface{ Teardown() }) {
	if t != nil {
		l.owned = append(l.owned, t.Teardown)
	}
}

// OnRemove registers fn to run when the layer is removed.
func (l *Layer) OnRemove(fn func()) {
	if fn != nil {
		l.owned = append(l.owned, fn)
	}
}

// Expose publishes value under name for other layers and the render side.
func (l *Layer) Expose(name string, value any) {
	if l.exposed == nil {
		l.exposed = map[string]any{}
	}
	l.exposed[name] = value
}

// Lookup returns a value published with Expose.
func (l *Layer) Lookup(name string) (any, bool) {
	value, ok := l.exposed[name]
	return value, ok
}

func (l *Layer) teardown() {
	for i := len(l.owned) - 1; i >= 0; i-- {
		l.owned[i]()
	}
	l.owned = nil
	l.cells.Clear()
}

// Registry holds layer definitions and the currently active layers.
type Registry struct {
	mu       sync.Mutex
	root     *persist.Registry
	bus      *feat.Bus
	formulas *feat.FormulaEngine
	order    []string
	defs     map[string]Definition
	active   map[string]*Layer
}

// NewRegistry builds a registry whose layers namespace root and share bus and
// formulas.
func NewRegistry(root *persist.Registry, bus *feat.Bus, formulas *feat.FormulaEngine) *Registry {
	if root == nil {
		root = persist.Default
	}
	if bus == nil {
		bus = feat.NewBus()
	}
	if formulas == nil {
		formulas = feat.NewFormulaEngine()
	}
	return &Registry{
		root:     root,
		bus:      bus,
		formulas: formulas,
		defs:     map[string]Definition{},
		active:   map[string]*Layer{},
	}
}

func (r *Registry) Cells() *persist.Registry { return r.root }
func (r *Registry) Bus() *feat.Bus           { return r.bus }

// Define adds layer definitions. Layers are added in definition order.
func (r *Registry) Define(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		if def.ID == "" {
			return fmt.Errorf("layer: definition id is required")
		}
		if _, exists := r.defs[def.ID]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateLayer, def.ID)
		}
		r.defs[def.ID] = def
		r.order = append(r.order, def.ID)
	}
	return nil
}

// Defined lists every defined layer id in definition order.
func (r *Registry) Defined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// LayerIDs lists the active layer ids in definition order.
func (r *Registry) LayerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for _, id := range r.order {
		if _, ok := r.active[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Layer returns an active layer.
func (r *Registry) Layer(id string) (*Layer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.active[id]
	return l, ok
}

// AddLayer activates id with saved cell values. Values are staged before the
// layer builds so its cells pick them up as they are created, including cells
// of features that materialize later.
func (r *Registry) AddLayer(id string, data map[string]json.RawMessage) error {
	r.mu.Lock()
	def, ok := r.defs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	if _, active := r.active[id]; active {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerActive, id)
	}
	cells := r.root.Namespace(id)
	l := &Layer{id: id, cells: cells, host: feat.NewHost(cells, r.bus, r.formulas)}
	r.active[id] = l
	r.mu.Unlock()

	if len(data) > 0 {
		if err := cells.RestoreAll(data); err != nil {
			r.RemoveLayer(id)
			return fmt.Errorf("layer: restore %q: %w", id, err)
		}
	}
	if def.Build != nil {
		if err := def.Build(l); err != nil {
			r.RemoveLayer(id)
			return fmt.Errorf("layer: build %q: %w", id, err)
		}
	}
	return nil
}

// RemoveLayer tears down an active layer and drops its cells.
func (r *Registry) RemoveLayer(id string) {
	r.mu.Lock()
	l, ok := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()
	if ok {
		l.teardown()
	}
}

// SnapshotLayer encodes the cells of an active layer.
func (r *Registry) SnapshotLayer(id string) (map[string]json.RawMessage, error) {
	l, ok := r.Layer(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	return l.cells.SnapshotAll()
}
