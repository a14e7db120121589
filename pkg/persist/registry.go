// Package persist holds the process-wide table of mutable cells whose values
// travel with a save.
//
// Cells are registered when they are allocated, not when they are first used.
// A Registry snapshot maps each live key to the JSON encoding of its value and
// a restore applies such a mapping back by key. Keys that arrive before their
// cell exists (features materialize lazily) are held pending and adopted when
// the cell is created.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrDuplicateKey is returned when two live cells claim the same key.
	ErrDuplicateKey = errors.New("persist: duplicate key")
	// ErrRemoved is returned when restoring into a cell that was deleted.
	ErrRemoved = errors.New("persist: cell removed")
)

// Default is the process-wide registry used when callers do not supply one.
var Default = NewRegistry()

var revision atomic.Uint64

// Revision reports the global change counter. Every cell write and every
// explicit Bump advances it; computed values cache against it.
func Revision() uint64 {
	return revision.Load()
}

// Bump advances the global revision without writing a cell. The tick loop
// calls it so derivations reading non-cell state refresh once per tick.
func Bump() {
	revision.Add(1)
}

// Handle is the type-erased view of a cell the registry stores.
type Handle interface {
	Key() string
	Current() any
	encode() (json.RawMessage, error)
	decode(json.RawMessage) error
	detach()
}

type loadFlag struct {
	depth atomic.Int32
}

// Registry tracks live cells by key.
type Registry struct {
	mu      sync.Mutex
	prefix  string
	seq     int
	ids     map[string]int
	cells   map[string]Handle
	pending map[string]json.RawMessage
	loading *loadFlag
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithKeyPrefix sets the prefix used for generated keys.
func WithKeyPrefix(prefix string) RegistryOption {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		prefix:  "cell-",
		cells:   map[string]Handle{},
		pending: map[string]json.RawMessage{},
		loading: &loadFlag{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Namespace returns an independent keyspace that shares r's load flag. Layers
// use one namespace each so their cells serialize separately.
func (r *Registry) Namespace(name string) *Registry {
	return &Registry{
		prefix:  name + "/cell-",
		cells:   map[string]Handle{},
		pending: map[string]json.RawMessage{},
		loading: r.loading,
	}
}

// BeginLoad marks the registry family as mid-load until the returned func is
// called. Calls nest.
func (r *Registry) BeginLoad() (end func()) {
	r.loading.depth.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { r.loading.depth.Add(-1) })
	}
}

// Loading reports whether a load is in progress.
func (r *Registry) Loading() bool {
	return r.loading.depth.Load() > 0
}

// NextID returns prefix followed by the next counter for that prefix in this
// registry. Counters restart with the registry, so ids handed out in the same
// order name the same features on every rebuild.
func (r *Registry) NextID(prefix string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = map[string]int{}
	}
	id := fmt.Sprintf("%s-%d", prefix, r.ids[prefix])
	r.ids[prefix]++
	return id
}

func (r *Registry) nextKey() string {
	for {
		r.seq++
		key := fmt.Sprintf("%s%d", r.prefix, r.seq)
		if _, taken := r.cells[key]; !taken {
			return key
		}
	}
}

// register stores h and hands back any pending raw value for its key.
func (r *Registry) register(key string, h func(key string) Handle) (Handle, json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == "" {
		key = r.nextKey()
	}
	if _, exists := r.cells[key]; exists {
		return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	handle := h(key)
	r.cells[key] = handle
	raw, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	return handle, raw, nil
}

// Delete deregisters the cell so it is skipped by snapshots and restores.
func (r *Registry) Delete(h Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	key := h.Key()
	if current, ok := r.cells[key]; ok && current == h {
		delete(r.cells, key)
	}
	delete(r.pending, key)
	r.mu.Unlock()
	h.detach()
}

// Has reports whether key belongs to a live cell.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cells[key]
	return ok
}

// Keys lists live keys sorted alphabetically.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.cells))
	for key := range r.cells {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SnapshotAll encodes every live cell plus values still pending adoption.
func (r *Registry) SnapshotAll() (map[string]json.RawMessage, error) {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.cells))
	for _, h := range r.cells {
		handles = append(handles, h)
	}
	out := make(map[string]json.RawMessage, len(r.cells)+len(r.pending))
	for key, raw := range r.pending {
		out[key] = append(json.RawMessage(nil), raw...)
	}
	r.mu.Unlock()

	for _, h := range handles {
		raw, err := h.encode()
		if err != nil {
			return nil, fmt.Errorf("persist: encode %q: %w", h.Key(), err)
		}
		out[h.Key()] = raw
	}
	return out, nil
}

// RestoreAll applies values by key. Live cells without a matching entry keep
// their current value; entries without a live cell are kept pending.
func (r *Registry) RestoreAll(values map[string]json.RawMessage) error {
	end := r.BeginLoad()
	defer end()

	r.mu.Lock()
	targets := make(map[string]Handle, len(values))
	for key, raw := range values {
		if h, ok := r.cells[key]; ok {
			targets[key] = h
			continue
		}
		r.pending[key] = append(json.RawMessage(nil), raw...)
	}
	r.mu.Unlock()

	keys := make([]string, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := targets[key].decode(values[key]); err != nil {
			errs = append(errs, fmt.Errorf("persist: decode %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Clear drops every cell, pending value and id counter.
func (r *Registry) Clear() {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.cells))
	for _, h := range r.cells {
		handles = append(handles, h)
	}
	r.cells = map[string]Handle{}
	r.pending = map[string]json.RawMessage{}
	r.ids = nil
	r.mu.Unlock()
	for _, h := range handles {
		h.detach()
	}
}
