package save

import (
	"encoding/json"
	"log/slog"
	"time"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/activity"
	"github.com/goliatone/go-features/pkg/persist"
)

// Mod identifies the running game. Saves with another ID are foreign.
type Mod struct {
	ID      string
	Version string
	// OfflineLimit caps the offline time credited on load. Zero means
	// uncapped.
	OfflineLimit time.Duration
}

// Migration rewrites the raw document of a save written by another version
// of the mod. It runs before the save is decoded.
type Migration func(oldVersion string, data map[string]any) (map[string]any, error)

// Layers is the layer registry a Manager loads saves into. *layer.Registry
// satisfies it.
type Layers interface {
	Cells() *persist.Registry
	Bus() *feat.Bus
	Defined() []string
	LayerIDs() []string
	AddLayer(id string, data map[string]json.RawMessage) error
	RemoveLayer(id string)
	SnapshotLayer(id string) (map[string]json.RawMessage, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLayers sets the registry saves are loaded into.
func WithLayers(layers Layers) Option {
	return func(m *Manager) {
		m.layers = layers
	}
}

// WithMigration sets the hook run for saves of another mod version.
func WithMigration(fn Migration) Option {
	return func(m *Manager) {
		m.migrate = fn
	}
}

// WithLogger sets the manager logger. A nil logger keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithActivity routes save lifecycle events to emitter.
func WithActivity(emitter *activity.Emitter) Option {
	return func(m *Manager) {
		m.emitter = emitter
	}
}

// WithActor stamps events with the acting player's id.
func WithActor(actorID string) Option {
	return func(m *Manager) {
		m.actor = actorID
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTabs sets the tabs a new save opens with.
func WithTabs(tabs ...string) Option {
	return func(m *Manager) {
		m.tabs = append([]string(nil), tabs...)
	}
}
