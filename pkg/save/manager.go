package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/internal/hydrate"
	"github.com/goliatone/go-features/pkg/activity"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
	"github.com/goliatone/go-features/pkg/state"
)

const (
	// DomainSaves holds one blob per save id.
	DomainSaves = "saves"
	// DomainSettings holds the Settings document.
	DomainSettings = "settings"

	settingsKey     = "global"
	defaultSaveName = "Default Save"
)

var (
	settingsRef = state.Ref{Domain: DomainSettings, Key: settingsKey}
	ten         = decimal.FromFloat(10)
	msPerSecond = decimal.FromFloat(1000)
)

// Settings records the active save and every save the player owns.
type Settings struct {
	Active string   `json:"active,omitempty"`
	Saves  []string `json:"saves,omitempty"`
}

// Manager owns the live save. Blobs are stored by save id and the settings
// document tracks which save is active.
type Manager struct {
	mod      Mod
	blobs    state.Store[string]
	settings state.Resolver[Settings]
	layers   Layers
	migrate  Migration
	logger   *slog.Logger
	emitter  *activity.Emitter
	actor    string
	now      func() time.Time
	tabs     []string

	loadMu sync.Mutex
	mu     sync.Mutex
	active *Save
}

// NewManager builds a Manager for mod over the given stores.
func NewManager(mod Mod, blobs state.Store[string], settings state.Store[Settings], opts ...Option) (*Manager, error) {
	if mod.ID == "" {
		return nil, fmt.Errorf("save: mod id is required")
	}
	if blobs == nil || settings == nil {
		return nil, fmt.Errorf("save: blob and settings stores are required")
	}
	m := &Manager{
		mod:      mod,
		blobs:    blobs,
		settings: state.Resolver[Settings]{Store: settings},
		logger:   slog.Default(),
		now:      time.Now,
		tabs:     []string{"main"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func blobRef(id string) state.Ref {
	return state.Ref{Domain: DomainSaves, Key: id}
}

func (m *Manager) defaults() Save {
	return Save{
		Name:        defaultSaveName,
		Tabs:        append([]string(nil), m.tabs...),
		Autosave:    true,
		OfflineProd: true,
		OfflineTime: decimal.Zero,
		TimePlayed:  decimal.Zero,
		ModID:       m.mod.ID,
		ModVersion:  m.mod.Version,
		Layers:      map[string]map[string]json.RawMessage{},
	}
}

// Active returns a copy of the live save.
func (m *Manager) Active() (Save, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Save{}, false
	}
	return m.active.Clone(), true
}

// Settings resolves the settings document.
func (m *Manager) Settings(ctx context.Context) (Settings, error) {
	settings, _, err := m.settings.ResolveWithDefaults(ctx, settingsRef, Settings{})
	return settings, err
}

// Boot loads the active save, or starts a new one when there is none.
func (m *Manager) Boot(ctx context.Context) (Save, error) {
	settings, err := m.Settings(ctx)
	if err != nil {
		return Save{}, err
	}
	if settings.Active != "" {
		return m.LoadByID(ctx, settings.Active)
	}
	s, err := m.fresh(ctx)
	if err != nil {
		return Save{}, err
	}
	m.emit(ctx, activity.VerbSaveCreated, s, "")
	return m.apply(ctx, s)
}

// NewSave stores a fresh save under a new id without loading it.
func (m *Manager) NewSave(ctx context.Context) (Save, error) {
	s, err := m.fresh(ctx)
	if err != nil {
		return Save{}, err
	}
	blob, err := Encode(s)
	if err != nil {
		return Save{}, err
	}
	if _, err := m.blobs.Save(ctx, blobRef(s.ID), blob, state.Meta{}); err != nil {
		return Save{}, fmt.Errorf("save: store %q: %w", s.ID, err)
	}
	if err := m.track(ctx, s.ID, false); err != nil {
		return Save{}, err
	}
	m.emit(ctx, activity.VerbSaveCreated, s, "")
	return s, nil
}

// Load decodes blob and makes it the live save. A blob that cannot be read,
// or that belongs to another mod, is logged and replaced by a fresh save;
// only storage and layer failures are returned.
func (m *Manager) Load(ctx context.Context, blob string) (Save, error) {
	s, id, err := m.decode(blob)
	if err != nil {
		return m.recover(ctx, id, err)
	}
	return m.apply(ctx, s)
}

// LoadByID loads a stored save. A missing save is treated like a corrupt
// one.
func (m *Manager) LoadByID(ctx context.Context, id string) (Save, error) {
	blob, _, ok, err := m.blobs.Load(ctx, blobRef(id))
	if err != nil {
		return Save{}, fmt.Errorf("save: load %q: %w", id, err)
	}
	if !ok {
		return m.recover(ctx, id, fmt.Errorf("%w: %s", state.ErrNotFound, id))
	}
	s, _, err := m.decode(blob)
	if err != nil {
		return m.recover(ctx, id, err)
	}
	return m.apply(ctx, s)
}

// Save persists the live save with the current values of every active layer.
func (m *Manager) Save(ctx context.Context) error {
	_, err := m.persist(ctx)
	return err
}

// Autosave is Save for the autosave interval and shutdown. It does nothing
// when the live save has autosave turned off.
func (m *Manager) Autosave(ctx context.Context) error {
	m.mu.Lock()
	enabled := m.active != nil && m.active.Autosave
	m.mu.Unlock()
	if !enabled {
		return nil
	}
	return m.Save(ctx)
}

// Export persists the live save and returns its blob.
func (m *Manager) Export(ctx context.Context) (string, error) {
	return m.persist(ctx)
}

// Delete removes a stored save and forgets it in the settings.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.blobs.Delete(ctx, blobRef(id)); err != nil {
		return fmt.Errorf("save: delete %q: %w", id, err)
	}
	_, _, err := m.settings.Mutate(ctx, settingsRef, state.Meta{}, func(s *Settings) error {
		s.Saves = slices.DeleteFunc(s.Saves, func(known string) bool { return known == id })
		if s.Active == id {
			s.Active = ""
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(ctx, activity.VerbSaveDeleted, Save{ID: id}, "")
	return nil
}

// List decodes every stored save, known saves first in the order they were
// created. Unreadable blobs are logged and skipped.
func (m *Manager) List(ctx context.Context) ([]Save, error) {
	settings, err := m.Settings(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := m.blobs.List(ctx, DomainSaves)
	if err != nil {
		return nil, fmt.Errorf("save: list: %w", err)
	}
	ids := append([]string(nil), settings.Saves...)
	for _, ref := range refs {
		if !slices.Contains(ids, ref.Key) {
			ids = append(ids, ref.Key)
		}
	}

	out := make([]Save, 0, len(ids))
	for _, id := range ids {
		blob, _, ok, err := m.blobs.Load(ctx, blobRef(id))
		if err != nil {
			return nil, fmt.Errorf("save: load %q: %w", id, err)
		}
		if !ok {
			continue
		}
		s, err := Decode(blob, m.defaults)
		if err != nil {
			m.logger.Warn("save: skipping unreadable save", "save_id", id, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Rename sets the display name of a save, live or stored.
func (m *Manager) Rename(ctx context.Context, id, name string) error {
	m.mu.Lock()
	live := m.active != nil && m.active.ID == id
	if live {
		m.active.Name = name
	}
	m.mu.Unlock()
	if live {
		return m.Save(ctx)
	}

	blob, _, ok, err := m.blobs.Load(ctx, blobRef(id))
	if err != nil {
		return fmt.Errorf("save: load %q: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", state.ErrNotFound, id)
	}
	s, err := Decode(blob, m.defaults)
	if err != nil {
		return err
	}
	s.Name = name
	if blob, err = Encode(s); err != nil {
		return err
	}
	if _, err := m.blobs.Save(ctx, blobRef(id), blob, state.Meta{}); err != nil {
		return fmt.Errorf("save: store %q: %w", id, err)
	}
	return nil
}

// SetAutosave toggles autosave on the live save.
func (m *Manager) SetAutosave(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Autosave = enabled
	}
}

// SetOfflineProd toggles offline production on the live save.
func (m *Manager) SetOfflineProd(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.OfflineProd = enabled
	}
}

// CatchUp returns the diff a tick should run with. While offline time is
// banked a tick runs max(offline/10, diff) seconds and spends that much of
// it.
func (m *Manager) CatchUp(diff float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return diff
	}
	if !m.active.OfflineProd {
		m.active.OfflineTime = decimal.Zero
		return diff
	}
	offline := m.active.OfflineTime
	if !offline.Gt(decimal.Zero) {
		return diff
	}
	step := decimal.Max(offline.Div(ten), decimal.FromFloat(diff))
	m.active.OfflineTime = decimal.Max(offline.Sub(step), decimal.Zero)
	return step.Float64()
}

// AddPlayed adds diff seconds to the live save's time played.
func (m *Manager) AddPlayed(diff float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.TimePlayed = m.active.TimePlayed.Add(decimal.FromFloat(diff))
	}
}

func (m *Manager) decode(blob string) (Save, string, error) {
	raw, err := unwrap(blob)
	if err != nil {
		return Save{}, "", err
	}
	id := peekID(raw)
	decoder := hydrate.NewDecoder(
		hydrate.WithDefaults(m.defaults),
		hydrate.WithPreHook[Save](m.checkMod),
		hydrate.WithPreHook[Save](m.fixOldSave),
		hydrate.WithPostHook[Save](m.stampVersion),
	)
	s, err := decoder.Decode(hydrate.Context{SaveID: id, Version: m.mod.Version}, raw)
	if err != nil {
		if errors.Is(err, ErrForeignSave) {
			return Save{}, id, err
		}
		return Save{}, id, fmt.Errorf("%w: %w", ErrCorruptSave, err)
	}
	return s, id, nil
}

func (m *Manager) checkMod(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
	modID, _ := payload["modID"].(string)
	if modID != m.mod.ID {
		return nil, fmt.Errorf("%w: mod %q, running %q", ErrForeignSave, modID, m.mod.ID)
	}
	return payload, nil
}

func (m *Manager) fixOldSave(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
	version, _ := payload["modVersion"].(string)
	if version == m.mod.Version || m.migrate == nil {
		return payload, nil
	}
	return m.migrate(version, payload)
}

func (m *Manager) stampVersion(_ hydrate.Context, s *Save) error {
	s.ModVersion = m.mod.Version
	return nil
}

func (m *Manager) recover(ctx context.Context, id string, cause error) (Save, error) {
	m.logger.Warn("save: load rejected, starting a new save", "save_id", id, "error", cause)
	m.emit(ctx, activity.VerbSaveRejected, Save{ID: id}, cause.Error())
	s, err := m.fresh(ctx)
	if err != nil {
		return Save{}, err
	}
	m.emit(ctx, activity.VerbSaveCreated, s, "")
	return m.apply(ctx, s)
}

// fresh builds a new save under the first unused "<mod>-<n>" id.
func (m *Manager) fresh(ctx context.Context) (Save, error) {
	refs, err := m.blobs.List(ctx, DomainSaves)
	if err != nil {
		return Save{}, fmt.Errorf("save: list: %w", err)
	}
	taken := make(map[string]bool, len(refs))
	for _, ref := range refs {
		taken[ref.Key] = true
	}
	m.mu.Lock()
	if m.active != nil {
		taken[m.active.ID] = true
	}
	m.mu.Unlock()

	s := m.defaults()
	for n := 0; ; n++ {
		id := fmt.Sprintf("%s-%d", m.mod.ID, n)
		if !taken[id] {
			s.ID = id
			break
		}
	}
	s.Time = m.now().UnixMilli()
	return s, nil
}

// apply makes s the live save: offline time is credited, every layer is
// removed and re-added with the save's values under the load flag, Loaded is
// emitted and the result persisted.
func (m *Manager) apply(ctx context.Context, s Save) (Save, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	now := m.now().UnixMilli()
	m.creditOffline(&s, now)
	s.Time = now

	if m.layers != nil {
		previousIDs := m.layers.LayerIDs()
		previous, err := m.snapshotLayers()
		if err != nil {
			return Save{}, err
		}
		if err := m.rebuild(m.layers.Defined(), s.Layers); err != nil {
			m.logger.Error("save: rebuilding layers failed, restoring the live save", "save_id", s.ID, "error", err)
			if rerr := m.rebuild(previousIDs, previous); rerr != nil {
				m.logger.Error("save: restoring layers failed", "error", rerr)
				err = errors.Join(err, rerr)
			}
			return Save{}, fmt.Errorf("save: load %q: %w", s.ID, err)
		}
	}
	persist.Bump()

	m.mu.Lock()
	live := s.Clone()
	m.active = &live
	m.mu.Unlock()

	if m.layers != nil && m.layers.Bus() != nil {
		m.layers.Bus().Emit(feat.EventLoaded, 0)
	}
	m.emit(ctx, activity.VerbSaveLoaded, s, "")
	m.logger.Info("save: loaded", "save_id", s.ID, "offline_seconds", s.OfflineTime.String())

	if _, err := m.persist(ctx); err != nil {
		return Save{}, err
	}
	active, _ := m.Active()
	return active, nil
}

// rebuild removes every active layer, then adds ids with their values from
// data under the load flag.
func (m *Manager) rebuild(ids []string, data map[string]map[string]json.RawMessage) error {
	for _, id := range m.layers.LayerIDs() {
		m.layers.RemoveLayer(id)
	}
	end := m.layers.Cells().BeginLoad()
	defer end()
	var errs []error
	for _, id := range ids {
		if err := m.layers.AddLayer(id, data[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) snapshotLayers() (map[string]map[string]json.RawMessage, error) {
	layers := make(map[string]map[string]json.RawMessage)
	for _, id := range m.layers.LayerIDs() {
		cells, err := m.layers.SnapshotLayer(id)
		if err != nil {
			return nil, fmt.Errorf("save: snapshot layer %q: %w", id, err)
		}
		layers[id] = cells
	}
	return layers, nil
}

func (m *Manager) creditOffline(s *Save, now int64) {
	if !s.OfflineProd || s.Time <= 0 || now <= s.Time {
		return
	}
	credited := s.OfflineTime.Add(decimal.FromInt(now - s.Time).Div(msPerSecond))
	if m.mod.OfflineLimit > 0 {
		credited = decimal.Min(credited, decimal.FromFloat(m.mod.OfflineLimit.Seconds()))
	}
	s.OfflineTime = credited
}

func (m *Manager) persist(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return "", ErrNoActiveSave
	}
	snapshot := m.active.Clone()
	m.mu.Unlock()

	if m.layers != nil {
		layers, err := m.snapshotLayers()
		if err != nil {
			return "", err
		}
		snapshot.Layers = layers
	}
	snapshot.Time = m.now().UnixMilli()

	blob, err := Encode(snapshot)
	if err != nil {
		return "", err
	}
	if _, err := m.blobs.Save(ctx, blobRef(snapshot.ID), blob, state.Meta{}); err != nil {
		return "", fmt.Errorf("save: store %q: %w", snapshot.ID, err)
	}

	m.mu.Lock()
	if m.active != nil && m.active.ID == snapshot.ID {
		m.active.Time = snapshot.Time
		m.active.Layers = snapshot.Layers
	}
	m.mu.Unlock()

	if err := m.track(ctx, snapshot.ID, true); err != nil {
		return "", err
	}
	m.emit(ctx, activity.VerbSavePersisted, snapshot, "")
	return blob, nil
}

// track records id in the settings, optionally as the active save.
func (m *Manager) track(ctx context.Context, id string, activate bool) error {
	_, _, err := m.settings.Mutate(ctx, settingsRef, state.Meta{}, func(s *Settings) error {
		if !slices.Contains(s.Saves, id) {
			s.Saves = append(s.Saves, id)
		}
		if activate {
			s.Active = id
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save: update settings: %w", err)
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, verb string, s Save, reason string) {
	if !m.emitter.Enabled() {
		return
	}
	event := activity.BuildSaveEvent(verb, activity.SaveEventInput{
		ActorID:    m.actor,
		SaveID:     s.ID,
		Name:       s.Name,
		ModID:      m.mod.ID,
		ModVersion: m.mod.Version,
		Reason:     reason,
		OccurredAt: m.now(),
	})
	if err := m.emitter.Emit(ctx, event); err != nil {
		m.logger.Warn("save: activity hook failed", "verb", verb, "save_id", s.ID, "error", err)
	}
}
