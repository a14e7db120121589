// Package game runs the fixed-interval tick that drives every feature.
package game

import (
	"context"
	"log/slog"
	"time"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/persist"
	"github.com/goliatone/go-features/pkg/resource"
)

const defaultTickRate = 20

// Saves is the part of save.Manager the loop drives.
type Saves interface {
	CatchUp(diff float64) float64
	AddPlayed(diff float64)
	Autosave(ctx context.Context) error
}

// Config tunes the loop. Zero values fall back to 20 ticks per second, no
// interval autosave and uncapped ticks.
type Config struct {
	TickRate         int
	AutosaveInterval time.Duration
	// MaxTickLength caps the real time one tick may cover after the process
	// stalled.
	MaxTickLength time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithConfig sets tick rate, autosave interval and the tick length cap.
func WithConfig(cfg Config) Option {
	return func(l *Loop) {
		l.cfg = cfg
	}
}

// WithSaves wires offline catch-up, time played and autosave.
func WithSaves(saves Saves) Option {
	return func(l *Loop) {
		l.saves = saves
	}
}

// WithStep appends a step run at the start of every tick, before Update is
// emitted.
func WithStep(step func(diff float64)) Option {
	return func(l *Loop) {
		if step != nil {
			l.steps = append(l.steps, step)
		}
	}
}

// WithAbyss replaces the abyss signal refreshed each tick.
func WithAbyss(signal *resource.AbyssSignal) Option {
	return func(l *Loop) {
		l.abyss = signal
	}
}

// WithLogger sets the logger for recovered tick panics and autosave errors.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock replaces time.Now when measuring tick length.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// Loop emits Update on bus once per tick. All work of a tick runs on the
// goroutine calling Run.
type Loop struct {
	cfg    Config
	bus    *feat.Bus
	saves  Saves
	steps  []func(diff float64)
	abyss  *resource.AbyssSignal
	logger *slog.Logger
	now    func() time.Time
	ticks  uint64
}

// New builds a loop that ticks on bus, or on a new bus when bus is nil.
// TickRate defaults to 20 ticks per second.
func New(bus *feat.Bus, opts ...Option) *Loop {
	if bus == nil {
		bus = feat.NewBus()
	}
	l := &Loop{
		bus:    bus,
		abyss:  resource.Abyss,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.cfg.TickRate <= 0 {
		l.cfg.TickRate = defaultTickRate
	}
	return l
}

func (l *Loop) Bus() *feat.Bus { return l.bus }
func (l *Loop) Ticks() uint64  { return l.ticks }

// Step runs one tick covering diff seconds: the revision is bumped, steps
// run, banked offline time stretches the tick, Update is emitted and the
// tick is added to the time played. A panic inside the tick is logged and
// the tick abandoned.
func (l *Loop) Step(diff float64) {
	l.ticks++
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("game: tick panicked", "tick", l.ticks, "panic", r)
		}
	}()

	if limit := l.cfg.MaxTickLength.Seconds(); limit > 0 && diff > limit {
		diff = limit
	}
	persist.Bump()
	if l.abyss != nil {
		l.abyss.Refresh()
	}
	for _, step := range l.steps {
		step(diff)
	}
	if l.saves != nil {
		diff = l.saves.CatchUp(diff)
	}
	l.bus.Emit(feat.EventUpdate, diff)
	if l.saves != nil {
		l.saves.AddPlayed(diff)
	}
}

// Run ticks until ctx is done, autosaving on the configured interval and
// once more on the way out. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var autosave <-chan time.Time
	if l.saves != nil && l.cfg.AutosaveInterval > 0 {
		autosaveTicker := time.NewTicker(l.cfg.AutosaveInterval)
		defer autosaveTicker.Stop()
		autosave = autosaveTicker.C
	}

	last := l.now()
	for {
		select {
		case <-ctx.Done():
			l.autosave(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			now := l.now()
			diff := now.Sub(last).Seconds()
			if diff <= 0 {
				diff = interval.Seconds()
			}
			last = now
			l.Step(diff)
		case <-autosave:
			l.autosave(ctx)
		}
	}
}

func (l *Loop) autosave(ctx context.Context) {
	if l.saves == nil {
		return
	}
	if err := l.saves.Autosave(ctx); err != nil {
		l.logger.Warn("game: autosave failed", "error", err)
	}
}
