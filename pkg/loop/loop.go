// Package loop implements buildable, triggerable counters. A loop is first
// built by accumulating build progress, then cycles trigger progress and
// fires its effect once per full requirement reached.
package loop

import (
	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
)

// Kind tags loop features.
const Kind feat.Type = "loop"

// Options describe a loop.
type Options struct {
	ID         string
	Visibility any
	Display    any

	BuildRequirement   any
	TriggerRequirement any

	// Rate is trigger progress gained per second while built. When set the
	// loop advances itself on every tick.
	Rate any

	// Boost keeps a persisted currentBoost that scales Rate by
	// (1 + currentBoost). Without it the cell is dropped from the save.
	Boost bool

	// Effect is exposed as a field for the content layer to read.
	Effect any

	// Trigger runs once per call with the number of whole intervals reached.
	Trigger func(intervals decimal.Decimal)
}

// Loop is a materialized loop.
type Loop struct {
	*feat.Base

	BuildProgress   *persist.Cell[decimal.Decimal]
	TriggerProgress *persist.Cell[decimal.Decimal]
	Built           *persist.Cell[bool]
	CurrentBoost    *persist.Cell[decimal.Decimal]

	buildRequirement   *feat.Computed[decimal.Decimal]
	triggerRequirement *feat.Computed[decimal.Decimal]
	rate               *feat.Computed[decimal.Decimal]
	effect             *feat.Computed[any]
	display            *feat.Computed[string]
	trigger            func(decimal.Decimal)
}

// New returns a lazy loop.
func New(h feat.Host, options func() Options, decorators ...feat.Decorator) *feat.Lazy[*Loop] {
	reserved := feat.ReserveID(h, Kind)
	return feat.NewLazy(func() (*Loop, error) {
		opts := options()
		if opts.ID == "" {
			opts.ID = reserved
		}
		return Build(h, opts, decorators...)
	})
}

// Build materializes a loop immediately.
func Build(h feat.Host, opts Options, decorators ...feat.Decorator) (*Loop, error) {
	l := &Loop{trigger: opts.Trigger}
	base, err := feat.Construct(h, Kind, opts.ID, decorators, func(b *feat.Base) error {
		return l.build(b, opts)
	})
	if err != nil {
		return nil, err
	}
	l.Base = base
	return l, nil
}

func (l *Loop) build(b *feat.Base, opts Options) error {
	var err error
	if l.BuildProgress, err = feat.Persist(b, "buildProgress", decimal.Zero); err != nil {
		return err
	}
	if l.TriggerProgress, err = feat.Persist(b, "triggerProgress", decimal.Zero); err != nil {
		return err
	}
	if l.Built, err = feat.Persist(b, "built", false); err != nil {
		return err
	}
	if l.CurrentBoost, err = feat.Persist(b, "currentBoost", decimal.Zero); err != nil {
		return err
	}
	if !opts.Boost {
		b.DropPersistent("currentBoost")
		l.CurrentBoost = nil
	}

	if _, err := feat.BridgeOr[feat.Visibility](b, "visibility", opts.Visibility, feat.Visible); err != nil {
		return err
	}
	if l.buildRequirement, err = feat.BridgeOr[decimal.Decimal](b, "buildRequirement", opts.BuildRequirement, decimal.Zero); err != nil {
		return err
	}
	if l.triggerRequirement, err = feat.BridgeOr[decimal.Decimal](b, "triggerRequirement", opts.TriggerRequirement, decimal.One); err != nil {
		return err
	}
	if l.rate, err = feat.Bridge[decimal.Decimal](b, "rate", opts.Rate); err != nil {
		return err
	}
	if l.effect, err = feat.Bridge[any](b, "effect", opts.Effect); err != nil {
		return err
	}
	if l.display, err = feat.Bridge[string](b, "display", opts.Display); err != nil {
		return err
	}

	if l.rate != nil {
		b.On(feat.EventUpdate, l.tick)
	}
	b.AddProps("visibility", "built", "buildProgress", "buildRequirement", "triggerProgress", "triggerRequirement", "display")
	if opts.Boost {
		b.AddProps("currentBoost")
	}
	return nil
}

// Build adds amount to the build progress and marks the loop built once the
// requirement is reached. Built loops ignore further build progress.
func (l *Loop) Build(amount decimal.Decimal) {
	if l.Built.Get() {
		return
	}
	progress := l.BuildProgress.Get().Add(amount)
	l.BuildProgress.Set(progress)
	if progress.Gte(l.buildRequirement.Get()) {
		l.Built.Set(true)
	}
}

// Advance adds progress to the trigger counter, fires Trigger for every whole
// requirement reached and removes the consumed progress. It returns the
// number of intervals fired. Unbuilt loops do not advance.
func (l *Loop) Advance(progress decimal.Decimal) decimal.Decimal {
	if !l.Built.Get() {
		return decimal.Zero
	}
	total := l.TriggerProgress.Get().Add(progress)
	req := l.triggerRequirement.Get()
	if req.Sign() <= 0 {
		l.TriggerProgress.Set(total)
		return decimal.Zero
	}
	intervals := total.Div(req).Floor()
	if intervals.Sign() <= 0 {
		l.TriggerProgress.Set(total)
		return decimal.Zero
	}
	l.TriggerProgress.Set(total.Sub(intervals.Mul(req)))
	l.Trigger(intervals)
	return intervals
}

// Trigger runs the loop's effect for intervals without touching progress.
func (l *Loop) Trigger(intervals decimal.Decimal) {
	if l.trigger != nil && intervals.Sign() > 0 {
		l.trigger(intervals)
	}
}

// Rate is the effective trigger progress per second, boost included.
func (l *Loop) Rate() decimal.Decimal {
	if l.rate == nil {
		return decimal.Zero
	}
	rate := l.rate.Get()
	if l.CurrentBoost != nil {
		rate = rate.Mul(decimal.One.Add(l.CurrentBoost.Get()))
	}
	return rate
}

func (l *Loop) tick(diff float64) {
	if diff <= 0 {
		return
	}
	l.Advance(l.Rate().Mul(decimal.FromFloat(diff)))
}

func (l *Loop) IsBuilt() bool                       { return l.Built.Get() }
func (l *Loop) BuildRequirement() decimal.Decimal   { return l.buildRequirement.Get() }
func (l *Loop) TriggerRequirement() decimal.Decimal { return l.triggerRequirement.Get() }
func (l *Loop) Effect() any                         { return l.effect.Get() }
func (l *Loop) Display() string                     { return l.display.Get() }
