package resource

import (
	"fmt"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/format"
	"github.com/goliatone/go-features/pkg/persist"
)

// TrackBest returns a persisted running maximum of r. Changes made while reg
// is loading are ignored.
func TrackBest(reg *persist.Registry, r *Resource, opts ...persist.CellOption) (*persist.Cell[decimal.Decimal], error) {
	best, err := persist.Create(reg, r.Get(), opts...)
	if err != nil {
		return nil, err
	}
	r.Watch(func(next, _ decimal.Decimal) {
		if best.Registry().Loading() {
			return
		}
		if next.Gt(best.Get()) {
			best.Set(next)
		}
	})
	return best, nil
}

// TrackTotal returns a persisted sum of every increase of r. Decreases are
// not subtracted. Changes made while reg is loading are ignored.
func TrackTotal(reg *persist.Registry, r *Resource, opts ...persist.CellOption) (*persist.Cell[decimal.Decimal], error) {
	total, err := persist.Create(reg, r.Get(), opts...)
	if err != nil {
		return nil, err
	}
	r.Watch(func(next, prev decimal.Decimal) {
		if total.Registry().Loading() {
			return
		}
		if next.Gt(prev) {
			total.Set(total.Get().Add(next.Sub(prev)))
		}
	})
	return total, nil
}

const maxOOMIterations = 6

var (
	plainRateCeiling = decimal.FromFloat(1e100)
	slogThreshold    = decimal.Tetrate10(8)
	oomRatioFloor    = decimal.FromFloat(100)
	hundred          = decimal.FromFloat(100)
)

// OOMPS reports how fast a resource grows, switching from a plain rate to
// orders of magnitude per second once values get large.
type OOMPS struct {
	resource *Resource
	rate     feat.Reader[decimal.Decimal]
	last     decimal.Decimal
	oomps    decimal.Decimal
	mag      int
	off      func()
}

// TrackOOMPS samples r on every bus update. rate, when non-nil, is the
// per-second gain shown while the value is at most 1e100.
func TrackOOMPS(bus *feat.Bus, r *Resource, rate feat.Reader[decimal.Decimal]) *OOMPS {
	o := &OOMPS{resource: r, rate: rate, last: decimal.Zero}
	if bus != nil {
		o.off = bus.On(feat.EventUpdate, o.Step)
	}
	return o
}

// Step advances the tracker by one tick of diff seconds.
func (o *OOMPS) Step(diff float64) {
	o.mag = 0
	curr := o.resource.Get()
	if curr.Lte(plainRateCeiling) {
		o.last = curr
		return
	}
	prev := o.last
	o.last = curr
	if diff <= 0 || !curr.Gt(prev) {
		return
	}
	dt := decimal.FromFloat(diff)

	if curr.Gte(slogThreshold) {
		o.oomps = curr.Slog().Sub(prev.Slog()).Div(dt)
		o.mag = -1
		return
	}
	for o.mag < maxOOMIterations && prev.Sign() > 0 && curr.Sign() > 0 {
		if curr.Div(prev).Log(hundred).Div(dt).Lt(oomRatioFloor) {
			break
		}
		curr = curr.Log10()
		prev = prev.Log10()
		o.oomps = curr.Sub(prev).Div(dt)
		o.mag++
	}
}

// Magnitude is the number of logarithms applied on the last tick, -1 on the
// super-logarithm scale and 0 for the plain rate.
func (o *OOMPS) Magnitude() int { return o.mag }

// Value is the last computed rate on the Magnitude scale.
func (o *OOMPS) Value() decimal.Decimal { return o.oomps }

// String renders the current rate.
func (o *OOMPS) String() string {
	switch {
	case o.mag == 0:
		if o.rate == nil {
			return ""
		}
		r := o.resource
		return format.Format(o.rate.Get(), r.precision, r.small) + " " + r.DisplayName() + "/s"
	case o.mag < 0:
		return format.Format(o.oomps, format.DefaultDecimals, false) + " OOM^OOMs/s"
	case o.mag == 1:
		return format.Format(o.oomps, format.DefaultDecimals, false) + " OOMs/s"
	default:
		return fmt.Sprintf("%s OOM^%ds/s", format.Format(o.oomps, format.DefaultDecimals, false), o.mag)
	}
}

// Stop unsubscribes the tracker from the bus.
func (o *OOMPS) Stop() {
	if o.off != nil {
		o.off()
		o.off = nil
	}
}
