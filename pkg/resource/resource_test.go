package resource

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
)

func d(f float64) decimal.Decimal { return decimal.FromFloat(f) }

func TestCreatePersistsAndWrapDoesNot(t *testing.T) {
	reg := persist.NewRegistry()
	points, err := Create(reg, "points", d(10), WithKey("points"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reg.Has("points") || !points.Persisted() {
		t.Fatalf("expected created resource to be registered")
	}

	owned := persist.Ref(d(3))
	wrapped := Wrap(owned, "energy")
	if wrapped.Persisted() || len(reg.Keys()) != 1 {
		t.Fatalf("expected wrapped resource to stay out of the registry")
	}
	wrapped.Add(d(2))
	if !owned.Get().Eq(d(5)) {
		t.Fatalf("expected wrap to write through, got %s", owned.Get())
	}
}

func TestDisplayNameFollowsAbyssSignal(t *testing.T) {
	inChallenge := false
	signal := NewAbyssSignal(func() bool { return inChallenge })
	reg := persist.NewRegistry()
	abyssal, _ := Create(reg, "fome", d(1), WithAbyss(signal), WithAbyssal(true), WithSingularName("foam"))
	plain, _ := Create(reg, "energy", d(1), WithAbyss(signal))

	inChallenge = true
	if abyssal.DisplayName() != "fome" {
		t.Fatalf("expected name to wait for the next refresh, got %q", abyssal.DisplayName())
	}
	signal.Refresh()
	if abyssal.DisplayName() != "Abyssal fome" || abyssal.SingularName() != "Abyssal foam" {
		t.Fatalf("unexpected abyss names %q / %q", abyssal.DisplayName(), abyssal.SingularName())
	}
	if plain.DisplayName() != "energy" {
		t.Fatalf("expected non-abyssal resource unaffected, got %q", plain.DisplayName())
	}
	inChallenge = false
	signal.Refresh()
	if abyssal.DisplayName() != "fome" {
		t.Fatalf("expected name restored, got %q", abyssal.DisplayName())
	}
}

func TestDisplayPolicy(t *testing.T) {
	reg := persist.NewRegistry()
	cases := []struct {
		name   string
		opts   []Option
		amount decimal.Decimal
		want   string
	}{
		{name: "precision", opts: nil, amount: d(12.345), want: "12.35"},
		{name: "whole floors", opts: []Option{WithPrecision(0)}, amount: d(12.9), want: "12"},
		{name: "whole small keeps fraction", opts: []Option{WithPrecision(0), WithSmall(true)}, amount: d(12.9), want: "13"},
		{name: "small below cutoff", opts: []Option{WithSmall(true)}, amount: d(0.5), want: "0.50"},
		{name: "small tiny", opts: []Option{WithSmall(true)}, amount: d(0.00002), want: "2.00e-3"},
		{name: "large", opts: nil, amount: d(1.5e9), want: "1.50e9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Create(reg, tc.name, tc.amount, tc.opts...)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if got := Display(r); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}

	r, _ := Create(reg, "override", d(1))
	if got := Display(r, d(2000)); got != "2,000" {
		t.Fatalf("expected override amount used, got %q", got)
	}
}

func TestTrackBestAndTotal(t *testing.T) {
	reg := persist.NewRegistry()
	r, _ := Create(reg, "points", d(0), WithKey("points"))
	best, err := TrackBest(reg, r, persist.WithKey("best"))
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	total, err := TrackTotal(reg, r, persist.WithKey("total"))
	if err != nil {
		t.Fatalf("total: %v", err)
	}

	for _, v := range []float64{5, 3, 8, 2, 4} {
		r.Set(d(v))
	}
	if !best.Get().Eq(d(8)) {
		t.Fatalf("expected best 8, got %s", best.Get())
	}
	// 0→5, 3→8, 2→4
	if !total.Get().Eq(d(5 + 5 + 2)) {
		t.Fatalf("expected total 12, got %s", total.Get())
	}
}

func TestTrackersIgnoreLoads(t *testing.T) {
	reg := persist.NewRegistry()
	r, _ := Create(reg, "points", d(1), WithKey("points"))
	best, _ := TrackBest(reg, r, persist.WithKey("best"))
	total, _ := TrackTotal(reg, r, persist.WithKey("total"))

	err := reg.RestoreAll(map[string]json.RawMessage{"points": json.RawMessage(`"1e50"`)})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !r.Get().Eq(decimal.MustParse("1e50")) {
		t.Fatalf("expected restored points, got %s", r.Get())
	}
	if !best.Get().Eq(d(1)) || !total.Get().Eq(d(1)) {
		t.Fatalf("expected trackers untouched by load, best=%s total=%s", best.Get(), total.Get())
	}
}

func TestOOMPSPlainRate(t *testing.T) {
	bus := feat.NewBus()
	r := Wrap(persist.Ref(d(100)), "points")
	o := TrackOOMPS(bus, r, feat.Const(d(12.5)))
	r.Set(d(1e50))
	bus.Emit(feat.EventUpdate, 1)
	if o.Magnitude() != 0 {
		t.Fatalf("expected plain branch, got magnitude %d", o.Magnitude())
	}
	if got := o.String(); got != "12.50 points/s" {
		t.Fatalf("unexpected plain rate %q", got)
	}
	if TrackOOMPS(nil, r, nil).String() != "" {
		t.Fatalf("expected empty string without a rate")
	}
}

func TestOOMPSIterativeLog(t *testing.T) {
	r := Wrap(persist.Ref(decimal.MustParse("1e200")), "points")
	o := TrackOOMPS(nil, r, nil)
	o.Step(1)
	if o.Magnitude() != 0 {
		t.Fatalf("expected first sample above ceiling to only record, got %d", o.Magnitude())
	}

	r.Set(decimal.MustParse("1e500"))
	o.Step(1)
	if o.Magnitude() != 1 {
		t.Fatalf("expected one logarithm, got %d", o.Magnitude())
	}
	if !strings.HasSuffix(o.String(), " OOMs/s") || math.Abs(o.Value().Float64()-300) > 1e-6 {
		t.Fatalf("unexpected OOM rate %q value %s", o.String(), o.Value())
	}

	r.Set(decimal.MustParse("ee1000"))
	o.Step(1)
	if o.Magnitude() != 2 {
		t.Fatalf("expected nested logarithms within the cap, got %d", o.Magnitude())
	}
	if !strings.Contains(o.String(), "OOM^") {
		t.Fatalf("expected magnitude tag, got %q", o.String())
	}
}

func TestOOMPSSlogScale(t *testing.T) {
	r := Wrap(persist.Ref(decimal.Tetrate10(8)), "points")
	o := TrackOOMPS(nil, r, nil)
	o.Step(1)
	r.Set(decimal.Tetrate10(9))
	o.Step(1)
	if o.Magnitude() != -1 {
		t.Fatalf("expected slog scale, got %d", o.Magnitude())
	}
	if !strings.HasSuffix(o.String(), "OOM^OOMs/s") {
		t.Fatalf("unexpected slog string %q", o.String())
	}
}

func TestOOMPSTerminatesWithinCap(t *testing.T) {
	inputs := []string{"1e101", "1e1000", "ee50", "eee10", "eeee5", "eeeee3", "eeeeee2"}
	for _, prevRaw := range inputs {
		for _, currRaw := range inputs {
			r := Wrap(persist.Ref(decimal.MustParse(prevRaw)), "points")
			o := TrackOOMPS(nil, r, nil)
			o.Step(0.05)
			r.Set(decimal.MustParse(currRaw))
			o.Step(0.05)
			if o.Magnitude() > maxOOMIterations {
				t.Fatalf("prev=%s curr=%s exceeded cap: %d", prevRaw, currRaw, o.Magnitude())
			}
		}
	}
}

func TestOOMPSStopsOnBus(t *testing.T) {
	bus := feat.NewBus()
	r := Wrap(persist.Ref(d(1)), "points")
	o := TrackOOMPS(bus, r, nil)
	o.Stop()
	if bus.Count(feat.EventUpdate) != 0 {
		t.Fatalf("expected tracker unsubscribed")
	}
}
