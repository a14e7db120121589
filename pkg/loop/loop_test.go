package loop

import (
	"testing"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
)

func d(f float64) decimal.Decimal { return decimal.FromFloat(f) }

func TestBuildThenTrigger(t *testing.T) {
	reg := persist.NewRegistry()
	h := feat.NewHost(reg, feat.NewBus(), nil)
	var fired []decimal.Decimal
	l, err := Build(h, Options{
		ID:                 "engine",
		BuildRequirement:   d(10),
		TriggerRequirement: d(4),
		Trigger:            func(n decimal.Decimal) { fired = append(fired, n) },
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if got := l.Advance(d(100)); !got.IsZero() || l.TriggerProgress.Get().Sign() != 0 {
		t.Fatalf("expected unbuilt loop to ignore progress")
	}
	l.Build(d(6))
	if l.IsBuilt() {
		t.Fatalf("expected loop unbuilt below the requirement")
	}
	l.Build(d(6))
	if !l.IsBuilt() || !l.BuildProgress.Get().Eq(d(12)) {
		t.Fatalf("expected loop built, progress=%s", l.BuildProgress.Get())
	}
	l.Build(d(100))
	if !l.BuildProgress.Get().Eq(d(12)) {
		t.Fatalf("expected built loop to stop accumulating build progress")
	}

	if got := l.Advance(d(3)); !got.IsZero() || len(fired) != 0 {
		t.Fatalf("expected no trigger below the requirement")
	}
	if got := l.Advance(d(10)); !got.Eq(d(3)) {
		t.Fatalf("expected 3 intervals, got %s", got)
	}
	if len(fired) != 1 || !fired[0].Eq(d(3)) || !l.TriggerProgress.Get().Eq(d(1)) {
		t.Fatalf("unexpected trigger state fired=%v progress=%s", fired, l.TriggerProgress.Get())
	}
}

func TestRateAdvancesOnTick(t *testing.T) {
	bus := feat.NewBus()
	h := feat.NewHost(persist.NewRegistry(), bus, nil)
	total := decimal.Zero
	l, err := Build(h, Options{
		TriggerRequirement: d(1),
		Rate:               d(2),
		Boost:              true,
		Trigger:            func(n decimal.Decimal) { total = total.Add(n) },
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l.Build(decimal.Zero)
	bus.Emit(feat.EventUpdate, 1.5)
	if !total.Eq(d(3)) {
		t.Fatalf("expected 3 triggers, got %s", total)
	}
	l.CurrentBoost.Set(d(1))
	if !l.Rate().Eq(d(4)) {
		t.Fatalf("expected boosted rate 4, got %s", l.Rate())
	}
	bus.Emit(feat.EventUpdate, 0.5)
	if !total.Eq(d(5)) {
		t.Fatalf("expected 5 triggers, got %s", total)
	}
}

func TestBoostCellOnlyWhenEnabled(t *testing.T) {
	reg := persist.NewRegistry()
	h := feat.NewHost(reg, nil, nil)
	plain, err := Build(h, Options{ID: "plain"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	boosted, err := Build(h, Options{ID: "boosted", Boost: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if reg.Has("plain.currentBoost") || plain.CurrentBoost != nil || plain.Fields().Has("currentBoost") {
		t.Fatalf("expected currentBoost dropped without boost")
	}
	if !reg.Has("boosted.currentBoost") || boosted.CurrentBoost == nil {
		t.Fatalf("expected currentBoost persisted with boost")
	}
	snapshot, err := reg.SnapshotAll()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, ok := snapshot["plain.currentBoost"]; ok {
		t.Fatalf("expected dropped cell absent from the save")
	}
}

func TestLazyLoopMaterializesOnce(t *testing.T) {
	h := feat.NewHost(persist.NewRegistry(), nil, nil)
	calls := 0
	lazy := New(h, func() Options {
		calls++
		return Options{BuildRequirement: d(1)}
	})
	lazy.Get().Build(d(1))
	if !lazy.Get().IsBuilt() || calls != 1 {
		t.Fatalf("expected a single materialization, calls=%d", calls)
	}
}
