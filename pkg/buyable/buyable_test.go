package buyable

import (
	"errors"
	"testing"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
	"github.com/goliatone/go-features/pkg/resource"
)

func d(f float64) decimal.Decimal { return decimal.FromFloat(f) }

func newHost() (feat.Host, *persist.Registry) {
	reg := persist.NewRegistry()
	return feat.NewHost(reg, feat.NewBus(), nil), reg
}

func TestPurchaseScenario(t *testing.T) {
	h, reg := newHost()
	points, _ := resource.Create(reg, "points", d(100))
	var paid []decimal.Decimal
	by, err := Build(h, Options{
		ID:            "generator",
		Resource:      points,
		Cost:          d(10),
		Bulk:          d(1),
		PurchaseLimit: d(5),
		OnPurchase:    func(cost decimal.Decimal) { paid = append(paid, cost) },
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !by.Purchase() {
		t.Fatalf("expected first purchase to succeed")
	}
	if !points.Get().Eq(d(90)) || !by.Amount.Get().Eq(d(1)) || by.Maxed() {
		t.Fatalf("after one purchase: points=%s amount=%s maxed=%v", points.Get(), by.Amount.Get(), by.Maxed())
	}
	for i := 0; i < 4; i++ {
		by.Purchase()
	}
	if !by.Amount.Get().Eq(d(5)) || !by.Maxed() {
		t.Fatalf("after five purchases: amount=%s maxed=%v", by.Amount.Get(), by.Maxed())
	}
	if by.Purchase() {
		t.Fatalf("expected purchase past the limit to be a no-op")
	}
	if !points.Get().Eq(d(50)) || !by.Amount.Get().Eq(d(5)) {
		t.Fatalf("expected state frozen at the limit, points=%s amount=%s", points.Get(), by.Amount.Get())
	}
	if len(paid) != 5 || !paid[0].Eq(d(10)) {
		t.Fatalf("expected onPurchase once per purchase with the cost, got %v", paid)
	}
}

func TestPurchaseWithoutFundsChangesNothing(t *testing.T) {
	h, reg := newHost()
	points, _ := resource.Create(reg, "points", d(5))
	by, err := Build(h, Options{Resource: points, Cost: d(10)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	before, err := reg.SnapshotAll()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if by.Purchase() || by.CanAfford() {
		t.Fatalf("expected unaffordable purchase to be refused")
	}
	after, _ := reg.SnapshotAll()
	if len(before) != len(after) {
		t.Fatalf("expected same persisted keys")
	}
	for key, raw := range before {
		if string(after[key]) != string(raw) {
			t.Fatalf("persisted %s changed from %s to %s", key, raw, after[key])
		}
	}
}

func TestMaxedFollowsDynamicLimit(t *testing.T) {
	h, reg := newHost()
	points, _ := resource.Create(reg, "points", d(1000))
	limit := persist.Ref(d(2))
	by, err := Build(h, Options{Resource: points, Cost: d(1), PurchaseLimit: limit})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	by.Purchase()
	by.Purchase()
	if !by.Maxed() || by.CanPurchase() {
		t.Fatalf("expected maxed at the limit")
	}
	limit.Set(d(3))
	if by.Maxed() || !by.CanPurchase() {
		t.Fatalf("expected raised limit to un-max the buyable")
	}
	limit.Set(d(1))
	if !by.Maxed() {
		t.Fatalf("expected maxed when amount exceeds a lowered limit")
	}
}

func TestCostFormulaReadsAmount(t *testing.T) {
	h, reg := newHost()
	points, _ := resource.Create(reg, "points", d(1000))
	by, err := Build(h, Options{Resource: points, Cost: feat.Expr("10 * pow(2, amount)")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !by.Cost().Eq(d(10)) {
		t.Fatalf("expected base cost 10, got %s", by.Cost())
	}
	by.Purchase()
	if !by.Cost().Eq(d(20)) || !points.Get().Eq(d(990)) {
		t.Fatalf("expected cost to scale with amount, cost=%s points=%s", by.Cost(), points.Get())
	}
}

func TestCostFormulaArithmeticOnAmount(t *testing.T) {
	h, reg := newHost()
	points, _ := resource.Create(reg, "points", d(100))
	by, err := Build(h, Options{Resource: points, Cost: feat.Expr("amount * 2 + 1")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	by.Purchase()
	by.Purchase()
	if !by.Cost().Eq(d(5)) || !points.Get().Eq(d(96)) {
		t.Fatalf("expected linear cost, cost=%s points=%s", by.Cost(), points.Get())
	}
}

func TestCanPurchaseOverrideAndHidden(t *testing.T) {
	h, _ := newHost()
	open := true
	by, err := Build(h, Options{CanPurchase: func() bool { return open }})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !by.Purchase() || !by.Amount.Get().Eq(d(1)) {
		t.Fatalf("expected override to allow purchase without a resource")
	}
	open = false
	persist.Bump()
	if by.Purchase() {
		t.Fatalf("expected override to refuse purchase")
	}

	h2, reg := newHost()
	points, _ := resource.Create(reg, "points", d(100))
	hidden, err := Build(h2, Options{Resource: points, Cost: d(1), Visibility: feat.Hidden})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if hidden.CanPurchase() {
		t.Fatalf("expected hidden buyable to refuse purchase")
	}
}

func TestMissingRequiredFieldsFailConstruction(t *testing.T) {
	h, _ := newHost()
	_, err := Build(h, Options{ID: "broken", Cost: d(10)})
	if !errors.Is(err, feat.ErrMissingField) {
		t.Fatalf("expected missing field error, got %v", err)
	}
	var cerr *feat.ConstructionError
	if !errors.As(err, &cerr) || cerr.ID != "broken" || cerr.Kind != Kind {
		t.Fatalf("expected construction error for broken buyable, got %#v", err)
	}
}

func TestLazyBuyableMaterializesOnce(t *testing.T) {
	h, reg := newHost()
	points, _ := resource.Create(reg, "points", d(100))
	calls := 0
	lazy := New(h, func() Options {
		calls++
		return Options{ID: "lazy-buyable", Resource: points, Cost: d(1)}
	})
	if calls != 0 || lazy.Materialized() {
		t.Fatalf("expected options to be deferred")
	}
	for i := 0; i < 3; i++ {
		lazy.Get().Purchase()
	}
	if calls != 1 {
		t.Fatalf("expected options evaluated once, got %d", calls)
	}
	if !reg.Has("lazy-buyable.amount") || !lazy.Get().Amount.Get().Eq(d(3)) {
		t.Fatalf("expected one persisted amount shared across reads")
	}
}

func TestGatheredProps(t *testing.T) {
	h, reg := newHost()
	points, _ := resource.Create(reg, "points", d(100))
	by, err := Build(h, Options{Resource: points, Cost: d(10), Display: "Generator"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	props := feat.GatherProps(by.Base)
	if props["display"] != "Generator" || props["canPurchase"] != true || props["maxed"] != false {
		t.Fatalf("unexpected props %v", props)
	}
	if amount, ok := props["amount"].(decimal.Decimal); !ok || !amount.IsZero() {
		t.Fatalf("expected zero amount prop, got %v", props["amount"])
	}
}
