// Package buyable implements purchasable counters: a persisted amount that
// grows by bulk each time its cost is paid, up to a purchase limit.
package buyable

import (
	"fmt"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
	"github.com/goliatone/go-features/pkg/resource"
)

// Kind tags buyable features.
const Kind feat.Type = "buyable"

// Options describe a buyable. Computed inputs accept anything feat.Bridge
// does: a plain value, a derivation, a Reader or a Formula.
type Options struct {
	ID         string
	Visibility any
	Display    any

	// Resource is debited by Cost on purchase.
	Resource *resource.Resource
	Cost     any

	// Bulk defaults to one and PurchaseLimit to infinity.
	Bulk          any
	PurchaseLimit any

	// CanPurchase replaces the default visible && affordable && below limit
	// condition entirely.
	CanPurchase any

	Initial    decimal.Decimal
	OnPurchase func(cost decimal.Decimal)
}

// Buyable is a materialized purchasable counter.
type Buyable struct {
	*feat.Base

	Amount *persist.Cell[decimal.Decimal]

	resource      *resource.Resource
	cost          *feat.Computed[decimal.Decimal]
	bulk          *feat.Computed[decimal.Decimal]
	purchaseLimit *feat.Computed[decimal.Decimal]
	canAfford     *feat.Computed[bool]
	canPurchase   *feat.Computed[bool]
	maxed         *feat.Computed[bool]
	display       *feat.Computed[string]
	onPurchase    func(decimal.Decimal)
}

// New returns a lazy buyable. options runs once, on first access.
func New(h feat.Host, options func() Options, decorators ...feat.Decorator) *feat.Lazy[*Buyable] {
	reserved := feat.ReserveID(h, Kind)
	return feat.NewLazy(func() (*Buyable, error) {
		opts := options()
		if opts.ID == "" {
			opts.ID = reserved
		}
		return Build(h, opts, decorators...)
	})
}

// Build materializes a buyable immediately.
func Build(h feat.Host, opts Options, decorators ...feat.Decorator) (*Buyable, error) {
	by := &Buyable{resource: opts.Resource, onPurchase: opts.OnPurchase}
	base, err := feat.Construct(h, Kind, opts.ID, decorators, func(b *feat.Base) error {
		return by.build(b, opts)
	})
	if err != nil {
		return nil, err
	}
	by.Base = base
	return by, nil
}

func (by *Buyable) build(b *feat.Base, opts Options) error {
	if opts.CanPurchase == nil && (opts.Resource == nil || opts.Cost == nil) {
		return fmt.Errorf("%w: buyable needs canPurchase or both resource and cost", feat.ErrMissingField)
	}

	amount, err := feat.Persist(b, "amount", opts.Initial)
	if err != nil {
		return err
	}
	by.Amount = amount

	if _, err := feat.BridgeOr[feat.Visibility](b, "visibility", opts.Visibility, feat.Visible); err != nil {
		return err
	}
	if opts.Resource != nil {
		if _, err := feat.Bridge[*resource.Resource](b, "resource", opts.Resource); err != nil {
			return err
		}
	}
	if by.cost, err = feat.Bridge[decimal.Decimal](b, "cost", opts.Cost); err != nil {
		return err
	}
	if by.bulk, err = feat.BridgeOr[decimal.Decimal](b, "bulk", opts.Bulk, decimal.One); err != nil {
		return err
	}
	if by.purchaseLimit, err = feat.BridgeOr[decimal.Decimal](b, "purchaseLimit", opts.PurchaseLimit, decimal.Inf()); err != nil {
		return err
	}

	by.canAfford, err = feat.Bridge[bool](b, "canAfford", func() bool {
		if by.resource == nil || by.cost == nil {
			return true
		}
		return by.resource.Get().Gte(by.cost.Get())
	})
	if err != nil {
		return err
	}
	by.maxed, err = feat.Bridge[bool](b, "maxed", func() bool {
		return by.Amount.Get().Gte(by.purchaseLimit.Get())
	})
	if err != nil {
		return err
	}

	canPurchase := opts.CanPurchase
	if canPurchase == nil {
		canPurchase = func() bool {
			return b.Visible() && by.canAfford.Get() && by.Amount.Get().Lt(by.purchaseLimit.Get())
		}
	}
	if by.canPurchase, err = feat.Bridge[bool](b, "canPurchase", canPurchase); err != nil {
		return err
	}
	if by.display, err = feat.Bridge[string](b, "display", opts.Display); err != nil {
		return err
	}

	b.SetAction("purchase", func() { by.Purchase() })
	b.AddProps("visibility", "amount", "cost", "canPurchase", "maxed", "display")
	return nil
}

// Purchase pays the cost, adds bulk to amount and runs OnPurchase. It does
// nothing and reports false unless canPurchase holds.
func (by *Buyable) Purchase() bool {
	if !by.canPurchase.Get() {
		return false
	}
	cost := decimal.Zero
	if by.cost != nil {
		cost = by.cost.Get()
	}
	if by.resource != nil && by.cost != nil {
		by.resource.Sub(cost)
	}
	by.Amount.Set(by.Amount.Get().Add(by.bulk.Get()))
	if by.onPurchase != nil {
		by.onPurchase(cost)
	}
	return true
}

func (by *Buyable) Cost() decimal.Decimal          { return by.cost.Get() }
func (by *Buyable) Bulk() decimal.Decimal          { return by.bulk.Get() }
func (by *Buyable) PurchaseLimit() decimal.Decimal { return by.purchaseLimit.Get() }
func (by *Buyable) CanAfford() bool                { return by.canAfford.Get() }
func (by *Buyable) CanPurchase() bool              { return by.canPurchase.Get() }
func (by *Buyable) Maxed() bool                    { return by.maxed.Get() }
func (by *Buyable) Resource() *resource.Resource   { return by.resource }

// Display returns the display field, or "" when none was given.
func (by *Buyable) Display() string { return by.display.Get() }
