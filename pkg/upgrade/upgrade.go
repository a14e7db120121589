// Package upgrade implements one-shot purchases.
package upgrade

import (
	"fmt"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
	"github.com/goliatone/go-features/pkg/resource"
)

// Kind tags upgrade features.
const Kind feat.Type = "upgrade"

// Options describe an upgrade. Either CanAfford or both Resource and Cost
// must be set.
type Options struct {
	ID         string
	Visibility any
	Display    any

	Resource  *resource.Resource
	Cost      any
	CanAfford any

	OnPurchase func()
}

// Upgrade is a materialized one-shot switch.
type Upgrade struct {
	*feat.Base

	Bought *persist.Cell[bool]

	resource    *resource.Resource
	cost        *feat.Computed[decimal.Decimal]
	canAfford   *feat.Computed[bool]
	canPurchase *feat.Computed[bool]
	display     *feat.Computed[string]
	onPurchase  func()
}

// New returns a lazy upgrade.
func New(h feat.Host, options func() Options, decorators ...feat.Decorator) *feat.Lazy[*Upgrade] {
	reserved := feat.ReserveID(h, Kind)
	return feat.NewLazy(func() (*Upgrade, error) {
		opts := options()
		if opts.ID == "" {
			opts.ID = reserved
		}
		return Build(h, opts, decorators...)
	})
}

// Build materializes an upgrade immediately.
func Build(h feat.Host, opts Options, decorators ...feat.Decorator) (*Upgrade, error) {
	u := &Upgrade{resource: opts.Resource, onPurchase: opts.OnPurchase}
	base, err := feat.Construct(h, Kind, opts.ID, decorators, func(b *feat.Base) error {
		return u.build(b, opts)
	})
	if err != nil {
		return nil, err
	}
	u.Base = base
	return u, nil
}

func (u *Upgrade) build(b *feat.Base, opts Options) error {
	if opts.CanAfford == nil && (opts.Resource == nil || opts.Cost == nil) {
		return fmt.Errorf("%w: upgrade needs canAfford or both resource and cost", feat.ErrMissingField)
	}

	bought, err := feat.Persist(b, "bought", false)
	if err != nil {
		return err
	}
	u.Bought = bought

	if _, err := feat.BridgeOr[feat.Visibility](b, "visibility", opts.Visibility, feat.Visible); err != nil {
		return err
	}
	if opts.Resource != nil {
		if _, err := feat.Bridge[*resource.Resource](b, "resource", opts.Resource); err != nil {
			return err
		}
	}
	if u.cost, err = feat.Bridge[decimal.Decimal](b, "cost", opts.Cost); err != nil {
		return err
	}

	canAfford := opts.CanAfford
	if canAfford == nil {
		canAfford = func() bool { return u.resource.Get().Gte(u.cost.Get()) }
	}
	if u.canAfford, err = feat.Bridge[bool](b, "canAfford", canAfford); err != nil {
		return err
	}
	u.canPurchase, err = feat.Bridge[bool](b, "canPurchase", func() bool {
		return b.Visible() && !u.Bought.Get() && u.canAfford.Get()
	})
	if err != nil {
		return err
	}
	if u.display, err = feat.Bridge[string](b, "display", opts.Display); err != nil {
		return err
	}

	b.SetAction("purchase", func() { u.Purchase() })
	b.AddProps("visibility", "bought", "cost", "canPurchase", "display")
	return nil
}

// Purchase buys the upgrade once. It reports whether anything happened.
func (u *Upgrade) Purchase() bool {
	if !u.canPurchase.Get() {
		return false
	}
	if u.resource != nil && u.cost != nil {
		u.resource.Sub(u.cost.Get())
	}
	u.Bought.Set(true)
	if u.onPurchase != nil {
		u.onPurchase()
	}
	return true
}

func (u *Upgrade) IsBought() bool               { return u.Bought.Get() }
func (u *Upgrade) CanPurchase() bool            { return u.canPurchase.Get() }
func (u *Upgrade) Cost() decimal.Decimal        { return u.cost.Get() }
func (u *Upgrade) Display() string              { return u.display.Get() }
func (u *Upgrade) Resource() *resource.Resource { return u.resource }
