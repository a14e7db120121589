// Package decorators holds trait bundles shared by feature kinds. Each one
// inspects the feature's fields and actions and quietly does nothing when the
// capabilities it needs are absent.
package decorators

import (
	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/persist"
	"github.com/goliatone/go-features/pkg/resource"
)

// Field and action names the decorators look for.
const (
	FieldCanPurchase = "canPurchase"
	FieldCanClick    = "canClick"
	FieldAmount      = "amount"
	FieldCost        = "cost"
	FieldResource    = "resource"
	ActionPurchase   = "purchase"
	ActionClick      = "onClick"
	ActionRefund     = "refund"
)

type autobuy struct {
	condition any
}

// Autobuy purchases (or clicks) the feature on every tick while condition and
// the feature's own canPurchase (or canClick) hold. condition accepts anything
// feat.Bridge does for a bool.
func Autobuy(condition any) feat.Decorator {
	return autobuy{condition: condition}
}

func (a autobuy) PostConstruct(b *feat.Base) error {
	enabled, err := feat.BridgeOr[bool](b, "autoBuy", a.condition, false)
	if err != nil {
		return err
	}
	b.On(feat.EventUpdate, func(float64) {
		if !enabled.Get() {
			return
		}
		if purchase, ok := b.Action(ActionPurchase); ok && b.Fields().Has(FieldCanPurchase) {
			if truthy(b, FieldCanPurchase) {
				purchase()
			}
			return
		}
		if click, ok := b.Action(ActionClick); ok && b.Fields().Has(FieldCanClick) {
			if truthy(b, FieldCanClick) {
				click()
			}
		}
	})
	return nil
}

func (autobuy) GatheredProps() []string { return []string{"autoBuy"} }

func truthy(b *feat.Base, name string) bool {
	value, ok := b.Fields().Lookup(name)
	if !ok {
		return false
	}
	flag, ok := value.(bool)
	return ok && flag
}

type bonusAmount struct {
	bonus any
}

// BonusAmount adds a free bonus on top of the feature's amount, exposed as
// bonusAmount and totalAmount.
func BonusAmount(bonus any) feat.Decorator {
	return bonusAmount{bonus: bonus}
}

func (d bonusAmount) PostConstruct(b *feat.Base) error {
	if !b.Fields().Has(FieldAmount) {
		return nil
	}
	bonus, err := feat.BridgeOr[decimal.Decimal](b, "bonusAmount", d.bonus, decimal.Zero)
	if err != nil {
		return err
	}
	_, err = feat.Bridge[decimal.Decimal](b, "totalAmount", func(f *feat.Fields) decimal.Decimal {
		amount, _ := f.Value(FieldAmount).(decimal.Decimal)
		return amount.Add(bonus.Get())
	})
	return err
}

func (bonusAmount) GatheredProps() []string { return []string{"bonusAmount", "totalAmount"} }

type refund struct {
	fraction any
}

// Refund lets a purchased unit be sold back for fraction of the price it
// currently costs. It keeps a persisted refunded counter.
func Refund(fraction any) feat.Decorator {
	return refund{fraction: fraction}
}

func (refund) PersistentData(b *feat.Base) error {
	_, err := feat.Persist(b, "refunded", decimal.Zero)
	return err
}

func (d refund) PostConstruct(b *feat.Base) error {
	handle, ok := b.Persistent(FieldAmount)
	if !ok {
		return nil
	}
	amount, ok := handle.(*persist.Cell[decimal.Decimal])
	if !ok {
		return nil
	}
	fraction, err := feat.BridgeOr[decimal.Decimal](b, "refundFraction", d.fraction, decimal.One)
	if err != nil {
		return err
	}
	canRefund, err := feat.Bridge[bool](b, "canRefund", func() bool {
		return amount.Get().Gte(decimal.One)
	})
	if err != nil {
		return err
	}
	refundedHandle, _ := b.Persistent("refunded")
	refunded, _ := refundedHandle.(*persist.Cell[decimal.Decimal])

	b.SetAction(ActionRefund, func() {
		if !canRefund.Get() {
			return
		}
		amount.Set(amount.Get().Sub(decimal.One))
		if refunded != nil {
			refunded.Set(refunded.Get().Add(decimal.One))
		}
		res, ok := lookup[*resource.Resource](b, FieldResource)
		if !ok {
			return
		}
		cost, ok := lookup[decimal.Decimal](b, FieldCost)
		if !ok {
			return
		}
		res.Add(cost.Mul(fraction.Get()))
	})
	return nil
}

func (refund) GatheredProps() []string { return []string{"canRefund", "refunded"} }

func lookup[T any](b *feat.Base, name string) (T, bool) {
	var zero T
	value, ok := b.Fields().Lookup(name)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}
