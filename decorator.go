package feat

// Decorator is a trait bundle applied to a feature during construction. A
// decorator implements any subset of PersistentDataProvider, PostConstructor
// and PropGatherer; Construct detects each capability separately.
type Decorator any

// PersistentDataProvider contributes persistent cells before the feature's own
// fields are bridged, typically through Persist.
type PersistentDataProvider interface {
	PersistentData(b *Base) error
}

// PostConstructor runs after the feature's fields are bridged. Hooks run in
// decorator order, so a hook may read fields attached by earlier decorators.
type PostConstructor interface {
	PostConstruct(b *Base) error
}

// PropGatherer names fields exposed to the render boundary.
type PropGatherer interface {
	GatheredProps() []string
}

// DecoratorFuncs adapts plain functions to the decorator capabilities. Nil
// members are skipped.
type DecoratorFuncs struct {
	Persistent func(b *Base) error
	Post       func(b *Base) error
	Props      []string
}

func (d DecoratorFuncs) PersistentData(b *Base) error {
	if d.Persistent == nil {
		return nil
	}
	return d.Persistent(b)
}

func (d DecoratorFuncs) PostConstruct(b *Base) error {
	if d.Post == nil {
		return nil
	}
	return d.Post(b)
}

func (d DecoratorFuncs) GatheredProps() []string {
	return append([]string(nil), d.Props...)
}
