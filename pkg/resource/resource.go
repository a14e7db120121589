// Package resource models named arbitrary-precision quantities and the
// analytics games track over them.
package resource

import (
	"sync/atomic"

	"github.com/goliatone/go-features/pkg/decimal"
	"github.com/goliatone/go-features/pkg/format"
	"github.com/goliatone/go-features/pkg/persist"
)

// AbyssSignal is a process-wide flag read by resource display names. It only
// changes when Refresh runs, which the tick loop does once per tick.
type AbyssSignal struct {
	source atomic.Pointer[func() bool]
	active atomic.Bool
}

// Abyss is the shared signal resources use unless built WithAbyss.
var Abyss = NewAbyssSignal(nil)

// NewAbyssSignal builds a signal observing source. A nil source reads false.
func NewAbyssSignal(source func() bool) *AbyssSignal {
	s := &AbyssSignal{}
	s.SetSource(source)
	return s
}

// SetSource replaces the observed challenge state.
func (s *AbyssSignal) SetSource(source func() bool) {
	if source == nil {
		s.source.Store(nil)
		return
	}
	s.source.Store(&source)
}

// Refresh samples the source. Call it from exactly one scheduler step.
func (s *AbyssSignal) Refresh() {
	fn := s.source.Load()
	if fn == nil {
		s.active.Store(false)
		return
	}
	s.active.Store((*fn)())
}

// Active reports the value sampled by the last Refresh.
func (s *AbyssSignal) Active() bool {
	return s.active.Load()
}

// Resource is a named decimal quantity backed by a cell.
type Resource struct {
	cell      *persist.Cell[decimal.Decimal]
	persisted bool
	name      string
	singular  string
	precision int
	small     bool
	abyssal   bool
	abyss     *AbyssSignal
}

// Option configures a Resource.
type Option func(*config)

type config struct {
	precision int
	small     bool
	abyssal   bool
	singular  string
	abyss     *AbyssSignal
	cellOpts  []persist.CellOption
}

// WithPrecision sets the display precision. Zero renders whole numbers.
func WithPrecision(precision int) Option {
	return func(c *config) { c.precision = precision }
}

// WithSmall enables rendering of values below 0.0001.
func WithSmall(small bool) Option {
	return func(c *config) { c.small = small }
}

// WithAbyssal opts the resource into the abyss display name.
func WithAbyssal(abyssal bool) Option {
	return func(c *config) { c.abyssal = abyssal }
}

// WithSingularName overrides the singular display name.
func WithSingularName(name string) Option {
	return func(c *config) { c.singular = name }
}

// WithAbyss binds the resource to signal instead of Abyss.
func WithAbyss(signal *AbyssSignal) Option {
	return func(c *config) { c.abyss = signal }
}

// WithKey pins the persistent key of a created resource.
func WithKey(key string) Option {
	return func(c *config) { c.cellOpts = append(c.cellOpts, persist.WithKey(key)) }
}

func applyOptions(opts []Option) config {
	cfg := config{precision: format.DefaultDecimals, abyss: Abyss}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.abyss == nil {
		cfg.abyss = Abyss
	}
	return cfg
}

// Create allocates a persistent cell in reg holding initial.
func Create(reg *persist.Registry, name string, initial decimal.Decimal, opts ...Option) (*Resource, error) {
	cfg := applyOptions(opts)
	cell, err := persist.Create(reg, initial, cfg.cellOpts...)
	if err != nil {
		return nil, err
	}
	r := newResource(cell, name, cfg)
	r.persisted = true
	return r, nil
}

// Wrap builds a resource over a cell the caller already owns. Wrapping never
// registers the cell.
func Wrap(cell *persist.Cell[decimal.Decimal], name string, opts ...Option) *Resource {
	return newResource(cell, name, applyOptions(opts))
}

func newResource(cell *persist.Cell[decimal.Decimal], name string, cfg config) *Resource {
	singular := cfg.singular
	if singular == "" {
		singular = name
	}
	return &Resource{
		cell:      cell,
		name:      name,
		singular:  singular,
		precision: cfg.precision,
		small:     cfg.small,
		abyssal:   cfg.abyssal,
		abyss:     cfg.abyss,
	}
}

// Get returns the current amount.
func (r *Resource) Get() decimal.Decimal { return r.cell.Get() }

// Set replaces the amount.
func (r *Resource) Set(v decimal.Decimal) { r.cell.Set(v) }

// Add increases the amount by v.
func (r *Resource) Add(v decimal.Decimal) { r.cell.Set(r.cell.Get().Add(v)) }

// Sub decreases the amount by v.
func (r *Resource) Sub(v decimal.Decimal) { r.cell.Set(r.cell.Get().Sub(v)) }

// Watch subscribes fn to amount changes.
func (r *Resource) Watch(fn func(next, prev decimal.Decimal)) (stop func()) {
	return r.cell.Watch(fn)
}

// Cell exposes the backing cell.
func (r *Resource) Cell() *persist.Cell[decimal.Decimal] { return r.cell }

// Persisted reports whether the resource allocated its own save cell.
func (r *Resource) Persisted() bool { return r.persisted }

// Name is the plain resource name.
func (r *Resource) Name() string { return r.name }

// Precision is the number of decimals Display shows.
func (r *Resource) Precision() int { return r.precision }

// Small reports whether Display renders fractional amounts.
func (r *Resource) Small() bool { return r.small }

// Abyssal reports whether the name is qualified while the abyss is on.
func (r *Resource) Abyssal() bool { return r.abyssal }

// DisplayName is the name shown to players, qualified while the abyss is on.
func (r *Resource) DisplayName() string {
	return r.qualify(r.name)
}

// SingularName is DisplayName for a quantity of one.
func (r *Resource) SingularName() string {
	return r.qualify(r.singular)
}

func (r *Resource) qualify(name string) string {
	if r.abyssal && r.abyss.Active() {
		return "Abyssal " + name
	}
	return name
}

var smallCutoff = decimal.FromFloat(0.98)

// Display renders the amount, or override when given, using the resource's
// precision and small settings.
func Display(r *Resource, override ...decimal.Decimal) string {
	amount := r.Get()
	if len(override) > 0 {
		amount = override[0]
	}
	switch {
	case r.small && amount.Lt(smallCutoff):
		return format.FormatSmall(amount, r.precision)
	case r.precision == 0:
		if r.small {
			return format.FormatWhole(amount)
		}
		return format.FormatWhole(amount.Floor())
	default:
		return format.Format(amount, r.precision, r.small)
	}
}
