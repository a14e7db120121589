package feat

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-features/pkg/decimal"
)

// Function is callable from every formula engine by name.
type Function func(args ...any) (any, error)

// DecimalFunction is a formula function written against decimals. Arguments
// arrive converted from whatever the engine passed.
type DecimalFunction func(args ...decimal.Decimal) (decimal.Decimal, error)

// FunctionRegistry stores formula functions keyed by lower-cased name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("feat: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("feat: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("feat: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// RegisterDecimal stores fn under name. arity is the exact argument count, or
// -1 for at least one argument. Results return to the formula as float64,
// the number type formulas compute with.
func (r *FunctionRegistry) RegisterDecimal(name string, arity int, fn DecimalFunction) error {
	if fn == nil {
		return fmt.Errorf("feat: function %q is nil", name)
	}
	return r.Register(name, func(args ...any) (any, error) {
		if (arity >= 0 && len(args) != arity) || (arity < 0 && len(args) == 0) {
			return nil, fmt.Errorf("feat: %s expects %s, got %d", name, describeArity(arity), len(args))
		}
		values := make([]decimal.Decimal, len(args))
		for i, arg := range args {
			d, err := toDecimal(arg)
			if err != nil {
				return nil, fmt.Errorf("feat: %s argument %d: %w", name, i+1, err)
			}
			values[i] = d
		}
		out, err := fn(values...)
		if err != nil {
			return nil, err
		}
		return out.Float64(), nil
	})
}

func describeArity(arity int) string {
	switch arity {
	case -1:
		return "at least 1 argument"
	case 1:
		return "1 argument"
	default:
		return fmt.Sprintf("%d arguments", arity)
	}
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[strings.ToLower(name)]
	return ok
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("feat: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("feat: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var euler = decimal.FromFloat(math.E)

// builtinFunctions mirror the decimal operations game formulas lean on.
var builtinFunctions = []struct {
	name  string
	arity int
	fn    DecimalFunction
}{
	{"pow", 2, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Pow(a[1]), nil }},
	{"pow10", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return decimal.Pow10(a[0]), nil }},
	{"sqrt", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Pow(decimal.FromFloat(0.5)), nil }},
	{"exp", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return euler.Pow(a[0]), nil }},
	{"log10", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Log10(), nil }},
	{"ln", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Log(euler), nil }},
	{"log", 2, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Log(a[1]), nil }},
	{"slog", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Slog(), nil }},
	{"floor", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Floor(), nil }},
	{"ceil", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Ceil(), nil }},
	{"round", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Round(), nil }},
	{"abs", 1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return a[0].Abs(), nil }},
	{"max", -1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return fold(a, decimal.Max), nil }},
	{"min", -1, func(a ...decimal.Decimal) (decimal.Decimal, error) { return fold(a, decimal.Min), nil }},
}

func fold(values []decimal.Decimal, pick func(a, b decimal.Decimal) decimal.Decimal) decimal.Decimal {
	out := values[0]
	for _, v := range values[1:] {
		out = pick(out, v)
	}
	return out
}

// registerBuiltins adds the built-in functions to registry. Names the caller
// registered first win.
func registerBuiltins(registry *FunctionRegistry) {
	for _, builtin := range builtinFunctions {
		if registry.Has(builtin.name) {
			continue
		}
		_ = registry.RegisterDecimal(builtin.name, builtin.arity, builtin.fn)
	}
}
