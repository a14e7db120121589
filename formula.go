package feat

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/goliatone/go-features/pkg/decimal"
)

// Formula is a field value written as an expression over previously bridged
// fields of the same feature. Decimal fields enter the expression as float64,
// so formulas suit values that stay within float range.
type Formula struct {
	Engine string
	Source string
}

// Expr returns a formula evaluated with expr-lang.
func Expr(source string) Formula { return Formula{Engine: EngineExpr, Source: source} }

// CEL returns a formula evaluated with cel-go.
func CEL(source string) Formula { return Formula{Engine: EngineCEL, Source: source} }

// JS returns a formula evaluated with goja.
func JS(source string) Formula { return Formula{Engine: EngineJS, Source: source} }

func (f Formula) String() string {
	engine := f.Engine
	if engine == "" {
		engine = "default"
	}
	return engine + ":" + f.Source
}

// compileFormula binds f to the fields b has bridged so far. Identifiers that
// are not bridged yet fail here for engines that check names at compile time.
func compileFormula[T any](b *Base, name string, f Formula) (*Computed[T], error) {
	names := b.fields.Names()
	rule, err := b.host.Formulas().Compile(f.Engine, f.Source, WithVariableValues(b.fields.samples(names, formulaValue)))
	if err != nil {
		err = annotate(err, &EvaluationError{Feature: b.id, Field: name})
		return nil, &FieldError{Feature: b.id, Field: name, Err: err}
	}
	fields := b.fields
	return Derive(func() T {
		out, err := rule.Evaluate(RuleContext{
			Snapshot: fields.snapshot(names, formulaValue),
			Feature:  b.id,
			Field:    name,
		})
		if err != nil {
			panic(&FieldError{Feature: b.id, Field: name, Err: err})
		}
		value, err := convertValue[T](out)
		if err != nil {
			panic(&FieldError{Feature: b.id, Field: name, Err: err})
		}
		return value
	}), nil
}

// formulaValue maps field values onto types the evaluators understand.
func formulaValue(v any) any {
	switch typed := v.(type) {
	case decimal.Decimal:
		return typed.Float64()
	case Visibility:
		return typed.String()
	default:
		return v
	}
}

// convertValue coerces a dynamically typed value into T.
func convertValue[T any](v any) (T, error) {
	var zero T
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	var out any
	switch any(zero).(type) {
	case decimal.Decimal:
		d, err := toDecimal(v)
		if err != nil {
			return zero, err
		}
		out = d
	case float64:
		f, err := toFloat(v)
		if err != nil {
			return zero, err
		}
		out = f
	case int:
		f, err := toFloat(v)
		if err != nil {
			return zero, err
		}
		out = int(f)
	case int64:
		f, err := toFloat(v)
		if err != nil {
			return zero, err
		}
		out = int64(f)
	case bool:
		b, ok := v.(bool)
		if !ok {
			return zero, fmt.Errorf("%w: cannot use %T as bool", ErrFieldType, v)
		}
		out = b
	case string:
		out = fmt.Sprint(v)
	case Visibility:
		vis, err := toVisibility(v)
		if err != nil {
			return zero, err
		}
		out = vis
	default:
		return zero, fmt.Errorf("%w: cannot use %T as %T", ErrFieldType, v, zero)
	}
	return out.(T), nil
}

func toFloat(v any) (float64, error) {
	switch typed := v.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case int:
		return float64(typed), nil
	case int32:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case uint:
		return float64(typed), nil
	case uint64:
		return float64(typed), nil
	case decimal.Decimal:
		return typed.Float64(), nil
	case json.Number:
		return typed.Float64()
	case string:
		return strconv.ParseFloat(typed, 64)
	}
	return 0, fmt.Errorf("%w: cannot use %T as number", ErrFieldType, v)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch typed := v.(type) {
	case decimal.Decimal:
		return typed, nil
	case string:
		return decimal.Parse(typed)
	}
	f, err := toFloat(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.FromFloat(f), nil
}

func toVisibility(v any) (Visibility, error) {
	switch typed := v.(type) {
	case bool:
		if typed {
			return Visible, nil
		}
		return None, nil
	case string:
		return ParseVisibility(typed)
	}
	f, err := toFloat(v)
	if err != nil {
		return None, err
	}
	return Visibility(int(f)), nil
}
