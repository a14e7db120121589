package feat

import (
	"sort"
	"time"
)

// RuleContext carries inputs needed when evaluating a formula.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	// Feature and Field name the computed field being evaluated. They label
	// errors and log events.
	Feature string
	Field   string
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}


// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	variables []string
	samples   map[string]any
	strict    bool
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// WithVariables declares the only identifiers a formula may reference.
// Engines that type-check at compile time reject anything else.
func WithVariables(names ...string) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		cfg.variables = append([]string(nil), names...)
		cfg.strict = true
	})
}

// WithVariableValues declares the keys of values as the only identifiers a
// formula may reference and types each one after its sample value. Names
// declared by WithVariables alone are typed as float64.
func WithVariableValues(values map[string]any) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		names := make([]string, 0, len(values))
		samples := make(map[string]any, len(values))
		for name, value := range values {
			names = append(names, name)
			samples[name] = value
		}
		sort.Strings(names)
		cfg.variables = names
		cfg.samples = samples
		cfg.strict = true
	})
}

// placeholder returns the compile-time stand-in for name.
func (cfg compileConfig) placeholder(name string) any {
	if value, ok := cfg.samples[name]; ok && value != nil {
		return value
	}
	return float64(0)
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	cfg := compileConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyCompileOption(&cfg)
		}
	}
	return cfg
}
