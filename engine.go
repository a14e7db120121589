package feat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Engine names accepted by FormulaEngine.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

var ErrNoEvaluator = errors.New("feat: evaluator not configured")

// Option configures a FormulaEngine.
type Option func(*engineConfig)

type engineConfig struct {
	evaluators    map[string]Evaluator
	programCache  ProgramCache
	functions     *FunctionRegistry
	logger        EvaluatorLogger
	defaultEngine string
}

func applyOptions(opts []Option) engineConfig {
	cfg := engineConfig{
		evaluators:    map[string]Evaluator{},
		logger:        noopEvaluatorLogger{},
		defaultEngine: EngineExpr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.programCache == nil {
		cfg.programCache = NewMapProgramCache()
	}
	if cfg.functions == nil {
		cfg.functions = NewFunctionRegistry()
	}
	registerBuiltins(cfg.functions)
	return cfg
}

// WithEvaluator installs e for engine, replacing the built-in one.
func WithEvaluator(engine string, e Evaluator) Option {
	return func(cfg *engineConfig) {
		if e == nil {
			return
		}
		cfg.evaluators[strings.ToLower(engine)] = e
	}
}

// WithDefaultEngine selects the engine used when a formula names none.
func WithDefaultEngine(engine string) Option {
	return func(cfg *engineConfig) {
		if engine != "" {
			cfg.defaultEngine = strings.ToLower(engine)
		}
	}
}

// WithFunctionRegistry configures the engine to use registry.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *engineConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for every evaluator.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *engineConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// EvaluatorOption configures a built-in evaluator.
type EvaluatorOption func(*evaluatorConfig)

type evaluatorConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// EvaluatorWithCache stores compiled programs in cache. Programs are keyed by
// formula text plus the typed names it was bound against.
func EvaluatorWithCache(cache ProgramCache) EvaluatorOption {
	return func(cfg *evaluatorConfig) {
		cfg.cache = cache
	}
}

// EvaluatorWithFunctions exposes a copy of registry to formulas.
func EvaluatorWithFunctions(registry *FunctionRegistry) EvaluatorOption {
	return func(cfg *evaluatorConfig) {
		if registry != nil {
			cfg.registry = registry.Clone()
		}
	}
}

func newEvaluatorConfig(opts []EvaluatorOption) evaluatorConfig {
	cfg := evaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// FormulaEngine compiles and runs formula strings for computed fields. It
// builds evaluators lazily per engine name.
type FormulaEngine struct {
	cfg engineConfig
	mu  sync.Mutex
}

// NewFormulaEngine constructs an engine with the expr evaluator as default.
func NewFormulaEngine(opts ...Option) *FormulaEngine {
	return &FormulaEngine{cfg: applyOptions(opts)}
}

// DefaultEngine reports the engine used for formulas that name none.
func (e *FormulaEngine) DefaultEngine() string {
	return e.cfg.defaultEngine
}

// Functions returns a copy of the engine's function registry.
func (e *FormulaEngine) Functions() *FunctionRegistry {
	return e.cfg.functions.Clone()
}

// Evaluator returns the evaluator for engine, building a built-in one on first
// use.
func (e *FormulaEngine) Evaluator(engine string) (Evaluator, error) {
	engine = strings.ToLower(engine)
	if engine == "" {
		engine = e.cfg.defaultEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if evaluator, ok := e.cfg.evaluators[engine]; ok {
		return evaluator, nil
	}
	var evaluator Evaluator
	switch engine {
	case EngineExpr:
		evaluator = NewExprEvaluator(e.evaluatorOptions()...)
	case EngineCEL:
		evaluator = NewCELEvaluator(e.evaluatorOptions()...)
	case EngineJS:
		evaluator = NewJSEvaluator(e.evaluatorOptions()...)
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEvaluator, engine)
	}
	e.cfg.evaluators[engine] = evaluator
	return evaluator, nil
}

// evaluatorOptions shares the engine's program cache and functions with every
// built-in evaluator.
func (e *FormulaEngine) evaluatorOptions() []EvaluatorOption {
	return []EvaluatorOption{
		EvaluatorWithCache(e.cfg.programCache),
		EvaluatorWithFunctions(e.cfg.functions),
	}
}

// Compile returns a compiled rule for expr on engine.
func (e *FormulaEngine) Compile(engine, expr string, opts ...CompileOption) (CompiledRule, error) {
	if expr == "" {
		return nil, fmt.Errorf("feat: expression must not be empty")
	}
	evaluator, err := e.Evaluator(engine)
	if err != nil {
		return nil, err
	}
	rule, err := evaluator.Compile(expr, opts...)
	if err != nil {
		return nil, err
	}
	return &loggedRule{engine: e.engineName(engine), expr: expr, rule: rule, logger: e.cfg.logger}, nil
}

// Evaluate runs expr once against ctx.
func (e *FormulaEngine) Evaluate(ctx RuleContext, engine, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("feat: expression must not be empty")
	}
	evaluator, err := e.Evaluator(engine)
	if err != nil {
		return nil, err
	}
	ctx = ctx.withDefaults()
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	evalErr = wrapEvaluationError(e.engineName(engine), expr, ctx, evalErr)
	e.cfg.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   e.engineName(engine),
		Formula:  expr,
		Feature:  ctx.Feature,
		Field:    ctx.Field,
		Duration: time.Since(start),
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

func (e *FormulaEngine) engineName(engine string) string {
	if engine == "" {
		return e.cfg.defaultEngine
	}
	return strings.ToLower(engine)
}

type loggedRule struct {
	engine string
	expr   string
	rule   CompiledRule
	logger EvaluatorLogger
}

func (r *loggedRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	start := time.Now()
	value, err := r.rule.Evaluate(ctx)
	err = wrapEvaluationError(r.engine, r.expr, ctx, err)
	r.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   r.engine,
		Formula:  r.expr,
		Feature:  ctx.Feature,
		Field:    ctx.Field,
		Duration: time.Since(start),
		Err:      err,
	})
	return value, err
}
