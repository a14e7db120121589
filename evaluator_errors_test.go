package feat

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-features/pkg/decimal"
)

func TestFormulaCompileErrorNamesFeatureAndField(t *testing.T) {
	_, err := Construct(newTestHost(), "upgrade", "doubler", nil, func(b *Base) error {
		_, err := Bridge[decimal.Decimal](b, "cost", Expr("10 *"))
		return err
	})
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T: %v", err, err)
	}
	if evalErr.Phase != PhaseCompile || evalErr.Engine != EngineExpr || evalErr.Formula != "10 *" {
		t.Fatalf("unexpected error metadata %+v", evalErr)
	}
	if evalErr.Path() != "doubler.cost" {
		t.Fatalf("expected path doubler.cost, got %q", evalErr.Path())
	}
}

func TestFormulaEvaluationErrorNamesFeatureAndField(t *testing.T) {
	b, err := Construct(newTestHost(), "buyable", "miner", nil, func(b *Base) error {
		if _, err := Bridge[decimal.Decimal](b, "amount", decimal.One); err != nil {
			return err
		}
		_, err := Bridge[decimal.Decimal](b, "cost", CEL(`amount + double(int("x"))`))
		return err
	})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	recovered := expectPanic(t, func() { b.Fields().Value("cost") })
	err, _ = recovered.(error)
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError in panic, got %v", recovered)
	}
	if evalErr.Phase != PhaseEvaluate || evalErr.Feature != "miner" || evalErr.Field != "cost" {
		t.Fatalf("unexpected error metadata %+v", evalErr)
	}
	if !strings.Contains(err.Error(), "miner.cost") {
		t.Fatalf("expected message to name miner.cost, got %v", err)
	}
}

func TestAnnotateFillsOnlyBlanks(t *testing.T) {
	base := errors.New("boom")
	existing := &EvaluationError{Engine: EngineExpr, Err: base}

	err := wrapEvaluationError(EngineCEL, "amount * 2", RuleContext{Feature: "generator", Field: "cost"}, existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if existing.Engine != EngineExpr || existing.Formula != "amount * 2" || existing.Path() != "generator.cost" {
		t.Fatalf("expected blanks filled and engine kept, got %+v", existing)
	}
	if got := wrapEvaluatorError(EngineJS, errors.New("missing")); !strings.HasPrefix(got.Error(), "feat: js evaluator") {
		t.Fatalf("expected evaluator prefix, got %v", got)
	}
}
