package feat

import (
	"errors"
	"fmt"
	"strings"
)

// Phase tells whether a formula failed while binding or while computing.
type Phase string

const (
	PhaseCompile  Phase = "compile"
	PhaseEvaluate Phase = "evaluate"
)

// EvaluationError reports a formula that failed for a feature field. Compile
// failures surface when the field is bridged, evaluation failures when the
// field is read.
type EvaluationError struct {
	Engine  string
	Formula string
	Feature string
	Field   string
	Phase   Phase
	Err     error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	formula := "<empty>"
	if e.Formula != "" {
		formula = fmt.Sprintf("%q", e.Formula)
	}
	return fmt.Sprintf("feat: %s %s formula %s on %s: %v", e.Phase, e.Engine, formula, e.Path(), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Path is "<feature>.<field>", with "?" standing in for unknown parts.
func (e *EvaluationError) Path() string {
	feature, field := e.Feature, e.Field
	if feature == "" {
		feature = "?"
	}
	if field == "" {
		field = "?"
	}
	return feature + "." + field
}

// wrapEvaluatorError tags failures that happen before any formula runs.
func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) || strings.HasPrefix(err.Error(), "feat:") {
		return err
	}
	return fmt.Errorf("feat: %s evaluator: %w", engine, err)
}

func wrapCompileError(engine, formula string, err error) error {
	return annotate(err, &EvaluationError{Engine: engine, Formula: formula, Phase: PhaseCompile})
}

func wrapEvaluationError(engine, formula string, ctx RuleContext, err error) error {
	return annotate(err, &EvaluationError{
		Engine:  engine,
		Formula: formula,
		Feature: ctx.Feature,
		Field:   ctx.Field,
		Phase:   PhaseEvaluate,
	})
}

// annotate fills the blanks of an EvaluationError already in err's chain from
// meta, or wraps err in meta.
func annotate(err error, meta *EvaluationError) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		meta.Err = err
		return meta
	}
	if evalErr.Engine == "" {
		evalErr.Engine = meta.Engine
	}
	if evalErr.Formula == "" {
		evalErr.Formula = meta.Formula
	}
	if evalErr.Feature == "" {
		evalErr.Feature = meta.Feature
	}
	if evalErr.Field == "" {
		evalErr.Field = meta.Field
	}
	if evalErr.Phase == "" {
		evalErr.Phase = meta.Phase
	}
	return err
}
