package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"poshook/internal/event"
)

// Evaluator compiles boolean filter expressions over canonical events.
// Available variables: entityType, eventType, entityId, number, status,
// total (double), itemCount (int) and extra (map of strings).
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("entityType", cel.StringType),
		cel.Variable("eventType", cel.StringType),
		cel.Variable("entityId", cel.StringType),
		cel.Variable("number", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("total", cel.DoubleType),
		cel.Variable("itemCount", cel.IntType),
		cel.Variable("extra", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return ast, nil
}

// Filter is a compiled expression; safe for concurrent use.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	ast, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) Expression() string {
	return f.expression
}

// Allow reports whether the event should be forwarded.
func (f *Filter) Allow(ctx context.Context, ev *event.CanonicalEvent, kind event.Kind) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, EventVars(ev, kind))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return allowed, nil
}

func EventVars(ev *event.CanonicalEvent, kind event.Kind) map[string]interface{} {
	total, _ := ev.Total.Float64()

	extra := make(map[string]string, len(ev.Extra))
	for k, v := range ev.Extra {
		extra[k] = v
	}

	return map[string]interface{}{
		"entityType": string(ev.EntityType),
		"eventType":  string(kind),
		"entityId":   ev.EntityID,
		"number":     ev.Number,
		"status":     ev.Status,
		"total":      total,
		"itemCount":  int64(len(ev.LineItems)),
		"extra":      extra,
	}
}
