package recovery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/zero-day-ai/resilience/fault"
)

// ExpressionStrategy decides applicability with a CEL boolean expression.
//
// The expression sees these variables:
//
//	category        string  fault category ("network", "filesystem", ...)
//	severity        string  fault severity ("low" ... "critical")
//	kind            string  fault kind (type name or fault.Error Kind)
//	message         string  fault message
//	operation       string  OperationContext.Operation
//	component       string  OperationContext.Component
//	user_id         string  OperationContext.UserID
//	workspace_path  string  OperationContext.WorkspacePath
//	data            map     OperationContext.AdditionalData
//
// Example:
//
//	s, err := recovery.NewExpressionStrategy("rate-limit-wait", "wait out rate limits", 0,
//	    `category == "network" && message.contains("429")`,
//	    recovery.WaitAction(2*time.Second))
type ExpressionStrategy struct {
	name        string
	description string
	priority    int
	expression  string
	program     cel.Program
	action      RecoverFunc
}

var expressionEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		cel.Variable("category", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("operation", cel.StringType),
		cel.Variable("component", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("workspace_path", cel.StringType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
	)
})

// NewExpressionStrategy compiles expression and returns a strategy that runs
// action when it evaluates to true.
func NewExpressionStrategy(name, description string, priority int, expression string, action RecoverFunc) (*ExpressionStrategy, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("strategy %q: empty expression", name)
	}

	env, err := expressionEnv()
	if err != nil {
		return nil, fmt.Errorf("strategy %q: create CEL environment: %w", name, err)
	}

	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("strategy %q: compile %q: %w", name, expression, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("strategy %q: expression must evaluate to bool, got %s", name, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: build program: %w", name, err)
	}

	return &ExpressionStrategy{
		name:        name,
		description: description,
		priority:    priority,
		expression:  expression,
		program:     prg,
		action:      action,
	}, nil
}

func (s *ExpressionStrategy) Name() string        { return s.name }
func (s *ExpressionStrategy) Description() string { return s.description }
func (s *ExpressionStrategy) Priority() int       { return s.priority }

// Expression returns the source expression.
func (s *ExpressionStrategy) Expression() string { return s.expression }

// CanRecover evaluates the expression. Evaluation errors count as false.
func (s *ExpressionStrategy) CanRecover(err error, oc OperationContext) bool {
	if err == nil {
		return false
	}
	out, _, evalErr := s.program.Eval(map[string]any{
		"category":       string(fault.Classify(err)),
		"severity":       string(fault.SeverityOf(err)),
		"kind":           fault.Kind(err),
		"message":        err.Error(),
		"operation":      oc.Operation,
		"component":      oc.Component,
		"user_id":        oc.UserID,
		"workspace_path": oc.WorkspacePath,
		"data":           oc.Data(),
	})
	if evalErr != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func (s *ExpressionStrategy) Recover(ctx context.Context, err error, oc OperationContext) (bool, error) {
	if s.action == nil {
		return false, nil
	}
	return s.action(ctx, err, oc)
}
