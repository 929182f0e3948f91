package targeting

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// Evaluator compiles and evaluates campaign targeting expressions. The
// expressions see two variables: `user` and `task`, both dynamic maps.
// An empty expression matches everyone.
type Evaluator struct {
	env   *cel.Env
	cache *programCache
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("user", decls.Dyn),
			decls.NewVar("task", decls.Dyn),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	return &Evaluator{
		env:   env,
		cache: newProgramCache(defaultCacheTTL),
	}, nil
}

// Evaluate returns whether the expression matches the given context.
func (e *Evaluator) Evaluate(expression string, context map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	if context == nil {
		context = map[string]any{}
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	result, _, err := program.Eval(context)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate expression: %w", err)
	}

	boolean, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return a boolean, got %T", result.Value())
	}

	return boolean, nil
}

// Validate compiles the expression without evaluating it. Used at campaign
// creation so broken expressions are rejected up front.
func (e *Evaluator) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (cel.Program, error) {
	if program, ok := e.cache.Get(expression); ok {
		return program, nil
	}

	v, err, _ := e.cache.group.Do(expression, func() (any, error) {
		ast, issues := e.env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
		}

		program, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL program: %w", err)
		}

		e.cache.Set(expression, program)
		return program, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(cel.Program), nil
}
