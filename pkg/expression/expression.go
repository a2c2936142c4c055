// Package expression resolves {{ expr }} template fragments inside node
// parameters against a layered run scope.
//
// Evaluation is pure and deterministic: no I/O, no host-language escape,
// only a fixed helper whitelist on top of the expr builtin library. Missing
// references are typed errors, never silent nulls.
package expression

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// EvaluationError reports an expression that could not be compiled, failed
// at runtime, or resolved to nothing.
type EvaluationError struct {
	Expression string
	Reason     string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expression, e.Reason)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsEvaluationError reports whether err is a typed evaluation error.
func IsEvaluationError(err error) bool {
	var target *EvaluationError

	return errors.As(err, &target)
}

// Evaluator compiles and evaluates template expressions. Compiled programs
// are cached and reused across goroutines.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewEvaluator creates an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Resolve walks a parameter tree and resolves every template fragment
// against the scope. Maps and slices are resolved recursively, field by
// field; values without markers pass through unchanged.
func (e *Evaluator) Resolve(params map[string]any, scope *Scope) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}

	resolved, err := e.resolveValue(params, scope)
	if err != nil {
		return nil, err
	}

	out, ok := resolved.(map[string]any)
	if !ok {
		return nil, &EvaluationError{Reason: "parameter root must resolve to an object"}
	}

	return out, nil
}

func (e *Evaluator) resolveValue(value any, scope *Scope) (any, error) {
	switch typed := value.(type) {
	case string:
		return e.resolveString(typed, scope)
	case map[string]any:
		out := make(map[string]any, len(typed))

		for key, val := range typed {
			resolved, err := e.resolveValue(val, scope)
			if err != nil {
				return nil, err
			}

			out[key] = resolved
		}

		return out, nil
	case []any:
		out := make([]any, len(typed))

		for i, val := range typed {
			resolved, err := e.resolveValue(val, scope)
			if err != nil {
				return nil, err
			}

			out[i] = resolved
		}

		return out, nil
	default:
		// Numbers, booleans, nil: identity.
		return value, nil
	}
}

// resolveString handles three shapes: no markers (identity), a string that
// is exactly one fragment (typed result), and mixed text (interpolation).
func (e *Evaluator) resolveString(input string, scope *Scope) (any, error) {
	if !strings.Contains(input, openMarker) {
		return input, nil
	}

	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, openMarker) && strings.HasSuffix(trimmed, closeMarker) {
		inner := trimmed[len(openMarker) : len(trimmed)-len(closeMarker)]
		if !strings.Contains(inner, closeMarker) {
			return e.evaluate(strings.TrimSpace(inner), scope)
		}
	}

	var builder strings.Builder

	rest := input

	for {
		start := strings.Index(rest, openMarker)
		if start < 0 {
			builder.WriteString(rest)

			break
		}

		end := strings.Index(rest[start:], closeMarker)
		if end < 0 {
			return nil, &EvaluationError{Expression: rest[start:], Reason: "unterminated template fragment"}
		}

		builder.WriteString(rest[:start])

		fragment := strings.TrimSpace(rest[start+len(openMarker) : start+end])

		result, err := e.evaluate(fragment, scope)
		if err != nil {
			return nil, err
		}

		builder.WriteString(fmt.Sprint(result))

		rest = rest[start+end+len(closeMarker):]
	}

	return builder.String(), nil
}

// evaluate runs a single expression fragment against the scope. A nil result
// is a typed error: it means the expression referenced data that does not
// exist in the scope.
func (e *Evaluator) evaluate(fragment string, scope *Scope) (any, error) {
	if fragment == "" {
		return nil, &EvaluationError{Expression: fragment, Reason: "empty expression"}
	}

	env := scope.Env()

	program, err := e.getOrCompile(fragment, env)
	if err != nil {
		return nil, err
	}

	result, err := vm.Run(program, env)
	if err != nil {
		return nil, &EvaluationError{Expression: fragment, Reason: "evaluation failed: " + err.Error(), Err: err}
	}

	if result == nil {
		return nil, &EvaluationError{Expression: fragment, Reason: "resolved to no value"}
	}

	return result, nil
}

func (e *Evaluator) getOrCompile(fragment string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[fragment]
	e.mu.RUnlock()

	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.cache[fragment]; ok {
		return program, nil
	}

	program, err := expr.Compile(fragment,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, &EvaluationError{Expression: fragment, Reason: "compile failed: " + err.Error(), Err: err}
	}

	e.cache[fragment] = program

	return program, nil
}
