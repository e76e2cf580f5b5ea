package feature

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/petrijr/stepflow/pkg/api"
)

// ErrUndefinedStep is returned when no registered pattern matches a step.
var ErrUndefinedStep = errors.New("undefined step")

// Handler implements a step matched by a pattern. args holds the pattern's
// capture groups.
type Handler func(ctx context.Context, value any, args []string) (any, error)

type definition struct {
	pattern string
	re      *regexp.Regexp
	handler Handler
}

// Registry maps step text to handlers. Patterns must match the whole text;
// the first registered match wins. A Registry is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs []definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a pattern. It fails when the pattern does not compile.
func (r *Registry) Register(pattern string, h Handler) error {
	if h == nil {
		return fmt.Errorf("feature: pattern %q has nil handler", pattern)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return fmt.Errorf("feature: pattern %q: %w", pattern, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, definition{pattern: pattern, re: re, handler: h})
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(pattern string, h Handler) {
	if err := r.Register(pattern, h); err != nil {
		panic(err)
	}
}

// RegisterExpr registers a pattern implemented by a JavaScript expression.
// The expression sees the capture groups as args. A boolean result is an
// assertion in every phase; any other result becomes the next value.
func (r *Registry) RegisterExpr(pattern, expr string) error {
	return r.Register(pattern, func(ctx context.Context, value any, args []string) (any, error) {
		env := exprEnv{value: value, args: args, assert: true}
		if sc, ok := api.ScenarioFromContext(ctx); ok {
			env.tags = sc.Tags()
		}
		return evalExpr(ctx, expr, env)
	})
}

// Patterns returns the registered patterns in registration order.
func (r *Registry) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.pattern)
	}
	return out
}

// Resolve finds the handler for text and binds its arguments. extra is
// appended after the capture groups.
func (r *Registry) Resolve(text string, extra ...string) (api.StepFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.defs {
		m := d.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		args := append(m[1:len(m):len(m)], extra...)
		h := d.handler
		return func(ctx context.Context, value any) (any, error) {
			return h(ctx, value, args)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUndefinedStep, text)
}
