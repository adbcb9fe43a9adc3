package expressions

import (
	"context"
	"sort"
	"time"

	"github.com/rendis/nexus/pkg/schema"
)

// Registry dispatches queries to engines by name.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry creates a registry holding the cel, expr and jq engines.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	r := &Registry{engines: make(map[string]Engine, 3)}
	for _, e := range []Engine{celEngine, NewExprEngine(), NewGoJQEngine()} {
		r.engines[e.Name()] = e
	}
	return r, nil
}

// Engine returns the engine registered under name.
func (r *Registry) Engine(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown expression engine %q: must be one of %v", name, r.Names())
	}
	return e, nil
}

// Names lists the registered engines, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EntryData converts an entry into the query environment.
// cel reads fields through `entry`; expr and jq see them at the top level.
func EntryData(engine string, e schema.LogEntry) map[string]any {
	fields := map[string]any{
		"id":        e.ID,
		"level":     string(e.Level),
		"source":    e.Source,
		"message":   e.Message,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"unix":      float64(e.Timestamp.UnixMilli()) / 1000,
	}
	if engine == "cel" {
		return map[string]any{"entry": fields}
	}
	return fields
}

// Filter returns the entries for which expression holds, preserving order.
// cel and expr queries must yield a bool; a jq query keeps an entry when it
// produces at least one output that is neither null nor false.
func (r *Registry) Filter(ctx context.Context, engine, expression string, entries []schema.LogEntry) ([]schema.LogEntry, error) {
	e, err := r.Engine(engine)
	if err != nil {
		return nil, err
	}

	out := make([]schema.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "filter cancelled").WithCause(err)
		}
		keep, err := matches(ctx, e, expression, EntryData(engine, entry))
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, entry)
		}
	}
	return out, nil
}

func matches(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	if jq, ok := e.(*GoJQEngine); ok {
		results, err := jq.EvaluateAll(ctx, expression, data)
		if err != nil {
			return false, err
		}
		for _, v := range results {
			if v != nil && v != false {
				return true, nil
			}
		}
		return false, nil
	}

	v, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"%s filter %q must evaluate to a bool, got %T", e.Name(), expression, v)
	}
	return b, nil
}

// Evaluate runs an arbitrary query against data with the named engine.
func (r *Registry) Evaluate(ctx context.Context, engine, expression string, data map[string]any) (any, error) {
	e, err := r.Engine(engine)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, expression, data)
}
