package expressions

import "context"

// Engine evaluates user-supplied query expressions over log entries and
// machine snapshots. Three implementations: CEL, Expr and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
