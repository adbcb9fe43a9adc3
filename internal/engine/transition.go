package engine

import (
	"fmt"
	"strings"

	"github.com/rendis/nexus/pkg/schema"
)

// Vector holds one status per node, indexed in scan order.
// It is a value type: Next never mutates its argument.
type Vector [NodeCount]schema.Status

// JoinPolicy selects how the aggregator join behaves when one executor
// finishes before its sibling.
type JoinPolicy string

const (
	// JoinEager completes the unfinished sibling together with the first
	// executor and starts the aggregator on the same tick.
	JoinEager JoinPolicy = "eager"
	// JoinBarrier starts the aggregator only once both executors completed
	// on their own ticks.
	JoinBarrier JoinPolicy = "barrier"
)

// ParseJoinPolicy converts a config string into a JoinPolicy.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch JoinPolicy(s) {
	case "", JoinEager:
		return JoinEager, nil
	case JoinBarrier:
		return JoinBarrier, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation,
			"unknown join policy %q: must be eager or barrier", s)
	}
}

// Initial returns the bootstrap vector: start completed, planner executing.
func Initial() Vector {
	var v Vector
	for i := range v {
		v[i] = schema.StatusIdle
	}
	v[idxStart] = schema.StatusCompleted
	v[idxPlanner] = schema.StatusExecuting
	return v
}

// Status returns the status of node id. Unknown ids report "".
func (v Vector) Status(id NodeID) schema.Status {
	i := indexOf(id)
	if i < 0 {
		return ""
	}
	return v[i]
}

// With returns a copy of v with node id set to s.
func (v Vector) With(id NodeID, s schema.Status) Vector {
	i := indexOf(id)
	if i < 0 {
		panic(fmt.Sprintf("engine: unknown node %q", id))
	}
	v[i] = s
	return v
}

// Executing returns the executing nodes in scan order.
func (v Vector) Executing() []NodeID {
	var out []NodeID
	for i, s := range v {
		if s == schema.StatusExecuting {
			out = append(out, registry[i].id)
		}
	}
	return out
}

// Map returns the vector keyed by node id.
func (v Vector) Map() map[NodeID]schema.Status {
	m := make(map[NodeID]schema.Status, NodeCount)
	for i, s := range v {
		m[registry[i].id] = s
	}
	return m
}

// Equal reports whether both vectors hold the same status for every node.
func (v Vector) Equal(o Vector) bool { return v == o }

func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range v {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%s", registry[i].id, s)
	}
	b.WriteByte(']')
	return b.String()
}

// Next computes the vector that follows v.
//
// The first executing node in scan order completes and hands control to its
// successor. With no executing node the planner is restarted. When both
// executors are running, executor_sql is picked first.
func Next(v Vector, policy JoinPolicy) Vector {
	active := -1
	for i, s := range v {
		if s == schema.StatusExecuting {
			active = i
			break
		}
	}
	if active < 0 {
		v[idxPlanner] = schema.StatusExecuting
		return v
	}

	v[active] = schema.StatusCompleted

	switch active {
	case idxPlanner:
		v[idxExecutorSQL] = schema.StatusExecuting
		v[idxExecutorRAG] = schema.StatusExecuting

	case idxExecutorSQL, idxExecutorRAG:
		sibling := idxExecutorRAG
		if active == idxExecutorRAG {
			sibling = idxExecutorSQL
		}
		switch {
		case v[sibling] == schema.StatusCompleted:
			v[idxAggregator] = schema.StatusExecuting
		case policy == JoinBarrier:
			if v[sibling] != schema.StatusExecuting {
				v[sibling] = schema.StatusExecuting
			}
		default:
			v[sibling] = schema.StatusCompleted
			v[idxAggregator] = schema.StatusExecuting
		}

	case idxAggregator:
		v[idxEnd] = schema.StatusExecuting

	case idxEnd:
		v = Initial()

	case idxStart:
		// start is never scheduled; treat a stray executing start as the
		// bootstrap case.
		v[idxPlanner] = schema.StatusExecuting
	}
	return v
}

// Validate checks the status vector invariants: every status is declared,
// and at most one node is executing except for the two-executor fork.
func Validate(v Vector) error {
	for i, s := range v {
		if !s.Valid() {
			return schema.NewErrorf(schema.ErrCodeInvalidState, "undeclared status %q", s).
				WithNode(string(registry[i].id))
		}
	}
	executing := v.Executing()
	switch len(executing) {
	case 0, 1:
		return nil
	case 2:
		if executing[0] == NodeExecutorSQL && executing[1] == NodeExecutorRAG {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeInvalidState,
		"illegal concurrency: %d executing nodes %v", len(executing), executing)
}

// Diff lists the nodes whose status differs between a and b.
func Diff(a, b Vector) []Change {
	var out []Change
	for i := range a {
		if a[i] != b[i] {
			out = append(out, Change{Node: registry[i].id, From: a[i], To: b[i]})
		}
	}
	return out
}

// Change is a single node status change.
type Change struct {
	Node NodeID        `json:"node"`
	From schema.Status `json:"from"`
	To   schema.Status `json:"to"`
}
