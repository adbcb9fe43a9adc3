package diagram

import "github.com/rendis/nexus/pkg/schema"

// NodeKind selects the shape a renderer draws for a node.
type NodeKind string

const (
	NodeKindStart    NodeKind = "start"
	NodeKindPlanner  NodeKind = "planner"
	NodeKindExecutor NodeKind = "executor"
	NodeKindReviewer NodeKind = "reviewer"
	NodeKindEnd      NodeKind = "end"

	NodeKindEntity    NodeKind = "entity"
	NodeKindAttribute NodeKind = "attribute"
	NodeKindRelation  NodeKind = "relation"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title    string
	Nodes    []*Node
	Edges    []Edge
	Levels   [][]string
	Clusters []Cluster
}

// Node is a single box in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// Cluster groups nodes that run side by side.
type Cluster struct {
	Name    string
	Label   string
	NodeIDs []string
}

// StatusOverlay carries the live state of a pipeline node.
type StatusOverlay struct {
	Status  schema.Status
	Changed bool // moved on the last tick
}

// Edge is a directed link between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}

// statusClass maps a node status to a render class shared by every renderer.
func statusClass(s schema.Status) string {
	switch s {
	case schema.StatusCompleted:
		return "completed"
	case schema.StatusError:
		return "failed"
	case schema.StatusExecuting:
		return "running"
	case schema.StatusWaiting, schema.StatusThinking:
		return "suspended"
	case schema.StatusIdle:
		return "pending"
	default:
		return ""
	}
}

// findNode looks up a node by ID.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
