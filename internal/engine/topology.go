package engine

import "github.com/rendis/nexus/pkg/schema"

// NodeID identifies one of the fixed pipeline nodes.
type NodeID string

const (
	NodeStart       NodeID = "start"
	NodePlanner     NodeID = "planner"
	NodeExecutorSQL NodeID = "executor_sql"
	NodeExecutorRAG NodeID = "executor_rag"
	NodeAggregator  NodeID = "aggregator"
	NodeEnd         NodeID = "end"
)

// NodeCount is the size of the status vector.
const NodeCount = 6

// Indexes into a Vector. The order is the first-match scan order.
const (
	idxStart = iota
	idxPlanner
	idxExecutorSQL
	idxExecutorRAG
	idxAggregator
	idxEnd
)

// Node is a pipeline stage with its display metadata.
type Node struct {
	ID     NodeID          `json:"id"`
	Label  string          `json:"label"`
	Type   schema.NodeType `json:"type"`
	Status schema.Status   `json:"status"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
}

// Edge is a directed link between two nodes.
type Edge struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
	Kind string `json:"kind,omitempty"` // fork, join, reset
}

type nodeSpec struct {
	id   NodeID
	typ  schema.NodeType
	x, y int
}

var registry = [NodeCount]nodeSpec{
	{NodeStart, schema.NodeTypeStart, 50, 200},
	{NodePlanner, schema.NodeTypePlanner, 250, 200},
	{NodeExecutorSQL, schema.NodeTypeExecutor, 500, 100},
	{NodeExecutorRAG, schema.NodeTypeExecutor, 500, 300},
	{NodeAggregator, schema.NodeTypeReviewer, 750, 200},
	{NodeEnd, schema.NodeTypeEnd, 950, 200},
}

var labels = map[schema.Lang][NodeCount]string{
	schema.LangEN: {"Input Trigger", "Planner Agent", "Text2SQL Agent", "RAG Retriever", "Result Aggregator", "Final Response"},
	schema.LangZH: {"输入触发", "规划智能体", "Text2SQL 智能体", "RAG 检索器", "结果聚合器", "最终响应"},
}

// Edges returns the fixed topology, including the end→planner reset edge.
func Edges() []Edge {
	return []Edge{
		{From: NodeStart, To: NodePlanner},
		{From: NodePlanner, To: NodeExecutorSQL, Kind: "fork"},
		{From: NodePlanner, To: NodeExecutorRAG, Kind: "fork"},
		{From: NodeExecutorSQL, To: NodeAggregator, Kind: "join"},
		{From: NodeExecutorRAG, To: NodeAggregator, Kind: "join"},
		{From: NodeAggregator, To: NodeEnd},
		{From: NodeEnd, To: NodePlanner, Kind: "reset"},
	}
}

// NodeIDs returns the node ids in scan order.
func NodeIDs() []NodeID {
	ids := make([]NodeID, NodeCount)
	for i, spec := range registry {
		ids[i] = spec.id
	}
	return ids
}

// Nodes materializes the registry with the statuses from v and labels in lang.
func Nodes(v Vector, lang schema.Lang) []Node {
	names, ok := labels[lang]
	if !ok {
		names = labels[schema.LangEN]
	}
	out := make([]Node, NodeCount)
	for i, spec := range registry {
		out[i] = Node{
			ID:     spec.id,
			Label:  names[i],
			Type:   spec.typ,
			Status: v[i],
			X:      spec.x,
			Y:      spec.y,
		}
	}
	return out
}

// indexOf returns the vector index of id, or -1.
func indexOf(id NodeID) int {
	for i, spec := range registry {
		if spec.id == id {
			return i
		}
	}
	return -1
}
