package diagram

import (
	"fmt"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/ontology"
	"github.com/rendis/nexus/pkg/schema"
)

// Build constructs a DiagramModel of the pipeline from a machine snapshot.
// Node labels follow lang; nodes touched by the last tick are flagged.
func Build(snap engine.Snapshot, lang schema.Lang) *DiagramModel {
	changed := make(map[engine.NodeID]bool, len(snap.Changes))
	for _, c := range snap.Changes {
		changed[c.Node] = true
	}

	var nodes []*Node
	for _, n := range engine.Nodes(snap.Vector, lang) {
		node := &Node{
			ID:    string(n.ID),
			Label: n.Label,
			Kind:  kindOf(n.Type),
		}
		if n.Status != "" {
			node.Status = &StatusOverlay{Status: n.Status, Changed: changed[n.ID]}
		}
		nodes = append(nodes, node)
	}

	var edges []Edge
	for _, e := range engine.Edges() {
		edges = append(edges, Edge{From: string(e.From), To: string(e.To), Label: e.Kind})
	}

	return &DiagramModel{
		Title: fmt.Sprintf("Pipeline tick %d cycle %d (%s)", snap.Tick, snap.Cycle, snap.Policy),
		Nodes: nodes,
		Edges: edges,
		Levels: [][]string{
			{string(engine.NodeStart)},
			{string(engine.NodePlanner)},
			{string(engine.NodeExecutorSQL), string(engine.NodeExecutorRAG)},
			{string(engine.NodeAggregator)},
			{string(engine.NodeEnd)},
		},
		Clusters: []Cluster{{
			Name:    "executors",
			Label:   "parallel executors",
			NodeIDs: []string{string(engine.NodeExecutorSQL), string(engine.NodeExecutorRAG)},
		}},
	}
}

// BuildOntology constructs a DiagramModel of the business ontology. Levels
// list entities, then relations, then attributes.
func BuildOntology(g *ontology.Graph) *DiagramModel {
	m := &DiagramModel{Title: "Ontology"}
	for _, n := range g.Nodes() {
		m.Nodes = append(m.Nodes, &Node{ID: n.ID, Label: n.Label, Kind: groupKind(n.Group)})
	}
	for _, l := range g.Links() {
		m.Edges = append(m.Edges, Edge{From: l.Source, To: l.Target})
	}
	for _, group := range []ontology.Group{ontology.GroupEntity, ontology.GroupRelation, ontology.GroupAttribute} {
		var level []string
		for _, n := range g.ByGroup(group) {
			level = append(level, n.ID)
		}
		if len(level) > 0 {
			m.Levels = append(m.Levels, level)
		}
	}
	return m
}

func kindOf(t schema.NodeType) NodeKind {
	switch t {
	case schema.NodeTypeStart:
		return NodeKindStart
	case schema.NodeTypePlanner:
		return NodeKindPlanner
	case schema.NodeTypeReviewer:
		return NodeKindReviewer
	case schema.NodeTypeEnd:
		return NodeKindEnd
	default:
		return NodeKindExecutor
	}
}

func groupKind(g ontology.Group) NodeKind {
	switch g {
	case ontology.GroupAttribute:
		return NodeKindAttribute
	case ontology.GroupRelation:
		return NodeKindRelation
	default:
		return NodeKindEntity
	}
}
