package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/nexus/pkg/schema"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	owner := make(map[string]*cgraph.Graph)
	for _, c := range model.Clusters {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + c.Name)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create cluster %s: %w", c.Name, subErr)
		}
		sub.SetLabel(c.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range c.NodeIDs {
			owner[id] = sub
		}
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		parent := graph
		if sub, ok := owner[node.ID]; ok {
			parent = sub
		}
		gvNode, nErr := parent.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Label == "reset" {
			e.SetStyle(cgraph.DashedEdgeStyle)
			e.SetConstraint(false)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
	case NodeKindPlanner:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindReviewer:
		gvNode.SetShape(cgraph.DoubleOctagonShape)
	case NodeKindRelation:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindAttribute:
		gvNode.SetShape(cgraph.EllipseShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.Status != nil {
		applyStatusColor(gvNode, node.Status.Status)
		if node.Status.Changed {
			gvNode.SetPenWidth(3)
		}
	}
}

// applyStatusColor sets fill and font colour by status.
func applyStatusColor(gvNode *cgraph.Node, status schema.Status) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch statusClass(status) {
	case "completed":
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case "failed":
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case "running":
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case "suspended":
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	}
}
