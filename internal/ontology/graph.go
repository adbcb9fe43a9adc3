// Package ontology holds the business ontology shown next to the execution
// graph: entities, their attributes and the relations between them.
package ontology

import (
	"sort"

	"github.com/rendis/nexus/pkg/schema"
)

// Group classifies an ontology node.
type Group int

const (
	GroupEntity    Group = 1
	GroupAttribute Group = 2
	GroupRelation  Group = 3
)

// String returns the lowercase group name.
func (g Group) String() string {
	switch g {
	case GroupEntity:
		return "entity"
	case GroupAttribute:
		return "attribute"
	case GroupRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// Node is a vertex of the ontology graph.
type Node struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Group  Group   `json:"group"`
	Radius float64 `json:"radius"`
}

// Link is a directed edge between two nodes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  int    `json:"value"`
}

// Graph is an immutable ontology.
type Graph struct {
	nodes []Node
	links []Link
	index map[string]int
}

// New builds a graph and rejects links that reference unknown nodes.
func New(nodes []Node, links []Link) (*Graph, error) {
	g := &Graph{
		nodes: append([]Node(nil), nodes...),
		links: append([]Link(nil), links...),
		index: make(map[string]int, len(nodes)),
	}
	for i, n := range g.nodes {
		if n.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "ontology node id is empty")
		}
		if _, dup := g.index[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate ontology node %q", n.ID)
		}
		g.index[n.ID] = i
	}
	for _, l := range g.links {
		for _, id := range []string{l.Source, l.Target} {
			if _, ok := g.index[id]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "link references unknown node %q", id).
					WithDetails(map[string]any{"source": l.Source, "target": l.Target})
			}
		}
	}
	return g, nil
}

// Default returns the customer/order/product ontology.
func Default() *Graph {
	g, err := New(defaultNodes, defaultLinks)
	if err != nil {
		panic(err)
	}
	return g
}

var defaultNodes = []Node{
	{ID: "Customer", Label: "Customer", Group: GroupEntity, Radius: 25},
	{ID: "Order", Label: "Order", Group: GroupEntity, Radius: 25},
	{ID: "Product", Label: "Product", Group: GroupEntity, Radius: 25},
	{ID: "SupportTicket", Label: "Ticket", Group: GroupEntity, Radius: 20},
	{ID: "Invoice", Label: "Invoice", Group: GroupEntity, Radius: 20},
	{ID: "has_order", Label: "has", Group: GroupRelation, Radius: 5},
	{ID: "contains", Label: "contains", Group: GroupRelation, Radius: 5},
	{ID: "raised_by", Label: "raised_by", Group: GroupRelation, Radius: 5},
	{ID: "billed_to", Label: "billed_to", Group: GroupRelation, Radius: 5},
	{ID: "email", Label: "email", Group: GroupAttribute, Radius: 10},
	{ID: "phone", Label: "phone", Group: GroupAttribute, Radius: 10},
	{ID: "sku", Label: "SKU", Group: GroupAttribute, Radius: 10},
	{ID: "price", Label: "price", Group: GroupAttribute, Radius: 10},
	{ID: "status", Label: "status", Group: GroupAttribute, Radius: 10},
}

var defaultLinks = []Link{
	{Source: "Customer", Target: "has_order", Value: 1},
	{Source: "has_order", Target: "Order", Value: 1},
	{Source: "Order", Target: "contains", Value: 1},
	{Source: "contains", Target: "Product", Value: 1},
	{Source: "SupportTicket", Target: "raised_by", Value: 1},
	{Source: "raised_by", Target: "Customer", Value: 1},
	{Source: "Invoice", Target: "billed_to", Value: 1},
	{Source: "billed_to", Target: "Customer", Value: 1},
	{Source: "Customer", Target: "email", Value: 1},
	{Source: "Customer", Target: "phone", Value: 1},
	{Source: "Product", Target: "sku", Value: 1},
	{Source: "Product", Target: "price", Value: 1},
	{Source: "Order", Target: "status", Value: 1},
}

// Nodes returns a copy of the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Links returns a copy of the links in declaration order.
func (g *Graph) Links() []Link {
	return append([]Link(nil), g.links...)
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Neighbours returns the ids adjacent to id in either direction, sorted.
func (g *Graph) Neighbours(id string) ([]string, error) {
	if _, ok := g.index[id]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "ontology node %q not found", id)
	}
	seen := make(map[string]struct{})
	for _, l := range g.links {
		switch id {
		case l.Source:
			seen[l.Target] = struct{}{}
		case l.Target:
			seen[l.Source] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// ByGroup returns the nodes belonging to group, in declaration order.
func (g *Graph) ByGroup(group Group) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Group == group {
			out = append(out, n)
		}
	}
	return out
}

// Degree counts the links touching id.
func (g *Graph) Degree(id string) int {
	d := 0
	for _, l := range g.links {
		if l.Source == id {
			d++
		}
		if l.Target == id {
			d++
		}
	}
	return d
}
