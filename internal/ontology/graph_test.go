package ontology

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/pkg/schema"
)

func TestDefaultGraph(t *testing.T) {
	g := Default()
	assert.Len(t, g.Nodes(), 14)
	assert.Len(t, g.Links(), 13)
	assert.Len(t, g.ByGroup(GroupEntity), 5)
	assert.Len(t, g.ByGroup(GroupAttribute), 5)
	assert.Len(t, g.ByGroup(GroupRelation), 4)

	ticket, ok := g.Node("SupportTicket")
	require.True(t, ok)
	assert.Equal(t, "Ticket", ticket.Label)
	assert.Equal(t, 20.0, ticket.Radius)

	_, ok = g.Node("Warehouse")
	assert.False(t, ok)
}

func TestNeighbours(t *testing.T) {
	g := Default()
	n, err := g.Neighbours("Customer")
	require.NoError(t, err)
	assert.Equal(t, []string{"billed_to", "email", "has_order", "phone", "raised_by"}, n)
	assert.Equal(t, 5, g.Degree("Customer"))

	_, err = g.Neighbours("nope")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New([]Node{{ID: "a"}, {ID: "a"}}, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))

	_, err = New([]Node{{ID: "a"}}, []Link{{Source: "a", Target: "b"}})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = New([]Node{{ID: ""}}, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestNodesReturnsCopy(t *testing.T) {
	g := Default()
	nodes := g.Nodes()
	nodes[0].Label = "changed"
	again, _ := g.Node(nodes[0].ID)
	assert.Equal(t, "Customer", again.Label)
}

func TestGroupString(t *testing.T) {
	assert.Equal(t, "entity", GroupEntity.String())
	assert.Equal(t, "attribute", GroupAttribute.String())
	assert.Equal(t, "relation", GroupRelation.String())
	assert.Equal(t, "unknown", Group(9).String())
}

func TestLayoutDeterministicAndBounded(t *testing.T) {
	g := Default()
	opts := LayoutOptions{Width: 800, Height: 600, Seed: 7}

	a := g.Layout(opts)
	b := g.Layout(opts)
	require.Len(t, a, 14)
	assert.Equal(t, a, b)

	for i, p := range a {
		node := g.Nodes()[i]
		assert.Equal(t, node.ID, p.ID)
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
		assert.GreaterOrEqual(t, p.X, node.Radius)
		assert.LessOrEqual(t, p.X, 800-node.Radius)
		assert.GreaterOrEqual(t, p.Y, node.Radius)
		assert.LessOrEqual(t, p.Y, 600-node.Radius)
	}
}

func TestLayoutSeparatesNodes(t *testing.T) {
	g := Default()
	pts := g.Layout(LayoutOptions{Width: 1000, Height: 1000, Seed: 1})
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			d := math.Hypot(pts[i].X-pts[j].X, pts[i].Y-pts[j].Y)
			assert.Greater(t, d, 1.0, "%s and %s overlap", pts[i].ID, pts[j].ID)
		}
	}
}

func TestLayoutEmptyGraph(t *testing.T) {
	g, err := New(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, g.Layout(LayoutOptions{}))
}
