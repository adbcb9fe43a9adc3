package ontology

import (
	"math"
	"math/rand/v2"
)

// Force parameters of the layout simulation.
const (
	LinkDistance   = 80.0
	ChargeStrength = -300.0
	CollidePadding = 10.0

	alphaMin      = 0.001
	velocityDecay = 0.4
	initialRadius = 10.0
)

// Point is a laid-out node position.
type Point struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// LayoutOptions configures Layout. Zero fields take defaults.
type LayoutOptions struct {
	Width      float64
	Height     float64
	Iterations int
	Seed       uint64
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	if o.Width <= 0 {
		o.Width = 600
	}
	if o.Height <= 0 {
		o.Height = 400
	}
	if o.Iterations <= 0 {
		o.Iterations = 300
	}
	return o
}

type body struct {
	x, y   float64
	vx, vy float64
	radius float64
}

// Layout runs a force simulation (link springs, many-body repulsion,
// centering and collision) and returns one position per node in
// declaration order. The same options always produce the same result.
func (g *Graph) Layout(opts LayoutOptions) []Point {
	opts = opts.withDefaults()
	n := len(g.nodes)
	if n == 0 {
		return nil
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	cx, cy := opts.Width/2, opts.Height/2

	bodies := make([]body, n)
	for i, node := range g.nodes {
		// Phyllotaxis seeding keeps the start deterministic and spread out.
		r := initialRadius * math.Sqrt(0.5+float64(i))
		a := float64(i) * math.Pi * (3 - math.Sqrt(5))
		bodies[i] = body{
			x:      cx + r*math.Cos(a) + rng.Float64() - 0.5,
			y:      cy + r*math.Sin(a) + rng.Float64() - 0.5,
			radius: node.Radius + CollidePadding,
		}
	}

	degree := make([]int, n)
	for _, l := range g.links {
		degree[g.index[l.Source]]++
		degree[g.index[l.Target]]++
	}

	alpha := 1.0
	alphaDecay := 1 - math.Pow(alphaMin, 1/float64(opts.Iterations))
	for it := 0; it < opts.Iterations; it++ {
		alpha += -alpha * alphaDecay
		g.applyLinks(bodies, degree, alpha)
		applyCharge(bodies, alpha)
		applyCollide(bodies)
		for i := range bodies {
			b := &bodies[i]
			b.vx *= 1 - velocityDecay
			b.vy *= 1 - velocityDecay
			b.x += b.vx
			b.y += b.vy
		}
		center(bodies, cx, cy)
	}

	out := make([]Point, n)
	for i, node := range g.nodes {
		b := bodies[i]
		out[i] = Point{
			ID: node.ID,
			X:  clamp(b.x, node.Radius, opts.Width-node.Radius),
			Y:  clamp(b.y, node.Radius, opts.Height-node.Radius),
		}
	}
	return out
}

func (g *Graph) applyLinks(bodies []body, degree []int, alpha float64) {
	for _, l := range g.links {
		si, ti := g.index[l.Source], g.index[l.Target]
		s, t := &bodies[si], &bodies[ti]
		dx := t.x + t.vx - s.x - s.vx
		dy := t.y + t.vy - s.y - s.vy
		dist := math.Hypot(dx, dy)
		if dist == 0 {
			dx, dy, dist = 1e-6, 0, 1e-6
		}
		strength := 1 / float64(min(degree[si], degree[ti]))
		k := (dist - LinkDistance) / dist * alpha * strength
		dx, dy = dx*k, dy*k
		bias := float64(degree[si]) / float64(degree[si]+degree[ti])
		t.vx -= dx * bias
		t.vy -= dy * bias
		s.vx += dx * (1 - bias)
		s.vy += dy * (1 - bias)
	}
}

func applyCharge(bodies []body, alpha float64) {
	for i := range bodies {
		for j := range bodies {
			if i == j {
				continue
			}
			dx := bodies[j].x - bodies[i].x
			dy := bodies[j].y - bodies[i].y
			d2 := dx*dx + dy*dy
			if d2 < 1 {
				d2 = 1
			}
			w := ChargeStrength * alpha / d2
			bodies[i].vx += dx * w
			bodies[i].vy += dy * w
		}
	}
}

func applyCollide(bodies []body) {
	for i := range bodies {
		for j := i + 1; j < len(bodies); j++ {
			a, b := &bodies[i], &bodies[j]
			dx := (b.x + b.vx) - (a.x + a.vx)
			dy := (b.y + b.vy) - (a.y + a.vy)
			r := a.radius + b.radius
			d := math.Hypot(dx, dy)
			if d >= r {
				continue
			}
			if d == 0 {
				dx, d = 1e-6, 1e-6
			}
			push := (r - d) / d * 0.5
			dx, dy = dx*push, dy*push
			ra := b.radius * b.radius / (a.radius*a.radius + b.radius*b.radius)
			a.vx -= dx * ra
			a.vy -= dy * ra
			b.vx += dx * (1 - ra)
			b.vy += dy * (1 - ra)
		}
	}
}

func center(bodies []body, cx, cy float64) {
	var sx, sy float64
	for _, b := range bodies {
		sx += b.x
		sy += b.y
	}
	sx = sx/float64(len(bodies)) - cx
	sy = sy/float64(len(bodies)) - cy
	for i := range bodies {
		bodies[i].x -= sx
		bodies[i].y -= sy
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
