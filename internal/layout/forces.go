package layout

import (
	"math"

	"github.com/aretw0/netviz/pkg/domain"
)

// body is the mutable simulation state of one node.
type body struct {
	hash string
	x, y float64
	w, h float64
}

type link struct {
	s, t   int
	length float64
}

// world is the simulation built from one snapshot.
type world struct {
	opts   domain.LayoutOptions
	bodies []body
	links  []link
	groups [][]int
	alpha  float64
}

func newWorld(snap domain.Snapshot) *world {
	w := &world{
		opts:   snap.Options,
		bodies: make([]body, len(snap.Nodes)),
		alpha:  1,
	}
	for i, n := range snap.Nodes {
		w.bodies[i] = body{hash: n.Hash, x: n.X, y: n.Y, w: n.Width, h: n.Height}
	}
	lengths := idealLengths(snap)
	for i, e := range snap.Links {
		if e.SourceIndex < 0 || e.SourceIndex >= len(w.bodies) || e.TargetIndex < 0 || e.TargetIndex >= len(w.bodies) {
			continue
		}
		w.links = append(w.links, link{s: e.SourceIndex, t: e.TargetIndex, length: lengths[i]})
	}
	for _, g := range snap.Groups {
		var leaves []int
		for _, l := range g.Leaves {
			if l >= 0 && l < len(w.bodies) {
				leaves = append(leaves, l)
			}
		}
		if len(leaves) > 1 {
			w.groups = append(w.groups, leaves)
		}
	}
	return w
}

// idealLengths returns the target length of each link for the layout type.
func idealLengths(snap domain.Snapshot) []float64 {
	base := snap.Options.EdgeLength
	out := make([]float64, len(snap.Links))
	if snap.Options.Type != domain.LayoutJaccard {
		for i := range out {
			out[i] = base
		}
		return out
	}

	neighbors := make(map[int]map[int]struct{})
	add := func(a, b int) {
		if neighbors[a] == nil {
			neighbors[a] = make(map[int]struct{})
		}
		neighbors[a][b] = struct{}{}
	}
	for _, e := range snap.Links {
		add(e.SourceIndex, e.TargetIndex)
		add(e.TargetIndex, e.SourceIndex)
	}
	for i, e := range snap.Links {
		a, b := neighbors[e.SourceIndex], neighbors[e.TargetIndex]
		inter := 0
		for k := range a {
			if _, ok := b[k]; ok {
				inter++
			}
		}
		union := len(a) + len(b) - inter
		jaccard := 0.0
		if union > 0 {
			jaccard = float64(inter) / float64(union)
		}
		// shared neighborhoods pull nodes closer, down to half the base length
		out[i] = base * (1 - jaccard/2)
	}
	return out
}

// tick advances the simulation one step and returns the largest node displacement.
func (w *world) tick() float64 {
	before := make([]body, len(w.bodies))
	copy(before, w.bodies)

	w.springs()
	w.repel()
	if w.opts.Type == domain.LayoutFlow {
		w.flow()
	}
	w.cohere()
	if w.opts.AvoidOverlaps {
		w.separate()
	}
	w.clamp()
	w.alpha *= 0.99

	maxMove := 0.0
	for i := range w.bodies {
		d := math.Hypot(w.bodies[i].x-before[i].x, w.bodies[i].y-before[i].y)
		if d > maxMove {
			maxMove = d
		}
	}
	return maxMove
}

func (w *world) springs() {
	for _, l := range w.links {
		s, t := &w.bodies[l.s], &w.bodies[l.t]
		dx, dy := t.x-s.x, t.y-s.y
		d := math.Hypot(dx, dy)
		if d < 1e-6 {
			// coincident endpoints: nudge apart deterministically
			t.x += 1
			continue
		}
		f := (d - l.length) / d * w.alpha * 0.25
		s.x += dx * f
		s.y += dy * f
		t.x -= dx * f
		t.y -= dy * f
	}
}

func (w *world) repel() {
	k := w.opts.EdgeLength * w.opts.EdgeLength * 0.05
	for i := 0; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			a, b := &w.bodies[i], &w.bodies[j]
			dx, dy := b.x-a.x, b.y-a.y
			d2 := dx*dx + dy*dy
			if d2 < 1 {
				dx, dy, d2 = float64(j-i), 1, float64((j-i)*(j-i)+1)
			}
			d := math.Sqrt(d2)
			f := math.Min(k/d2, w.opts.EdgeLength/4) * w.alpha
			a.x -= dx / d * f
			a.y -= dy / d * f
			b.x += dx / d * f
			b.y += dy / d * f
		}
	}
}

// flow keeps every target after its source along the flow axis.
func (w *world) flow() {
	sep := w.opts.EdgeLength / 2
	for _, l := range w.links {
		if l.s == l.t {
			continue
		}
		s, t := &w.bodies[l.s], &w.bodies[l.t]
		var gap float64
		if w.opts.FlowDirection == domain.FlowRight {
			gap = t.x - s.x - sep
		} else {
			gap = t.y - s.y - sep
		}
		if gap >= 0 {
			continue
		}
		shift := -gap / 2
		if w.opts.FlowDirection == domain.FlowRight {
			s.x -= shift
			t.x += shift
		} else {
			s.y -= shift
			t.y += shift
		}
	}
}

// cohere pulls group members toward their centroid.
func (w *world) cohere() {
	for _, leaves := range w.groups {
		var cx, cy float64
		for _, i := range leaves {
			cx += w.bodies[i].x
			cy += w.bodies[i].y
		}
		cx /= float64(len(leaves))
		cy /= float64(len(leaves))
		for _, i := range leaves {
			b := &w.bodies[i]
			b.x += (cx - b.x) * 0.1 * w.alpha
			b.y += (cy - b.y) * 0.1 * w.alpha
		}
	}
}

// separate resolves box overlaps along the axis of least penetration.
func (w *world) separate() {
	pad := w.opts.Pad
	for i := 0; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			a, b := &w.bodies[i], &w.bodies[j]
			ox := (a.w+b.w)/2 + pad - math.Abs(b.x-a.x)
			oy := (a.h+b.h)/2 + pad - math.Abs(b.y-a.y)
			if ox <= 0 || oy <= 0 {
				continue
			}
			if ox < oy {
				dir := sign(b.x - a.x)
				a.x -= dir * ox / 2
				b.x += dir * ox / 2
			} else {
				dir := sign(b.y - a.y)
				a.y -= dir * oy / 2
				b.y += dir * oy / 2
			}
		}
	}
}

func (w *world) clamp() {
	m := w.opts.Margin
	for i := range w.bodies {
		b := &w.bodies[i]
		b.x = clampf(b.x, m+b.w/2, w.opts.Width-m-b.w/2)
		b.y = clampf(b.y, m+b.h/2, w.opts.Height-m-b.h/2)
	}
}

func (w *world) positions() []domain.Position {
	out := make([]domain.Position, len(w.bodies))
	for i, b := range w.bodies {
		out[i] = domain.Position{Hash: b.hash, X: b.x, Y: b.y}
	}
	return out
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// clampf bounds v to [lo, hi]; if the range is empty it returns the midpoint.
func clampf(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
