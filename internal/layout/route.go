package layout

import (
	"math"

	"github.com/aretw0/netviz/pkg/domain"
)

// Route computes straight edge routes between node boxes.
// Each segment starts and ends on the boundary of its node's box, so arrow
// markers sit outside the label.
func Route(nodes []domain.Node, links []domain.Edge) []domain.EdgeRoute {
	out := make([]domain.EdgeRoute, 0, len(links))
	for _, e := range links {
		if e.SourceIndex < 0 || e.SourceIndex >= len(nodes) || e.TargetIndex < 0 || e.TargetIndex >= len(nodes) {
			continue
		}
		s, t := nodes[e.SourceIndex], nodes[e.TargetIndex]
		out = append(out, domain.EdgeRoute{
			Source: e.Source,
			Target: e.Target,
			Type:   e.Data.Type,
			Points: []domain.Point{
				clip(s, t.X, t.Y),
				clip(t, s.X, s.Y),
			},
		})
	}
	return out
}

// clip returns where the ray from n's center toward (x, y) leaves n's box.
func clip(n domain.Node, x, y float64) domain.Point {
	dx, dy := x-n.X, y-n.Y
	if dx == 0 && dy == 0 {
		return domain.Point{X: n.X, Y: n.Y}
	}
	hw, hh := n.Width/2, n.Height/2
	t := math.Inf(1)
	if dx != 0 {
		t = math.Min(t, hw/math.Abs(dx))
	}
	if dy != 0 {
		t = math.Min(t, hh/math.Abs(dy))
	}
	t = math.Min(t, 1)
	return domain.Point{X: n.X + dx*t, Y: n.Y + dy*t}
}
