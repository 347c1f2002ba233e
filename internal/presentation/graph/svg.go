package graph

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/aretw0/netviz/internal/layout"
	"github.com/aretw0/netviz/internal/registry"
	"github.com/aretw0/netviz/pkg/domain"
)

// GenerateSVG draws a snapshot as a standalone SVG document: group hulls, routed
// edges with colored arrow markers, and labelled node boxes.
func GenerateSVG(snap domain.Snapshot, markers *MarkerSet) string {
	if markers == nil {
		markers = NewMarkerSet()
	}
	for _, e := range snap.Links {
		_ = markers.CreateMarker(context.Background(), edgeColor(e))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%g\" height=\"%g\" viewBox=\"0 0 %g %g\">\n",
		snap.Options.Width, snap.Options.Height, snap.Options.Width, snap.Options.Height))
	sb.WriteString(markers.Defs())

	for _, g := range snap.Groups {
		x0, y0, x1, y1, ok := bounds(snap.Nodes, g.Leaves)
		if !ok {
			continue
		}
		pad := snap.Options.Pad
		sb.WriteString(fmt.Sprintf(
			"<rect class=\"group\" data-group=\"%s\" x=\"%.1f\" y=\"%.1f\" width=\"%.1f\" height=\"%.1f\" rx=\"8\" fill=\"#eef\" stroke=\"#99c\"/>\n",
			html.EscapeString(g.ID), x0-pad, y0-pad, x1-x0+2*pad, y1-y0+2*pad))
	}

	routes := layout.Route(snap.Nodes, snap.Links)
	colors := make(map[string]string, len(snap.Links))
	for _, e := range snap.Links {
		colors[e.Source+"\x00"+e.Data.Type+"\x00"+e.Target] = edgeColor(e)
	}
	for _, r := range routes {
		c := colors[r.Source+"\x00"+r.Type+"\x00"+r.Target]
		a, b := r.Points[0], r.Points[len(r.Points)-1]
		sb.WriteString(fmt.Sprintf(
			"<line class=\"link\" x1=\"%.1f\" y1=\"%.1f\" x2=\"%.1f\" y2=\"%.1f\" stroke=\"%s\" marker-end=\"url(#%s)\"><title>%s</title></line>\n",
			a.X, a.Y, b.X, b.Y, c, MarkerID(c), html.EscapeString(r.Type)))
	}

	for _, n := range snap.Nodes {
		sb.WriteString(fmt.Sprintf(
			"<g class=\"node\" data-hash=\"%s\"><rect x=\"%.1f\" y=\"%.1f\" width=\"%.1f\" height=\"%.1f\" rx=\"4\" fill=\"#fff\" stroke=\"#333\"/>",
			html.EscapeString(n.Hash), n.X-n.Width/2, n.Y-n.Height/2, n.Width, n.Height))
		lines := n.Label()
		top := n.Y - float64(len(lines)-1)*registry.LineHeight/2
		for i, l := range lines {
			sb.WriteString(fmt.Sprintf(
				"<text x=\"%.1f\" y=\"%.1f\" text-anchor=\"middle\" dominant-baseline=\"middle\">%s</text>",
				n.X, top+float64(i)*registry.LineHeight, html.EscapeString(l)))
		}
		sb.WriteString("</g>\n")
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

func edgeColor(e domain.Edge) string {
	if e.Color == "" {
		return "black"
	}
	return e.Color
}

func bounds(nodes []domain.Node, leaves []int) (x0, y0, x1, y1 float64, ok bool) {
	for _, i := range leaves {
		if i < 0 || i >= len(nodes) {
			continue
		}
		n := nodes[i]
		l, t, r, b := n.X-n.Width/2, n.Y-n.Height/2, n.X+n.Width/2, n.Y+n.Height/2
		if !ok {
			x0, y0, x1, y1, ok = l, t, r, b, true
			continue
		}
		x0, y0 = min(x0, l), min(y0, t)
		x1, y1 = max(x1, r), max(y1, b)
	}
	return x0, y0, x1, y1, ok
}
