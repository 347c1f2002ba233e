package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]+|rgba?\([0-9., ]+\))$`)

// MarkerSet is an AssetFactory that collects one SVG arrow marker per edge color.
type MarkerSet struct {
	mu     sync.Mutex
	colors []string
	seen   map[string]bool
}

func NewMarkerSet() *MarkerSet {
	return &MarkerSet{seen: make(map[string]bool)}
}

// CreateMarker records an arrow marker for color. Repeated colors are ignored.
func (m *MarkerSet) CreateMarker(ctx context.Context, color string) error {
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("invalid marker color %q", color)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[color] {
		return nil
	}
	m.seen[color] = true
	m.colors = append(m.colors, color)
	return nil
}

// Colors returns the recorded colors in creation order.
func (m *MarkerSet) Colors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.colors...)
}

// Defs renders the markers as an SVG <defs> element.
func (m *MarkerSet) Defs() string {
	var sb strings.Builder
	sb.WriteString("<defs>\n")
	for _, c := range m.Colors() {
		sb.WriteString(fmt.Sprintf(
			"  <marker id=\"%s\" viewBox=\"0 -5 10 10\" refX=\"8\" markerWidth=\"6\" markerHeight=\"6\" orient=\"auto\">"+
				"<path d=\"M0,-5L10,0L0,5\" fill=\"%s\"/></marker>\n",
			MarkerID(c), c))
	}
	sb.WriteString("</defs>\n")
	return sb.String()
}

// MarkerID is the element id of the arrow marker for color.
func MarkerID(color string) string {
	return "arrow-" + sanitizeMermaidID(color)
}
