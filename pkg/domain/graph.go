package domain

// Edge is one visual link derived from a stored fact.
type Edge struct {
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	SourceIndex int       `json:"source_index"`
	TargetIndex int       `json:"target_index"`
	Data        Predicate `json:"edgeData"`
	Color       string    `json:"color,omitempty"`
}

// Key returns the fact key the edge was projected from.
func (e Edge) Key() FactKey {
	return FactKey{Subject: e.Source, Predicate: e.Data.Type, Object: e.Target}
}

// Group is a visual containment region built from one partition cell.
// ID is stable across merges and node removals; Leaves are the current node indices.
type Group struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
	Leaves  []int    `json:"leaves"`
}

// Snapshot is a consistent, read-only copy of the visual collections handed to
// the layout solver and renderers after a cycle completes.
type Snapshot struct {
	Generation uint64        `json:"generation"`
	Nodes      []Node        `json:"nodes"`
	Links      []Edge        `json:"links"`
	Groups     []Group       `json:"groups"`
	Options    LayoutOptions `json:"options"`
}

// SavedTriplet is the hash-only form of a fact.
type SavedTriplet struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// SavedNode is the hash-and-position form of a node.
type SavedNode struct {
	Hash string  `json:"hash"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// SavedGraph is the flat serialized graph.
type SavedGraph struct {
	Triplets []SavedTriplet `json:"triplets"`
	Nodes    []SavedNode    `json:"nodes"`
}

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EdgeRoute is the routed polyline of one edge, clipped to the node boxes.
type EdgeRoute struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Points []Point `json:"points"`
}
