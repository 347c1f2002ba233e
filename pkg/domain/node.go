package domain

// Node is the visual record of one entity.
// Hash is immutable once assigned; Index is its current position in the node list
// and shifts when earlier nodes are removed.
type Node struct {
	Hash      string  `json:"hash"`
	Shortname Label   `json:"shortname,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Index     int     `json:"index"`
}

// NodeInput is what callers hand to addNode. Missing coordinates default to the
// center of the layout area.
type NodeInput struct {
	Hash      string   `json:"hash" validate:"required,nocontrol"`
	Shortname Label    `json:"shortname,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
}

// Ref returns the NodeRef form of the input.
func (n NodeInput) Ref() NodeRef {
	return NodeRef{Hash: n.Hash, Shortname: n.Shortname}
}

// Label returns the display lines, falling back to the hash.
func (n Node) Label() Label {
	if len(n.Shortname) == 0 {
		return Label{n.Hash}
	}
	return n.Shortname
}

// Position is a solver-computed coordinate for one node.
type Position struct {
	Hash string  `json:"hash"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}
