// Package registry holds the hash-keyed visual node collection.
//
// The registry is the single source of truth for "does this entity exist". It is not
// safe for concurrent use; the orchestrator guards it with its cache mutex.
package registry

import (
	"fmt"
	"unicode/utf8"

	"github.com/aretw0/netviz/pkg/domain"
)

// Text metrics used to derive node sizes from their labels.
const (
	CharWidth  = 7.0
	LineHeight = 16.0
)

// Registry manages the visual nodes.
type Registry struct {
	nodes []domain.Node
	index map[string]int
	opts  domain.LayoutOptions
}

// New creates an empty registry placing new nodes inside the given layout area.
func New(opts domain.LayoutOptions) *Registry {
	return &Registry{
		index: make(map[string]int),
		opts:  opts,
	}
}

// Add registers a node. It returns false without changes when the hash is already present.
func (r *Registry) Add(in domain.NodeInput) bool {
	if _, exists := r.index[in.Hash]; exists {
		return false
	}
	cx, cy := r.opts.Center()
	n := domain.Node{
		Hash:      in.Hash,
		Shortname: in.Shortname,
		X:         cx,
		Y:         cy,
		Index:     len(r.nodes),
	}
	if in.X != nil {
		n.X = *in.X
	}
	if in.Y != nil {
		n.Y = *in.Y
	}
	n.Width, n.Height = Measure(n.Label(), r.opts)

	r.index[n.Hash] = n.Index
	r.nodes = append(r.nodes, n)
	return true
}

// AddRef registers the node a fact endpoint refers to.
func (r *Registry) AddRef(ref domain.NodeRef) bool {
	return r.Add(domain.NodeInput{Hash: ref.Hash, Shortname: ref.Shortname})
}

// Has reports whether the hash is registered.
func (r *Registry) Has(hash string) bool {
	_, ok := r.index[hash]
	return ok
}

// IndexOf returns the current position of the node.
func (r *Registry) IndexOf(hash string) (int, bool) {
	i, ok := r.index[hash]
	return i, ok
}

// Get returns a copy of the node.
func (r *Registry) Get(hash string) (domain.Node, bool) {
	i, ok := r.index[hash]
	if !ok {
		return domain.Node{}, false
	}
	return r.nodes[i], true
}

// Remove deletes the node and shifts the indices of every later node down by one.
// The caller must already have removed every fact referencing the hash.
func (r *Registry) Remove(hash string) error {
	i, ok := r.index[hash]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoSuchNode, hash)
	}
	r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
	delete(r.index, hash)
	for j := i; j < len(r.nodes); j++ {
		r.nodes[j].Index = j
		r.index[r.nodes[j].Hash] = j
	}
	return nil
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// Nodes returns a copy of the collection in index order.
func (r *Registry) Nodes() []domain.Node {
	out := make([]domain.Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// SetPosition moves a node. It returns false for unknown hashes.
func (r *Registry) SetPosition(hash string, x, y float64) bool {
	i, ok := r.index[hash]
	if !ok {
		return false
	}
	r.nodes[i].X, r.nodes[i].Y = x, y
	return true
}

// SetOptions changes the layout area and re-derives every node size.
func (r *Registry) SetOptions(opts domain.LayoutOptions) {
	r.opts = opts
	for i := range r.nodes {
		r.nodes[i].Width, r.nodes[i].Height = Measure(r.nodes[i].Label(), opts)
	}
}

// Measure derives a node's box from its label lines, padding and margin.
func Measure(label domain.Label, opts domain.LayoutOptions) (width, height float64) {
	extra := 2*opts.Margin + 2*opts.Pad
	longest := 0
	for _, line := range label {
		if n := utf8.RuneCountInString(line); n > longest {
			longest = n
		}
	}
	lines := len(label)
	if lines == 0 {
		lines = 1
	}
	return float64(longest)*CharWidth + extra, float64(lines)*LineHeight + extra
}
