// Package groups maintains the partition of node hashes into visual containment groups.
//
// Cells are pairwise disjoint. A merge is a single-linkage union by scan, which is
// enough for user-driven merges over a few hundred nodes.
package groups

import (
	"fmt"

	"github.com/aretw0/netviz/pkg/domain"
)

// Lookup resolves node hashes to their current visual index.
type Lookup interface {
	IndexOf(hash string) (int, bool)
}

type cell struct {
	id      string
	members []string // insertion order
}

func (c *cell) has(hash string) bool {
	for _, m := range c.members {
		if m == hash {
			return true
		}
	}
	return false
}

func (c *cell) remove(hash string) bool {
	for i, m := range c.members {
		if m == hash {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return true
		}
	}
	return false
}

// Partition is the set of cells. The zero value is ready to use.
type Partition struct {
	cells  []*cell
	nextID int
}

// Merge puts member into the cell holding anchor, detaching it from any other cell.
// If no cell holds anchor, a new cell {member, anchor} is created. It returns the id of
// the cell that now holds both hashes.
func (p *Partition) Merge(anchor, member string) (string, error) {
	if anchor == member {
		return "", fmt.Errorf("%w: cannot merge %q into itself", domain.ErrValidation, anchor)
	}

	var target *cell
	for _, c := range p.cells {
		switch {
		case c.has(anchor):
			target = c
			if !c.has(member) {
				c.members = append(c.members, member)
			}
		case c.has(member):
			c.remove(member)
		}
	}
	if target == nil {
		p.nextID++
		target = &cell{id: fmt.Sprintf("group-%d", p.nextID), members: []string{member, anchor}}
		p.cells = append(p.cells, target)
	}
	p.compact()
	return target.id, nil
}

// Remove drops a hash from its cell. Cells left empty are discarded.
func (p *Partition) Remove(hash string) bool {
	removed := false
	for _, c := range p.cells {
		if c.remove(hash) {
			removed = true
		}
	}
	p.compact()
	return removed
}

// CellOf returns the id of the cell holding hash.
func (p *Partition) CellOf(hash string) (string, bool) {
	for _, c := range p.cells {
		if c.has(hash) {
			return c.id, true
		}
	}
	return "", false
}

// Len returns the number of cells.
func (p *Partition) Len() int {
	return len(p.cells)
}

// Groups maps every cell to its current leaf indices. Members that do not resolve are
// left out of Leaves but kept in Members.
func (p *Partition) Groups(lookup Lookup) []domain.Group {
	out := make([]domain.Group, 0, len(p.cells))
	for _, c := range p.cells {
		g := domain.Group{
			ID:      c.id,
			Members: append([]string(nil), c.members...),
			Leaves:  make([]int, 0, len(c.members)),
		}
		for _, m := range c.members {
			if i, ok := lookup.IndexOf(m); ok {
				g.Leaves = append(g.Leaves, i)
			}
		}
		out = append(out, g)
	}
	return out
}

func (p *Partition) compact() {
	kept := p.cells[:0]
	for _, c := range p.cells {
		if len(c.members) > 0 {
			kept = append(kept, c)
		}
	}
	p.cells = kept
}
