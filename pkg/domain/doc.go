/*
Package domain contains the core model of the netviz graph synchronizer.

It defines the facts (triplets) that live in the durable store, the visual records
derived from them (nodes, links, groups), and the error taxonomy shared by every
adapter. This package is kept pure and free of I/O, following Hexagonal
Architecture principles.

# Key Entities

  - Fact: a subject-predicate-object triplet. Unique by (subject hash, predicate type, object hash).
  - Node: a visual record keyed by a caller-supplied hash.
  - Edge: a visual link, always re-derived from the fact set.
  - Group: a containment region built from one partition cell.
  - SavedGraph: the flat serialized form ({triplets, nodes}).
*/
package domain
