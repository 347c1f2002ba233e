/*
Package ports defines the driven ports (interfaces) for the netviz graph synchronizer.

These interfaces decouple the orchestration core from external implementations,
allowing the same graph to run over different storage engines, layout solvers and
rendering surfaces.

# Key Interfaces

  - TripletStore: pattern-matched get/put/delete over facts. The durable truth.
  - LayoutSolver: the external position engine, stopped before and restarted after every mutation.
  - AssetFactory: creates per-color rendering assets (arrow markers).
  - GraphStore: persists saved graphs by name.
  - DistributedLocker: cross-process locking for fact and node keys.
*/
package ports
