/*
Package netviz keeps a persisted triplet store, an in-memory visual graph and a
layout simulation consistent while facts are added and removed.

Facts are subject-predicate-object records. Every accepted fact is written to a
TripletStore (memory, badger, sqlite or redis), its endpoints are registered as
nodes, and the visual link list is rebuilt from a full store scan. Each mutation
runs one cycle: the layout solver is stopped, the cache is mutated, links are
reprojected, and the solver restarts with a fresh snapshot.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/netviz"
		"github.com/aretw0/netviz/pkg/domain"
	)

	func main() {
		g, err := netviz.New()
		if err != nil {
			log.Fatal(err)
		}
		defer g.Close()

		ctx := context.Background()
		if err := g.AddTriplet(ctx, domain.NewFact("alice", "knows", "bob")); err != nil {
			log.Fatal(err)
		}
		log.Println(g.HasNode("bob"), len(g.Links()))
	}

# Concurrency

All Graph methods are safe for concurrent use. Duplicate detection and
persistence are serialized per fact key and per node hash, optionally across
processes through a DistributedLocker such as the redis adapter.

# Errors

Rejected operations return a *domain.OpError that matches one of the domain
sentinels (ErrValidation, ErrDuplicateFact, ErrReference, ErrNoSuchNode,
ErrStore) with errors.Is. After an ErrStore, NeedsResync reports true until the
next cycle or an explicit Resync reconciles the cache with the store.
*/
package netviz
