package middleware

import "github.com/aretw0/netviz/pkg/ports"

// Middleware allows wrapping a TripletStore to add behavior.
type Middleware func(ports.TripletStore) ports.TripletStore

// Chain applies middlewares so the first one listed is the outermost.
func Chain(store ports.TripletStore, mws ...Middleware) ports.TripletStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
