// Package resolve implements entity resolution for companies and contacts:
// create-or-find keyed by email domain and address, with deterministic
// collision handling and per-key serialization.
package resolve

import (
	"golang.org/x/sync/singleflight"
)

// Mode identifies the calling context of a resolution. It is carried on
// every call so batch and incremental writers are distinguishable without
// shared mutable state.
type Mode string

const (
	ModeBatch       Mode = "batch"
	ModeIncremental Mode = "incremental"
)

// Resolver performs create-or-find resolution of companies and contacts.
// Concurrent resolutions for the same key (domain or email) are collapsed
// through singleflight; unique-constraint re-query remains the backstop for
// races across processes.
type Resolver struct {
	store Store

	companies singleflight.Group
	contacts  singleflight.Group
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// maxNameAttempts bounds the suffix-and-retry loop on name collisions.
const maxNameAttempts = 5
