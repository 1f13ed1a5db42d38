// Package store holds messages that could not be delivered because their
// recipient was offline.
package store

import "github.com/NicolasHaas/caserelay/pkg/model"

// PendingStore is a per-identity FIFO of undeliverable messages.
// The default implementation is in-memory; pkg/datastore provides a SQLite
// backend so queues survive a restart.
type PendingStore interface {
	// Enqueue appends msg to the identity's queue, creating it if absent.
	Enqueue(identity string, msg model.Message) error

	// DrainAndClear removes and returns the identity's whole queue in
	// arrival order. An absent queue yields (nil, nil).
	DrainAndClear(identity string) ([]model.Message, error)

	// Len returns the number of messages queued for identity.
	Len(identity string) (int, error)

	// Total returns the number of queued messages across all identities.
	Total() (int, error)

	// Close releases the underlying storage.
	Close() error
}

// Compile-time check: *MemoryStore implements PendingStore.
var _ PendingStore = (*MemoryStore)(nil)
