// Package ledger holds the ports of the shared transaction backend and the
// per-client store that mirrors its live snapshot.
package ledger

import (
	"context"
	"errors"

	"cashbook/internal/core"
)

// ErrNotFound is returned by Overwrite when the record does not exist.
var ErrNotFound = errors.New("transaction not found")

type (
	// NewRecord is what a client sends to create a transaction. The backend
	// assigns the id and the creation timestamp.
	NewRecord struct {
		OwnerID          string
		OwnerEmail       string
		OwnerDisplayName string
		Fields           core.Mutable
	}

	// Snapshot is the full, ordered collection at one point in time. Version
	// grows with every snapshot the backend emits.
	Snapshot struct {
		Version      uint64
		Transactions []core.Transaction
	}

	SnapshotFunc func(Snapshot)
	ErrorFunc    func(error)
)

// Ports for outbound adapters.
type (
	Writer interface {
		Append(ctx context.Context, rec NewRecord) (id string, err error)
		// Overwrite replaces the mutable fields and re-stamps the creation
		// time to the backend's clock.
		Overwrite(ctx context.Context, id string, fields core.Mutable) error
		// Delete removes the record. Deleting a missing id is not an error.
		Delete(ctx context.Context, id string) error
	}

	// Feed is a live query over the whole collection, newest first. The
	// current snapshot is delivered right after subscribing and again after
	// every change. A delivered error ends the subscription.
	Feed interface {
		Watch(ctx context.Context, onSnapshot SnapshotFunc, onError ErrorFunc) (stop func(), err error)
	}

	Backend interface {
		Writer
		Feed
	}

	// Refresher re-reads the collection and republishes it to watchers.
	Refresher interface {
		Refresh(ctx context.Context) error
	}
)
