package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"cashbook/internal/amqp"
	"cashbook/internal/ledger"
)

// ChangeRelay turns change notifications from other instances into local
// feed refreshes, so every client watching this instance sees writes made
// through any instance.
type ChangeRelay struct {
	refresher ledger.Refresher
	origin    string

	relayed atomic.Int64
	skipped atomic.Int64
}

// NewChangeRelay builds a relay for the instance identified by origin.
// Messages carrying the same origin were already published locally.
func NewChangeRelay(refresher ledger.Refresher, origin string) *ChangeRelay {
	return &ChangeRelay{refresher: refresher, origin: origin}
}

// Handle is an amqp consumer handler.
func (r *ChangeRelay) Handle(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if msg == nil {
		return nil
	}
	if msg.Origin != "" && msg.Origin == r.origin {
		r.skipped.Add(1)
		return nil
	}

	if err := r.refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after remote %s of %s: %w", msg.Op, msg.ID, err)
	}
	r.relayed.Add(1)

	slog.DebugContext(ctx, "Relayed remote ledger change",
		"id", msg.ID,
		"op", msg.Op,
		"origin", msg.Origin,
		"remote_version", msg.Version)
	return nil
}

// Stats reports how many messages were relayed and how many were skipped as
// local echoes.
func (r *ChangeRelay) Stats() (relayed, skipped int64) {
	return r.relayed.Load(), r.skipped.Load()
}
