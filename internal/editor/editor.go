// Package editor validates form drafts and turns them into backend writes.
//
// Writes are fire-and-confirm: the editor never touches the client's list.
// The change becomes visible when the backend's next snapshot arrives.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

var (
	ErrNotOwner     = errors.New("only the creator can change this transaction")
	ErrNotConfirmed = errors.New("delete requires confirmation")
)

// Lookup finds a record in the client's current snapshot.
type Lookup func(id string) (core.Transaction, bool)

type Editor struct {
	writer ledger.Writer
	lookup Lookup
	strict bool
}

type Option func(*Editor)

// WithStrictOwnership rejects updates and deletes of records owned by someone
// else. Without it such writes go through and are logged.
func WithStrictOwnership() Option {
	return func(e *Editor) { e.strict = true }
}

// WithLookup enables ownership checks against the current snapshot.
func WithLookup(l Lookup) Option {
	return func(e *Editor) { e.lookup = l }
}

func New(writer ledger.Writer, opts ...Option) *Editor {
	e := &Editor{writer: writer}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates d and appends it under the session's identity. On success
// it returns the new id and a reset draft; on failure the draft comes back
// unchanged with the error.
func (e *Editor) Create(ctx context.Context, session *core.Session, d core.Draft) (string, core.Draft, error) {
	if session == nil {
		return "", d, auth.ErrNoSession
	}
	fields, err := d.Validate()
	if err != nil {
		return "", d, err
	}

	id, err := e.writer.Append(ctx, ledger.NewRecord{
		OwnerID:          session.UserID,
		OwnerEmail:       session.Email,
		OwnerDisplayName: session.Name(),
		Fields:           fields,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to add transaction", "user_id", session.UserID, "error", err)
		return "", d, fmt.Errorf("add transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction added",
		"id", id,
		"user_id", session.UserID,
		"type", fields.Type,
		"category", fields.Category,
		"amount", fields.Amount.String())
	return id, core.NewDraft(), nil
}

// Update overwrites the mutable fields of id. The backend re-stamps the
// creation time, so the record moves to the top of the feed.
func (e *Editor) Update(ctx context.Context, session *core.Session, id string, d core.Draft) (core.Draft, error) {
	if session == nil {
		return d, auth.ErrNoSession
	}
	fields, err := d.Validate()
	if err != nil {
		return d, err
	}
	if err := e.checkOwner(ctx, session, id, "update"); err != nil {
		return d, err
	}

	if err := e.writer.Overwrite(ctx, id, fields); err != nil {
		slog.ErrorContext(ctx, "Failed to update transaction", "id", id, "error", err)
		return d, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "id", id, "user_id", session.UserID)
	return core.NewDraft(), nil
}

// Delete removes id once the user has confirmed.
func (e *Editor) Delete(ctx context.Context, session *core.Session, id string, confirmed bool) error {
	if session == nil {
		return auth.ErrNoSession
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := e.checkOwner(ctx, session, id, "delete"); err != nil {
		return err
	}

	if err := e.writer.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to delete transaction", "id", id, "error", err)
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", session.UserID)
	return nil
}

func (e *Editor) checkOwner(ctx context.Context, session *core.Session, id, op string) error {
	if e.lookup == nil {
		return nil
	}
	t, ok := e.lookup(id)
	if !ok || t.OwnerID == session.UserID {
		return nil
	}
	if e.strict {
		return ErrNotOwner
	}
	slog.WarnContext(ctx, "Transaction changed by non-owner",
		"id", id,
		"op", op,
		"owner_id", t.OwnerID,
		"user_id", session.UserID)
	return nil
}
