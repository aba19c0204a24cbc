// Package memory is an in-process ledger backend and user store, used for
// local development and tests.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/ledger/feed"
)

type Store struct {
	mu    sync.Mutex
	items map[string]core.Transaction
	users map[string]auth.User // keyed by lower-cased email
	now   func() time.Time
	hub   *feed.Hub
}

type Option func(*Store)

// WithClock replaces the backend's clock, which stamps CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSeed preloads records.
func WithSeed(txs ...core.Transaction) Option {
	return func(s *Store) {
		for _, t := range txs {
			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			s.items[t.ID] = t
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		items: make(map[string]core.Transaction),
		users: make(map[string]auth.User),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = feed.New(s.list)
	return s
}

// Append stores the record and returns its generated id.
func (s *Store) Append(ctx context.Context, rec ledger.NewRecord) (string, error) {
	t := core.Transaction{
		ID:               uuid.NewString(),
		OwnerID:          rec.OwnerID,
		OwnerEmail:       rec.OwnerEmail,
		OwnerDisplayName: rec.OwnerDisplayName,
		Amount:           rec.Fields.Amount,
		Type:             rec.Fields.Type,
		Category:         rec.Fields.Category,
		Remark:           rec.Fields.Remark,
	}
	if err := t.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	t.CreatedAt = s.now().UTC()
	s.items[t.ID] = t
	s.mu.Unlock()

	s.changed(ctx)
	return t.ID, nil
}

func (s *Store) Overwrite(ctx context.Context, id string, fields core.Mutable) error {
	s.mu.Lock()
	t, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return ledger.ErrNotFound
	}
	t.Amount = fields.Amount
	t.Remark = fields.Remark
	t.Type = fields.Type
	t.Category = fields.Category
	if err := t.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	t.CreatedAt = s.now().UTC()
	s.items[id] = t
	s.mu.Unlock()

	s.changed(ctx)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()

	if ok {
		s.changed(ctx)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, onSnapshot ledger.SnapshotFunc, onError ledger.ErrorFunc) (func(), error) {
	return s.hub.Watch(ctx, onSnapshot, onError)
}

// Refresh republishes the current collection.
func (s *Store) Refresh(ctx context.Context) error {
	return s.hub.Refresh(ctx)
}

// List returns the collection in feed order.
func (s *Store) List(ctx context.Context) ([]core.Transaction, error) {
	return s.list(ctx)
}

func (s *Store) Version() uint64 {
	return s.hub.Version()
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) changed(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := s.hub.Refresh(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to republish ledger snapshot", "error", err)
	}
}

func (s *Store) list(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0, len(s.items))
	for _, t := range s.items {
		out = append(out, t)
	}
	s.mu.Unlock()
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders by creation time descending, ties by id descending.
func SortNewestFirst(txs []core.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

// CreateUser implements auth.UserStore.
func (s *Store) CreateUser(_ context.Context, u auth.User) error {
	key := strings.ToLower(u.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[key]; exists {
		return auth.ErrUserExists
	}
	s.users[key] = u
	return nil
}

// UserByEmail implements auth.UserStore.
func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}
