package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) NotifyLedgerChanged(_ context.Context, id, op string, _ uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, op+":"+id)
	return n.err
}

func newTestRepo(t *testing.T, opts ...Option) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "cashbook.db"), opts...)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func newRecord(owner, amount string, typ core.TxType, cat core.Category) ledger.NewRecord {
	return ledger.NewRecord{
		OwnerID:          owner,
		OwnerEmail:       owner + "@example.com",
		OwnerDisplayName: owner,
		Fields:           core.Mutable{Amount: decimal.RequireFromString(amount), Type: typ, Category: cat, Remark: "note"},
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v1 != 2 || v2 != 2 {
		t.Fatalf("unexpected versions %d %d", v1, v2)
	}
}

func TestAppendListRoundTrip(t *testing.T) {
	repo := newTestRepo(t, WithClock(steppingClock()))
	ctx := context.Background()

	first, err := repo.Append(ctx, newRecord("A", "1234.56", core.Out, core.Food))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := repo.Append(ctx, newRecord("B", "10", core.In, core.Other))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	txs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != second || txs[1].ID != first {
		t.Fatalf("unexpected order: %+v", txs)
	}
	got := txs[1]
	if !got.Amount.Equal(decimal.RequireFromString("1234.56")) || got.Type != core.Out ||
		got.Category != core.Food || got.OwnerEmail != "A@example.com" || got.Remark != "note" {
		t.Fatalf("fields not preserved: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.CreatedAt.Location() != time.UTC {
		t.Fatalf("bad timestamp %v", got.CreatedAt)
	}
}

func TestOverwriteAndDelete(t *testing.T) {
	notifier := &recordingNotifier{}
	repo := newTestRepo(t, WithClock(steppingClock()), WithNotifier(notifier))
	ctx := context.Background()

	old, _ := repo.Append(ctx, newRecord("A", "1", core.Out, core.Food))
	_, _ = repo.Append(ctx, newRecord("A", "2", core.Out, core.Food))

	err := repo.Overwrite(ctx, old, core.Mutable{Amount: decimal.NewFromInt(7), Type: core.In, Category: core.Health, Remark: "fixed"})
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	txs, _ := repo.List(ctx)
	if txs[0].ID != old || txs[0].Remark != "fixed" || txs[0].Category != core.Health {
		t.Fatalf("overwrite not re-stamped to top: %+v", txs[0])
	}

	if err := repo.Overwrite(ctx, "nope", core.Mutable{Type: core.Out, Category: core.Food}); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Delete(ctx, old); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, old); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
	txs, _ = repo.List(ctx)
	if len(txs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(txs))
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	want := []string{"create:", "create:", "update:" + old, "delete:" + old}
	if len(notifier.calls) != len(want) {
		t.Fatalf("notifications %v", notifier.calls)
	}
	if notifier.calls[2] != want[2] || notifier.calls[3] != want[3] {
		t.Fatalf("notifications %v", notifier.calls)
	}
}

func TestNotifierFailureDoesNotFailWrite(t *testing.T) {
	repo := newTestRepo(t, WithNotifier(&recordingNotifier{err: errors.New("broker down")}))
	if _, err := repo.Append(context.Background(), newRecord("A", "1", core.Out, core.Food)); err != nil {
		t.Fatalf("write failed with notifier error: %v", err)
	}
}

func TestWatchReceivesSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var mu sync.Mutex
	var last ledger.Snapshot
	stop, err := repo.Watch(ctx, func(s ledger.Snapshot) {
		mu.Lock()
		last = s
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	if _, err := repo.Append(ctx, newRecord("A", "3", core.Out, core.Bills)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(last.Transactions)
		mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("snapshot with the new record never arrived")
}

func TestAppendRejectsInvalidRecord(t *testing.T) {
	repo := newTestRepo(t)
	rec := newRecord("A", "1", "SIDEWAYS", core.Food)
	if _, err := repo.Append(context.Background(), rec); !errors.Is(err, core.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := auth.User{ID: "u1", Email: "Asha@example.com", DisplayName: "Asha", PasswordHash: "h", CreatedAt: time.Now()}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := repo.CreateUser(ctx, auth.User{ID: "u2", Email: "asha@EXAMPLE.com", PasswordHash: "h"}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	got, err := repo.UserByEmail(ctx, "ASHA@example.com")
	if err != nil || got.ID != "u1" || got.DisplayName != "Asha" {
		t.Fatalf("UserByEmail: %+v %v", got, err)
	}
	if _, err := repo.UserByEmail(ctx, "x@example.com"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
