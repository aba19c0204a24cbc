package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func rec(owner string, amount int64, typ core.TxType) ledger.NewRecord {
	return ledger.NewRecord{
		OwnerID:          owner,
		OwnerDisplayName: owner + "-name",
		Fields:           core.Mutable{Amount: decimal.NewFromInt(amount), Type: typ, Category: core.Food, Remark: "r"},
	}
}

func TestAppendOrdersNewestFirst(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock.now))
	ctx := context.Background()

	first, _ := s.Append(ctx, rec("A", 1, core.Out))
	second, _ := s.Append(ctx, rec("B", 2, core.In))

	txs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != second || txs[1].ID != first {
		t.Fatalf("unexpected order: %+v", txs)
	}
	if txs[0].OwnerDisplayName != "B-name" {
		t.Fatalf("identity snapshot not stored")
	}
	if s.Version() != 2 {
		t.Fatalf("version = %d", s.Version())
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := New()
	bad := rec("", 1, core.Out)
	if _, err := s.Append(context.Background(), bad); !errors.Is(err, core.ErrEmptyOwner) {
		t.Fatalf("expected ErrEmptyOwner, got %v", err)
	}
}

func TestOverwriteRestampsAndMovesToTop(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock.now))
	ctx := context.Background()

	old, _ := s.Append(ctx, rec("A", 1, core.Out))
	_, _ = s.Append(ctx, rec("A", 2, core.Out))

	err := s.Overwrite(ctx, old, core.Mutable{Amount: decimal.NewFromInt(9), Type: core.In, Category: core.Bills, Remark: "edited"})
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	txs, _ := s.List(ctx)
	if txs[0].ID != old || txs[0].Remark != "edited" || txs[0].Type != core.In || !txs[0].Amount.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("overwrite not applied or not re-stamped: %+v", txs[0])
	}
	if txs[0].OwnerID != "A" {
		t.Fatalf("owner changed")
	}

	if err := s.Overwrite(ctx, "missing", core.Mutable{Type: core.Out, Category: core.Food}); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.Append(ctx, rec("A", 1, core.Out))
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	txs, _ := s.List(ctx)
	if len(txs) != 0 {
		t.Fatalf("record still present")
	}
}

func TestSortTieBreaksOnID(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []core.Transaction{{ID: "a", CreatedAt: at}, {ID: "c", CreatedAt: at}, {ID: "b", CreatedAt: at}}
	SortNewestFirst(txs)
	if txs[0].ID != "c" || txs[1].ID != "b" || txs[2].ID != "a" {
		t.Fatalf("unexpected order %v %v %v", txs[0].ID, txs[1].ID, txs[2].ID)
	}
}

func TestUserStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := auth.User{ID: "u1", Email: "Asha@Example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, auth.User{ID: "u2", Email: "asha@example.com"}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	got, err := s.UserByEmail(ctx, "ASHA@example.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("UserByEmail: %+v %v", got, err)
	}
	if _, err := s.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
