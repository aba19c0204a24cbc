package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashbook/internal/amqp"
	"cashbook/internal/core"
	"cashbook/internal/sheets/memory"
)

type fakeLister struct {
	mu    sync.Mutex
	txs   []core.Transaction
	err   error
	calls int
}

func (f *fakeLister) List(context.Context) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]core.Transaction(nil), f.txs...), f.err
}

func (f *fakeLister) set(txs []core.Transaction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs, f.err = txs, err
}

func tx(id string, amount int64) core.Transaction {
	return core.Transaction{
		ID:        id,
		OwnerID:   "u1",
		Amount:    decimal.NewFromInt(amount),
		Type:      core.Out,
		Category:  core.Food,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestMirror_SyncSkipsUnchanged(t *testing.T) {
	src := &fakeLister{txs: []core.Transaction{tx("a", 100)}}
	pub := memory.New()
	m := NewMirror(src, pub, MirrorConfig{Tab: "Ledger"})

	published, err := m.Sync(context.Background())
	if err != nil || !published {
		t.Fatalf("first sync: published=%v err=%v", published, err)
	}
	published, err = m.Sync(context.Background())
	if err != nil || published {
		t.Fatalf("unchanged sync should skip: published=%v err=%v", published, err)
	}

	src.set([]core.Transaction{tx("b", 5), tx("a", 100)}, nil)
	if published, _ := m.Sync(context.Background()); !published {
		t.Fatal("changed ledger should publish")
	}
	if pub.Count() != 2 {
		t.Fatalf("publish count = %d", pub.Count())
	}
	table, _ := pub.Table("Ledger")
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
}

func TestMirror_EmptyLedgerPublishesHeaderOnly(t *testing.T) {
	pub := memory.New()
	m := NewMirror(&fakeLister{}, pub, MirrorConfig{Tab: "Ledger"})

	if published, err := m.Sync(context.Background()); err != nil || !published {
		t.Fatalf("published=%v err=%v", published, err)
	}
	table, ok := pub.Table("Ledger")
	if !ok || len(table.Rows) != 0 || len(table.Header) != 6 {
		t.Fatalf("unexpected table %+v", table)
	}
}

func TestMirror_Errors(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeLister{err: boom}
	pub := memory.New()
	m := NewMirror(src, pub, MirrorConfig{Tab: "Ledger"})

	if _, err := m.Sync(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}

	src.set([]core.Transaction{tx("a", 1)}, nil)
	pub.FailWith(boom)
	if _, err := m.Sync(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}

	pub.FailWith(nil)
	if published, err := m.Sync(context.Background()); err != nil || !published {
		t.Fatalf("a failed publish must be retried: published=%v err=%v", published, err)
	}
}

func TestMirror_HandleChangeNeverRequeues(t *testing.T) {
	pub := memory.New()
	pub.FailWith(errors.New("sheets down"))
	m := NewMirror(&fakeLister{txs: []core.Transaction{tx("a", 1)}}, pub, MirrorConfig{Tab: "Ledger"})

	msg := amqp.NewLedgerChangedMessage("a", amqp.OpCreate, 7, "server-1")
	if err := m.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("HandleChange returned %v", err)
	}
	if pub.Count() != 0 {
		t.Fatalf("publish count = %d", pub.Count())
	}
}

func TestMirror_HandleChangeSkipsStaleVersions(t *testing.T) {
	src := &fakeLister{txs: []core.Transaction{tx("a", 1)}}
	m := NewMirror(src, memory.New(), MirrorConfig{Tab: "Ledger"})
	ctx := context.Background()

	steps := []struct {
		origin  string
		version uint64
		reads   int
	}{
		{"server-1", 3, 1},
		{"server-1", 3, 1}, // redelivered
		{"server-1", 2, 1}, // older than one already handled
		{"server-2", 1, 2}, // versions are per origin
		{"server-1", 4, 3},
		{"", 0, 4},
	}
	for i, step := range steps {
		msg := amqp.NewLedgerChangedMessage("a", amqp.OpUpdate, step.version, step.origin)
		if err := m.HandleChange(ctx, msg); err != nil {
			t.Fatalf("step %d: HandleChange returned %v", i, err)
		}
		src.mu.Lock()
		reads := src.calls
		src.mu.Unlock()
		if reads != step.reads {
			t.Fatalf("step %d (%s v%d): ledger reads = %d, want %d", i, step.origin, step.version, reads, step.reads)
		}
	}
}

func TestMirror_StartStop(t *testing.T) {
	pub := memory.New()
	m := NewMirror(&fakeLister{txs: []core.Transaction{tx("a", 1)}}, pub, MirrorConfig{Tab: "Ledger", Interval: time.Hour})

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.Count() != 1 {
		t.Fatalf("startup sync did not publish")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.IsRunning() {
		t.Fatal("mirror still running after Stop")
	}
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
