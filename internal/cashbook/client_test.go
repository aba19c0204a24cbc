package cashbook_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cashbook/internal/auth"
	"cashbook/internal/cashbook"
	"cashbook/internal/core"
	"cashbook/internal/editor"
	"cashbook/internal/export"
	"cashbook/internal/ledger"
	"cashbook/internal/ledger/memory"
	"cashbook/internal/view"
	"cashbook/internal/voice"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type fixture struct {
	backend *memory.Store
	svc     *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := memory.New()
	t.Cleanup(func() { backend.Close() })
	svc, err := auth.NewService(backend, auth.Config{Secret: []byte("test-secret"), BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{backend: backend, svc: svc}
}

func (f *fixture) client(t *testing.T, opts cashbook.Options) *cashbook.Client {
	t.Helper()
	c := cashbook.New(auth.NewClient(f.svc), f.backend, opts)
	t.Cleanup(c.Close)
	return c
}

func draft(amount string, typ core.TxType, cat core.Category) core.Draft {
	return core.Draft{Amount: amount, Type: typ, Category: cat}
}

func TestSignedOutState(t *testing.T) {
	c := newFixture(t).client(t, cashbook.Options{})
	st := c.State()
	if st.Session != nil || st.Loading || len(st.Transactions) != 0 {
		t.Fatalf("unexpected signed-out state %+v", st)
	}
	if st.View != view.Ledger {
		t.Fatalf("view = %q", st.View)
	}
	if _, _, err := c.Create(context.Background(), draft("10", core.Out, core.Food)); !errors.Is(err, auth.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := c.ShareURL(); !errors.Is(err, auth.ErrNoSession) {
		t.Fatalf("expected ErrNoSession for share, got %v", err)
	}
}

func TestTwoParticipantsShareOneLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asha := f.client(t, cashbook.Options{})
	ravi := f.client(t, cashbook.Options{})

	if _, err := asha.Register(ctx, "asha@example.com", "secret1", "Asha"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := ravi.Register(ctx, "ravi@example.com", "secret2", "Ravi"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, d, err := asha.Create(ctx, draft("1000", core.In, core.Other)); err != nil || d.Amount != "" {
		t.Fatalf("Create: draft=%+v err=%v", d, err)
	}
	if _, _, err := asha.Create(ctx, draft("200", core.Out, core.Food)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := ravi.Create(ctx, draft("300", core.Out, core.Bills)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	waitFor(t, func() bool { return len(asha.State().Transactions) == 3 && len(ravi.State().Transactions) == 3 })

	a := asha.State().Summary
	if a.Net.String() != "500" || a.MySpending.String() != "200" || a.PartnerSpending.String() != "300" {
		t.Fatalf("asha summary = %+v", a)
	}
	r := ravi.State().Summary
	if r.MySpending.String() != "300" || r.PartnerSpending.String() != "200" {
		t.Fatalf("ravi summary = %+v", r)
	}
	if r.Net.String() != "500" {
		t.Fatalf("net must be the same for both participants, got %s", r.Net)
	}

	bd := asha.State().Breakdown
	if len(bd) != 2 {
		t.Fatalf("breakdown = %+v", bd)
	}
}

func TestInvalidDraftKeepsForm(t *testing.T) {
	c := newFixture(t).client(t, cashbook.Options{})
	ctx := context.Background()
	if _, err := c.Register(ctx, "a@example.com", "secret1", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	in := core.Draft{Amount: "abc", Remark: "keep me", Type: core.Out, Category: core.Food}
	_, out, err := c.Create(ctx, in)
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if out != in {
		t.Fatalf("draft changed: %+v", out)
	}
}

func TestEditUpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.client(t, cashbook.Options{})
	if _, err := c.Register(ctx, "a@example.com", "secret1", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	id, _, err := c.Create(ctx, core.Draft{Amount: "50", Remark: "tea", Type: core.Out, Category: core.Food})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, func() bool { return len(c.State().Transactions) == 1 })

	d, err := c.Edit(id)
	if err != nil || d.Amount != "50" || d.Remark != "tea" {
		t.Fatalf("Edit: %+v %v", d, err)
	}
	if _, err := c.Edit("missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	d.Amount = "75"
	if _, err := c.Update(ctx, id, d); err != nil {
		t.Fatalf("Update: %v", err)
	}
	waitFor(t, func() bool {
		txs := c.State().Transactions
		return len(txs) == 1 && txs[0].Amount.String() == "75"
	})

	if err := c.Delete(ctx, id, false); !errors.Is(err, editor.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if err := c.Delete(ctx, id, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitFor(t, func() bool { return len(c.State().Transactions) == 0 })
}

func TestStrictOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.client(t, cashbook.Options{})
	other := f.client(t, cashbook.Options{StrictOwnership: true})
	if _, err := owner.Register(ctx, "a@example.com", "secret1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Register(ctx, "b@example.com", "secret1", ""); err != nil {
		t.Fatal(err)
	}
	id, _, err := owner.Create(ctx, draft("10", core.Out, core.Food))
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(other.State().Transactions) == 1 })

	if err := other.Delete(ctx, id, true); !errors.Is(err, editor.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestSignOutClearsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.client(t, cashbook.Options{})
	if _, err := c.Register(ctx, "a@example.com", "secret1", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Create(ctx, draft("10", core.Out, core.Food)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(c.State().Transactions) == 1 })

	c.SignOut()
	st := c.State()
	if st.Session != nil || len(st.Transactions) != 0 || !st.Summary.Net.IsZero() {
		t.Fatalf("state after sign-out = %+v", st)
	}
}

func TestSubscribeAndShow(t *testing.T) {
	c := newFixture(t).client(t, cashbook.Options{})

	var mu sync.Mutex
	var views []view.State
	stop := c.Subscribe(func(st cashbook.State) {
		mu.Lock()
		views = append(views, st.View)
		mu.Unlock()
	})
	defer stop()

	if err := c.Show(view.Analytics); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if err := c.Show("settings"); !errors.Is(err, view.ErrUnknownView) {
		t.Fatalf("expected ErrUnknownView, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(views) != 2 || views[0] != view.Ledger || views[1] != view.Analytics {
		t.Fatalf("views = %v", views)
	}
}

func TestExportsAndShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.client(t, cashbook.Options{ShareBase: "https://share.example/"})

	if _, err := c.Report(); !errors.Is(err, export.ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}

	if _, err := c.Register(ctx, "a@example.com", "secret1", "Asha"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Create(ctx, draft("1500", core.Out, core.Shopping)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(c.State().Transactions) == 1 })

	table, err := c.Report()
	if err != nil || table.Rows[0][1] != "Asha" || table.Rows[0][2] != "₹1,500.00" {
		t.Fatalf("Report: %+v %v", table, err)
	}

	var pdf, md, png bytes.Buffer
	if err := c.ExportPDF(&pdf); err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	if err := c.ExportMarkdown(&md); err != nil || !strings.Contains(md.String(), "Shopping") {
		t.Fatalf("ExportMarkdown: %v", err)
	}
	if err := c.Chart(&png); err != nil {
		t.Fatalf("Chart: %v", err)
	}

	url, err := c.ShareURL()
	if err != nil || !strings.HasPrefix(url, "https://share.example/?text=CashBook%20Pro%20Summary") {
		t.Fatalf("ShareURL: %q %v", url, err)
	}
}

type fixedTranscriber string

func (f fixedTranscriber) Transcribe(context.Context) (string, error) { return string(f), nil }

func TestDictate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.client(t, cashbook.Options{})
	if got, err := c.Dictate(ctx, voice.Amount, "12"); !errors.Is(err, voice.ErrUnsupported) || got != "12" {
		t.Fatalf("Dictate without transcriber: %q %v", got, err)
	}

	c = f.client(t, cashbook.Options{Transcriber: fixedTranscriber("rupees 45.50 only")})
	if got, err := c.Dictate(ctx, voice.Amount, ""); err != nil || got != "45.50" {
		t.Fatalf("Dictate: %q %v", got, err)
	}
}

func TestCloseStopsNotifications(t *testing.T) {
	f := newFixture(t)
	c := cashbook.New(auth.NewClient(f.svc), f.backend, cashbook.Options{})

	calls := 0
	c.Subscribe(func(cashbook.State) { calls++ })
	c.Close()
	c.Close()
	if err := c.Show(view.Analytics); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("listener called %d times after Close", calls)
	}
}
