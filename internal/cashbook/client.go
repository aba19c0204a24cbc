// Package cashbook is the client core: one signed-in participant's view of
// the shared ledger. It follows the identity stream, keeps the ledger store
// bound to the current session and recomputes the derived state after every
// change.
package cashbook

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/editor"
	"cashbook/internal/export"
	"cashbook/internal/ledger"
	"cashbook/internal/view"
	"cashbook/internal/voice"
)

// State is everything a screen renders. It is rebuilt from the store after
// every change and never edited in place.
type State struct {
	Session      *core.Session         `json:"session"`
	Loading      bool                  `json:"loading"`
	FeedStopped  bool                  `json:"feedStopped"`
	Version      uint64                `json:"version"`
	View         view.State            `json:"view"`
	Transactions []core.Transaction    `json:"transactions"`
	Summary      core.Summary          `json:"summary"`
	Breakdown    []core.CategoryAmount `json:"breakdown"`
}

type Options struct {
	// Location is the timezone report dates are shown in (default UTC).
	Location *time.Location
	// ShareBase is the click-to-chat endpoint (default export.DefaultShareBase).
	ShareBase string
	// StrictOwnership rejects edits of other participants' records.
	StrictOwnership bool
	// Transcriber backs dictation; nil means voice input is unsupported.
	Transcriber voice.Transcriber
}

type Client struct {
	identity *auth.Client
	store    *ledger.Store
	editor   *editor.Editor
	router   *view.Router
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	recomputeMu sync.Mutex
	mu          sync.Mutex
	state       State
	listeners   map[int]func(State)
	nextID      int
	closed      bool

	stopIdentity func()
	stopStore    func()
}

// New wires a client to identity and backend and binds it to the current
// session right away.
func New(identity *auth.Client, backend ledger.Backend, opts Options) *Client {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ShareBase == "" {
		opts.ShareBase = export.DefaultShareBase
	}

	store := ledger.NewStore(backend)
	edOpts := []editor.Option{editor.WithLookup(store.Find)}
	if opts.StrictOwnership {
		edOpts = append(edOpts, editor.WithStrictOwnership())
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		identity:  identity,
		store:     store,
		editor:    editor.New(backend, edOpts...),
		router:    view.NewRouter(),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(State)),
	}
	c.state = c.compute()

	c.stopStore = store.OnChange(c.recompute)
	c.stopIdentity = identity.Watch(c.onSession)
	return c
}

func (c *Client) onSession(sess *core.Session) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if err := c.store.Bind(c.ctx, sess); err != nil {
		slog.Error("Failed to subscribe to ledger feed", "error", err)
	}
}

func (c *Client) compute() State {
	sess := c.store.Session()
	txs := c.store.Transactions()
	if txs == nil {
		txs = []core.Transaction{}
	}
	stopped, _ := c.store.Stopped()

	owner := ""
	if sess != nil {
		owner = sess.UserID
	}
	breakdown := core.BreakdownByCategory(txs)
	if breakdown == nil {
		breakdown = []core.CategoryAmount{}
	}
	return State{
		Session:      sess,
		Loading:      c.store.Loading(),
		FeedStopped:  stopped,
		Version:      c.store.Version(),
		View:         c.router.Current(),
		Transactions: txs,
		Summary:      core.Summarize(txs, owner),
		Breakdown:    breakdown,
	}
}

// recompute rebuilds the state and hands it to every listener, in order.
func (c *Client) recompute() {
	c.recomputeMu.Lock()
	defer c.recomputeMu.Unlock()

	st := c.compute()
	c.mu.Lock()
	c.state = st
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// State returns the latest derived state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe calls fn with the current state and again after every change.
// fn must not block. The returned func unsubscribes.
func (c *Client) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	st := c.state
	c.mu.Unlock()

	fn(st)
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) SignIn(ctx context.Context, email, password string) (core.Session, error) {
	return c.identity.SignIn(ctx, email, password)
}

func (c *Client) Register(ctx context.Context, email, password, displayName string) (core.Session, error) {
	return c.identity.Register(ctx, email, password, displayName)
}

func (c *Client) Restore(token string) (core.Session, error) {
	return c.identity.Restore(token)
}

func (c *Client) SignOut() {
	c.identity.SignOut()
}

// Session is the current identity, nil when signed out.
func (c *Client) Session() *core.Session {
	return c.identity.Current()
}

// Token returns the session token and its expiry.
func (c *Client) Token() (string, time.Time) {
	return c.identity.Token()
}

// Create submits a new transaction. See editor.Editor.Create.
func (c *Client) Create(ctx context.Context, d core.Draft) (string, core.Draft, error) {
	return c.editor.Create(ctx, c.identity.Current(), d)
}

// Edit loads the draft for an existing record from the current snapshot.
func (c *Client) Edit(id string) (core.Draft, error) {
	t, ok := c.store.Find(id)
	if !ok {
		return core.Draft{}, ledger.ErrNotFound
	}
	return core.DraftFrom(t), nil
}

func (c *Client) Update(ctx context.Context, id string, d core.Draft) (core.Draft, error) {
	return c.editor.Update(ctx, c.identity.Current(), id, d)
}

func (c *Client) Delete(ctx context.Context, id string, confirmed bool) error {
	return c.editor.Delete(ctx, c.identity.Current(), id, confirmed)
}

// Show switches the screen and publishes the new state.
func (c *Client) Show(s view.State) error {
	if err := c.router.Show(s); err != nil {
		return err
	}
	c.recompute()
	return nil
}

// Report lays out the current snapshot as the transactions report.
func (c *Client) Report() (export.Table, error) {
	return export.BuildReport(c.store.Transactions(), c.opts.Location)
}

func (c *Client) ExportPDF(w io.Writer) error {
	t, err := c.Report()
	if err != nil {
		return err
	}
	return export.WritePDF(w, t)
}

func (c *Client) ExportMarkdown(w io.Writer) error {
	t, err := c.Report()
	if err != nil {
		return err
	}
	return export.WriteMarkdown(w, t)
}

// Chart renders the spending breakdown of the current snapshot.
func (c *Client) Chart(w io.Writer) error {
	return export.WriteChart(w, core.BreakdownByCategory(c.store.Transactions()))
}

// ShareText is the summary message for the current state. It needs a
// session: the summary is relative to the signed-in participant.
func (c *Client) ShareText() (string, error) {
	st := c.State()
	if st.Session == nil {
		return "", auth.ErrNoSession
	}
	return export.SummaryText(st.Summary), nil
}

// ShareURL is the click-to-chat link carrying ShareText.
func (c *Client) ShareURL() (string, error) {
	text, err := c.ShareText()
	if err != nil {
		return "", err
	}
	return export.ShareURL(c.opts.ShareBase, text), nil
}

// Dictate fills field from the transcriber, returning current unchanged on
// any failure.
func (c *Client) Dictate(ctx context.Context, field voice.Field, current string) (string, error) {
	return voice.Fill(ctx, c.opts.Transcriber, field, current)
}

// Close unsubscribes from the identity stream and the feed. Listeners get no
// further calls.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = make(map[int]func(State))
	c.mu.Unlock()

	c.stopIdentity()
	c.stopStore()
	c.store.Close()
	c.cancel()
}
