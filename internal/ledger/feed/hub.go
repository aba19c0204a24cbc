// Package feed fans the backend's full snapshots out to live watchers.
//
// Every watcher has its own goroutine and a single-slot mailbox: deliveries to
// one watcher are strictly ordered, and a slow watcher skips intermediate
// snapshots instead of blocking the publisher.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

var ErrClosed = errors.New("feed closed")

// Source reads the whole collection in feed order.
type Source func(ctx context.Context) ([]core.Transaction, error)

type Hub struct {
	source Source

	// refreshMu keeps read-then-publish atomic so versions follow read order.
	refreshMu sync.Mutex

	mu       sync.Mutex
	version  uint64
	last     *ledger.Snapshot
	watchers map[uint64]*watcher
	nextID   uint64
	closed   bool
}

func New(source Source) *Hub {
	return &Hub{
		source:   source,
		watchers: make(map[uint64]*watcher),
	}
}

// Watch registers a watcher and delivers the current snapshot to it. When no
// snapshot has been read yet, the source is read first; a failing read is
// returned and nothing is registered.
func (h *Hub) Watch(ctx context.Context, onSnapshot ledger.SnapshotFunc, onError ledger.ErrorFunc) (func(), error) {
	if onSnapshot == nil {
		return nil, errors.New("feed: nil snapshot callback")
	}

	h.mu.Lock()
	closed, primed := h.closed, h.last != nil
	h.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !primed {
		if err := h.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	w := newWatcher(onSnapshot, onError)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	id := h.nextID
	h.nextID++
	h.watchers[id] = w
	if h.last != nil {
		w.offer(*h.last)
	}
	h.mu.Unlock()

	go func() {
		w.run(ctx)
		h.remove(id)
	}()

	return func() {
		h.remove(id)
		w.stop()
	}, nil
}

// Refresh reads the source and publishes a new snapshot. A read failure is
// delivered to every watcher and ends all current watches.
func (h *Hub) Refresh(ctx context.Context) error {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	txs, err := h.source(ctx)
	if err != nil {
		h.fail(err)
		return err
	}
	h.publish(txs)
	return nil
}

// Version is the version of the last published snapshot, 0 before the first.
func (h *Hub) Version() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Watchers reports how many watches are live.
func (h *Hub) Watchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Close ends every watch without delivering an error.
func (h *Hub) Close() {
	h.mu.Lock()
	ws := h.watchers
	h.watchers = make(map[uint64]*watcher)
	h.closed = true
	h.mu.Unlock()
	for _, w := range ws {
		w.stop()
	}
}

func (h *Hub) publish(txs []core.Transaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	snap := ledger.Snapshot{
		Version:      h.version,
		Transactions: append([]core.Transaction(nil), txs...),
	}
	h.last = &snap
	for _, w := range h.watchers {
		w.offer(snap)
	}
}

func (h *Hub) fail(err error) {
	h.mu.Lock()
	ws := h.watchers
	h.watchers = make(map[uint64]*watcher)
	h.last = nil
	h.mu.Unlock()

	slog.Error("Feed read failed, ending watches", "error", err, "watchers", len(ws))
	for _, w := range ws {
		w.offerErr(err)
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.watchers, id)
	h.mu.Unlock()
}

type watcher struct {
	onSnapshot ledger.SnapshotFunc
	onError    ledger.ErrorFunc

	mu      sync.Mutex
	pending *ledger.Snapshot
	err     error

	signal   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newWatcher(onSnapshot ledger.SnapshotFunc, onError ledger.ErrorFunc) *watcher {
	return &watcher{
		onSnapshot: onSnapshot,
		onError:    onError,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// offer replaces whatever snapshot is still waiting in the mailbox.
func (w *watcher) offer(s ledger.Snapshot) {
	w.mu.Lock()
	w.pending = &s
	w.mu.Unlock()
	w.notify()
}

func (w *watcher) offerErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	w.notify()
}

func (w *watcher) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *watcher) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.signal:
		}

		w.mu.Lock()
		snap, err := w.pending, w.err
		w.pending = nil
		w.mu.Unlock()

		if snap != nil && !w.stopped() {
			w.onSnapshot(*snap)
		}
		if err != nil {
			if w.onError != nil && !w.stopped() {
				w.onError(err)
			}
			w.stop()
			return
		}
	}
}
