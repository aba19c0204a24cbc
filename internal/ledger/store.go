package ledger

import (
	"context"
	"log/slog"
	"sync"

	"cashbook/internal/core"
)

// Store mirrors the backend's live snapshot for one client. It never mutates
// the collection on its own: the list only ever changes by wholesale
// replacement with a newer snapshot, by clearing on sign-out, or by clearing
// after a feed error.
type Store struct {
	feed Feed

	mu        sync.RWMutex
	session   *core.Session
	txs       []core.Transaction
	loading   bool
	version   uint64
	stopped   bool
	lastErr   error
	gen       uint64
	stop      func()
	listeners map[int]func()
	nextID    int
}

func NewStore(feed Feed) *Store {
	return &Store{
		feed:      feed,
		listeners: make(map[int]func()),
	}
}

// Bind switches the store to session. Any previous watch is torn down first.
// A nil session clears the collection; otherwise the store enters the loading
// state and subscribes. ctx bounds the lifetime of the subscription.
func (s *Store) Bind(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	prev := s.stop
	s.stop = nil
	s.txs = nil
	s.version = 0
	s.stopped = false
	s.lastErr = nil
	if session == nil {
		s.session = nil
		s.loading = false
	} else {
		sess := *session
		s.session = &sess
		s.loading = true
	}
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	s.notify()

	if session == nil {
		return nil
	}

	stop, err := s.feed.Watch(ctx,
		func(snap Snapshot) { s.apply(gen, snap) },
		func(err error) { s.fail(gen, err) },
	)
	if err != nil {
		s.fail(gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Rebound while subscribing.
		s.mu.Unlock()
		stop()
		return nil
	}
	if s.stopped {
		s.mu.Unlock()
		stop()
		return nil
	}
	s.stop = stop
	s.mu.Unlock()
	return nil
}

// Close stops listening and clears the collection.
func (s *Store) Close() {
	s.mu.Lock()
	s.gen++
	prev := s.stop
	s.stop = nil
	s.session = nil
	s.txs = nil
	s.version = 0
	s.loading = false
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	s.notify()
}

func (s *Store) apply(gen uint64, snap Snapshot) {
	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}
	if s.version != 0 && snap.Version <= s.version {
		s.mu.Unlock()
		return
	}
	txs := append([]core.Transaction(nil), snap.Transactions...)
	s.txs = txs
	s.version = snap.Version
	s.loading = false
	s.mu.Unlock()

	s.notify()
}

func (s *Store) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.txs = nil
	s.loading = false
	s.stopped = true
	s.lastErr = err
	s.stop = nil
	s.mu.Unlock()

	slog.Error("Ledger feed failed, list cleared until next sign-in", "error", err)
	s.notify()
}

// Transactions returns a copy of the current list in feed order.
func (s *Store) Transactions() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.txs...)
}

// Find returns the record with id from the current snapshot.
func (s *Store) Find(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txs {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Stopped reports whether the feed ended with an error. The store stays empty
// until the next Bind.
func (s *Store) Stopped() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped, s.lastErr
}

func (s *Store) Session() *core.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

// OnChange registers fn to run after every state change. The returned func
// removes it.
func (s *Store) OnChange(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
