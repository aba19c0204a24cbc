// Package view tracks which of the two screens a client is showing.
package view

import (
	"errors"
	"strings"
	"sync"
)

type State string

const (
	Ledger    State = "ledger"
	Analytics State = "analytics"
)

var ErrUnknownView = errors.New("unknown view")

// Parse accepts a view name in any case.
func Parse(s string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case Ledger:
		return Ledger, nil
	case Analytics:
		return Analytics, nil
	}
	return "", ErrUnknownView
}

// Router starts on the ledger view. Switching has no side effects.
type Router struct {
	mu      sync.RWMutex
	current State
}

func NewRouter() *Router {
	return &Router{current: Ledger}
}

func (r *Router) Show(s State) error {
	if s != Ledger && s != Analytics {
		return ErrUnknownView
	}
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
	return nil
}

func (r *Router) Current() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}
