package auth

import (
	"context"
	"sync"
	"time"

	"cashbook/internal/core"
)

// Client holds the session of one client and announces every change to its
// watchers. It is the identity stream the ledger store is rebound from.
type Client struct {
	svc *Service

	mu       sync.Mutex
	current  *core.Session
	token    string
	expires  time.Time
	watchers map[int]func(*core.Session)
	nextID   int
}

func NewClient(svc *Service) *Client {
	return &Client{svc: svc, watchers: make(map[int]func(*core.Session))}
}

// SignIn authenticates and makes the result the current session. Provider
// errors are returned verbatim and leave the current session untouched.
func (c *Client) SignIn(ctx context.Context, email, password string) (core.Session, error) {
	sess, err := c.svc.SignIn(ctx, email, password)
	if err != nil {
		return core.Session{}, err
	}
	return sess, c.set(&sess)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (core.Session, error) {
	sess, err := c.svc.Register(ctx, email, password, displayName)
	if err != nil {
		return core.Session{}, err
	}
	return sess, c.set(&sess)
}

// Restore adopts a previously issued token as the current session.
func (c *Client) Restore(token string) (core.Session, error) {
	sess, err := c.svc.Verify(token)
	if err != nil {
		return core.Session{}, err
	}
	c.mu.Lock()
	c.current = &sess
	c.token = token
	c.mu.Unlock()
	c.notify()
	return sess, nil
}

// SignOut clears the session and revokes its token.
func (c *Client) SignOut() {
	c.mu.Lock()
	had := c.current != nil
	token := c.token
	c.current = nil
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
	if token != "" {
		c.svc.Revoke(token)
	}
	if had {
		c.notify()
	}
}

// Current returns a copy of the session, nil when signed out.
func (c *Client) Current() *core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	s := *c.current
	return &s
}

// Token returns the signed token of the current session and its expiry. The
// expiry is zero for restored sessions.
func (c *Client) Token() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.expires
}

// Watch calls fn with the current session right away and again after every
// change. The returned func unsubscribes.
func (c *Client) Watch(fn func(*core.Session)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	cur := c.current
	c.mu.Unlock()

	fn(copySession(cur))

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

func (c *Client) set(sess *core.Session) error {
	token, exp, err := c.svc.Issue(*sess)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = sess
	c.token = token
	c.expires = exp
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Client) notify() {
	c.mu.Lock()
	cur := c.current
	fns := make([]func(*core.Session), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(copySession(cur))
	}
}

func copySession(s *core.Session) *core.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
