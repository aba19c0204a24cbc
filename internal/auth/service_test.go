package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cashbook/internal/core"
)

type mapUsers struct {
	mu    sync.Mutex
	users map[string]User
}

func newMapUsers() *mapUsers { return &mapUsers{users: map[string]User{}} }

func (m *mapUsers) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := strings.ToLower(u.Email)
	if _, ok := m.users[k]; ok {
		return ErrUserExists
	}
	m.users[k] = u
	return nil
}

func (m *mapUsers) UserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(newMapUsers(), Config{Secret: []byte("test-secret"), BcryptCost: bcrypt.MinCost, TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRegisterAndSignIn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, "  asha@example.com ", "secret1", "Asha")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.Email != "asha@example.com" || sess.DisplayName != "Asha" || sess.UserID == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	got, err := svc.SignIn(ctx, "asha@example.com ", "secret1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if got.UserID != sess.UserID {
		t.Fatalf("user id mismatch %q vs %q", got.UserID, sess.UserID)
	}
}

func TestRegisterErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "a@example.com", "secret1", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"duplicate", "A@example.com", "secret1", ErrUserExists},
		{"short password", "b@example.com", "12345", ErrWeakPassword},
		{"empty email", "  ", "secret1", ErrInvalidEmail},
		{"malformed email", "not-an-email", "secret1", ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.email, tc.password, ""); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignInFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "a@example.com", "secret1", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, pw := range []string{"wrong", ""} {
		if _, err := svc.SignIn(ctx, "a@example.com", pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("password %q: expected ErrInvalidCredentials, got %v", pw, err)
		}
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIssueVerify(t *testing.T) {
	svc := newTestService(t)
	sess := core.Session{UserID: "u1", Email: "a@example.com", DisplayName: "A"}
	token, exp, err := svc.Issue(sess)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}
	got, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != sess {
		t.Fatalf("got %+v want %+v", got, sess)
	}

	if _, err := svc.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: %v", err)
	}

	other, _ := NewService(newMapUsers(), Config{Secret: []byte("other")})
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.Issue(core.Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.now = time.Now
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(newMapUsers(), Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRevoke(t *testing.T) {
	svc := newTestService(t)
	first, _, err := svc.Issue(core.Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, _, err := svc.Issue(core.Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.Revoke(first)
	svc.Revoke(first)
	svc.Revoke("garbage")
	if _, err := svc.Verify(first); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token: expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Verify(second); err != nil {
		t.Fatalf("other token of the same user should stay valid: %v", err)
	}
}

func TestRevokePrunesExpired(t *testing.T) {
	svc := newTestService(t)
	old, _, err := svc.Issue(core.Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.Revoke(old)

	later := time.Now().Add(2 * time.Hour)
	svc.now = func() time.Time { return later }
	fresh, _, err := svc.Issue(core.Session{UserID: "u2"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.Revoke(fresh)

	svc.revokedMu.Lock()
	n := len(svc.revoked)
	svc.revokedMu.Unlock()
	if n != 1 {
		t.Fatalf("revoked entries = %d, want 1", n)
	}
}
