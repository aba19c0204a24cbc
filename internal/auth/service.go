// Package auth is the identity provider: account registration, password
// sign-in and signed session tokens, plus the per-client session holder that
// the rest of the app observes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cashbook/internal/core"
)

const MinPasswordLength = 6

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password should be at least %d characters", MinPasswordLength)
	ErrInvalidToken       = errors.New("invalid or expired session")
	ErrNoSession          = errors.New("please login")
)

// User is a stored account.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists accounts. Email lookups are case-insensitive.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
}

type Config struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
	Issuer     string
}

type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	issuer string
	now    func() time.Time

	// revoked maps signed-out token ids to their expiry; entries go once the
	// token would have expired anyway.
	revokedMu sync.Mutex
	revoked   map[string]time.Time
}

type sessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func NewService(users UserStore, cfg Config) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: nil user store")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "cashbook"
	}
	return &Service{
		users:   users,
		secret:  cfg.Secret,
		ttl:     cfg.TokenTTL,
		cost:    cfg.BcryptCost,
		issuer:  cfg.Issuer,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}, nil
}

// Register creates an account and returns its session.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (core.Session, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return core.Session{}, err
	}
	if len(password) < MinPasswordLength {
		return core.Session{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.Session{}, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return core.Session{}, err
	}
	return sessionOf(u), nil
}

// SignIn checks the password against the stored hash. Unknown emails and
// wrong passwords produce the same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (core.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return core.Session{}, ErrInvalidCredentials
	}
	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return core.Session{}, ErrInvalidCredentials
		}
		return core.Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return core.Session{}, ErrInvalidCredentials
	}
	return sessionOf(u), nil
}

// Issue signs a session token and returns it with its expiry.
func (s *Service) Issue(sess core.Session) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := sessionClaims{
		Email: sess.Email,
		Name:  sess.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sess.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

// Verify parses a token issued by Issue. Revoked tokens are rejected.
func (s *Service) Verify(token string) (core.Session, error) {
	claims, err := s.parse(token)
	if err != nil {
		return core.Session{}, err
	}
	if s.isRevoked(claims.ID) {
		return core.Session{}, ErrInvalidToken
	}
	return core.Session{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

// Revoke ends the session behind token until it expires. Revoking an invalid
// or already revoked token is a no-op.
func (s *Service) Revoke(token string) {
	claims, err := s.parse(token)
	if err != nil || claims.ID == "" {
		return
	}
	now := s.now()
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
}

func (s *Service) isRevoked(id string) bool {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	_, ok := s.revoked[id]
	return ok
}

func (s *Service) parse(token string) (sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return sessionClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func sessionOf(u User) core.Session {
	return core.Session{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

func validateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}
