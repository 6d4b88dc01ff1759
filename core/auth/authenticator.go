package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidPassword is the only login failure callers ever see.
	ErrInvalidPassword = errors.New("Invalid password")

	// ErrInvalidToken covers malformed, expired and revoked tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

// Session is a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Authenticator guards the admin surface with one shared password.
type Authenticator struct {
	passwordHash string
	tokens       *TokenIssuer
	sessions     SessionStore
}

// NewAuthenticator hashes adminPassword once up front. An empty password
// disables login entirely.
func NewAuthenticator(adminPassword string, tokens *TokenIssuer, sessions SessionStore) (*Authenticator, error) {
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	a := &Authenticator{tokens: tokens, sessions: sessions}
	if adminPassword == "" {
		logger.Warn("ADMIN_PASSWORD is empty, admin login is disabled")
		return a, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	a.passwordHash = string(hash)
	return a, nil
}

func (a *Authenticator) checkPassword(password string) bool {
	if a.passwordHash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) == nil
}

// Login checks password and opens a session.
func (a *Authenticator) Login(ctx context.Context, password string) (*Session, error) {
	if !a.checkPassword(password) {
		return nil, ErrInvalidPassword
	}
	token, claims, err := a.tokens.Issue()
	if err != nil {
		return nil, err
	}
	if err := a.sessions.Save(ctx, claims.ID, a.tokens.TTL()); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify reports whether token belongs to a live session.
func (a *Authenticator) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return false, nil
	}
	ok, err := a.sessions.Exists(ctx, claims.ID)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Logout revokes the session behind token. Unknown or invalid tokens are
// ignored.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return nil
	}
	return a.sessions.Delete(ctx, claims.ID)
}
