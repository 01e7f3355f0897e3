// Package storage defines the persistence contracts for authserver.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/authserver/internal/account"
	apperrors "github.com/louisbranch/authserver/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// AccountStore persists local identity records.
//
// Create runs inside an explicit transaction scope so the onboarding flow can
// hold the local write open across the remote profile call and roll it back
// on failure.
type AccountStore interface {
	Begin(ctx context.Context) (Tx, error)
	FindByID(ctx context.Context, accountID string) (account.Account, error)
	FindByUsername(ctx context.Context, username string) (account.Account, error)
	// FindCredentials returns the account and its password hash for login checks.
	FindCredentials(ctx context.Context, username string) (account.Account, string, error)
	Update(ctx context.Context, a account.Account) error
	Delete(ctx context.Context, accountID string) error
	// DeleteAllAccounts removes every account and session. Destructive;
	// only the gated seed reset may call it.
	DeleteAllAccounts(ctx context.Context) error
}

// Tx is a single open transaction scope over the account store.
//
// Exactly one of Commit or Rollback must be called; Rollback after Commit is a
// no-op so callers can defer it unconditionally.
type Tx interface {
	// Create persists a new account from candidate input, hashing the
	// password material at this boundary. The unique username constraint
	// enforced here is the authoritative duplicate guard.
	Create(ctx context.Context, c account.Candidate) (account.Account, error)
	Commit() error
	Rollback() error
}

// WebSession is a durable authenticated browser session.
type WebSession struct {
	ID        string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// SessionStore persists web sessions.
type SessionStore interface {
	PutSession(ctx context.Context, session WebSession) error
	GetSession(ctx context.Context, sessionID string) (WebSession, error)
	RevokeSession(ctx context.Context, sessionID string, now time.Time) error
	// RevokeAccountSessions signs an account out everywhere.
	RevokeAccountSessions(ctx context.Context, accountID string, now time.Time) error
}
