// Package account provides the local identity records managed by authserver.
package account

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/louisbranch/authserver/internal/platform/errors"
	"github.com/louisbranch/authserver/internal/platform/id"
)

var (
	// ErrEmptyUsername indicates a missing username.
	ErrEmptyUsername = apperrors.New(apperrors.CodeAccountEmptyUsername, "username is required")
	// ErrInvalidUsername indicates a username that does not match the required format.
	ErrInvalidUsername = apperrors.New(apperrors.CodeAccountInvalidUsername, "username must be 3-32 lowercase alphanumeric, dot, dash, or underscore characters")
	// ErrEmptyEmail indicates a missing email address.
	ErrEmptyEmail = apperrors.New(apperrors.CodeAccountEmptyEmail, "email is required")
	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = apperrors.New(apperrors.CodeAccountInvalidEmail, "email must contain a single @ with a non-empty local part and domain")
	// ErrEmptyPassword indicates missing password material.
	ErrEmptyPassword = apperrors.New(apperrors.CodeAccountEmptyPassword, "password is required")
	// ErrUsernameTaken indicates the username is already claimed by another account.
	ErrUsernameTaken = apperrors.New(apperrors.CodeAccountUsernameTaken, "username is already taken")

	usernamePattern = regexp.MustCompile(`^[a-z0-9_.\-]{3,32}$`)
)

// Account represents a stored identity record.
//
// The ID is assigned by the store at creation time and is the foreign key the
// remote profile service records against.
type Account struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Candidate describes untrusted input for a new account. It is consumed once
// by the onboarding flow and never persisted directly.
type Candidate struct {
	Username string
	Email    string
	Password string
}

// ValidateUsername enforces the canonical username constraints shared by the
// register and update flows.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateEmail applies the minimal shape check the store relies on; real
// deliverability is the mail system's problem.
func ValidateEmail(s string) error {
	at := strings.Count(s, "@")
	if at != 1 {
		return ErrInvalidEmail
	}
	local, domain, _ := strings.Cut(s, "@")
	if local == "" || domain == "" || !strings.Contains(domain, ".") {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeCandidate trims and normalizes candidate input before validation.
func NormalizeCandidate(c Candidate) (Candidate, error) {
	c.Username = strings.ToLower(strings.TrimSpace(c.Username))
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Username == "" {
		return Candidate{}, ErrEmptyUsername
	}
	if err := ValidateUsername(c.Username); err != nil {
		return Candidate{}, err
	}
	if c.Email == "" {
		return Candidate{}, ErrEmptyEmail
	}
	if err := ValidateEmail(c.Email); err != nil {
		return Candidate{}, err
	}
	if c.Password == "" {
		return Candidate{}, ErrEmptyPassword
	}
	return c, nil
}

// New builds a durable account record from a normalized candidate.
//
// This is the point where untrusted registration input becomes a stable
// identity; the store persists exactly what New returns.
func New(c Candidate, now func() time.Time, idGenerator func() (string, error)) (Account, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCandidate(c)
	if err != nil {
		return Account{}, err
	}

	accountID, err := idGenerator()
	if err != nil {
		return Account{}, fmt.Errorf("generate account id: %w", err)
	}

	createdAt := now().UTC()
	return Account{
		ID:        accountID,
		Username:  normalized.Username,
		Email:     normalized.Email,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}
