// Package flow implements the account onboarding and mutation sequences that
// keep the local store and the remote profile service consistent.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/oidc"
	apperrors "github.com/louisbranch/authserver/internal/platform/errors"
	"github.com/louisbranch/authserver/internal/platform/id"
	"github.com/louisbranch/authserver/internal/profile"
	"github.com/louisbranch/authserver/internal/storage"
)

const (
	defaultRPCTimeout = 5 * time.Second
	defaultSessionTTL = 24 * time.Hour

	// LoginPath is the fixed destination after account deletion.
	LoginPath = "/account/login"
)

// Service runs the account flows. All methods are safe for concurrent use;
// each call is an independent unit of work serialized only by the store.
type Service struct {
	accounts     storage.AccountStore
	sessions     storage.SessionStore
	profiles     profile.Client
	interactions oidc.Interactions
	logger       *log.Logger

	now        func() time.Time
	rpcTimeout time.Duration
	sessionTTL time.Duration
}

// New assembles the flow service. logger must not be nil.
func New(accounts storage.AccountStore, sessions storage.SessionStore, profiles profile.Client, interactions oidc.Interactions, logger *log.Logger) *Service {
	return &Service{
		accounts:     accounts,
		sessions:     sessions,
		profiles:     profiles,
		interactions: interactions,
		logger:       logger,
		now:          time.Now,
		rpcTimeout:   defaultRPCTimeout,
		sessionTTL:   defaultSessionTTL,
	}
}

// Result is the outcome of a flow operation. Fields is non-empty when the
// submission needs correcting; Session is set when the flow signed the user
// in as a side effect.
type Result struct {
	Destination oidc.Destination
	Fields      []account.FieldError
	Session     *storage.WebSession
}

// Failed reports whether the operation returned user-correctable errors.
func (r Result) Failed() bool {
	return len(r.Fields) > 0
}

// RegisterInput carries one registration submission. Submit is false when
// the user declined the form.
type RegisterInput struct {
	Candidate account.Candidate
	Profile   profile.Payload
	ReturnURL string
	Submit    bool
}

// Register runs the onboarding sequence: validate the candidate, create the
// account and remote profile atomically, sign the user in and resolve the
// destination. No account row survives a failed remote call.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	interaction, err := s.interactions.AuthorizationContext(ctx, in.ReturnURL)
	if err != nil {
		return Result{}, fmt.Errorf("resolve authorization context: %w", err)
	}

	if !in.Submit {
		return s.decline(ctx, interaction, in.ReturnURL)
	}

	candidate, err := account.NormalizeCandidate(in.Candidate)
	if err != nil {
		return Result{Fields: account.FieldErrors(err)}, nil
	}

	// Advisory pre-check; the store's unique constraint stays authoritative.
	if _, err := s.accounts.FindByUsername(ctx, candidate.Username); err == nil {
		return Result{Fields: account.FieldErrors(account.ErrUsernameTaken)}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Result{}, fmt.Errorf("username pre-check: %w", err)
	}

	created, err := s.Enroll(ctx, candidate, in.Profile)
	if err != nil {
		s.logger.Printf("register %q failed: %v", candidate.Username, err)
		return Result{Fields: enrollmentFieldErrors(err)}, nil
	}

	session := s.bestEffortSignIn(ctx, created.ID)

	dest, err := oidc.ResolveDestination(interaction, in.ReturnURL, true)
	if err != nil {
		return Result{}, err
	}
	return Result{Destination: dest, Session: session}, nil
}

// Enroll runs the create-then-call-then-commit core shared with the bulk
// provisioner: open a transaction, create the account, forward the profile
// with a deadline, then commit. The deferred rollback guarantees no
// transaction outlives the call, including timeout and panic paths.
func (s *Service) Enroll(ctx context.Context, c account.Candidate, p profile.Payload) (account.Account, error) {
	tx, err := s.accounts.Begin(ctx)
	if err != nil {
		return account.Account{}, apperrors.Wrap(apperrors.CodeTransaction, "begin onboarding transaction", err)
	}
	defer tx.Rollback()

	created, err := tx.Create(ctx, c)
	if err != nil {
		return account.Account{}, err
	}

	p.AccountID = created.ID
	rpcCtx, cancel := context.WithTimeout(ctx, s.rpcTimeout)
	defer cancel()
	if err := s.profiles.CreateProfile(rpcCtx, p); err != nil {
		return account.Account{}, err
	}

	// The remote profile now exists. A commit failure here leaves it
	// orphaned until reconciliation; the reverse ordering never happens.
	if err := tx.Commit(); err != nil {
		s.logger.Printf("ERROR commit onboarding transaction for %q: %v", c.Username, err)
		return account.Account{}, apperrors.Wrap(apperrors.CodeTransaction, "commit onboarding transaction", err)
	}
	return created, nil
}

// UpdateInput carries one account mutation submission.
type UpdateInput struct {
	AccountID string
	Username  string
	Email     string
	ReturnURL string
	Submit    bool
}

// Update applies a single local mutation, re-signs the account in on success
// and resolves the destination through the shared resolver.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Result, error) {
	interaction, err := s.interactions.AuthorizationContext(ctx, in.ReturnURL)
	if err != nil {
		return Result{}, fmt.Errorf("resolve authorization context: %w", err)
	}

	if !in.Submit {
		return s.decline(ctx, interaction, in.ReturnURL)
	}

	current, err := s.accounts.FindByID(ctx, in.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Fields: []account.FieldError{{Message: "account not found"}}}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load account: %w", err)
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var fields []account.FieldError
	if username == "" {
		fields = append(fields, account.FieldErrors(account.ErrEmptyUsername)...)
	} else if err := account.ValidateUsername(username); err != nil {
		fields = append(fields, account.FieldErrors(err)...)
	}
	if email == "" {
		fields = append(fields, account.FieldErrors(account.ErrEmptyEmail)...)
	} else if err := account.ValidateEmail(email); err != nil {
		fields = append(fields, account.FieldErrors(err)...)
	}
	if len(fields) > 0 {
		return Result{Fields: fields}, nil
	}

	updated := current
	updated.Username = username
	updated.Email = email
	updated.UpdatedAt = s.now().UTC()

	if err := s.accounts.Update(ctx, updated); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{Fields: []account.FieldError{{Message: "account not found"}}}, nil
		}
		s.logger.Printf("update account %s failed: %v", in.AccountID, err)
		return Result{Fields: account.FieldErrors(err)}, nil
	}

	session := s.bestEffortSignIn(ctx, updated.ID)

	dest, err := oidc.ResolveDestination(interaction, in.ReturnURL, true)
	if err != nil {
		return Result{}, err
	}
	return Result{Destination: dest, Session: session}, nil
}

// Delete removes the account, signs it out everywhere and sends the user to
// the login page. Delete resolves no interaction.
func (s *Service) Delete(ctx context.Context, accountID string) (Result, error) {
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{Fields: []account.FieldError{{Message: "account not found"}}}, nil
		}
		s.logger.Printf("delete account %s failed: %v", accountID, err)
		return Result{Fields: account.FieldErrors(err)}, nil
	}

	if err := s.sessions.RevokeAccountSessions(ctx, accountID, s.now().UTC()); err != nil {
		s.logger.Printf("ERROR revoke sessions for %s: %v", accountID, err)
	}
	return Result{Destination: oidc.RedirectTo(LoginPath)}, nil
}

// SignIn creates a durable web session for the account.
func (s *Service) SignIn(ctx context.Context, accountID string) (storage.WebSession, error) {
	sessionID, err := id.NewID()
	if err != nil {
		return storage.WebSession{}, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now().UTC()
	ws := storage.WebSession{
		ID:        sessionID,
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.PutSession(ctx, ws); err != nil {
		return storage.WebSession{}, fmt.Errorf("store session: %w", err)
	}
	return ws, nil
}

// SignOut revokes a single web session.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	err := s.sessions.RevokeSession(ctx, sessionID, s.now().UTC())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Service) decline(ctx context.Context, interaction *oidc.Interaction, returnURL string) (Result, error) {
	if interaction != nil {
		if err := s.interactions.Deny(ctx, interaction, oidc.DenyReasonAccessDenied); err != nil {
			s.logger.Printf("ERROR deny interaction %s: %v", interaction.ID, err)
		}
	}
	dest, err := oidc.ResolveDestination(interaction, returnURL, false)
	if err != nil {
		return Result{}, err
	}
	return Result{Destination: dest}, nil
}

// bestEffortSignIn creates the post-commit session. Failures are logged and
// never unwind the committed account.
func (s *Service) bestEffortSignIn(ctx context.Context, accountID string) *storage.WebSession {
	ws, err := s.SignIn(ctx, accountID)
	if err != nil {
		s.logger.Printf("ERROR sign in account %s: %v", accountID, err)
		return nil
	}
	return &ws
}

// enrollmentFieldErrors converts an enrollment failure into the form errors
// shown to the user. Remote rejections decompose one message per '|' part.
func enrollmentFieldErrors(err error) []account.FieldError {
	var remote *profile.RemoteError
	if errors.As(err, &remote) {
		msgs := remote.Messages()
		if len(msgs) == 0 {
			return []account.FieldError{{Message: "profile service rejected the request"}}
		}
		fields := make([]account.FieldError, 0, len(msgs))
		for _, m := range msgs {
			fields = append(fields, account.FieldError{Message: m})
		}
		return fields
	}
	return account.FieldErrors(err)
}
