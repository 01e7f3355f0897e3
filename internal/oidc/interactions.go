package oidc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/louisbranch/authserver/internal/platform/id"
)

// returnURLParam is the query parameter linking a return URL back to its
// pending authorization row.
const returnURLParam = "authz"

// Store persists pending authorizations in the shared SQLite database and
// implements Interactions.
type Store struct {
	db       *sql.DB
	registry *ClientRegistry
	ttl      time.Duration
	now      func() time.Time
}

// NewStore wires the pending-authorization table to the client registry.
// Rows expire after ttl.
func NewStore(db *sql.DB, registry *ClientRegistry, ttl time.Duration) *Store {
	return &Store{db: db, registry: registry, ttl: ttl, now: time.Now}
}

// CreatePending records a new authorization round trip for a registered
// client and returns the interaction with its return URL.
func (s *Store) CreatePending(ctx context.Context, clientID, callbackPath string) (*Interaction, error) {
	client, ok := s.registry.Lookup(clientID)
	if !ok {
		return nil, fmt.Errorf("create pending authorization: unknown client %q", clientID)
	}

	now := s.now().UTC()
	pendingID, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate pending authorization id: %w", err)
	}
	returnURL := fmt.Sprintf("%s?%s=%s", callbackPath, returnURLParam, pendingID)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_authorizations (id, client_id, return_url, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		pendingID, client.ID, returnURL, now.UnixMilli(), now.Add(s.ttl).UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert pending authorization: %w", err)
	}

	return &Interaction{
		ID:           pendingID,
		ClientID:     client.ID,
		NativeClient: client.Native,
		ReturnURL:    returnURL,
	}, nil
}

// AuthorizationContext resolves the pending interaction referenced by
// returnURL. Unreferenced, unknown, denied or expired interactions resolve to
// nil without error.
func (s *Store) AuthorizationContext(ctx context.Context, returnURL string) (*Interaction, error) {
	pendingID := interactionID(returnURL)
	if pendingID == "" {
		return nil, nil
	}

	var (
		clientID  string
		expiresMs int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, expires_at FROM pending_authorizations
		WHERE id = ? AND denied_at IS NULL`, pendingID).
		Scan(&clientID, &expiresMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pending authorization: %w", err)
	}
	if s.now().UTC().UnixMilli() > expiresMs {
		return nil, nil
	}

	client, ok := s.registry.Lookup(clientID)
	if !ok {
		return nil, nil
	}
	return &Interaction{
		ID:           pendingID,
		ClientID:     client.ID,
		NativeClient: client.Native,
		ReturnURL:    returnURL,
	}, nil
}

// Deny marks the interaction as denied. Denying twice is a no-op.
func (s *Store) Deny(ctx context.Context, interaction *Interaction, reason string) error {
	if interaction == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_authorizations SET denied_at = ?, deny_reason = ?
		WHERE id = ? AND denied_at IS NULL`,
		s.now().UTC().UnixMilli(), reason, interaction.ID)
	if err != nil {
		return fmt.Errorf("deny pending authorization: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows past their expiry and returns how many went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_authorizations WHERE expires_at < ?`,
		s.now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge pending authorizations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func interactionID(returnURL string) string {
	u, err := url.Parse(returnURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(returnURLParam)
}
