package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/authserver/internal/storage"
)

// PutSession stores a web session.
func (s *Store) PutSession(ctx context.Context, session storage.WebSession) error {
	var revoked *int64
	if session.RevokedAt != nil {
		ms := toMillis(*session.RevokedAt)
		revoked = &ms
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO web_sessions (id, account_id, created_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.AccountID, toMillis(session.CreatedAt), toMillis(session.ExpiresAt), revoked)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.WebSession, error) {
	var (
		ws                   storage.WebSession
		createdMs, expiresMs int64
		revokedMs            *int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, created_at, expires_at, revoked_at
		FROM web_sessions WHERE id = ?`, sessionID).
		Scan(&ws.ID, &ws.AccountID, &createdMs, &expiresMs, &revokedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.WebSession{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.WebSession{}, fmt.Errorf("query session: %w", err)
	}
	ws.CreatedAt = fromMillis(createdMs)
	ws.ExpiresAt = fromMillis(expiresMs)
	if revokedMs != nil {
		t := fromMillis(*revokedMs)
		ws.RevokedAt = &t
	}
	return ws, nil
}

// RevokeSession marks a single session as revoked.
func (s *Store) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE web_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(now), sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return requireAffected(res)
}

// RevokeAccountSessions signs an account out everywhere.
func (s *Store) RevokeAccountSessions(ctx context.Context, accountID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE web_sessions SET revoked_at = ? WHERE account_id = ? AND revoked_at IS NULL`,
		toMillis(now), accountID)
	if err != nil {
		return fmt.Errorf("revoke account sessions: %w", err)
	}
	return nil
}
