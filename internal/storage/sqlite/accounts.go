package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/platform/id"
	"github.com/louisbranch/authserver/internal/storage"
)

// Begin opens a write transaction for account creation.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &accountTx{tx: tx}, nil
}

type accountTx struct {
	tx *sql.Tx
}

func (t *accountTx) Create(ctx context.Context, c account.Candidate) (account.Account, error) {
	a, err := account.New(c, time.Now, id.NewID)
	if err != nil {
		return account.Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, fmt.Errorf("hash password: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.Email, string(hash), toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err, "accounts.username") {
			return account.Account{}, account.ErrUsernameTaken
		}
		return account.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (t *accountTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit so callers
// can defer it unconditionally.
func (t *accountTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// FindByID returns the account with the given id.
func (s *Store) FindByID(ctx context.Context, accountID string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, created_at, updated_at
		FROM accounts WHERE id = ?`, accountID)
	return scanAccount(row)
}

// FindByUsername returns the account with the given username, if any.
func (s *Store) FindByUsername(ctx context.Context, username string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, created_at, updated_at
		FROM accounts WHERE username = ?`, username)
	return scanAccount(row)
}

// FindCredentials returns the account and its password hash for login checks.
func (s *Store) FindCredentials(ctx context.Context, username string) (account.Account, string, error) {
	var (
		a                    account.Account
		hash                 string
		createdMs, updatedMs int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM accounts WHERE username = ?`, username).
		Scan(&a.ID, &a.Username, &a.Email, &hash, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, "", storage.ErrNotFound
	}
	if err != nil {
		return account.Account{}, "", fmt.Errorf("query credentials: %w", err)
	}
	a.CreatedAt = fromMillis(createdMs)
	a.UpdatedAt = fromMillis(updatedMs)
	return a, hash, nil
}

// Update persists mutable account fields.
func (s *Store) Update(ctx context.Context, a account.Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET username = ?, email = ?, updated_at = ? WHERE id = ?`,
		a.Username, a.Email, toMillis(a.UpdatedAt), a.ID)
	if err != nil {
		if isUniqueViolation(err, "accounts.username") {
			return account.ErrUsernameTaken
		}
		return fmt.Errorf("update account: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the account row.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireAffected(res)
}

// DeleteAllAccounts removes every account and session. Only the gated seed
// reset calls it.
func (s *Store) DeleteAllAccounts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM web_sessions`); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("delete accounts: %w", err)
	}
	return nil
}

func scanAccount(row *sql.Row) (account.Account, error) {
	var (
		a                    account.Account
		createdMs, updatedMs int64
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.CreatedAt = fromMillis(createdMs)
	a.UpdatedAt = fromMillis(updatedMs)
	return a, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+constraint)
}
