package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/lib/pq"

	"Harbor/internal/core/accounts"
)

// AccountRepository implements accounts.Directory on PostgreSQL.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a PostgreSQL-backed account directory.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *accounts.Account) error {
	query := `
		INSERT INTO accounts (username, display_name, password_hash)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.ExecContext(ctx, query, account.Username, account.DisplayName, account.PasswordHash)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return accounts.ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindByUsername looks up an account by its username.
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*accounts.Account, error) {
	query := `
		SELECT username, display_name, COALESCE(password_hash, ''), created_at, updated_at
		FROM accounts
		WHERE username = $1
	`

	var account accounts.Account
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&account.Username,
		&account.DisplayName,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, accounts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	return &account, nil
}

// SetPassword replaces the stored password hash.
func (r *AccountRepository) SetPassword(ctx context.Context, username string, hash []byte) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE username = $1`,
		username, hash)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

// FindByExternalIdentity resolves an (issuer, subject) pair to the
// linked account.
func (r *AccountRepository) FindByExternalIdentity(ctx context.Context, issuer, subject string) (*accounts.Account, error) {
	query := `
		SELECT a.username, a.display_name, COALESCE(a.password_hash, ''), a.created_at, a.updated_at
		FROM accounts a
		JOIN federated_identities fi ON fi.username = a.username
		WHERE fi.issuer = $1 AND fi.subject = $2
	`

	var account accounts.Account
	err := r.db.QueryRowContext(ctx, query, issuer, subject).Scan(
		&account.Username,
		&account.DisplayName,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, accounts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by external identity: %w", err)
	}

	return &account, nil
}

// LinkExternalIdentity attaches (issuer, subject) to username. The
// insert races are settled by the primary key on (issuer, subject):
// when the pair already exists we check ownership, so re-linking the
// same account is idempotent and a different owner is a conflict.
func (r *AccountRepository) LinkExternalIdentity(ctx context.Context, username, issuer, subject string) error {
	query := `
		INSERT INTO federated_identities (issuer, subject, username)
		VALUES ($1, $2, $3)
		ON CONFLICT (issuer, subject) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, issuer, subject, username)
	if err != nil {
		return fmt.Errorf("failed to link external identity: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var owner string
	err = r.db.QueryRowContext(ctx,
		`SELECT username FROM federated_identities WHERE issuer = $1 AND subject = $2`,
		issuer, subject).Scan(&owner)
	if err != nil {
		return fmt.Errorf("failed to check identity owner: %w", err)
	}
	if owner != username {
		return accounts.ErrIdentityConflict
	}
	return nil
}

// AddCredential stores a new passkey credential for the account.
func (r *AccountRepository) AddCredential(ctx context.Context, username string, cred *webauthn.Credential) error {
	blob, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	query := `
		INSERT INTO passkey_credentials (credential_id, username, credential)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, cred.ID, username, blob); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Credentials returns all passkey credentials registered to the account.
func (r *AccountRepository) Credentials(ctx context.Context, username string) ([]webauthn.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT credential FROM passkey_credentials WHERE username = $1 ORDER BY created_at`,
		username)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []webauthn.Credential
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		var cred webauthn.Credential
		if err := json.Unmarshal(blob, &cred); err != nil {
			return nil, fmt.Errorf("failed to decode credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// UpdateCredential refreshes a stored credential after use (sign count,
// clone warning flags).
func (r *AccountRepository) UpdateCredential(ctx context.Context, username string, cred *webauthn.Credential) error {
	blob, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	query := `
		UPDATE passkey_credentials
		SET credential = $3, last_used_at = now()
		WHERE credential_id = $1 AND username = $2
	`
	if _, err := r.db.ExecContext(ctx, query, cred.ID, username, blob); err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}
