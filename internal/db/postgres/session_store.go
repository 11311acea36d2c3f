package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"Harbor/internal/core/sessions"
)

// SessionTTL is how long a browser session stays valid. Kept short on
// purpose: a demo server that hands out year-long sessions never gets
// to exercise its re-authentication paths.
const SessionTTL = 7 * 24 * time.Hour

// SessionStore implements sessions.Store on PostgreSQL. Pending
// federation state and passkey ceremonies live in their own tables so a
// single DELETE ... RETURNING gives the atomic consume semantics the
// flow depends on.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a PostgreSQL-backed session store.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts a fresh anonymous session.
func (s *SessionStore) Create(ctx context.Context) (*sessions.Session, error) {
	session := &sessions.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(SessionTTL),
	}

	query := `
		INSERT INTO sessions (id, username, signed_in, created_at, expires_at)
		VALUES ($1, '', FALSE, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, session.ID, session.CreatedAt, session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Get loads a session and, when present, its pending federation state.
// Expired sessions behave as missing.
func (s *SessionStore) Get(ctx context.Context, id string) (*sessions.Session, error) {
	query := `
		SELECT id, username, signed_in, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > now()
	`

	var session sessions.Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.Username,
		&session.SignedIn,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	pendingQuery := `
		SELECT state, nonce, intent, username, created_at
		FROM federation_requests
		WHERE session_id = $1
	`
	var pending sessions.Pending
	err = s.db.QueryRowContext(ctx, pendingQuery, id).Scan(
		&pending.State,
		&pending.Nonce,
		&pending.Intent,
		&pending.Username,
		&pending.CreatedAt,
	)
	if err == nil {
		session.Pending = &pending
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get pending federation state: %w", err)
	}

	return &session, nil
}

// SetUsername records the claimed username without signing the session in.
func (s *SessionStore) SetUsername(ctx context.Context, id, username string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET username = $2, signed_in = FALSE WHERE id = $1`, id, username)
	if err != nil {
		return fmt.Errorf("failed to set session username: %w", err)
	}
	return requireRow(result)
}

// SignIn marks the session authenticated as username.
func (s *SessionStore) SignIn(ctx context.Context, id, username string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET username = $2, signed_in = TRUE WHERE id = $1`, id, username)
	if err != nil {
		return fmt.Errorf("failed to sign in session: %w", err)
	}
	return requireRow(result)
}

// SetPending stores pending federation state, replacing any prior flow
// for the session.
func (s *SessionStore) SetPending(ctx context.Context, id string, p sessions.Pending) error {
	query := `
		INSERT INTO federation_requests (session_id, state, nonce, intent, username, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			nonce = EXCLUDED.nonce,
			intent = EXCLUDED.intent,
			username = EXCLUDED.username,
			created_at = EXCLUDED.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, p.State, p.Nonce, p.Intent, p.Username, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to save pending federation state: %w", err)
	}
	return nil
}

// ConsumePending atomically reads and deletes the pending federation
// state. The DELETE ... RETURNING makes a duplicated callback lose the
// race cleanly: the second caller gets ErrNoPending.
func (s *SessionStore) ConsumePending(ctx context.Context, id string) (*sessions.Pending, error) {
	query := `
		DELETE FROM federation_requests
		WHERE session_id = $1
		RETURNING state, nonce, intent, username, created_at
	`

	var pending sessions.Pending
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&pending.State,
		&pending.Nonce,
		&pending.Intent,
		&pending.Username,
		&pending.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sessions.ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending federation state: %w", err)
	}

	return &pending, nil
}

// SetCeremony stores serialized WebAuthn ceremony data for the session.
func (s *SessionStore) SetCeremony(ctx context.Context, id, kind string, data []byte) error {
	query := `
		INSERT INTO passkey_ceremonies (session_id, kind, data, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, kind) DO UPDATE SET
			data = EXCLUDED.data,
			created_at = EXCLUDED.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, kind, data); err != nil {
		return fmt.Errorf("failed to save ceremony data: %w", err)
	}
	return nil
}

// ConsumeCeremony atomically reads and deletes stored ceremony data.
func (s *SessionStore) ConsumeCeremony(ctx context.Context, id, kind string) ([]byte, error) {
	query := `
		DELETE FROM passkey_ceremonies
		WHERE session_id = $1 AND kind = $2
		RETURNING data
	`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, id, kind).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, sessions.ErrNoCeremony
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume ceremony data: %w", err)
	}

	return data, nil
}

// Destroy removes the session; pending state and ceremonies cascade.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return sessions.ErrNotFound
	}
	return nil
}
