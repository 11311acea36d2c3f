package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Account is a local user account. Username doubles as the primary key;
// there is no separate numeric ID.
type Account struct {
	Username     string
	DisplayName  string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FederatedIdentity links a provider-issued subject to a local account.
// The (Issuer, Subject) pair is globally unique; an account may hold
// many identities.
type FederatedIdentity struct {
	Issuer    string
	Subject   string
	Username  string
	CreatedAt time.Time
}

var (
	// ErrNotFound indicates no account matched the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("username already registered")
	// ErrIdentityConflict indicates the external identity is already
	// linked to a different account.
	ErrIdentityConflict = errors.New("external identity linked to another account")
)

// Directory is the account storage contract: lookup, identity linking,
// and passkey credential persistence.
type Directory interface {
	Create(ctx context.Context, account *Account) error
	FindByUsername(ctx context.Context, username string) (*Account, error)
	SetPassword(ctx context.Context, username string, hash []byte) error

	// FindByExternalIdentity resolves an (issuer, subject) pair to the
	// account it is linked to. Returns ErrNotFound when unlinked.
	FindByExternalIdentity(ctx context.Context, issuer, subject string) (*Account, error)

	// LinkExternalIdentity attaches the pair to username. Linking a pair
	// already owned by the same account succeeds silently; a pair owned
	// by a different account fails with ErrIdentityConflict.
	LinkExternalIdentity(ctx context.Context, username, issuer, subject string) error

	// Passkey credentials.
	AddCredential(ctx context.Context, username string, cred *webauthn.Credential) error
	Credentials(ctx context.Context, username string) ([]webauthn.Credential, error)
	UpdateCredential(ctx context.Context, username string, cred *webauthn.Credential) error
}
