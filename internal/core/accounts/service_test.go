package accounts

import (
	"context"
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeDirectory struct {
	accounts map[string]*Account
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{accounts: make(map[string]*Account)}
}

func (d *fakeDirectory) Create(ctx context.Context, account *Account) error {
	if _, ok := d.accounts[account.Username]; ok {
		return ErrDuplicateUsername
	}
	d.accounts[account.Username] = account
	return nil
}

func (d *fakeDirectory) FindByUsername(ctx context.Context, username string) (*Account, error) {
	account, ok := d.accounts[username]
	if !ok {
		return nil, ErrNotFound
	}
	return account, nil
}

func (d *fakeDirectory) SetPassword(ctx context.Context, username string, hash []byte) error {
	account, ok := d.accounts[username]
	if !ok {
		return ErrNotFound
	}
	account.PasswordHash = hash
	return nil
}

func (d *fakeDirectory) FindByExternalIdentity(ctx context.Context, issuer, subject string) (*Account, error) {
	return nil, ErrNotFound
}

func (d *fakeDirectory) LinkExternalIdentity(ctx context.Context, username, issuer, subject string) error {
	return nil
}

func (d *fakeDirectory) AddCredential(ctx context.Context, username string, cred *webauthn.Credential) error {
	return nil
}

func (d *fakeDirectory) Credentials(ctx context.Context, username string) ([]webauthn.Credential, error) {
	return nil, nil
}

func (d *fakeDirectory) UpdateCredential(ctx context.Context, username string, cred *webauthn.Credential) error {
	return nil
}

func TestRegister_HashesPassword(t *testing.T) {
	service := NewService(newFakeDirectory())

	account, err := service.Register(context.Background(), "Alice", "Alice Example", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username, "username must be normalized")
	assert.Equal(t, "Alice Example", account.DisplayName)

	assert.NotContains(t, string(account.PasswordHash), "s3cret")
	assert.NoError(t, bcrypt.CompareHashAndPassword(account.PasswordHash, []byte("s3cret")))
}

func TestRegister_DefaultsDisplayName(t *testing.T) {
	service := NewService(newFakeDirectory())

	account, err := service.Register(context.Background(), "bob", "", "pw")
	require.NoError(t, err)
	assert.Equal(t, "bob", account.DisplayName)
}

func TestRegister_RejectsEmptyUsername(t *testing.T) {
	service := NewService(newFakeDirectory())

	_, err := service.Register(context.Background(), "   ", "x", "pw")
	assert.Error(t, err)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	service := NewService(newFakeDirectory())

	_, err := service.Register(context.Background(), "alice", "", "pw")
	require.NoError(t, err)
	_, err = service.Register(context.Background(), "ALICE", "", "pw")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestVerifyPassword(t *testing.T) {
	service := NewService(newFakeDirectory())
	_, err := service.Register(context.Background(), "alice", "", "s3cret")
	require.NoError(t, err)

	account, err := service.VerifyPassword(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)

	// Case-insensitive lookup.
	_, err = service.VerifyPassword(context.Background(), "  ALICE ", "s3cret")
	assert.NoError(t, err)
}

func TestVerifyPassword_NoEnumeration(t *testing.T) {
	service := NewService(newFakeDirectory())
	_, err := service.Register(context.Background(), "alice", "", "s3cret")
	require.NoError(t, err)

	// Unknown user and wrong password are indistinguishable.
	_, unknownErr := service.VerifyPassword(context.Background(), "nobody", "s3cret")
	_, wrongErr := service.VerifyPassword(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, unknownErr, ErrBadCredentials)
	assert.ErrorIs(t, wrongErr, ErrBadCredentials)
	assert.Equal(t, unknownErr, wrongErr)
}

func TestVerifyPassword_FederatedOnlyAccount(t *testing.T) {
	directory := newFakeDirectory()
	service := NewService(directory)
	require.NoError(t, directory.Create(context.Background(), &Account{Username: "carol"}))

	// No password on file: password login is not available for the
	// account, and the error does not reveal that it exists.
	_, err := service.VerifyPassword(context.Background(), "carol", "anything")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "alice", NormalizeUsername("  Alice "))
	assert.Equal(t, "bob", NormalizeUsername("BOB"))
	assert.Equal(t, "", NormalizeUsername("   "))
}
