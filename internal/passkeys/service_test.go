package passkeys

import (
	"context"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Harbor/internal/core/accounts"
	"Harbor/internal/core/sessions"
)

type fakeDirectory struct {
	accounts    map[string]*accounts.Account
	credentials map[string][]webauthn.Credential
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		accounts:    make(map[string]*accounts.Account),
		credentials: make(map[string][]webauthn.Credential),
	}
}

func (d *fakeDirectory) Create(ctx context.Context, account *accounts.Account) error {
	d.accounts[account.Username] = account
	return nil
}

func (d *fakeDirectory) FindByUsername(ctx context.Context, username string) (*accounts.Account, error) {
	account, ok := d.accounts[username]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return account, nil
}

func (d *fakeDirectory) SetPassword(ctx context.Context, username string, hash []byte) error {
	return nil
}

func (d *fakeDirectory) FindByExternalIdentity(ctx context.Context, issuer, subject string) (*accounts.Account, error) {
	return nil, accounts.ErrNotFound
}

func (d *fakeDirectory) LinkExternalIdentity(ctx context.Context, username, issuer, subject string) error {
	return nil
}

func (d *fakeDirectory) AddCredential(ctx context.Context, username string, cred *webauthn.Credential) error {
	d.credentials[username] = append(d.credentials[username], *cred)
	return nil
}

func (d *fakeDirectory) Credentials(ctx context.Context, username string) ([]webauthn.Credential, error) {
	return d.credentials[username], nil
}

func (d *fakeDirectory) UpdateCredential(ctx context.Context, username string, cred *webauthn.Credential) error {
	return nil
}

// ceremonyStore implements just the ceremony half of sessions.Store.
type ceremonyStore struct {
	data map[string][]byte
}

func newCeremonyStore() *ceremonyStore {
	return &ceremonyStore{data: make(map[string][]byte)}
}

func (s *ceremonyStore) key(id, kind string) string { return id + "|" + kind }

func (s *ceremonyStore) Create(ctx context.Context) (*sessions.Session, error) { return nil, nil }

func (s *ceremonyStore) Get(ctx context.Context, id string) (*sessions.Session, error) {
	return nil, sessions.ErrNotFound
}

func (s *ceremonyStore) SetUsername(ctx context.Context, id, username string) error { return nil }

func (s *ceremonyStore) SignIn(ctx context.Context, id, username string) error { return nil }

func (s *ceremonyStore) SetPending(ctx context.Context, id string, p sessions.Pending) error {
	return nil
}

func (s *ceremonyStore) ConsumePending(ctx context.Context, id string) (*sessions.Pending, error) {
	return nil, sessions.ErrNoPending
}

func (s *ceremonyStore) SetCeremony(ctx context.Context, id, kind string, data []byte) error {
	s.data[s.key(id, kind)] = data
	return nil
}

func (s *ceremonyStore) ConsumeCeremony(ctx context.Context, id, kind string) ([]byte, error) {
	data, ok := s.data[s.key(id, kind)]
	if !ok {
		return nil, sessions.ErrNoCeremony
	}
	delete(s.data, s.key(id, kind))
	return data, nil
}

func (s *ceremonyStore) Destroy(ctx context.Context, id string) error { return nil }

func newTestService(t *testing.T) (*Service, *fakeDirectory, *ceremonyStore) {
	t.Helper()
	directory := newFakeDirectory()
	store := newCeremonyStore()
	service, err := NewService(Config{
		RPName:    "Harbor",
		RPID:      "localhost",
		RPOrigins: []string{"http://localhost:8080"},
	}, directory, store)
	require.NoError(t, err)
	return service, directory, store
}

func TestBeginRegistration(t *testing.T) {
	service, directory, store := newTestService(t)
	require.NoError(t, directory.Create(context.Background(), &accounts.Account{Username: "alice"}))

	creation, err := service.BeginRegistration(context.Background(), "s1", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, creation.Response.Challenge)
	assert.Equal(t, "localhost", creation.Response.RelyingParty.ID)
	assert.Equal(t, protocol.ResidentKeyRequirementPreferred,
		creation.Response.AuthenticatorSelection.ResidentKey)

	_, ok := store.data[store.key("s1", "registration")]
	assert.True(t, ok, "ceremony state must be stored on the session")
}

func TestBeginRegistration_ExcludesExistingCredentials(t *testing.T) {
	service, directory, _ := newTestService(t)
	require.NoError(t, directory.Create(context.Background(), &accounts.Account{Username: "alice"}))
	require.NoError(t, directory.AddCredential(context.Background(), "alice",
		&webauthn.Credential{ID: []byte("cred-1")}))

	creation, err := service.BeginRegistration(context.Background(), "s1", "alice")
	require.NoError(t, err)
	require.Len(t, creation.Response.CredentialExcludeList, 1)
	assert.Equal(t, []byte("cred-1"), []byte(creation.Response.CredentialExcludeList[0].CredentialID))
}

func TestBeginRegistration_UnknownUser(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.BeginRegistration(context.Background(), "s1", "nobody")
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestBeginLogin(t *testing.T) {
	service, directory, _ := newTestService(t)
	require.NoError(t, directory.Create(context.Background(), &accounts.Account{Username: "alice"}))
	require.NoError(t, directory.AddCredential(context.Background(), "alice",
		&webauthn.Credential{ID: []byte("cred-1")}))

	assertion, err := service.BeginLogin(context.Background(), "s1", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, assertion.Response.Challenge)
	require.Len(t, assertion.Response.AllowedCredentials, 1)
	assert.Equal(t, []byte("cred-1"), []byte(assertion.Response.AllowedCredentials[0].CredentialID))
}

func TestBeginLogin_NoCredentials(t *testing.T) {
	service, directory, _ := newTestService(t)
	require.NoError(t, directory.Create(context.Background(), &accounts.Account{Username: "alice"}))

	_, err := service.BeginLogin(context.Background(), "s1", "alice")
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestFinishWithoutBegin(t *testing.T) {
	service, directory, _ := newTestService(t)
	require.NoError(t, directory.Create(context.Background(), &accounts.Account{Username: "alice"}))

	_, err := service.FinishRegistration(context.Background(), "s1", "alice", &protocol.ParsedCredentialCreationData{})
	assert.ErrorIs(t, err, ErrNoCeremony)

	err = service.FinishLogin(context.Background(), "s1", "alice", &protocol.ParsedCredentialAssertionData{})
	assert.ErrorIs(t, err, ErrNoCeremony)
}

func TestCeremonyIsSingleUse(t *testing.T) {
	service, directory, _ := newTestService(t)
	require.NoError(t, directory.Create(context.Background(), &accounts.Account{Username: "alice"}))

	_, err := service.BeginRegistration(context.Background(), "s1", "alice")
	require.NoError(t, err)

	ceremony, err := service.consumeCeremony(context.Background(), "s1", ceremonyRegistration)
	require.NoError(t, err)
	assert.NotEmpty(t, ceremony.Challenge)

	_, err = service.consumeCeremony(context.Background(), "s1", ceremonyRegistration)
	assert.ErrorIs(t, err, ErrNoCeremony)
}

func TestPasskeyUser(t *testing.T) {
	user := &passkeyUser{account: &accounts.Account{Username: "alice"}}
	assert.Equal(t, []byte("alice"), user.WebAuthnID())
	assert.Equal(t, "alice", user.WebAuthnName())
	assert.Equal(t, "alice", user.WebAuthnDisplayName(), "display name falls back to the username")

	user.account.DisplayName = "Alice Example"
	assert.Equal(t, "Alice Example", user.WebAuthnDisplayName())
}
