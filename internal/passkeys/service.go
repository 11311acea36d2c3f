// Package passkeys wraps the WebAuthn registration and login ceremonies
// for passkey credentials. Ceremony state between the begin and finish
// legs is held in the durable session store with single-use semantics.
package passkeys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"Harbor/internal/core/accounts"
	"Harbor/internal/core/sessions"
)

const (
	ceremonyRegistration = "registration"
	ceremonyLogin        = "login"
)

// ErrNoCeremony is returned when a finish call arrives without a
// matching begin, or after the ceremony was already consumed.
var ErrNoCeremony = errors.New("no pending passkey ceremony")

// Config holds the WebAuthn relying-party settings.
type Config struct {
	RPName    string
	RPID      string
	RPOrigins []string
}

// Service runs passkey ceremonies against the account directory.
type Service struct {
	wa        *webauthn.WebAuthn
	directory accounts.Directory
	sessions  sessions.Store
}

// NewService creates a passkey service.
func NewService(cfg Config, directory accounts.Directory, store sessions.Store) (*Service, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webauthn: %w", err)
	}

	return &Service{wa: wa, directory: directory, sessions: store}, nil
}

// BeginRegistration starts a credential creation ceremony for the
// signed-in account and stores the ceremony state on the session.
func (s *Service) BeginRegistration(ctx context.Context, sessionID, username string) (*protocol.CredentialCreation, error) {
	user, err := s.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}

	// Exclude already-registered credentials so the authenticator does
	// not create a duplicate.
	exclusions := make([]protocol.CredentialDescriptor, 0, len(user.creds))
	for _, cred := range user.creds {
		exclusions = append(exclusions, cred.Descriptor())
	}

	creation, ceremony, err := s.wa.BeginRegistration(user,
		webauthn.WithExclusions(exclusions),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to begin registration: %w", err)
	}

	if err := s.saveCeremony(ctx, sessionID, ceremonyRegistration, ceremony); err != nil {
		return nil, err
	}
	return creation, nil
}

// FinishRegistration validates the authenticator's attestation response
// and stores the new credential.
func (s *Service) FinishRegistration(ctx context.Context, sessionID, username string, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	ceremony, err := s.consumeCeremony(ctx, sessionID, ceremonyRegistration)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}

	cred, err := s.wa.CreateCredential(user, *ceremony, response)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	if err := s.directory.AddCredential(ctx, username, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// BeginLogin starts an assertion ceremony for the claimed username.
func (s *Service) BeginLogin(ctx context.Context, sessionID, username string) (*protocol.CredentialAssertion, error) {
	user, err := s.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(user.creds) == 0 {
		return nil, accounts.ErrNotFound
	}

	assertion, ceremony, err := s.wa.BeginLogin(user)
	if err != nil {
		return nil, fmt.Errorf("failed to begin login: %w", err)
	}

	if err := s.saveCeremony(ctx, sessionID, ceremonyLogin, ceremony); err != nil {
		return nil, err
	}
	return assertion, nil
}

// FinishLogin validates the assertion and updates the stored credential
// (sign count, clone warning).
func (s *Service) FinishLogin(ctx context.Context, sessionID, username string, response *protocol.ParsedCredentialAssertionData) error {
	ceremony, err := s.consumeCeremony(ctx, sessionID, ceremonyLogin)
	if err != nil {
		return err
	}

	user, err := s.loadUser(ctx, username)
	if err != nil {
		return err
	}

	cred, err := s.wa.ValidateLogin(user, *ceremony, response)
	if err != nil {
		return fmt.Errorf("failed to validate login: %w", err)
	}

	// The login itself succeeded; a failed sign-count update should not
	// fail the ceremony.
	if err := s.directory.UpdateCredential(ctx, username, cred); err != nil {
		log.Printf("failed to update credential after login for %s: %v", username, err)
	}
	return nil
}

func (s *Service) saveCeremony(ctx context.Context, sessionID, kind string, ceremony *webauthn.SessionData) error {
	blob, err := json.Marshal(ceremony)
	if err != nil {
		return fmt.Errorf("failed to encode ceremony state: %w", err)
	}
	if err := s.sessions.SetCeremony(ctx, sessionID, kind, blob); err != nil {
		return fmt.Errorf("failed to store ceremony state: %w", err)
	}
	return nil
}

func (s *Service) consumeCeremony(ctx context.Context, sessionID, kind string) (*webauthn.SessionData, error) {
	blob, err := s.sessions.ConsumeCeremony(ctx, sessionID, kind)
	if err != nil {
		if errors.Is(err, sessions.ErrNoCeremony) {
			return nil, ErrNoCeremony
		}
		return nil, err
	}

	var ceremony webauthn.SessionData
	if err := json.Unmarshal(blob, &ceremony); err != nil {
		return nil, fmt.Errorf("failed to decode ceremony state: %w", err)
	}
	return &ceremony, nil
}

func (s *Service) loadUser(ctx context.Context, username string) (*passkeyUser, error) {
	account, err := s.directory.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	creds, err := s.directory.Credentials(ctx, username)
	if err != nil {
		return nil, err
	}
	return &passkeyUser{account: account, creds: creds}, nil
}

// passkeyUser adapts an account to the webauthn.User interface.
type passkeyUser struct {
	account *accounts.Account
	creds   []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte {
	return []byte(u.account.Username)
}

func (u *passkeyUser) WebAuthnName() string {
	return u.account.Username
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	if u.account.DisplayName != "" {
		return u.account.DisplayName
	}
	return u.account.Username
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}

// WebAuthnIcon is deprecated in the WebAuthn spec and intentionally empty;
// it is required by the webauthn.User interface in go-webauthn v0.10.x.
func (u *passkeyUser) WebAuthnIcon() string {
	return ""
}
