// Package federation orchestrates the two HTTP legs of an OpenID
// Connect relying-party flow: issuing single-use state/nonce values on
// /federate and verifying the provider's answer on /callback, then
// resolving the verified external identity against the local account
// directory.
package federation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"Harbor/internal/core/accounts"
	"Harbor/internal/core/sessions"
	"Harbor/internal/oidc"
)

// Provider is the slice of the OIDC client the controller needs.
// Narrowed to an interface so tests can substitute a fake provider.
type Provider interface {
	Discover(ctx context.Context) (*oidc.ProviderMetadata, error)
	AuthorizationURL(meta *oidc.ProviderMetadata, state, nonce string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*oidc.TokenResponse, error)
	VerifyIDToken(ctx context.Context, raw, expectedNonce string) (*oidc.Identity, error)
}

// Status is the terminal state of a successful flow.
type Status string

const (
	// StatusLoggedIn: an anonymous visitor signed in as an existing
	// linked account.
	StatusLoggedIn Status = "logged_in"
	// StatusLinked: a signed-in user attached a new external identity.
	StatusLinked Status = "linked"
)

// Outcome describes a completed flow.
type Outcome struct {
	Status   Status
	Username string
}

// Controller drives the federation state machine. Both legs are
// independent stateless requests; the durable session store carries the
// flow state between them, and its atomic consume is the serialization
// point for racing callbacks.
type Controller struct {
	sessions  sessions.Store
	directory accounts.Directory
	provider  Provider
}

// NewController creates a federation controller.
func NewController(store sessions.Store, directory accounts.Directory, provider Provider) *Controller {
	return &Controller{
		sessions:  store,
		directory: directory,
		provider:  provider,
	}
}

// Begin starts a flow for the session and returns the authorization
// redirect URL. The login-vs-link intent is captured here, not re-read
// at callback time, so a sign-out between the two legs cannot change
// what the callback does.
func (c *Controller) Begin(ctx context.Context, session *sessions.Session) (string, error) {
	// Expired pending state counts as absent: an abandoned redirect must
	// not lock the session out of /federate for its whole lifetime. The
	// fresh state overwrites the stale row.
	if session.Pending != nil && time.Since(session.Pending.CreatedAt) <= PendingTTL {
		return "", ErrFederationInProgress
	}

	intent := sessions.IntentLogin
	username := ""
	if session.SignedIn && session.Username != "" {
		intent = sessions.IntentLink
		username = session.Username
	}

	pending, err := IssuePending(intent, username)
	if err != nil {
		return "", err
	}

	// Discovery is normally already cached; this is the only network
	// call on the begin leg.
	meta, err := c.provider.Discover(ctx)
	if err != nil {
		return "", err
	}

	if err := c.sessions.SetPending(ctx, session.ID, pending); err != nil {
		return "", fmt.Errorf("failed to store pending federation state: %w", err)
	}

	redirectURL, err := c.provider.AuthorizationURL(meta, pending.State, pending.Nonce)
	if err != nil {
		return "", err
	}

	return redirectURL, nil
}

// Callback completes a flow. Every failure is terminal: the pending
// state has already been consumed, nothing is retried, and the user must
// restart at /federate to get fresh state and nonce values.
func (c *Controller) Callback(ctx context.Context, session *sessions.Session, receivedState, code, errorParam string) (*Outcome, error) {
	// Atomic read-and-clear. Two racing callbacks for the same session
	// serialize here: at most one sees the pending values.
	pending, err := c.sessions.ConsumePending(ctx, session.ID)
	if err != nil && !errors.Is(err, sessions.ErrNoPending) {
		return nil, fmt.Errorf("failed to consume pending federation state: %w", err)
	}

	if errorParam != "" {
		// Provider-reported denial. The code exchange is skipped; the
		// pending state is already gone.
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, errorParam)
	}

	if verifyErr := VerifyState(pending, receivedState); verifyErr != nil {
		return nil, verifyErr
	}

	tokens, err := c.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	ident, err := c.provider.VerifyIDToken(ctx, tokens.IDToken, pending.Nonce)
	if err != nil {
		return nil, err
	}

	return c.resolve(ctx, session, pending, ident)
}

// resolve branches on the intent captured at Begin time: log in via an
// existing link, or attach the identity to the captured account.
func (c *Controller) resolve(ctx context.Context, session *sessions.Session, pending *sessions.Pending, ident *oidc.Identity) (*Outcome, error) {
	if pending.Intent == sessions.IntentLink {
		err := c.directory.LinkExternalIdentity(ctx, pending.Username, ident.Issuer, ident.Subject)
		if err != nil {
			if errors.Is(err, accounts.ErrIdentityConflict) {
				return nil, ErrIdentityConflict
			}
			return nil, fmt.Errorf("failed to link external identity: %w", err)
		}
		return &Outcome{Status: StatusLinked, Username: pending.Username}, nil
	}

	account, err := c.directory.FindByExternalIdentity(ctx, ident.Issuer, ident.Subject)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("failed to look up external identity: %w", err)
	}

	if err := c.sessions.SignIn(ctx, session.ID, account.Username); err != nil {
		return nil, fmt.Errorf("failed to sign in session: %w", err)
	}

	log.Printf("federated login for %s", account.Username)
	return &Outcome{Status: StatusLoggedIn, Username: account.Username}, nil
}

// StatePrefix returns a loggable prefix of a state value. Enough to
// correlate a flow in logs without recording the full secret.
func StatePrefix(state string) string {
	if len(state) <= 8 {
		return state
	}
	return state[:8]
}
