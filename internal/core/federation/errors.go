package federation

import "errors"

var (
	// ErrFederationInProgress means the session already holds unconsumed
	// pending state; a new flow must not clobber it.
	ErrFederationInProgress = errors.New("federation flow already in progress")

	// ErrStateMismatch means the callback's state did not match the
	// session's pending state, the pending state was absent (duplicate
	// or forged callback), or it had expired. The pending fields are
	// always cleared before this is returned.
	ErrStateMismatch = errors.New("state parameter mismatch")

	// ErrProviderDenied means the provider reported an error instead of
	// an authorization code. The token endpoint is never contacted.
	ErrProviderDenied = errors.New("provider denied the authorization request")

	// ErrUnknownIdentity means the verified external identity is not
	// linked to any local account. Accounts are not auto-provisioned
	// from federation alone.
	ErrUnknownIdentity = errors.New("external identity is not linked to an account")

	// ErrIdentityConflict means the external identity is already linked
	// to a different account than the one trying to link it.
	ErrIdentityConflict = errors.New("external identity belongs to another account")
)
