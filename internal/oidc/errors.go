package oidc

import "fmt"

// DiscoveryError indicates provider metadata could not be fetched or parsed.
type DiscoveryError struct {
	Issuer string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("oidc discovery failed for %s: %v", e.Issuer, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// TokenExchangeError indicates the authorization-code grant failed.
// Status is the HTTP status from the token endpoint, 0 for transport
// failures. The exchange is never retried: the code is single-use and a
// retry would look like replay to the provider.
type TokenExchangeError struct {
	Status int
	Err    error
}

func (e *TokenExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token exchange failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// ValidationKind classifies why an ID token was rejected. The kinds are
// distinguishable so operators can tell an attacker-shaped failure
// (signature, nonce) from clock skew (expiry); every kind fails closed.
type ValidationKind string

const (
	ValidationMalformed     ValidationKind = "malformed"
	ValidationSignature     ValidationKind = "signature"
	ValidationExpiry        ValidationKind = "expiry"
	ValidationIssuer        ValidationKind = "issuer"
	ValidationAudience      ValidationKind = "audience"
	ValidationNonceMismatch ValidationKind = "nonce-mismatch"
)

// TokenValidationError indicates an ID token failed verification.
type TokenValidationError struct {
	Kind ValidationKind
	Err  error
}

func (e *TokenValidationError) Error() string {
	return fmt.Sprintf("id token validation failed (%s): %v", e.Kind, e.Err)
}

func (e *TokenValidationError) Unwrap() error { return e.Err }
