package federation

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"Harbor/internal/core/sessions"
)

// PendingTTL bounds how long issued state/nonce values stay usable.
// Deliberately much shorter than the session itself: an abandoned
// redirect should not leave a live nonce around for days.
const PendingTTL = 10 * time.Minute

// IssuePending generates fresh state and nonce values (256 bits of
// entropy each) and captures the flow intent. The caller persists the
// result on the session before redirecting.
func IssuePending(intent sessions.Intent, username string) (sessions.Pending, error) {
	state, err := randomToken()
	if err != nil {
		return sessions.Pending{}, fmt.Errorf("failed to generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return sessions.Pending{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return sessions.Pending{
		State:     state,
		Nonce:     nonce,
		Intent:    intent,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// VerifyState checks a consumed pending record against the state the
// provider echoed back. Constant-time comparison; the caller has already
// cleared the pending fields, so a mismatch can never leave a reusable
// nonce behind.
func VerifyState(pending *sessions.Pending, receivedState string) error {
	if pending == nil || pending.State == "" {
		return ErrStateMismatch
	}
	if time.Since(pending.CreatedAt) > PendingTTL {
		return ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(pending.State), []byte(receivedState)) != 1 {
		return ErrStateMismatch
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
