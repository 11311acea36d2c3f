package sessions

import (
	"context"
	"errors"
	"time"
)

// Intent records why a federation flow was started: to sign a visitor in,
// or to attach an external identity to the account that was already
// signed in when the flow began.
type Intent string

const (
	IntentLogin Intent = "login"
	IntentLink  Intent = "link"
)

// Session is the durable server-side session. The browser only holds an
// opaque session ID in a cookie; everything else lives in the store.
type Session struct {
	ID        string
	Username  string // set once the user has identified themselves
	SignedIn  bool
	CreatedAt time.Time
	ExpiresAt time.Time

	// Pending is the single-use federation state for an in-flight
	// /federate -> /callback round trip, nil otherwise.
	Pending *Pending
}

// Pending is the anti-CSRF/anti-replay state issued when a federation
// flow begins. It is consumed exactly once by the callback leg.
type Pending struct {
	State     string
	Nonce     string
	Intent    Intent
	Username  string // link target, captured when the flow began
	CreatedAt time.Time
}

var (
	// ErrNotFound indicates the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrNoPending indicates there was no pending federation state to
	// consume. A duplicate callback lands here.
	ErrNoPending = errors.New("no pending federation state")
	// ErrNoCeremony indicates there was no stored passkey ceremony.
	ErrNoCeremony = errors.New("no pending ceremony")
)

// Store is the durable session store contract. ConsumePending and
// ConsumeCeremony must be atomic read-and-clear operations: two racing
// callbacks for the same session must not both receive the stored state.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)

	// SetUsername records which account the session claims to be,
	// without marking it signed in (the password or passkey step does that).
	SetUsername(ctx context.Context, id, username string) error

	// SignIn marks the session authenticated as username.
	SignIn(ctx context.Context, id, username string) error

	// SetPending stores federation state, replacing any previous value.
	SetPending(ctx context.Context, id string, p Pending) error

	// ConsumePending atomically reads and clears the pending federation
	// state. Returns ErrNoPending when nothing was stored.
	ConsumePending(ctx context.Context, id string) (*Pending, error)

	// SetCeremony and ConsumeCeremony hold serialized WebAuthn ceremony
	// data between the begin and finish legs, with the same single-use
	// semantics as the federation state.
	SetCeremony(ctx context.Context, id, kind string, data []byte) error
	ConsumeCeremony(ctx context.Context, id, kind string) ([]byte, error)

	Destroy(ctx context.Context, id string) error
}
