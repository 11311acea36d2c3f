package middleware

import (
	"context"
	"log"
	"net/http"

	gorilla "github.com/gorilla/sessions"

	"Harbor/internal/core/sessions"
)

type contextKey string

const sessionContextKey contextKey = "session"

// CookieName is the browser session cookie. It carries only the opaque
// session ID; all attributes live in the durable store.
const CookieName = "harbor_session"

const cookieSessionID = "sid"

// SessionManager resolves the signed session cookie to a durable
// session, creating one on first contact.
type SessionManager struct {
	cookies *gorilla.CookieStore
	store   sessions.Store
	maxAge  int
	secure  bool
}

// NewSessionManager creates a session middleware. secure controls the
// cookie's Secure flag and should be true outside local development.
func NewSessionManager(secret []byte, store sessions.Store, maxAgeSeconds int, secure bool) *SessionManager {
	cookies := gorilla.NewCookieStore(secret)
	cookies.Options = &gorilla.Options{
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{
		cookies: cookies,
		store:   store,
		maxAge:  maxAgeSeconds,
		secure:  secure,
	}
}

// WithSession loads (or creates) the durable session for the request and
// injects it into the context. Handlers that mutate the session re-read
// it through the store; the cookie itself never changes after creation.
func (m *SessionManager) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A tampered cookie makes Get return an error alongside a fresh
		// empty session, so the request falls through to session creation.
		cookie, err := m.cookies.Get(r, CookieName)
		if err != nil {
			log.Printf("session cookie rejected: %v", err)
		}

		var session *sessions.Session
		if id, ok := cookie.Values[cookieSessionID].(string); ok && id != "" {
			session, err = m.store.Get(r.Context(), id)
			if err != nil && err != sessions.ErrNotFound {
				log.Printf("failed to load session %s: %v", id, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		if session == nil {
			session, err = m.store.Create(r.Context())
			if err != nil {
				log.Printf("failed to create session: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			cookie.Values[cookieSessionID] = session.ID
			if err := cookie.Save(r, w); err != nil {
				log.Printf("failed to save session cookie: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSignedIn redirects unauthenticated requests to the sign-in page.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := SessionFromContext(r.Context())
		if session == nil || !session.SignedIn {
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the request's session, or nil when the
// middleware did not run.
func SessionFromContext(ctx context.Context) *sessions.Session {
	session, _ := ctx.Value(sessionContextKey).(*sessions.Session)
	return session
}

// ContextWithSession injects a session the way WithSession does. Handler
// tests use it to skip the cookie round-trip.
func ContextWithSession(ctx context.Context, session *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// ClearCookie expires the browser session cookie on sign-out.
func (m *SessionManager) ClearCookie(w http.ResponseWriter, r *http.Request) {
	cookie, err := m.cookies.Get(r, CookieName)
	if err != nil {
		return
	}
	cookie.Options.MaxAge = -1
	_ = cookie.Save(r, w)
}
