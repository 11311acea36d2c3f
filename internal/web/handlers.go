package web

import (
	"log"
	"net/http"

	"Harbor/internal/api/middleware"
)

// Handlers serves the session-gated HTML pages. A known username
// short-circuits the sign-in pages to /reauth, and /home requires a
// fully signed-in session.
type Handlers struct {
	pages *Pages
	title string
}

// NewHandlers creates the page handlers. title is the relying-party
// display name shown on every page.
func NewHandlers(pages *Pages, title string) *Handlers {
	return &Handlers{pages: pages, title: title}
}

// PageData is the common template payload.
type PageData struct {
	Title       string
	Username    string
	DisplayName string
	// Conflict marks the identity-conflict variant of the error page.
	Conflict bool
}

// HandleIndex serves the username/password form, or bounces known users
// to the re-auth prompt.
// GET /
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.signInPage(w, r, "index.html")
}

// HandleOneButton serves the one-button sign-in variant.
// GET /one-button
func (h *Handlers) HandleOneButton(w http.ResponseWriter, r *http.Request) {
	h.signInPage(w, r, "one-button.html")
}

// HandleSocialLogin serves the federated sign-in variant.
// GET /social-login
func (h *Handlers) HandleSocialLogin(w http.ResponseWriter, r *http.Request) {
	h.signInPage(w, r, "social-login.html")
}

func (h *Handlers) signInPage(w http.ResponseWriter, r *http.Request, name string) {
	session := middleware.SessionFromContext(r.Context())
	if session != nil && session.Username != "" {
		http.Redirect(w, r, "/reauth", http.StatusTemporaryRedirect)
		return
	}
	h.render(w, name, PageData{Title: h.title})
}

// HandleReauth prompts a returning user for their second factor.
// GET /reauth
func (h *Handlers) HandleReauth(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil || session.Username == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, "reauth.html", PageData{Title: h.title, Username: session.Username})
}

// HandleHome serves the signed-in landing page.
// GET /home
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil || !session.SignedIn || session.Username == "" {
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	h.render(w, "home.html", PageData{
		Title:       h.title,
		Username:    session.Username,
		DisplayName: session.Username,
	})
}

// HandleFederationError serves the generic federation failure page.
// Internal error details stay in the logs; the page only distinguishes
// the user-correctable conflict case, without confirming which account
// owns the identity.
// GET /federation-error
func (h *Handlers) HandleFederationError(w http.ResponseWriter, r *http.Request) {
	h.render(w, "federation-error.html", PageData{
		Title:    h.title,
		Conflict: r.URL.Query().Get("conflict") != "",
	})
}

func (h *Handlers) render(w http.ResponseWriter, name string, data PageData) {
	if err := h.pages.Render(w, name, data); err != nil {
		log.Printf("failed to render %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
