// Package password implements the username/password sign-in routes
// under /auth.
package password

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"Harbor/internal/api/middleware"
	"Harbor/internal/core/accounts"
	"Harbor/internal/core/sessions"
	"Harbor/internal/metrics"
)

// Handler serves the password authentication endpoints.
type Handler struct {
	accounts  *accounts.Service
	sessions  sessions.Store
	manager   *middleware.SessionManager
	collector *metrics.Collector
}

// NewHandler creates a password handler.
func NewHandler(service *accounts.Service, store sessions.Store, manager *middleware.SessionManager, collector *metrics.Collector) *Handler {
	return &Handler{
		accounts:  service,
		sessions:  store,
		manager:   manager,
		collector: collector,
	}
}

// HandleUsername records the claimed username on the session without
// signing in. The password (or passkey) step completes authentication.
// POST /auth/username  {"username": "alice"}
func (h *Handler) HandleUsername(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	username := accounts.NormalizeUsername(req.Username)
	if username == "" {
		http.Error(w, "Username is required", http.StatusBadRequest)
		return
	}

	if err := h.sessions.SetUsername(r.Context(), session.ID, username); err != nil {
		log.Printf("failed to set session username: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"username": username})
}

// HandlePassword verifies the password for the session's claimed
// username and signs the session in.
// POST /auth/password  {"password": "..."}
func (h *Handler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if session.Username == "" {
		http.Error(w, "Enter username first", http.StatusBadRequest)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.accounts.VerifyPassword(r.Context(), session.Username, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrBadCredentials) {
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		log.Printf("failed to verify password: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.SignIn(r.Context(), session.ID, account.Username); err != nil {
		log.Printf("failed to sign in session: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.collector.RecordSignin("password")
	writeJSON(w, map[string]string{"username": account.Username, "displayName": account.DisplayName})
}

// HandleRegister creates a new account and signs the session in.
// POST /auth/register  {"username": "...", "password": "...", "displayName": "..."}
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	account, err := h.accounts.Register(r.Context(), req.Username, req.DisplayName, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrDuplicateUsername) {
			http.Error(w, "Username already registered", http.StatusConflict)
			return
		}
		log.Printf("failed to register account: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.SignIn(r.Context(), session.ID, account.Username); err != nil {
		log.Printf("failed to sign in session: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"username": account.Username})
}

// HandleSignout destroys the session and expires the cookie.
// GET /auth/signout
func (h *Handler) HandleSignout(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := h.sessions.Destroy(r.Context(), session.ID); err != nil {
		log.Printf("failed to destroy session: %v", err)
	}
	h.manager.ClearCookie(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
