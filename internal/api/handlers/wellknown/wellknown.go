// Package wellknown serves RFC 8615 well-known URIs: the Android App
// Links statement and the passkey endpoints document.
package wellknown

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the well-known documents. The origin is derived from
// each request rather than from process-wide state, so concurrent
// requests for different hostnames cannot race.
type Handler struct {
	packageNames []string
	fingerprints []string
	devMode      bool
}

// NewHandler creates a well-known handler. packageNames and
// fingerprints pair up index-by-index.
func NewHandler(packageNames, fingerprints []string, devMode bool) *Handler {
	return &Handler{
		packageNames: packageNames,
		fingerprints: fingerprints,
		devMode:      devMode,
	}
}

type assetLinkTarget struct {
	Namespace    string   `json:"namespace"`
	Site         string   `json:"site,omitempty"`
	PackageName  string   `json:"package_name,omitempty"`
	Fingerprints []string `json:"sha256_cert_fingerprints,omitempty"`
}

type assetLink struct {
	Relation []string        `json:"relation"`
	Target   assetLinkTarget `json:"target"`
}

// HandleAssetLinks serves the Android App Links configuration.
// GET /.well-known/assetlinks.json
//
// Spec: https://developer.android.com/training/app-links/verify-android-applinks
func (h *Handler) HandleAssetLinks(w http.ResponseWriter, r *http.Request) {
	relation := []string{
		"delegate_permission/common.handle_all_urls",
		"delegate_permission/common.get_login_creds",
	}

	links := []assetLink{{
		Relation: relation,
		Target: assetLinkTarget{
			Namespace: "web",
			Site:      h.origin(r),
		},
	}}

	for i, pkg := range h.packageNames {
		links = append(links, assetLink{
			Relation: relation,
			Target: assetLinkTarget{
				Namespace:    "android_app",
				PackageName:  pkg,
				Fingerprints: []string{h.fingerprints[i]},
			},
		})
	}

	// Must be application/json with no redirects for verification to work.
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(links); err != nil {
		slog.Error("failed to encode assetlinks", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// HandlePasskeyEndpoints serves the passkey enroll/manage endpoint
// document consumed by password managers.
// GET /.well-known/passkey-endpoints
func (h *Handler) HandlePasskeyEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoint := h.origin(r) + "/home"
	response := map[string]map[string]string{
		"enroll": {"web": endpoint},
		"manage": {"web": endpoint},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode passkey-endpoints", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) origin(r *http.Request) string {
	scheme := "https"
	if h.devMode {
		scheme = "http"
	}
	return scheme + "://" + r.Host
}
