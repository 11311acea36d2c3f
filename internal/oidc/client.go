// Package oidc implements the relying-party side of one OpenID Connect
// provider: metadata discovery, authorization URL construction, the
// authorization-code grant, and ID token verification.
package oidc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	wellKnownPath  = "/.well-known/openid-configuration"
	requestTimeout = 10 * time.Second
	// maxResponseBytes caps metadata and token endpoint bodies so a
	// misbehaving provider cannot exhaust memory.
	maxResponseBytes = 1 << 20
)

// ProviderMetadata is the subset of the discovery document this client
// needs.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// TokenResponse is the token endpoint response for the code grant. It is
// verified once and never persisted.
type TokenResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Identity is the verified identity extracted from an ID token. Issuer
// plus Subject form the external identifier; the profile claims are for
// display only.
type Identity struct {
	Issuer  string
	Subject string
	Email   string
	Name    string
}

// Config holds the externally supplied relying-party settings.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// Client talks to a single OpenID Connect provider. Discovery metadata
// is cached for the process lifetime (provider metadata is assumed
// stable) behind a read-mostly lock; JWKS fetching and rotation is
// delegated to jwk.Cache.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu   sync.RWMutex
	meta *ProviderMetadata

	jwks     *jwk.Cache
	jwksOnce sync.Once
	jwksErr  error
}

// NewClient creates a client for the configured provider. ctx bounds the
// lifetime of the background JWKS refresher.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURI == "" {
		return nil, fmt.Errorf("issuer URL, client ID and redirect URI are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid"}
	}
	hasOpenID := false
	for _, scope := range cfg.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return nil, fmt.Errorf("scopes must include 'openid'")
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
		jwks:       jwk.NewCache(ctx),
	}, nil
}

// Discover returns the provider metadata, fetching it on first use and
// caching it for the process lifetime. Concurrent readers share the
// cached copy; only an explicit Invalidate forces a re-fetch.
func (c *Client) Discover(ctx context.Context) (*ProviderMetadata, error) {
	c.mu.RLock()
	meta := c.meta
	c.mu.RUnlock()
	if meta != nil {
		return meta, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta != nil {
		return c.meta, nil
	}

	meta, err := c.fetchMetadata(ctx)
	if err != nil {
		return nil, &DiscoveryError{Issuer: c.cfg.IssuerURL, Err: err}
	}
	c.meta = meta
	return meta, nil
}

// Invalidate drops the cached provider metadata so the next Discover
// re-fetches it.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.meta = nil
	c.mu.Unlock()
}

func (c *Client) fetchMetadata(ctx context.Context) (*ProviderMetadata, error) {
	wellKnown := strings.TrimSuffix(c.cfg.IssuerURL, "/") + wellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch provider metadata: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var meta ProviderMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode provider metadata: %w", err)
	}

	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" || meta.JWKSURI == "" {
		return nil, fmt.Errorf("provider metadata is missing required endpoints")
	}
	// The issuer in the document must match the configured issuer, per
	// OpenID Connect Discovery 4.3.
	if meta.Issuer != c.cfg.IssuerURL {
		return nil, fmt.Errorf("issuer mismatch: configured %s, document says %s", c.cfg.IssuerURL, meta.Issuer)
	}

	return &meta, nil
}

// AuthorizationURL builds the authorization-endpoint redirect URL. Pure:
// no side effects, no network. Deterministic for identical inputs.
func (c *Client) AuthorizationURL(meta *ProviderMetadata, state, nonce string) (string, error) {
	authURL, err := url.Parse(meta.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", c.cfg.ClientID)
	query.Set("redirect_uri", c.cfg.RedirectURI)
	query.Set("scope", strings.Join(c.cfg.Scopes, " "))
	query.Set("state", state)
	query.Set("nonce", nonce)
	authURL.RawQuery = query.Encode()

	return authURL.String(), nil
}

// ExchangeCode performs the authorization-code grant. Exactly one
// attempt is made: the code is single-use, so a retry after a timeout
// could be replay from the provider's point of view.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	meta, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TokenExchangeError{Err: fmt.Errorf("failed to build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TokenExchangeError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TokenExchangeError{Status: resp.StatusCode, Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The error body may carry an OAuth error code worth logging,
		// but never token material.
		var oauthErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &oauthErr)
		if oauthErr.Error == "" {
			oauthErr.Error = "unknown_error"
		}
		return nil, &TokenExchangeError{Status: resp.StatusCode, Err: fmt.Errorf("token endpoint returned %q", oauthErr.Error)}
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, &TokenExchangeError{Status: resp.StatusCode, Err: fmt.Errorf("malformed token response: %w", err)}
	}
	if tokens.IDToken == "" {
		return nil, &TokenExchangeError{Status: resp.StatusCode, Err: fmt.Errorf("token response is missing id_token")}
	}

	return &tokens, nil
}

// VerifyIDToken validates the signature against the provider JWKS and
// checks iss, aud, exp and the nonce claim. Each failure carries a
// distinguishable ValidationKind; none are retried.
func (c *Client) VerifyIDToken(ctx context.Context, raw, expectedNonce string) (*Identity, error) {
	meta, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := c.keySet(ctx, meta)
	if err != nil {
		return nil, &TokenValidationError{Kind: ValidationSignature, Err: fmt.Errorf("failed to fetch provider keys: %w", err)}
	}

	// Parsing without verification first separates a token that is not a
	// JWT at all from one that merely fails the signature check.
	if _, parseErr := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(false)); parseErr != nil {
		return nil, &TokenValidationError{Kind: ValidationMalformed, Err: parseErr}
	}

	tok, err := jwt.Parse([]byte(raw), jwt.WithKeySet(keys), jwt.WithValidate(false))
	if err != nil {
		return nil, &TokenValidationError{Kind: ValidationSignature, Err: err}
	}

	if err := jwt.Validate(tok,
		jwt.WithIssuer(meta.Issuer),
		jwt.WithAudience(c.cfg.ClientID),
		jwt.WithAcceptableSkew(time.Minute),
	); err != nil {
		return nil, &TokenValidationError{Kind: classifyValidation(err), Err: err}
	}

	nonce, _ := tok.Get("nonce")
	nonceStr, _ := nonce.(string)
	if subtle.ConstantTimeCompare([]byte(nonceStr), []byte(expectedNonce)) != 1 {
		return nil, &TokenValidationError{Kind: ValidationNonceMismatch, Err: fmt.Errorf("nonce claim does not match the issued nonce")}
	}

	ident := &Identity{
		Issuer:  tok.Issuer(),
		Subject: tok.Subject(),
	}
	if v, ok := tok.Get("email"); ok {
		ident.Email, _ = v.(string)
	}
	if v, ok := tok.Get("name"); ok {
		ident.Name, _ = v.(string)
	}
	if ident.Subject == "" {
		return nil, &TokenValidationError{Kind: ValidationMalformed, Err: fmt.Errorf("id token is missing sub claim")}
	}

	return ident, nil
}

func classifyValidation(err error) ValidationKind {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()) || errors.Is(err, jwt.ErrTokenNotYetValid()):
		return ValidationExpiry
	case errors.Is(err, jwt.ErrInvalidIssuer()):
		return ValidationIssuer
	case errors.Is(err, jwt.ErrInvalidAudience()):
		return ValidationAudience
	default:
		return ValidationMalformed
	}
}

// keySet returns the provider JWKS, registering the URI with the cache
// on first use. jwk.Cache handles refresh and key rotation.
func (c *Client) keySet(ctx context.Context, meta *ProviderMetadata) (jwk.Set, error) {
	c.jwksOnce.Do(func() {
		c.jwksErr = c.jwks.Register(meta.JWKSURI, jwk.WithMinRefreshInterval(15*time.Minute))
	})
	if c.jwksErr != nil {
		return nil, c.jwksErr
	}
	return c.jwks.Get(ctx, meta.JWKSURI)
}
