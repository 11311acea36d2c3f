package config

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COOKIE_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	assert.Equal(t, "localhost", cfg.RPID)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.RPOrigins)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("COOKIE_SECRET", testSecret)
	t.Setenv("PORT", "9000")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("ISSUER_URL", "https://idp.example")
	t.Setenv("CLIENT_ID", "harbor-client")
	t.Setenv("SCOPES", "openid,email")
	t.Setenv("RP_ORIGINS", "https://harbor.example,https://www.harbor.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "https://idp.example", cfg.IssuerURL)
	assert.Equal(t, []string{"openid", "email"}, cfg.Scopes)
	assert.Equal(t, []string{"https://harbor.example", "https://www.harbor.example"}, cfg.RPOrigins)
}

func TestLoad_RejectsShortCookieSecret(t *testing.T) {
	t.Setenv("COOKIE_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COOKIE_SECRET")
}

func TestLoad_Base64Secrets(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(testSecret))
	t.Setenv("COOKIE_SECRET", "base64:"+encoded)
	t.Setenv("CLIENT_SECRET", "base64:"+base64.StdEncoding.EncodeToString([]byte("raw-client-secret")))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.CookieSecret)
	assert.Equal(t, "raw-client-secret", cfg.ClientSecret)
}

func TestLoad_InvalidBase64(t *testing.T) {
	t.Setenv("COOKIE_SECRET", "base64:!!!not-base64!!!")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AndroidListsMustMatch(t *testing.T) {
	t.Setenv("COOKIE_SECRET", testSecret)
	t.Setenv("ANDROID_PACKAGENAME", "com.example.app,com.example.other")
	t.Setenv("ANDROID_SHA256HASH", "AA:BB")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANDROID")
}

func TestDecodeBase64OrPlain(t *testing.T) {
	plain, err := DecodeBase64OrPlain("plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", plain)

	decoded, err := DecodeBase64OrPlain("base64:" + base64.StdEncoding.EncodeToString([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded)

	_, err = DecodeBase64OrPlain("base64:" + strings.Repeat("!", 4))
	assert.Error(t, err)
}
