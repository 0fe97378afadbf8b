// Package jwkstest runs an in-process OIDC issuer for tests: an httptest
// server publishing a discovery document and a JWKS, plus helpers to mint
// RS256 tokens signed by the published keys.
//
//	iss := jwkstest.NewIssuer(t)
//	token := iss.Token(t, iss.AccessClaims("user-1", "client-1", time.Hour))
//	cfg := auth.Config{Issuer: iss.URL(), ClientID: "client-1"}
package jwkstest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Paths served by the issuer.
const (
	DiscoveryPath = "/.well-known/openid-configuration"
	JWKSPath      = "/.well-known/jwks.json"
)

// Issuer is a fake token issuer. It is safe for concurrent use.
type Issuer struct {
	Server *httptest.Server

	mu   sync.RWMutex
	keys []signingKey // newest last

	jwksFetches      atomic.Int64
	discoveryFetches atomic.Int64
	failing          atomic.Bool
	noDiscovery      atomic.Bool
}

type signingKey struct {
	kid string
	key *rsa.PrivateKey
}

// NewIssuer starts an issuer with one 2048-bit RSA key. The server is
// closed when the test finishes.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	iss := &Issuer{}
	iss.Rotate(t)

	mux := http.NewServeMux()
	mux.HandleFunc(DiscoveryPath, iss.serveDiscovery)
	mux.HandleFunc(JWKSPath, iss.serveJWKS)
	iss.Server = httptest.NewServer(mux)
	t.Cleanup(iss.Server.Close)
	return iss
}

// URL is the issuer identifier (the server's base URL).
func (i *Issuer) URL() string { return i.Server.URL }

// JWKSURL is the absolute JWKS location.
func (i *Issuer) JWKSURL() string { return i.Server.URL + JWKSPath }

// KID returns the id of the newest key.
func (i *Issuer) KID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.keys[len(i.keys)-1].kid
}

// Rotate adds a new signing key. Older keys stay published.
func (i *Issuer) Rotate(t testing.TB) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")

	i.mu.Lock()
	defer i.mu.Unlock()
	kid := fmt.Sprintf("test-key-%d", len(i.keys)+1)
	i.keys = append(i.keys, signingKey{kid: kid, key: key})
	return kid
}

// SetFailing makes both endpoints answer 503 while true.
func (i *Issuer) SetFailing(failing bool) { i.failing.Store(failing) }

// SetDiscoveryMissing makes the discovery endpoint answer 404 while true.
// The JWKS stays published.
func (i *Issuer) SetDiscoveryMissing(missing bool) { i.noDiscovery.Store(missing) }

// JWKSFetches counts JWKS requests served (including failed ones).
func (i *Issuer) JWKSFetches() int { return int(i.jwksFetches.Load()) }

// DiscoveryFetches counts discovery requests served.
func (i *Issuer) DiscoveryFetches() int { return int(i.discoveryFetches.Load()) }

// AccessClaims returns Cognito-shaped access token claims.
func (i *Issuer) AccessClaims(sub, clientID string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":       sub,
		"iss":       i.URL(),
		"client_id": clientID,
		"token_use": "access",
		"username":  sub + "-name",
		"scope":     "aws.cognito.signin.user.admin",
		"auth_time": now.Unix(),
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}
}

// IDClaims returns Cognito-shaped ID token claims.
func (i *Issuer) IDClaims(sub, clientID string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":              sub,
		"iss":              i.URL(),
		"aud":              clientID,
		"token_use":        "id",
		"cognito:username": sub + "-name",
		"email":            sub + "@example.com",
		"auth_time":        now.Unix(),
		"iat":              now.Unix(),
		"exp":              now.Add(ttl).Unix(),
	}
}

// Token signs claims with the newest key.
func (i *Issuer) Token(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	i.mu.RLock()
	k := i.keys[len(i.keys)-1]
	i.mu.RUnlock()
	return SignRS256(t, k.key, k.kid, claims)
}

// SignRS256 creates an RS256-signed JWT with the given claims and kid.
// An empty kid leaves the header without one.
func SignRS256(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	s, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RSA token")
	return s
}

func (i *Issuer) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	i.discoveryFetches.Add(1)
	if i.failing.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if i.noDiscovery.Load() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"issuer":   i.URL(),
		"jwks_uri": i.JWKSURL(),
	})
}

func (i *Issuer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	i.jwksFetches.Add(1)
	if i.failing.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	i.mu.RLock()
	keys := make([]map[string]string, 0, len(i.keys))
	for _, k := range i.keys {
		keys = append(keys, JWK(k.kid, &k.key.PublicKey))
	}
	i.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}

// JWK renders an RSA public key as a JWKS entry.
func JWK(kid string, pub *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}
