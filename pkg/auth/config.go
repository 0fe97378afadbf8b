package auth

import (
	"fmt"
	"strings"
	"time"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// secretRedacted is the placeholder used by every Secret formatter.
const secretRedacted = "[REDACTED]"

// Secret is a string that never appears in logs, fmt output or JSON.
// Call Value to get the underlying string.
type Secret string

// String implements fmt.Stringer and always returns "[REDACTED]".
func (s Secret) String() string { return secretRedacted }

// GoString implements fmt.GoStringer so that %#v is redacted too.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret. Use it only where the secret is sent to
// the provider.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler. JSON encoders call it, so
// the secret is redacted when a config struct is serialized.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// Token use values of the Cognito token_use claim.
const (
	TokenUseAccess = "access"
	TokenUseID     = "id"
)

// Default values for [Config].
const (
	DefaultRegion          = "us-east-1"
	DefaultTokenUse        = TokenUseAccess
	DefaultAlgorithm       = "RS256"
	DefaultJWKSCacheTTL    = time.Hour
	DefaultMinRefresh      = 30 * time.Second
	DefaultHTTPDialTimeout = 10 * time.Second
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultFetchAttempts   = 3
)

// DefaultBypassPaths are served without authentication.
var DefaultBypassPaths = []string{"/health", "/docs", "/metrics"}

// maxTokenSize is the maximum accepted size for a JWT token string (8 KiB).
const maxTokenSize = 8192

// supportedAlgorithms lists the signing algorithms a Cognito JWKS can serve.
var supportedAlgorithms = map[string]bool{
	"RS256": true,
	"RS384": true,
	"RS512": true,
}

// Config configures token validation against a Cognito user pool. Either
// UserPoolID (with Region) or an explicit Issuer must be set; the discovery
// and JWKS URLs are derived from the issuer unless given directly.
//
// With the loader prefix "GATEWAY", UserPoolID is read from
// GATEWAY_COGNITO_USER_POOL_ID and JWKSURI from GATEWAY_AUTH_JWKS_URI.
type Config struct {
	UserPoolID string `env:"COGNITO_USER_POOL_ID" yaml:"user_pool_id" json:"user_pool_id"`
	ClientID   string `env:"COGNITO_CLIENT_ID" yaml:"client_id" json:"client_id"`
	Region     string `env:"COGNITO_REGION" envDefault:"us-east-1" yaml:"region" json:"region"`

	// DiscoveryURL overrides <issuer>/.well-known/openid-configuration.
	DiscoveryURL string `env:"AUTH_DISCOVERY_URL" yaml:"discovery_url" json:"discovery_url,omitempty"`

	// JWKSURI skips discovery entirely when set.
	JWKSURI string `env:"AUTH_JWKS_URI" yaml:"jwks_uri" json:"jwks_uri,omitempty"`

	// Issuer overrides the issuer derived from Region and UserPoolID.
	Issuer string `env:"AUTH_ISSUER" yaml:"issuer" json:"issuer,omitempty"`

	// TokenUse is the required token_use claim, "access" or "id".
	TokenUse string `env:"AUTH_TOKEN_USE" envDefault:"access" yaml:"token_use" json:"token_use"`

	Algorithm string `env:"AUTH_ALGORITHM" envDefault:"RS256" yaml:"algorithm" json:"algorithm"`

	// Audience is compared with client_id (access tokens) or aud (ID
	// tokens). Defaults to ClientID.
	Audience string `env:"AUTH_AUDIENCE" yaml:"audience" json:"audience,omitempty"`

	BypassPaths []string `env:"AUTH_BYPASS_PATHS" envDefault:"/health,/docs,/metrics" yaml:"bypass_paths" json:"bypass_paths"`

	JWKSCacheTTL time.Duration `env:"AUTH_JWKS_CACHE_TTL" envDefault:"1h" yaml:"jwks_cache_ttl" json:"jwks_cache_ttl"`

	// MinRefreshInterval spaces out refreshes forced by an unknown kid.
	// Refreshes due to JWKSCacheTTL are not held back.
	MinRefreshInterval time.Duration `env:"AUTH_JWKS_MIN_REFRESH_INTERVAL" envDefault:"30s" yaml:"jwks_min_refresh_interval" json:"jwks_min_refresh_interval"`

	// ClockSkew is the leeway applied to the exp check.
	ClockSkew time.Duration `env:"AUTH_CLOCK_SKEW" envDefault:"0s" yaml:"clock_skew" json:"clock_skew"`

	HTTPDialTimeout time.Duration `env:"AUTH_HTTP_DIAL_TIMEOUT" envDefault:"10s" yaml:"http_dial_timeout" json:"http_dial_timeout"`
	HTTPTimeout     time.Duration `env:"AUTH_HTTP_TIMEOUT" envDefault:"30s" yaml:"http_timeout" json:"http_timeout"`

	// FetchAttempts bounds the retries of discovery and JWKS fetches.
	FetchAttempts int `env:"AUTH_FETCH_ATTEMPTS" envDefault:"3" yaml:"fetch_attempts" json:"fetch_attempts"`
}

// DefaultConfig returns a Config with every default filled in. The user
// pool, client id and audience are left empty.
func DefaultConfig() Config {
	return Config{
		Region:             DefaultRegion,
		TokenUse:           DefaultTokenUse,
		Algorithm:          DefaultAlgorithm,
		BypassPaths:        append([]string(nil), DefaultBypassPaths...),
		JWKSCacheTTL:       DefaultJWKSCacheTTL,
		MinRefreshInterval: DefaultMinRefresh,
		HTTPDialTimeout:    DefaultHTTPDialTimeout,
		HTTPTimeout:        DefaultHTTPTimeout,
		FetchAttempts:      DefaultFetchAttempts,
	}
}

// Validate checks the configuration and returns a *[sserr.Error] with code
// [sserr.CodeValidation] for the first invalid field.
func (c *Config) Validate() error {
	if c.Issuer == "" && c.UserPoolID == "" {
		return sserr.Validation("auth: either issuer or user pool id is required")
	}
	if c.Issuer == "" && c.Region == "" {
		return sserr.Validation("auth: region is required to derive the issuer")
	}
	if c.TokenUse != TokenUseAccess && c.TokenUse != TokenUseID {
		return sserr.Validationf("auth: token use must be %q or %q, got %q", TokenUseAccess, TokenUseID, c.TokenUse)
	}
	if !supportedAlgorithms[c.Algorithm] {
		return sserr.Validationf("auth: unsupported signing algorithm %q", c.Algorithm)
	}
	if c.JWKSCacheTTL < 0 {
		return sserr.Validation("auth: JWKS cache TTL must be non-negative")
	}
	if c.MinRefreshInterval < 0 {
		return sserr.Validation("auth: JWKS minimum refresh interval must be non-negative")
	}
	if c.ClockSkew < 0 {
		return sserr.Validation("auth: clock skew must be non-negative")
	}
	if c.HTTPDialTimeout < 0 || c.HTTPTimeout < 0 {
		return sserr.Validation("auth: HTTP timeouts must be non-negative")
	}
	if c.FetchAttempts < 0 {
		return sserr.Validation("auth: fetch attempts must be non-negative")
	}
	return nil
}

// ResolvedIssuer returns Issuer as configured, or the Cognito issuer for
// the user pool: https://cognito-idp.<region>.amazonaws.com/<pool>. The
// iss claim must equal it exactly.
func (c *Config) ResolvedIssuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// issuerBase is the issuer without a trailing slash, for building URLs.
func (c *Config) issuerBase() string {
	return strings.TrimRight(c.ResolvedIssuer(), "/")
}

// ResolvedDiscoveryURL returns DiscoveryURL or the issuer's
// .well-known/openid-configuration document.
func (c *Config) ResolvedDiscoveryURL() string {
	if c.DiscoveryURL != "" {
		return c.DiscoveryURL
	}
	return c.issuerBase() + "/.well-known/openid-configuration"
}

// CognitoJWKSURI returns the JWKS location Cognito publishes for the
// issuer. The key manager falls back to it when JWKSURI is unset and
// discovery fails.
func (c *Config) CognitoJWKSURI() string {
	return c.issuerBase() + "/.well-known/jwks.json"
}

// ResolvedAudience returns Audience, falling back to ClientID.
func (c *Config) ResolvedAudience() string {
	if c.Audience != "" {
		return c.Audience
	}
	return c.ClientID
}

// withDefaults fills zero-valued tunables.
func (c Config) withDefaults() Config {
	if c.TokenUse == "" {
		c.TokenUse = DefaultTokenUse
	}
	if c.Algorithm == "" {
		c.Algorithm = DefaultAlgorithm
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.JWKSCacheTTL == 0 {
		c.JWKSCacheTTL = DefaultJWKSCacheTTL
	}
	if c.MinRefreshInterval == 0 {
		c.MinRefreshInterval = DefaultMinRefresh
	}
	if c.HTTPDialTimeout == 0 {
		c.HTTPDialTimeout = DefaultHTTPDialTimeout
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.FetchAttempts == 0 {
		c.FetchAttempts = DefaultFetchAttempts
	}
	return c
}
