// Package cognito authenticates users against an Amazon Cognito user pool.
//
// [Authenticator] implements the USER_SRP_AUTH flow (the password never
// leaves the process), the USER_PASSWORD_AUTH flow, refresh-token exchange
// and logout. Issued [Tokens] are kept in a [TokenStore], either in memory
// or in Redis.
//
// # SRP exchange
//
// Every SRP login walks the [SRPState] machine:
//
//	INIT → CHALLENGE_ISSUED → CLAIM_COMPUTED → AUTHENTICATED
//
// Any state may move to FAILED. Provider rejections surface as
// INVALID_CREDENTIALS and are never retried, so a wrong password cannot
// lock an account out through automatic retries. Transient transport
// failures are retried a bounded number of times.
//
// # OpenTelemetry Integration
//
// Every public operation creates a span. The tracer scope is
// "github.com/StricklySoft/agentcore-gateway/pkg/cognito".
package cognito

import (
	"strings"
	"time"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Default values for [Config].
const (
	DefaultRegion      = "us-east-1"
	DefaultDialTimeout = 10 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultAttempts    = 3
	DefaultSessionTTL  = 30 * 24 * time.Hour
)

// Config configures an [Authenticator]. With the loader prefix "GATEWAY",
// ClientSecret is read from GATEWAY_COGNITO_CLIENT_SECRET.
type Config struct {
	UserPoolID   string      `env:"COGNITO_USER_POOL_ID" yaml:"user_pool_id" json:"user_pool_id"`
	ClientID     string      `env:"COGNITO_CLIENT_ID" yaml:"client_id" json:"client_id"`
	ClientSecret auth.Secret `env:"COGNITO_CLIENT_SECRET" yaml:"client_secret" json:"client_secret,omitempty"`
	Region       string      `env:"COGNITO_REGION" envDefault:"us-east-1" yaml:"region" json:"region"`

	// Endpoint overrides the regional Cognito endpoint, for local
	// emulators and tests.
	Endpoint string `env:"COGNITO_ENDPOINT" yaml:"endpoint" json:"endpoint,omitempty"`

	DialTimeout time.Duration `env:"COGNITO_HTTP_DIAL_TIMEOUT" envDefault:"10s" yaml:"dial_timeout" json:"dial_timeout"`
	Timeout     time.Duration `env:"COGNITO_HTTP_TIMEOUT" envDefault:"30s" yaml:"timeout" json:"timeout"`

	// Attempts bounds the calls made for one step when the transport
	// fails. Credential rejections are never retried.
	Attempts int `env:"COGNITO_ATTEMPTS" envDefault:"3" yaml:"attempts" json:"attempts"`

	// SessionTTL is how long a stored session outlives its login. It
	// should match the app client's refresh token validity.
	SessionTTL time.Duration `env:"COGNITO_SESSION_TTL" envDefault:"720h" yaml:"session_ttl" json:"session_ttl"`
}

// Validate checks the configuration and returns a *[sserr.Error] with code
// [sserr.CodeValidation] for the first invalid field.
func (c *Config) Validate() error {
	if c.UserPoolID == "" {
		return sserr.Validation("cognito: user pool id is required")
	}
	if c.poolName() == "" {
		return sserr.Validationf("cognito: user pool id %q must have the form <region>_<id>", c.UserPoolID)
	}
	if c.ClientID == "" {
		return sserr.Validation("cognito: client id is required")
	}
	if c.Region == "" {
		return sserr.Validation("cognito: region is required")
	}
	if c.DialTimeout < 0 || c.Timeout < 0 {
		return sserr.Validation("cognito: timeouts must not be negative")
	}
	if c.Attempts < 0 {
		return sserr.Validation("cognito: attempts must not be negative")
	}
	if c.SessionTTL < 0 {
		return sserr.Validation("cognito: session TTL must not be negative")
	}
	return nil
}

// poolName is the part of the user pool id after the region, used in SRP
// hashes.
func (c *Config) poolName() string {
	_, name, ok := strings.Cut(c.UserPoolID, "_")
	if !ok {
		return ""
	}
	return name
}

// AuthConfig returns the validator configuration for tokens issued by the
// same pool and app client.
func (c *Config) AuthConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.UserPoolID = c.UserPoolID
	cfg.ClientID = c.ClientID
	cfg.Region = c.Region
	return cfg
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	return c
}
