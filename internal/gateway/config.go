package gateway

import (
	"time"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	"github.com/StricklySoft/agentcore-gateway/pkg/clients/redis"
	"github.com/StricklySoft/agentcore-gateway/pkg/cognito"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/httpx"
	"github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// SessionsConfig enables the /auth endpoints, which log users in against
// Cognito and keep their tokens in a session store.
type SessionsConfig struct {
	Enabled   bool   `env:"ENABLED" yaml:"enabled" json:"enabled"`
	Store     string `env:"STORE" envDefault:"memory" yaml:"store" json:"store"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"gateway:session:" yaml:"key_prefix" json:"key_prefix"`
}

// Config is the gateway configuration. It is loaded with the "GATEWAY"
// prefix, so Addr comes from GATEWAY_ADDR and the user pool id from
// GATEWAY_COGNITO_USER_POOL_ID. MCP servers can only be listed in the
// configuration file.
type Config struct {
	Env       string `env:"ENV" envDefault:"dev" yaml:"env" json:"env"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level" json:"log_level"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" yaml:"log_format" json:"log_format"`

	Addr                string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	ReadHeaderTimeout   time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s" yaml:"shutdown_grace_period" json:"shutdown_grace_period"`

	Auth      auth.Config           `yaml:"auth" json:"auth"`
	RateLimit httpx.RateLimitConfig `env:"RATE_LIMIT" yaml:"rate_limit" json:"rate_limit"`

	Servers []mcpclient.ServerConfig `yaml:"servers" json:"servers"`

	// ForwardToken sends the caller's bearer token to MCP servers.
	ForwardToken bool `env:"MCP_FORWARD_TOKEN" envDefault:"true" yaml:"forward_token" json:"forward_token"`

	// ServiceToken, when set, is sent to MCP servers instead of the
	// caller's token.
	ServiceToken auth.Secret `env:"MCP_SERVICE_TOKEN" yaml:"service_token" json:"service_token,omitempty"`

	HealthInterval time.Duration `env:"MCP_HEALTH_INTERVAL" envDefault:"30s" yaml:"health_interval" json:"health_interval"`

	Sessions SessionsConfig `env:"SESSIONS" yaml:"sessions" json:"sessions"`
	Cognito  cognito.Config `yaml:"cognito" json:"cognito"`
	Redis    redis.Config   `yaml:"redis" json:"redis"`
}

// Validate implements config.Validator. The Cognito section inherits the
// user pool, app client and region of the Auth section when it leaves
// them empty.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return sserr.Validation("gateway: listen address is required")
	}
	if c.ReadHeaderTimeout < 0 || c.ShutdownGracePeriod < 0 || c.HealthInterval < 0 {
		return sserr.Validation("gateway: timeouts must not be negative")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		if err := c.Servers[i].Validate(); err != nil {
			return err
		}
		if seen[c.Servers[i].Name] {
			return sserr.Validationf("gateway: server %q is configured twice", c.Servers[i].Name)
		}
		seen[c.Servers[i].Name] = true
	}

	if !c.Sessions.Enabled {
		return nil
	}
	if c.Cognito.UserPoolID == "" {
		c.Cognito.UserPoolID = c.Auth.UserPoolID
	}
	if c.Cognito.ClientID == "" {
		c.Cognito.ClientID = c.Auth.ClientID
	}
	if c.Cognito.Region == "" {
		c.Cognito.Region = c.Auth.Region
	}
	if err := c.Cognito.Validate(); err != nil {
		return err
	}
	switch c.Sessions.Store {
	case StoreMemory, "":
	case StoreRedis:
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "gateway: invalid redis configuration")
		}
	default:
		return sserr.Validationf("gateway: session store must be %q or %q, got %q",
			StoreMemory, StoreRedis, c.Sessions.Store)
	}
	return nil
}

// tokenSource picks how MCP servers are authenticated.
func (c *Config) tokenSource() mcpclient.TokenSource {
	switch {
	case c.ServiceToken != "":
		return mcpclient.StaticToken(c.ServiceToken.Value())
	case c.ForwardToken:
		return mcpclient.ForwardedToken()
	default:
		return nil
	}
}

// bypassPaths is the configured bypass list plus the session endpoints
// that run before a user has a token.
func (c *Config) bypassPaths() []string {
	paths := append([]string(nil), c.Auth.BypassPaths...)
	if len(paths) == 0 {
		paths = append(paths, auth.DefaultBypassPaths...)
	}
	if c.Sessions.Enabled {
		paths = append(paths, "/auth/login", "/auth/refresh")
	}
	return paths
}
