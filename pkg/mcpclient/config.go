// Package mcpclient is a JSON-RPC client for MCP (Model Context Protocol)
// tool servers reached over the streamable HTTP transport.
//
// A [Client] talks to one server. It performs the initialize handshake
// lazily on first use, keeps the Mcp-Session-Id the server hands out, and
// accepts both plain JSON and text/event-stream responses. Every call runs
// through a [resilience.Policy], so transient failures are retried and a
// failing server trips its circuit breaker instead of tying up callers.
//
// A [Manager] owns the clients for every configured server and checks
// them in the background:
//
//	mgr, err := mcpclient.NewManager(cfg.Servers,
//	    mcpclient.WithTokenSource(mcpclient.ForwardedToken()),
//	)
//	go mgr.Run(ctx)
//
//	client, err := mgr.Get("search")
//	result, err := client.CallTool(ctx, "lookup", json.RawMessage(`{"q":"ramen"}`))
package mcpclient

import (
	"net/url"
	"regexp"
	"time"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Defaults for [ServerConfig].
const (
	DefaultTimeout          = 30 * time.Second
	DefaultDialTimeout      = 10 * time.Second
	DefaultAttempts         = 3
	DefaultBreakerThreshold = 5
	DefaultBreakerCoolDown  = 30 * time.Second
)

var serverNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ServerConfig describes one downstream MCP server. Servers are configured
// from the gateway's config file; there are no environment variables for
// them.
type ServerConfig struct {
	// Name identifies the server in routes, metrics and logs.
	Name string `yaml:"name" json:"name"`

	// URL is the server's MCP endpoint, e.g. https://search.internal/mcp.
	URL string `yaml:"url" json:"url"`

	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// Attempts bounds the calls made for one operation, including the
	// first.
	Attempts int `yaml:"attempts" json:"attempts"`

	BreakerThreshold uint32        `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerCoolDown  time.Duration `yaml:"breaker_cool_down" json:"breaker_cool_down"`
}

// Validate checks the configuration. Zero durations and counts are valid
// and take the defaults.
func (c *ServerConfig) Validate() error {
	if !serverNamePattern.MatchString(c.Name) {
		return sserr.Validationf("mcpclient: server name %q must be lowercase letters, digits, '-' or '_'", c.Name)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return sserr.Validationf("mcpclient: server %q needs an absolute http(s) URL", c.Name)
	}
	if c.Timeout < 0 || c.DialTimeout < 0 || c.Attempts < 0 || c.BreakerCoolDown < 0 {
		return sserr.Validationf("mcpclient: server %q has a negative timeout or count", c.Name)
	}
	return nil
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerCoolDown == 0 {
		c.BreakerCoolDown = DefaultBreakerCoolDown
	}
	return c
}
