package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	"github.com/StricklySoft/agentcore-gateway/pkg/config"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"
)

func validConfig() Config {
	cfg := Config{Auth: auth.DefaultConfig()}
	cfg.Auth.UserPoolID = "us-east-1_Pool"
	cfg.Auth.ClientID = "client-1"
	return cfg.withDefaults()
}

// ===========================================================================
// Validate
// ===========================================================================

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no user pool or issuer", func(c *Config) { c.Auth.UserPoolID = "" }, true},
		{"empty addr", func(c *Config) { c.Addr = "" }, true},
		{"negative grace period", func(c *Config) { c.ShutdownGracePeriod = -time.Second }, true},
		{"valid servers", func(c *Config) {
			c.Servers = []mcpclient.ServerConfig{{Name: "search", URL: "https://a/mcp"}, {Name: "kb", URL: "https://b/mcp"}}
		}, false},
		{"invalid server", func(c *Config) {
			c.Servers = []mcpclient.ServerConfig{{Name: "Search", URL: "https://a/mcp"}}
		}, true},
		{"duplicate server", func(c *Config) {
			c.Servers = []mcpclient.ServerConfig{{Name: "search", URL: "https://a/mcp"}, {Name: "search", URL: "https://b/mcp"}}
		}, true},
		{"sessions inherit pool", func(c *Config) { c.Sessions.Enabled = true }, false},
		{"sessions with malformed pool", func(c *Config) {
			c.Sessions.Enabled = true
			c.Cognito.UserPoolID = "nounderscore"
		}, true},
		{"sessions in redis", func(c *Config) {
			c.Sessions.Enabled = true
			c.Sessions.Store = StoreRedis
		}, false},
		{"redis with bad port", func(c *Config) {
			c.Sessions.Enabled = true
			c.Sessions.Store = StoreRedis
			c.Redis.Port = 70000
		}, true},
		{"unknown store", func(c *Config) {
			c.Sessions.Enabled = true
			c.Sessions.Store = "etcd"
		}, true},
		{"unknown store ignored without sessions", func(c *Config) { c.Sessions.Store = "etcd" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, sserr.IsValidation(err), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateFillsCognitoFromAuth(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Auth.Region = "eu-west-2"
	cfg.Sessions.Enabled = true
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "us-east-1_Pool", cfg.Cognito.UserPoolID)
	assert.Equal(t, "client-1", cfg.Cognito.ClientID)
	assert.Equal(t, "eu-west-2", cfg.Cognito.Region)
}

// ===========================================================================
// Loading
// ===========================================================================

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"GATEWAY_COGNITO_USER_POOL_ID":  "us-east-1_Pool",
		"GATEWAY_COGNITO_CLIENT_ID":     "client-1",
		"GATEWAY_COGNITO_CLIENT_SECRET": "s3cret",
		"GATEWAY_ADDR":                  ":9090",
		"GATEWAY_RATE_LIMIT_REQUESTS":   "5",
		"GATEWAY_SESSIONS_ENABLED":      "true",
		"GATEWAY_SESSIONS_STORE":        "redis",
		"GATEWAY_REDIS_HOST":            "redis.internal",
		"GATEWAY_MCP_FORWARD_TOKEN":     "false",
		"GATEWAY_SHUTDOWN_GRACE_PERIOD": "3s",
		"GATEWAY_AUTH_BYPASS_PATHS":     "/health, /metrics",
		"GATEWAY_MCP_HEALTH_INTERVAL":   "1m",
		"GATEWAY_COGNITO_SESSION_TTL":   "24h",
		"GATEWAY_SESSIONS_KEY_PREFIX":   "gw:",
		"GATEWAY_AUTH_FETCH_ATTEMPTS":   "2",
		"GATEWAY_RATE_LIMIT_WINDOW":     "10s",
		"GATEWAY_LOG_LEVEL":             "debug",
		"GATEWAY_READ_HEADER_TIMEOUT":   "2s",
	}

	var cfg Config
	err := config.New().WithEnvPrefix("GATEWAY").WithLookup(config.MapLookup(env)).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 2*time.Second, cfg.ReadHeaderTimeout)

	assert.Equal(t, "us-east-1_Pool", cfg.Auth.UserPoolID, "shared with the cognito section")
	assert.Equal(t, "us-east-1_Pool", cfg.Cognito.UserPoolID)
	assert.Equal(t, "s3cret", cfg.Cognito.ClientSecret.Value())
	assert.Equal(t, []string{"/health", "/metrics"}, cfg.Auth.BypassPaths)
	assert.Equal(t, 2, cfg.Auth.FetchAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Cognito.SessionTTL)

	assert.Equal(t, 5, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.True(t, cfg.RateLimit.Enabled())

	assert.True(t, cfg.Sessions.Enabled)
	assert.Equal(t, StoreRedis, cfg.Sessions.Store)
	assert.Equal(t, "gw:", cfg.Sessions.KeyPrefix)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)

	assert.False(t, cfg.ForwardToken)
	assert.Equal(t, time.Minute, cfg.HealthInterval)
	assert.Empty(t, cfg.Servers)
}

func TestConfig_LoadFromYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":7070"
auth:
  user_pool_id: us-west-2_Pool
  client_id: client-yaml
  region: us-west-2
servers:
  - name: search
    url: https://search.internal/mcp
    timeout: 5s
  - name: kb
    url: https://kb.internal/mcp
    attempts: 1
sessions:
  enabled: false
`), 0o600))

	var cfg Config
	err := config.New().
		WithEnvPrefix("GATEWAY").
		WithFile(path).
		WithLookup(config.MapLookup(map[string]string{"GATEWAY_ADDR": ":6060"})).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Addr, "environment wins over the file")
	assert.Equal(t, "us-west-2_Pool", cfg.Auth.UserPoolID)
	assert.Equal(t, "https://cognito-idp.us-west-2.amazonaws.com/us-west-2_Pool", cfg.Auth.ResolvedIssuer())
	assert.True(t, cfg.ForwardToken, "default applies when the file omits it")

	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "search", cfg.Servers[0].Name)
	assert.Equal(t, 5*time.Second, cfg.Servers[0].Timeout)
	assert.Equal(t, 1, cfg.Servers[1].Attempts)
}

func TestConfig_LoadRejectsDuplicateServers(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  user_pool_id: us-east-1_Pool
servers:
  - {name: search, url: "https://a/mcp"}
  - {name: search, url: "https://b/mcp"}
`), 0o600))

	var cfg Config
	err := config.New().WithFile(path).WithLookup(config.MapLookup(nil)).Load(&cfg)
	assert.True(t, sserr.IsValidation(err), "got %v", err)
}

// ===========================================================================
// Derived settings
// ===========================================================================

func TestConfig_TokenSource(t *testing.T) {
	t.Parallel()
	ctx := mcpclient.ContextWithBearerToken(context.Background(), "caller-token")

	tests := []struct {
		name    string
		forward bool
		service auth.Secret
		want    string
		wantNil bool
	}{
		{"forwarded", true, "", "caller-token", false},
		{"service token wins", true, "svc-token", "svc-token", false},
		{"service token only", false, "svc-token", "svc-token", false},
		{"none", false, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{ForwardToken: tt.forward, ServiceToken: tt.service}
			ts := cfg.tokenSource()
			if tt.wantNil {
				assert.Nil(t, ts)
				return
			}
			got, err := ts.Token(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_BypassPaths(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	assert.Equal(t, auth.DefaultBypassPaths, cfg.bypassPaths())

	cfg.Auth.BypassPaths = []string{"/health"}
	cfg.Sessions.Enabled = true
	assert.Equal(t, []string{"/health", "/auth/login", "/auth/refresh"}, cfg.bypassPaths())
	assert.Equal(t, []string{"/health"}, cfg.Auth.BypassPaths, "configured list is not modified")
}
