// Package gateway assembles the AgentCore gateway: Cognito token
// validation in front of a REST facade over the configured MCP servers,
// optional Cognito login sessions, health, metrics and API docs.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	"github.com/StricklySoft/agentcore-gateway/pkg/clients/redis"
	"github.com/StricklySoft/agentcore-gateway/pkg/cognito"
	"github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
	"github.com/StricklySoft/agentcore-gateway/pkg/slogx"
)

// ServiceName identifies the gateway in logs and in the MCP handshake.
const ServiceName = "agentcore-gateway"

// Version should be set at build time via ldflags.
var Version = "v0.1.0"

// Config defaults applied by [New] to zero fields.
const (
	DefaultAddr                = ":8080"
	DefaultReadHeaderTimeout   = 10 * time.Second
	DefaultShutdownGracePeriod = 10 * time.Second
)

// Option customises an [App].
type Option func(*options)

type options struct {
	logger         *slog.Logger
	clock          clock.Clock
	tracerProvider trace.TracerProvider
	authOpts       []auth.Option
	mcpOpts        []mcpclient.Option
	cognitoOpts    []cognito.Option
}

// WithLogger sets the logger. By default one is built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock shared by the key cache, breakers, health
// checks and the memory session store.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTracerProvider sets the provider every component creates spans from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithAuthOptions passes extra options to the key manager and validator.
func WithAuthOptions(opts ...auth.Option) Option {
	return func(o *options) { o.authOpts = append(o.authOpts, opts...) }
}

// WithMCPOptions passes extra options to the MCP server manager.
func WithMCPOptions(opts ...mcpclient.Option) Option {
	return func(o *options) { o.mcpOpts = append(o.mcpOpts, opts...) }
}

// WithCognitoOptions passes extra options to the session authenticator.
func WithCognitoOptions(opts ...cognito.Option) Option {
	return func(o *options) { o.cognitoOpts = append(o.cognitoOpts, opts...) }
}

// App is the gateway application with all its dependencies.
type App struct {
	cfg       Config
	logger    *slog.Logger
	clock     clock.Clock
	startTime time.Time

	keys      *auth.KeyManager
	validator *auth.Validator
	servers   *mcpclient.Manager

	// sessions is nil unless Config.Sessions.Enabled.
	sessions *cognito.Authenticator
	// redis is nil unless sessions are kept in Redis.
	redis *redis.Client

	authMetrics *auth.Collector
	registry    *prometheus.Registry

	handler http.Handler
	server  *http.Server
}

// New builds the application. No network I/O happens except connecting
// to Redis when sessions are kept there.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.withDefaults()
	if o.logger == nil {
		o.logger = slogx.New(slogx.Config{
			Service: ServiceName,
			Version: Version,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{
		cfg:         cfg,
		logger:      o.logger,
		clock:       o.clock,
		startTime:   o.clock.Now(),
		authMetrics: auth.NewMetricsCollector(),
	}

	if err := app.initAuth(o); err != nil {
		return nil, err
	}
	mcpMetrics := mcpclient.NewMetricsCollector()
	if err := app.initServers(o, mcpMetrics); err != nil {
		return nil, err
	}
	if cfg.Sessions.Enabled {
		if err := app.initSessions(ctx, o); err != nil {
			return nil, err
		}
	}

	app.registry = newRegistry(app.authMetrics, mcpMetrics, app.breakers)
	app.handler = app.routes()
	app.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}
	return app, nil
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.ShutdownGracePeriod == 0 {
		c.ShutdownGracePeriod = DefaultShutdownGracePeriod
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = mcpclient.DefaultHealthInterval
	}
	if c.Sessions.Store == "" {
		c.Sessions.Store = StoreMemory
	}
	return c
}

func (app *App) initAuth(o options) error {
	opts := []auth.Option{
		auth.WithClock(o.clock),
		auth.WithMetrics(app.authMetrics),
		auth.WithLogger(app.logger),
	}
	if o.tracerProvider != nil {
		opts = append(opts, auth.WithTracerProvider(o.tracerProvider))
	}
	opts = append(opts, o.authOpts...)

	app.keys = auth.NewKeyManager(app.cfg.Auth, opts...)
	validator, err := auth.NewValidator(app.cfg.Auth, app.keys, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize token validator: %w", err)
	}
	app.validator = validator
	return nil
}

func (app *App) initServers(o options, metrics *mcpclient.Collector) error {
	opts := []mcpclient.Option{
		mcpclient.WithTokenSource(app.cfg.tokenSource()),
		mcpclient.WithMetrics(metrics),
		mcpclient.WithLogger(app.logger),
		mcpclient.WithClock(o.clock),
		mcpclient.WithHealthChecks(app.cfg.HealthInterval, 0, 0),
	}
	if o.tracerProvider != nil {
		opts = append(opts, mcpclient.WithTracerProvider(o.tracerProvider))
	}
	opts = append(opts, o.mcpOpts...)

	servers, err := mcpclient.NewManager(app.cfg.Servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP servers: %w", err)
	}
	app.servers = servers
	return nil
}

func (app *App) initSessions(ctx context.Context, o options) error {
	var store cognito.TokenStore = cognito.NewMemoryStore(o.clock)
	if app.cfg.Sessions.Store == StoreRedis {
		client, err := redis.NewClient(ctx, app.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect session store: %w", err)
		}
		app.redis = client
		store = cognito.NewRedisStore(client, app.cfg.Sessions.KeyPrefix)
	}

	opts := []cognito.Option{
		cognito.WithStore(store),
		cognito.WithClock(o.clock),
		cognito.WithLogger(app.logger),
	}
	if o.tracerProvider != nil {
		opts = append(opts, cognito.WithTracerProvider(o.tracerProvider))
	}
	opts = append(opts, o.cognitoOpts...)

	sessions, err := cognito.New(ctx, app.cfg.Cognito, opts...)
	if err != nil {
		if app.redis != nil {
			_ = app.redis.Close()
		}
		return fmt.Errorf("failed to initialize Cognito sessions: %w", err)
	}
	app.sessions = sessions
	return nil
}

// breakers returns every circuit breaker in the gateway.
func (app *App) breakers() []*resilience.Breaker {
	all := []*resilience.Breaker{app.keys.Breaker()}
	if app.sessions != nil {
		all = append(all, app.sessions.Breaker())
	}
	all = append(all, app.servers.Breakers()...)

	out := all[:0]
	for _, b := range all {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Handler returns the root handler with the full middleware chain.
func (app *App) Handler() http.Handler {
	return app.handler
}

// Registry returns the Prometheus registry served on /metrics.
func (app *App) Registry() *prometheus.Registry {
	return app.registry
}

// Run listens on Config.Addr and serves until ctx is done, then shuts down
// gracefully.
func (app *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.cfg.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve is like [App.Run] on an existing listener, which it closes.
func (app *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := app.keys.Refresh(ctx); err != nil {
		app.logger.WarnContext(ctx, "initial JWKS fetch failed, keys will load on first request", "error", err)
	}

	app.logger.Info("gateway starting",
		"addr", ln.Addr().String(),
		"version", Version,
		"servers", app.servers.Names(),
		"sessions", app.sessions != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.servers.Run(gctx)
	})
	g.Go(func() error {
		if err := app.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.Shutdown()
	})
	return g.Wait()
}

// Shutdown stops accepting requests, waits up to ShutdownGracePeriod for
// outstanding ones, ends the MCP sessions and closes the session store.
func (app *App) Shutdown() error {
	app.logger.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.servers.Close(ctx); err != nil {
		app.logger.Warn("error ending MCP sessions", "error", err)
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing session store", "error", err)
			return err
		}
	}

	app.logger.Info("gateway stopped")
	return nil
}
