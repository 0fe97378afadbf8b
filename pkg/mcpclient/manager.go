package mcpclient

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
)

// Health check defaults.
const (
	DefaultHealthInterval = 30 * time.Second
	DefaultHealthRetry    = time.Second
	DefaultHealthTimeout  = 5 * time.Second
)

type healthOptions struct {
	interval time.Duration
	retry    time.Duration
	timeout  time.Duration
}

func defaultHealthOptions() healthOptions {
	return healthOptions{
		interval: DefaultHealthInterval,
		retry:    DefaultHealthRetry,
		timeout:  DefaultHealthTimeout,
	}
}

// WithHealthChecks sets how often [Manager.Run] pings a healthy server,
// the first delay before pinging a failing one again, and the timeout of a
// single check. Failing servers are checked with exponential backoff
// capped at interval. Zero values keep the defaults.
func WithHealthChecks(interval, retry, timeout time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.health.interval = interval
		}
		if retry > 0 {
			o.health.retry = retry
		}
		if timeout > 0 {
			o.health.timeout = timeout
		}
	}
}

// HealthStatus is the result of the latest health check of a server.
type HealthStatus string

const (
	StatusUnknown   HealthStatus = "unknown"
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// ServerHealth is a snapshot of one server's health.
type ServerHealth struct {
	Name                string                   `json:"name"`
	URL                 string                   `json:"url"`
	Status              HealthStatus             `json:"status"`
	ServerName          string                   `json:"server_name,omitempty"`
	ProtocolVersion     string                   `json:"protocol_version,omitempty"`
	LastCheck           time.Time                `json:"last_check,omitzero"`
	LastError           string                   `json:"last_error,omitempty"`
	ConsecutiveFailures int                      `json:"consecutive_failures"`
	Breaker             *resilience.BreakerState `json:"breaker,omitempty"`
}

// Manager owns one [Client] per configured server. Clients initialize
// lazily on first use; [Manager.Run] checks them in the background.
type Manager struct {
	order   []string
	clients map[string]*Client
	opts    options

	mu     sync.RWMutex
	health map[string]*ServerHealth
}

// NewManager creates clients for cfgs. Server names must be unique. opts
// apply to every client except [WithPolicy]: each server gets its own
// breaker.
func NewManager(cfgs []ServerConfig, opts ...Option) (*Manager, error) {
	m := &Manager{
		clients: make(map[string]*Client, len(cfgs)),
		opts:    buildOptions(opts),
		health:  make(map[string]*ServerHealth, len(cfgs)),
	}
	clientOpts := append(slices.Clone(opts), WithPolicy(nil))
	for _, cfg := range cfgs {
		if _, dup := m.clients[cfg.Name]; dup {
			return nil, sserr.Validationf("mcpclient: server %q is configured twice", cfg.Name)
		}
		client, err := New(cfg, clientOpts...)
		if err != nil {
			return nil, err
		}
		m.order = append(m.order, cfg.Name)
		m.clients[cfg.Name] = client
		m.health[cfg.Name] = &ServerHealth{Name: cfg.Name, URL: cfg.URL, Status: StatusUnknown}
	}
	return m, nil
}

// Names returns the server names in configuration order.
func (m *Manager) Names() []string {
	return slices.Clone(m.order)
}

// Get returns the client for name.
func (m *Manager) Get(name string) (*Client, error) {
	client, ok := m.clients[name]
	if !ok {
		return nil, sserr.Newf(sserr.CodeNotFoundServer, "no MCP server named %q", name).
			WithDetail("server", name)
	}
	return client, nil
}

// Breakers returns the breaker of every client, in configuration order.
func (m *Manager) Breakers() []*resilience.Breaker {
	out := make([]*resilience.Breaker, 0, len(m.order))
	for _, name := range m.order {
		if b := m.clients[name].Breaker(); b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Health returns a snapshot of every server without probing.
func (m *Manager) Health() []ServerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerHealth, 0, len(m.order))
	for _, name := range m.order {
		h := *m.health[name]
		client := m.clients[name]
		if info := client.ServerInfo(); info != nil {
			h.ServerName = info.ServerInfo.Name
			h.ProtocolVersion = info.ProtocolVersion
		}
		if b := client.Breaker(); b != nil {
			snap := b.Snapshot()
			h.Breaker = &snap
		}
		out = append(out, h)
	}
	return out
}

// Check pings every server once, concurrently, and returns the updated
// snapshot.
func (m *Manager) Check(ctx context.Context) []ServerHealth {
	var wg sync.WaitGroup
	for _, name := range m.order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.check(ctx, name)
		}()
	}
	wg.Wait()
	return m.Health()
}

// Run checks every server until ctx is done. A healthy server is pinged
// every interval; a failing one sooner, backing off exponentially.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range m.order {
		g.Go(func() error {
			m.checkLoop(ctx, name)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) checkLoop(ctx context.Context, name string) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.health.retry
	b.MaxInterval = m.opts.health.interval
	b.MaxElapsedTime = 0
	b.Clock = m.opts.clock
	b.Reset()

	for {
		delay := m.opts.health.interval
		if err := m.check(ctx, name); err != nil {
			delay = b.NextBackOff()
		} else {
			b.Reset()
		}
		select {
		case <-ctx.Done():
			return
		case <-m.opts.clock.After(delay):
		}
	}
}

// check pings one server and records the outcome. A check cut short by
// ctx is not recorded.
func (m *Manager) check(ctx context.Context, name string) error {
	checkCtx, cancel := context.WithTimeout(ctx, m.opts.health.timeout)
	defer cancel()

	err := m.clients[name].Ping(checkCtx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	m.mu.Lock()
	h := m.health[name]
	previous := h.Status
	h.LastCheck = m.opts.clock.Now()
	if err != nil {
		h.Status = StatusUnhealthy
		h.LastError = err.Error()
		h.ConsecutiveFailures++
	} else {
		h.Status = StatusHealthy
		h.LastError = ""
		h.ConsecutiveFailures = 0
	}
	status := h.Status
	m.mu.Unlock()

	if status != previous {
		m.opts.logger.InfoContext(ctx, "mcpclient: server health changed",
			"server", name,
			"from", string(previous),
			"to", string(status),
		)
	}
	return err
}

// Close ends every client session.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, name := range m.order {
		if err := m.clients[name].Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
