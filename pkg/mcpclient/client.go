package mcpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
)

const tracerName = "github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"

// HTTP headers defined by the streamable HTTP transport.
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderProtocolVersion = "MCP-Protocol-Version"
)

// maxResponseSize bounds a single response body or event stream.
const maxResponseSize = 10 << 20

// maxToolPages bounds tools/list pagination.
const maxToolPages = 100

// ClientInfo is announced to servers during initialization.
var ClientInfo = Implementation{Name: "agentcore-gateway", Version: "1.0.0"}

// HTTPClient abstracts the HTTP client. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client honouring cfg's timeouts. Requests carry
// the caller's identity headers and are traced with otelhttp.
func NewHTTPClient(cfg ServerConfig) *http.Client {
	cfg = cfg.withDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(auth.NewPropagatingRoundTripper(transport)),
	}
}

// Option customises a [Client] or [Manager].
type Option func(*options)

type options struct {
	httpClient HTTPClient
	tokens     TokenSource
	policy     *resilience.Policy
	metrics    *Collector
	tracer     trace.Tracer
	logger     *slog.Logger
	clock      clock.Clock
	health     healthOptions
}

// WithHTTPClient replaces the HTTP client built by [NewHTTPClient].
func WithHTTPClient(c HTTPClient) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTokenSource sets where bearer tokens come from. Without one, no
// Authorization header is sent.
func WithTokenSource(ts TokenSource) Option {
	return func(o *options) { o.tokens = ts }
}

// WithPolicy replaces the retry and breaker policy built from the server
// config. It applies to a single [Client]; a [Manager] ignores it.
func WithPolicy(p *resilience.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithMetrics records calls in c.
func WithMetrics(c *Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock used for breaker timestamps, call timing and
// health check scheduling.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{health: defaultHealthOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	return o
}

// Client is a client for a single MCP server. It is safe for concurrent
// use; the initialize handshake runs at most once per session.
type Client struct {
	cfg  ServerConfig
	opts options

	initMu sync.Mutex

	mu        sync.RWMutex
	sessionID string
	server    *InitializeResult
}

// New creates a Client for cfg. No request is made until the first call.
func New(cfg ServerConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	o := buildOptions(opts)
	if o.httpClient == nil {
		o.httpClient = NewHTTPClient(cfg)
	}
	if o.policy == nil {
		o.policy = newPolicy(cfg, o.clock)
	}
	return &Client{cfg: cfg, opts: o}, nil
}

// newPolicy builds the per-server policy. JSON-RPC errors mean the server
// answered, so they are neither retried nor counted against it.
func newPolicy(cfg ServerConfig, clk clock.Clock) *resilience.Policy {
	return resilience.NewPolicy(
		resilience.NewRetrier(resilience.RetryConfig{
			Attempts:  cfg.Attempts,
			Retryable: retryable,
			Clock:     clk,
		}),
		resilience.NewBreaker(resilience.BreakerConfig{
			Name:      "mcp:" + cfg.Name,
			Threshold: cfg.BreakerThreshold,
			CoolDown:  cfg.BreakerCoolDown,
			IsFailure: isFailure,
			Clock:     clk,
		}),
	)
}

func retryable(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	return sserr.IsRetryable(err)
}

func isFailure(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) || errors.Is(err, context.Canceled) {
		return false
	}
	if _, ok := sserr.AsError(err); !ok {
		return true
	}
	return sserr.IsRetryable(err)
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// URL returns the server endpoint.
func (c *Client) URL() string {
	return c.cfg.URL
}

// Breaker returns the client's circuit breaker, or nil when a policy
// without one was supplied.
func (c *Client) Breaker() *resilience.Breaker {
	return c.opts.policy.Breaker()
}

// SessionID returns the current session id, or "" before initialization
// or when the server does not use sessions.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// ServerInfo returns the initialize result, or nil before initialization.
func (c *Client) ServerInfo() *InitializeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Reset forgets the session. The next call initializes again.
func (c *Client) Reset() {
	c.mu.Lock()
	c.sessionID = ""
	c.server = nil
	c.mu.Unlock()
}

// Initialize performs the initialize handshake if it has not happened yet
// and returns the server's answer.
func (c *Client) Initialize(ctx context.Context) (_ *InitializeResult, retErr error) {
	ctx, span := c.startSpan(ctx, "initialize")
	start := c.opts.clock.Now()
	defer func() { c.finish(ctx, span, "initialize", start, retErr) }()

	info, err := resilience.Call(ctx, c.opts.policy, c.ensureInitialized)
	return info, c.typed(err)
}

// ListTools returns every tool the server exposes, following pagination
// cursors.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	cursor := ""
	for range maxToolPages {
		var page listToolsResult
		if err := c.call(ctx, "tools/list", listToolsParams{Cursor: cursor}, &page); err != nil {
			return nil, err
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" {
			return tools, nil
		}
		cursor = page.NextCursor
	}
	return nil, sserr.Newf(sserr.CodeUnavailableDependency,
		"mcpclient: server %q returned more than %d pages of tools", c.cfg.Name, maxToolPages)
}

// CallTool invokes a tool. args must be a JSON object or empty. A tool
// that reports its own failure returns a result with IsError set and a nil
// error.
//
// Tools may have side effects, so tools/call is not retried on 5xx or 429.
// It still goes through the breaker. The one exception is a request the
// server refused because the session expired, which is sent again on a new
// session.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	if name == "" {
		return nil, sserr.Validation("mcpclient: tool name is required")
	}
	args = bytes.TrimSpace(args)
	if len(args) > 0 && (args[0] != '{' || !json.Valid(args)) {
		return nil, sserr.Validation("mcpclient: tool arguments must be a JSON object")
	}

	if _, err := resilience.Call(ctx, c.opts.policy, c.ensureInitialized); err != nil {
		return nil, c.typed(err)
	}

	params := callToolParams{Name: name, Arguments: args}
	once := c.opts.policy.Once()
	var result ToolResult
	err := c.invoke(ctx, once, "tools/call", params, &result)
	if sessionExpired(err) {
		err = c.invoke(ctx, once, "tools/call", params, &result)
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// Close ends the session on the server. Servers that do not support
// explicit termination answer 405, which is not an error.
func (c *Client) Close(ctx context.Context) error {
	session := c.SessionID()
	if session == "" {
		return nil
	}
	c.Reset()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.URL, nil)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "mcpclient: failed to build request")
	}
	req.Header.Set(HeaderSessionID, session)
	if err := c.authorize(ctx, req); err != nil {
		return err
	}
	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	drain(resp.Body)
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotFound {
		return statusError(c.cfg.Name, resp.StatusCode, false)
	}
	return nil
}

// call runs one JSON-RPC method under the client policy. Each attempt
// initializes first if needed, so a session dropped by the server is
// re-established on retry.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	return c.invoke(ctx, c.opts.policy, method, params, out)
}

func (c *Client) invoke(ctx context.Context, policy *resilience.Policy, method string, params, out any) (retErr error) {
	ctx, span := c.startSpan(ctx, method)
	start := c.opts.clock.Now()
	defer func() { c.finish(ctx, span, method, start, retErr) }()

	err := policy.Run(ctx, func(ctx context.Context) error {
		if _, err := c.ensureInitialized(ctx); err != nil {
			return err
		}
		result, _, err := c.send(ctx, method, params, c.SessionID(), true)
		if err != nil {
			return err
		}
		if out == nil || len(result) == 0 {
			return nil
		}
		if err := json.Unmarshal(result, out); err != nil {
			return sserr.Wrapf(err, sserr.CodeUnavailableDependency,
				"mcpclient: server %q sent an invalid %s result", c.cfg.Name, method)
		}
		return nil
	})
	return c.typed(err)
}

// typed converts the bare context error a policy returns when ctx ends
// before the first attempt.
func (c *Client) typed(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return c.transportError(err)
}

func (c *Client) ensureInitialized(ctx context.Context) (*InitializeResult, error) {
	if info := c.ServerInfo(); info != nil {
		return info, nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()
	if info := c.ServerInfo(); info != nil {
		return info, nil
	}

	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo,
	}
	raw, header, err := c.send(ctx, "initialize", params, "", true)
	if err != nil {
		return nil, err
	}
	var info InitializeResult
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"mcpclient: server %q sent an invalid initialize result", c.cfg.Name)
	}
	session := header.Get(HeaderSessionID)

	if _, _, err := c.send(ctx, "notifications/initialized", nil, session, false); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessionID = session
	c.server = &info
	c.mu.Unlock()

	c.opts.logger.DebugContext(ctx, "mcpclient: session initialized",
		"server", c.cfg.Name,
		"server_name", info.ServerInfo.Name,
		"protocol_version", info.ProtocolVersion,
		"has_session", session != "",
	)
	return &info, nil
}

// send posts one message. Requests (withID) wait for the matching
// response; notifications only need a 2xx status.
func (c *Client) send(ctx context.Context, method string, params any, session string, withID bool) (json.RawMessage, http.Header, error) {
	msg := request{JSONRPC: jsonRPCVersion, Method: method, Params: params}
	if withID {
		msg.ID = uuid.NewString()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, sserr.Wrap(err, sserr.CodeInternal, "mcpclient: failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, sserr.Wrap(err, sserr.CodeInternal, "mcpclient: failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("User-Agent", ClientInfo.Name+"/"+ClientInfo.Version)
	if session != "" {
		req.Header.Set(HeaderSessionID, session)
	}
	if method != "initialize" {
		req.Header.Set(HeaderProtocolVersion, ProtocolVersion)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, nil, err
	}

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, nil, c.transportError(err)
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusNotFound && session != "" {
		// The server dropped the session; the next attempt starts over.
		c.Reset()
		return nil, nil, sserr.Newf(sserr.CodeUnavailableDependency,
			"mcpclient: server %q expired the session", c.cfg.Name).WithDetail(detailSessionExpired, true)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, statusError(c.cfg.Name, resp.StatusCode, true)
	}
	if !withID {
		return nil, resp.Header, nil
	}

	var out *response
	limited := io.LimitReader(resp.Body, maxResponseSize)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		out, err = readEventStream(limited, msg.ID)
	} else {
		out, err = readJSON(limited, msg.ID)
	}
	if err != nil {
		return nil, nil, sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"mcpclient: server %q sent an unreadable %s response", c.cfg.Name, method)
	}
	if out.Error != nil {
		return nil, nil, rpcError(c.cfg.Name, out.Error)
	}
	return out.Result, resp.Header, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.opts.tokens == nil {
		return nil
	}
	token, err := c.opts.tokens.Token(ctx)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "mcpclient: failed to obtain a bearer token")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *Client) transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrapf(err, sserr.CodeTimeoutDependency, "mcpclient: server %q timed out", c.cfg.Name)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return sserr.Wrapf(err, sserr.CodeTimeoutDependency, "mcpclient: server %q timed out", c.cfg.Name)
	}
	return sserr.Wrapf(err, sserr.CodeUnavailableDependency, "mcpclient: server %q is unreachable", c.cfg.Name)
}

// detailSessionExpired marks a request the server refused because it no
// longer knows the session.
const detailSessionExpired = "session_expired"

func sessionExpired(err error) bool {
	e, ok := sserr.AsError(err)
	if !ok {
		return false
	}
	expired, _ := e.Details[detailSessionExpired].(bool)
	return expired
}

// statusError maps a non-2xx status. 429 and 5xx are worth retrying; the
// rest are not.
func statusError(server string, status int, retryable bool) error {
	var e *sserr.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = sserr.Newf(sserr.CodeInternalConfiguration,
			"mcpclient: server %q rejected the gateway's credentials", server)
	case (status == http.StatusTooManyRequests || status >= 500) && retryable:
		e = sserr.Newf(sserr.CodeUnavailableDependency,
			"mcpclient: server %q answered %d", server, status)
	default:
		e = sserr.Newf(sserr.CodeInternal,
			"mcpclient: server %q answered %d", server, status)
	}
	return e.WithDetails(map[string]any{"server": server, "status": status})
}

// rpcError keeps the *RPCError as the cause so callers can inspect it.
func rpcError(server string, rpc *RPCError) error {
	code := sserr.CodeUnavailableDependency
	switch rpc.Code {
	case CodeInvalidParams, CodeMethodNotFound, CodeInvalidRequest:
		code = sserr.CodeValidation
	}
	return sserr.Wrapf(rpc, code, "mcpclient: server %q: %s", server, rpc.Message).
		WithDetails(map[string]any{"server": server, "rpc_code": rpc.Code})
}

func readJSON(r io.Reader, id string) (*response, error) {
	var out response
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, err
	}
	if got := out.idString(); got != id {
		return nil, errors.New("response id " + got + " does not match request")
	}
	return &out, nil
}

// readEventStream scans server-sent events until the response to id
// arrives. Server notifications and requests on the stream are skipped.
func readEventStream(r io.Reader, id string) (*response, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxResponseSize)

	var data []string
	dispatch := func() *response {
		defer func() { data = data[:0] }()
		if len(data) == 0 {
			return nil
		}
		var msg response
		if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &msg); err != nil {
			return nil
		}
		if msg.idString() != id || (msg.Result == nil && msg.Error == nil) {
			return nil
		}
		return &msg
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if msg := dispatch(); msg != nil {
				return msg, nil
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if msg := dispatch(); msg != nil {
		return msg, nil
	}
	return nil, errors.New("event stream ended without a response")
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

func (c *Client) startSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return c.opts.tracer.Start(ctx, "mcp."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.String("mcp.server", c.cfg.Name),
		),
	)
}

func (c *Client) finish(ctx context.Context, span trace.Span, method string, start time.Time, err error) {
	defer span.End()
	c.opts.metrics.observe(c.cfg.Name, method, c.opts.clock.Now().Sub(start), err)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.code", sserr.GetCode(err).String()))
	c.opts.logger.WarnContext(ctx, "mcpclient: call failed",
		"server", c.cfg.Name,
		"method", method,
		"error", err,
	)
}
