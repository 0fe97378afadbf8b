package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
)

// tracerName is the OpenTelemetry instrumentation scope name for auth spans.
const tracerName = "github.com/StricklySoft/agentcore-gateway/pkg/auth"

// maxDocumentSize limits discovery and JWKS response bodies to 1 MiB.
const maxDocumentSize = 1 << 20

// HTTPClient abstracts the HTTP client used for discovery and JWKS fetches.
// *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns an instrumented client honouring the configured
// dial and total request timeouts.
func NewHTTPClient(cfg Config) *http.Client {
	cfg = cfg.withDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.HTTPDialTimeout}).DialContext
	return &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// Option customises a [KeyManager] or [Validator].
type Option func(*options)

type options struct {
	httpClient HTTPClient
	clock      clock.Clock
	policy     *resilience.Policy
	metrics    *Collector
	tracer     trace.Tracer
	logger     *slog.Logger
}

// WithHTTPClient replaces the client built by [NewHTTPClient].
func WithHTTPClient(c HTTPClient) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock sets the time source for cache expiry and exp checks.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPolicy sets the retry and breaker policy for outbound fetches. The
// default retries FetchAttempts times behind a breaker named "jwks".
func WithPolicy(p *resilience.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithMetrics records outcomes on c.
func WithMetrics(c *Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracerProvider takes spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// retryableFetch retries network errors except 4xx responses, which a
// second attempt will not fix.
func retryableFetch(err error) bool {
	e, ok := sserr.AsError(err)
	if !ok || !sserr.IsRetryable(err) {
		return false
	}
	if status, ok := e.Details["status"].(int); ok && status < http.StatusInternalServerError {
		return false
	}
	return true
}

// keySet is an immutable snapshot of the JWKS. It is replaced wholesale.
type keySet struct {
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

// KeyManager fetches and caches the signing keys of a Cognito user pool.
//
// Keys are served from an in-memory snapshot until it is older than the
// cache TTL or a token names an unknown kid; then the JWKS is fetched
// again. Unknown kids force at most one fetch per MinRefreshInterval.
// Concurrent refreshes are coalesced. When a refresh fails the previous
// snapshot keeps being served.
//
// KeyManager is safe for concurrent use by multiple goroutines.
type KeyManager struct {
	cfg  Config
	opts options

	keys    atomic.Pointer[keySet]
	jwksURI atomic.Pointer[string]
	group   singleflight.Group

	// lastAttempt is the UnixNano start time of the latest refresh,
	// successful or not.
	lastAttempt atomic.Int64
}

// NewKeyManager creates a KeyManager. No I/O happens until the first
// [KeyManager.GetSigningKey] or [KeyManager.Refresh].
func NewKeyManager(cfg Config, opts ...Option) *KeyManager {
	cfg = cfg.withDefaults()
	o := buildOptions(opts)
	if o.httpClient == nil {
		o.httpClient = NewHTTPClient(cfg)
	}
	if o.policy == nil {
		o.policy = resilience.NewPolicy(
			resilience.NewRetrier(resilience.RetryConfig{
				Attempts:  cfg.FetchAttempts,
				Retryable: retryableFetch,
			}),
			resilience.NewBreaker(resilience.BreakerConfig{Name: "jwks", Clock: o.clock}),
		)
	}
	m := &KeyManager{cfg: cfg, opts: o}
	if cfg.JWKSURI != "" {
		uri := cfg.JWKSURI
		m.jwksURI.Store(&uri)
	}
	return m
}

// GetSigningKey returns the public key for kid. A cached key is returned
// without I/O while the cache is fresh; otherwise the key set is refreshed
// first. A kid that is still unknown yields KEY_NOT_FOUND, as does any
// unknown kid while the last refresh is within MinRefreshInterval.
func (m *KeyManager) GetSigningKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if set := m.keys.Load(); set != nil && !m.expired(set) {
		if key, ok := set.keys[kid]; ok {
			return key, nil
		}
		if m.throttled() {
			return nil, sserr.KeyNotFound(kid)
		}
	}

	if err := m.Refresh(ctx); err != nil {
		if m.keys.Load() == nil {
			return nil, err
		}
		m.opts.logger.WarnContext(ctx, "auth: JWKS refresh failed, serving cached keys",
			"error", err,
			"kid", kid,
			"last_refresh", m.LastRefresh(),
		)
	}

	if key, ok := m.keys.Load().keys[kid]; ok {
		return key, nil
	}
	return nil, sserr.KeyNotFound(kid)
}

// IsCacheExpired reports whether the key set was never fetched or is older
// than the cache TTL.
func (m *KeyManager) IsCacheExpired() bool {
	set := m.keys.Load()
	return set == nil || m.expired(set)
}

func (m *KeyManager) expired(set *keySet) bool {
	return m.opts.clock.Now().Sub(set.fetchedAt) > m.cfg.JWKSCacheTTL
}

// throttled reports whether a refresh started within MinRefreshInterval.
func (m *KeyManager) throttled() bool {
	last := m.lastAttempt.Load()
	return last != 0 && m.opts.clock.Now().Sub(time.Unix(0, last)) < m.cfg.MinRefreshInterval
}

// Refresh fetches the JWKS (after discovery, unless a JWKS URI is known)
// and swaps in the new key set. Concurrent calls share one fetch. Every
// failure is a NETWORK_ERROR; the previous key set is left in place.
func (m *KeyManager) Refresh(ctx context.Context) error {
	ch := m.group.DoChan("refresh", func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return sserr.Network(ctx.Err(), "auth: JWKS refresh interrupted")
	}
}

func (m *KeyManager) refresh(ctx context.Context) (retErr error) {
	m.lastAttempt.Store(m.opts.clock.Now().UnixNano())
	ctx, span := startSpan(ctx, m.opts.tracer, "auth.KeyManager.Refresh")
	defer func() {
		finishSpan(span, retErr)
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.HTTPTimeout)
	defer cancel()

	uri := m.resolveJWKSURI(ctx)
	span.SetAttributes(attribute.String("jwks.uri", uri))

	keys, err := resilience.Call(ctx, m.opts.policy, func(ctx context.Context) (map[string]crypto.PublicKey, error) {
		body, err := m.get(ctx, uri)
		if err != nil {
			return nil, err
		}
		return parseJWKS(body)
	})
	if err != nil {
		err = asNetworkError(err, "auth: JWKS fetch failed")
		m.opts.metrics.observeRefresh(err, 0)
		return err
	}

	m.keys.Store(&keySet{keys: keys, fetchedAt: m.opts.clock.Now()})
	m.opts.metrics.observeRefresh(nil, len(keys))
	span.SetAttributes(attribute.Int("jwks.key_count", len(keys)))
	m.opts.logger.DebugContext(ctx, "auth: JWKS refreshed", "uri", uri, "key_count", len(keys))
	return nil
}

// resolveJWKSURI returns the configured or previously discovered JWKS URI,
// fetching the discovery document on first use. When discovery fails the
// issuer's /.well-known/jwks.json is used for this refresh and discovery is
// tried again on the next one.
func (m *KeyManager) resolveJWKSURI(ctx context.Context) string {
	if uri := m.jwksURI.Load(); uri != nil {
		return *uri
	}

	uri, err := m.discover(ctx)
	if err != nil {
		fallback := m.cfg.CognitoJWKSURI()
		m.opts.logger.WarnContext(ctx, "auth: OIDC discovery failed, using the issuer JWKS location",
			"error", err,
			"jwks_uri", fallback,
		)
		return fallback
	}
	m.jwksURI.Store(&uri)
	return uri
}

// discover reads jwks_uri from the OIDC discovery document.
func (m *KeyManager) discover(ctx context.Context) (string, error) {
	discoveryURL := m.cfg.ResolvedDiscoveryURL()
	doc, err := resilience.Call(ctx, m.opts.policy, func(ctx context.Context) (*discoveryDocument, error) {
		body, err := m.get(ctx, discoveryURL)
		if err != nil {
			return nil, err
		}
		var doc discoveryDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, sserr.Network(err, "auth: discovery document is not valid JSON")
		}
		return &doc, nil
	})
	if err != nil {
		return "", asNetworkError(err, "auth: OIDC discovery failed")
	}
	if doc.JWKSURI == "" {
		return "", sserr.Network(nil, "auth: discovery document missing jwks_uri").
			WithDetail("url", discoveryURL)
	}
	return doc.JWKSURI, nil
}

// get performs one GET and returns the body of a 200 response.
func (m *KeyManager) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "auth: invalid fetch URL")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.opts.httpClient.Do(req)
	if err != nil {
		return nil, sserr.Network(err, "auth: request failed").WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, sserr.Network(nil, fmt.Sprintf("auth: %s returned status %d", url, resp.StatusCode)).
			WithDetails(map[string]any{"url": url, "status": resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, sserr.Network(err, "auth: failed to read response").WithDetail("url", url)
	}
	return body, nil
}

// asNetworkError keeps NETWORK_ERROR values and wraps everything else
// (open breaker, cancelled context) into one.
func asNetworkError(err error, message string) error {
	if sserr.HasCode(err, sserr.CodeNetwork) {
		return err
	}
	return sserr.Network(err, message)
}

// KeyCount returns the number of cached keys.
func (m *KeyManager) KeyCount() int {
	if set := m.keys.Load(); set != nil {
		return len(set.keys)
	}
	return 0
}

// LastRefresh returns when the key set was last fetched, or the zero time.
func (m *KeyManager) LastRefresh() time.Time {
	if set := m.keys.Load(); set != nil {
		return set.fetchedAt
	}
	return time.Time{}
}

// discoveryDocument holds the fields used from
// .well-known/openid-configuration.
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// jwksDocument represents the JSON structure of a JWKS endpoint response.
type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// jwk holds the members needed to rebuild RSA and EC public keys.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// parseJWKS decodes a JWKS document into kid -> public key. Keys without a
// kid, encryption keys and malformed keys are skipped.
func parseJWKS(body []byte) (map[string]crypto.PublicKey, error) {
	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, sserr.Network(err, "auth: JWKS is not valid JSON")
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		switch k.Kty {
		case "RSA":
			pub, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		case "EC":
			pub, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		}
	}
	if len(keys) == 0 {
		return nil, sserr.Network(nil, "auth: JWKS contains no usable signing keys")
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("auth: RSA key has an invalid modulus or exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// parseECPublicKey constructs an *ecdsa.PublicKey from a curve name and
// base64url-encoded x and y coordinates.
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("auth: unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// Breaker returns the circuit breaker guarding discovery and JWKS
// fetches, or nil when the policy has none.
func (m *KeyManager) Breaker() *resilience.Breaker {
	return m.opts.policy.Breaker()
}
