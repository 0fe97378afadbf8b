package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/agentcore-gateway/internal/testutil"
	"github.com/StricklySoft/agentcore-gateway/internal/testutil/jwkstest"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
)

const testClientID = "test-client-id"

// noRetry disables retries and the breaker so fetch counts are exact.
func noRetry() Option {
	return WithPolicy(resilience.NewPolicy(nil, nil))
}

func testConfig(iss *jwkstest.Issuer) Config {
	cfg := DefaultConfig()
	cfg.Issuer = iss.URL()
	cfg.ClientID = testClientID
	return cfg
}

// ---------------------------------------------------------------------------
// Caching
// ---------------------------------------------------------------------------

func TestKeyManager_GetSigningKey_CachesKeys(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	km := NewKeyManager(testConfig(iss), noRetry())

	assert.True(t, km.IsCacheExpired(), "cache must start expired")
	assert.True(t, km.LastRefresh().IsZero())

	key, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	_, ok := key.(*rsa.PublicKey)
	assert.True(t, ok, "expected *rsa.PublicKey, got %T", key)

	_, err = km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)

	assert.Equal(t, 1, iss.DiscoveryFetches())
	assert.Equal(t, 1, iss.JWKSFetches())
	assert.Equal(t, 1, km.KeyCount())
	assert.False(t, km.IsCacheExpired())
	assert.False(t, km.LastRefresh().IsZero())
}

func TestKeyManager_GetSigningKey_UnknownKidRefreshes(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	clk := testclock.NewClock(time.Now())
	km := NewKeyManager(testConfig(iss), noRetry(), WithClock(clk))

	_, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)

	clk.Advance(DefaultMinRefresh)
	_, err = km.GetSigningKey(context.Background(), "no-such-kid")
	testutil.RequireErrorType(t, err, sserr.TypeKeyNotFound)
	e, _ := sserr.AsError(err)
	assert.Equal(t, "no-such-kid", e.Details["kid"])
	assert.Equal(t, 2, iss.JWKSFetches(), "unknown kid forces one refresh")
	assert.Equal(t, 1, iss.DiscoveryFetches(), "discovered JWKS URI is reused")
}

func TestKeyManager_GetSigningKey_ThrottlesUnknownKids(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	clk := testclock.NewClock(time.Now())
	km := NewKeyManager(testConfig(iss), noRetry(), WithClock(clk))
	ctx := context.Background()

	_, err := km.GetSigningKey(ctx, iss.KID())
	require.NoError(t, err)

	for i := range 50 {
		_, err := km.GetSigningKey(ctx, fmt.Sprintf("unknown-%d", i))
		testutil.RequireErrorType(t, err, sserr.TypeKeyNotFound)
	}
	assert.Equal(t, 1, iss.JWKSFetches(), "unknown kids inside the interval are served from cache")

	_, err = km.GetSigningKey(ctx, iss.KID())
	require.NoError(t, err, "known kids are unaffected")

	clk.Advance(DefaultMinRefresh - time.Second)
	_, err = km.GetSigningKey(ctx, "unknown-late")
	testutil.RequireErrorType(t, err, sserr.TypeKeyNotFound)
	assert.Equal(t, 1, iss.JWKSFetches())

	clk.Advance(time.Second)
	_, err = km.GetSigningKey(ctx, "unknown-after")
	testutil.RequireErrorType(t, err, sserr.TypeKeyNotFound)
	assert.Equal(t, 2, iss.JWKSFetches(), "the interval has passed")

	_, err = km.GetSigningKey(ctx, "unknown-again")
	testutil.RequireErrorType(t, err, sserr.TypeKeyNotFound)
	assert.Equal(t, 2, iss.JWKSFetches())
}

func TestKeyManager_GetSigningKey_ThrottleIsConfigurable(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	clk := testclock.NewClock(time.Now())
	cfg := testConfig(iss)
	cfg.MinRefreshInterval = time.Second
	km := NewKeyManager(cfg, noRetry(), WithClock(clk))

	_, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = km.GetSigningKey(context.Background(), "no-such-kid")
	testutil.RequireErrorType(t, err, sserr.TypeKeyNotFound)
	assert.Equal(t, 2, iss.JWKSFetches())
}

func TestKeyManager_GetSigningKey_TTLRefreshIsNotThrottled(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	clk := testclock.NewClock(time.Now())
	cfg := testConfig(iss)
	cfg.JWKSCacheTTL = 10 * time.Second
	km := NewKeyManager(cfg, noRetry(), WithClock(clk))

	_, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)

	clk.Advance(11 * time.Second)
	_, err = km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	assert.Equal(t, 2, iss.JWKSFetches(), "expired cache refreshes inside the kid-miss interval")
}

func TestKeyManager_GetSigningKey_PicksUpRotatedKey(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	clk := testclock.NewClock(time.Now())
	km := NewKeyManager(testConfig(iss), noRetry(), WithClock(clk))

	first := iss.KID()
	_, err := km.GetSigningKey(context.Background(), first)
	require.NoError(t, err)

	second := iss.Rotate(t)
	clk.Advance(DefaultMinRefresh)
	_, err = km.GetSigningKey(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 2, km.KeyCount())

	_, err = km.GetSigningKey(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 2, iss.JWKSFetches())
}

func TestKeyManager_CacheTTL(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	clk := testclock.NewClock(time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC))
	km := NewKeyManager(testConfig(iss), noRetry(), WithClock(clk))

	_, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), km.LastRefresh())

	clk.Advance(time.Hour)
	assert.False(t, km.IsCacheExpired(), "exactly TTL old is still fresh")

	clk.Advance(time.Second)
	assert.True(t, km.IsCacheExpired())

	_, err = km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	assert.Equal(t, 2, iss.JWKSFetches())
	assert.False(t, km.IsCacheExpired())
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestKeyManager_EmptyCacheFailureThenRecovery(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	km := NewKeyManager(testConfig(iss), noRetry())

	iss.SetFailing(true)
	_, err := km.GetSigningKey(context.Background(), iss.KID())
	testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
	assert.Equal(t, 0, km.KeyCount())

	iss.SetFailing(false)
	_, err = km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)

	fetches := iss.JWKSFetches()
	_, err = km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	assert.Equal(t, fetches, iss.JWKSFetches(), "second lookup must be served from cache")
}

func TestKeyManager_ServesStaleKeysWhenRefreshFails(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	clk := testclock.NewClock(time.Now())
	km := NewKeyManager(testConfig(iss), noRetry(), WithClock(clk))

	_, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	refreshed := km.LastRefresh()

	clk.Advance(2 * time.Hour)
	iss.SetFailing(true)

	key, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	assert.NotNil(t, key)
	assert.Equal(t, refreshed, km.LastRefresh(), "failed refresh keeps the old snapshot")

	err = km.Refresh(context.Background())
	testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
	assert.Equal(t, 1, km.KeyCount())
}

func TestKeyManager_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	cfg := testConfig(iss)
	cfg.JWKSURI = iss.JWKSURL()

	policy := resilience.NewPolicy(resilience.NewRetrier(resilience.RetryConfig{
		Attempts:  3,
		Delay:     time.Millisecond,
		Retryable: retryableFetch,
	}), nil)
	km := NewKeyManager(cfg, WithPolicy(policy))

	iss.SetFailing(true)
	err := km.Refresh(context.Background())
	testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
	assert.Equal(t, 3, iss.JWKSFetches())
	assert.Equal(t, 0, iss.DiscoveryFetches(), "configured JWKS URI skips discovery")
}

func TestKeyManager_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Issuer = srv.URL
	cfg.JWKSURI = srv.URL + "/jwks.json"
	policy := resilience.NewPolicy(resilience.NewRetrier(resilience.RetryConfig{
		Attempts:  3,
		Delay:     time.Millisecond,
		Retryable: retryableFetch,
	}), nil)
	km := NewKeyManager(cfg, WithPolicy(policy))

	err := km.Refresh(context.Background())
	testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
	e, _ := sserr.AsError(err)
	assert.Equal(t, http.StatusNotFound, e.Details["status"])
	assert.EqualValues(t, 1, hits.Load())
}

func TestKeyManager_OpenBreakerIsNetworkError(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	cfg := testConfig(iss)
	cfg.JWKSURI = iss.JWKSURL()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Name: "jwks", Threshold: 1, CoolDown: time.Hour})
	km := NewKeyManager(cfg, WithPolicy(resilience.NewPolicy(nil, breaker)))

	iss.SetFailing(true)
	require.Error(t, km.Refresh(context.Background()))
	assert.Equal(t, resilience.StateOpen, km.Breaker().State())

	iss.SetFailing(false)
	err := km.Refresh(context.Background())
	testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
	assert.True(t, sserr.HasCode(err, sserr.CodeNetwork))
	assert.Equal(t, 1, iss.JWKSFetches(), "open breaker must not reach the server")
}

func TestKeyManager_DiscoveryWithoutJWKSURIFallsBack(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"issuer":"x"}`))
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Issuer = srv.URL
	km := NewKeyManager(cfg, noRetry())

	err := km.Refresh(context.Background())
	testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
	assert.Contains(t, err.Error(), "no usable signing keys")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{jwkstest.DiscoveryPath, jwkstest.JWKSPath}, paths)
}

func TestKeyManager_DiscoveryFailureFallsBackToIssuerJWKS(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	iss.SetDiscoveryMissing(true)
	km := NewKeyManager(testConfig(iss), noRetry())

	key, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	assert.NotNil(t, key)
	assert.Equal(t, 1, iss.DiscoveryFetches())
	assert.Equal(t, 1, iss.JWKSFetches())

	iss.SetDiscoveryMissing(false)
	require.NoError(t, km.Refresh(context.Background()))
	assert.Equal(t, 2, iss.DiscoveryFetches(), "discovery is tried again after a fallback")

	require.NoError(t, km.Refresh(context.Background()))
	assert.Equal(t, 2, iss.DiscoveryFetches(), "a discovered URI is kept")
}

func TestKeyManager_TrailingSlashIssuerURLs(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	cfg := testConfig(iss)
	cfg.Issuer = iss.URL() + "/"
	iss.SetDiscoveryMissing(true)
	km := NewKeyManager(cfg, noRetry())

	_, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	assert.Equal(t, 1, iss.DiscoveryFetches())
	assert.Equal(t, 1, iss.JWKSFetches())
}

func TestKeyManager_Refresh_Coalesces(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	release := make(chan struct{})
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		iss.Server.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(iss)
	cfg.JWKSURI = srv.URL + jwkstest.JWKSPath
	km := NewKeyManager(cfg, noRetry())

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- km.Refresh(context.Background())
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, 1, km.KeyCount())
}

func TestKeyManager_Refresh_ContextCancelled(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-release }))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	cfg := DefaultConfig()
	cfg.Issuer = srv.URL
	cfg.JWKSURI = srv.URL
	km := NewKeyManager(cfg, noRetry())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := km.Refresh(ctx)
	testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
}

// ---------------------------------------------------------------------------
// JWKS parsing
// ---------------------------------------------------------------------------

func TestParseJWKS(t *testing.T) {
	t.Parallel()
	iss := jwkstest.NewIssuer(t)
	good := jwkstest.JWK("good", mustRSAPublicKey(t, iss))

	tests := []struct {
		name     string
		body     string
		wantKids []string
		wantErr  bool
	}{
		{
			name:     "rsa key",
			body:     `{"keys":[{"kty":"RSA","kid":"good","use":"sig","n":"` + good["n"] + `","e":"AQAB"}]}`,
			wantKids: []string{"good"},
		},
		{
			name: "skips keys without kid and encryption keys",
			body: `{"keys":[` +
				`{"kty":"RSA","n":"` + good["n"] + `","e":"AQAB"},` +
				`{"kty":"RSA","kid":"enc","use":"enc","n":"` + good["n"] + `","e":"AQAB"},` +
				`{"kty":"RSA","kid":"good","n":"` + good["n"] + `","e":"AQAB"}]}`,
			wantKids: []string{"good"},
		},
		{
			name:    "malformed modulus only",
			body:    `{"keys":[{"kty":"RSA","kid":"bad","n":"!!!","e":"AQAB"}]}`,
			wantErr: true,
		},
		{
			name:    "unsupported curve only",
			body:    `{"keys":[{"kty":"EC","kid":"ec","crv":"P-192","x":"AA","y":"AA"}]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			keys, err := parseJWKS([]byte(tt.body))
			if tt.wantErr {
				testutil.RequireErrorType(t, err, sserr.TypeNetworkError)
				return
			}
			require.NoError(t, err)
			kids := make([]string, 0, len(keys))
			for kid := range keys {
				kids = append(kids, kid)
			}
			assert.ElementsMatch(t, tt.wantKids, kids)
		})
	}
}

func mustRSAPublicKey(t *testing.T, iss *jwkstest.Issuer) *rsa.PublicKey {
	t.Helper()
	km := NewKeyManager(testConfig(iss), noRetry())
	key, err := km.GetSigningKey(context.Background(), iss.KID())
	require.NoError(t, err)
	return key.(*rsa.PublicKey)
}

func TestRetryableFetch(t *testing.T) {
	t.Parallel()
	assert.True(t, retryableFetch(sserr.Network(nil, "x")))
	assert.True(t, retryableFetch(sserr.Network(nil, "x").WithDetail("status", 503)))
	assert.False(t, retryableFetch(sserr.Network(nil, "x").WithDetail("status", 404)))
	assert.False(t, retryableFetch(sserr.InvalidFormat("x")))
	assert.False(t, retryableFetch(context.Canceled))
}
