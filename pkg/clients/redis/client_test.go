package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// ===========================================================================
// Mock Implementation
// ===========================================================================

// mockCmdable implements Cmdable using testify/mock.
type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	args := m.Called()
	return args.Error(0)
}

// ===========================================================================
// Command Result Helpers
// ===========================================================================

func newStatusCmd(val string, err error) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newStringCmd(val string, err error) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newIntCmd(val int64, err error) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// ===========================================================================
// NewFromClient Tests
// ===========================================================================

func TestNewFromClient(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	cfg := &Config{DB: 3}
	client := NewFromClient(m, cfg)
	assert.Equal(t, cfg, client.config)
	assert.Equal(t, 3, client.dbIndex)
	assert.Same(t, m, client.cmdable)

	client = NewFromClient(m, nil)
	require.NotNil(t, client.config)
	assert.Equal(t, 0, client.dbIndex)
}

// ===========================================================================
// Command Tests
// ===========================================================================

func TestClient_Set(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		redisErr error
		wantCode sserr.Code
	}{
		{"success", nil, ""},
		{"read only replica", errors.New("READONLY You can't write against a read only replica"), sserr.CodeInternalCache},
		{"deadline", context.DeadlineExceeded, sserr.CodeTimeoutDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := new(mockCmdable)
			m.On("Set", mock.Anything, "session:alice", "payload", 10*time.Minute).
				Return(newStatusCmd("OK", tt.redisErr))

			err := NewFromClient(m, nil).Set(context.Background(), "session:alice", "payload", 10*time.Minute)
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				var ssErr *sserr.Error
				require.True(t, errors.As(err, &ssErr), "Set() error type = %T, want *sserr.Error", err)
				assert.Equal(t, tt.wantCode, ssErr.Code)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestClient_Get(t *testing.T) {
	t.Parallel()

	t.Run("hit", func(t *testing.T) {
		t.Parallel()
		m := new(mockCmdable)
		m.On("Get", mock.Anything, "k").Return(newStringCmd("v", nil))
		val, err := NewFromClient(m, nil).Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	})

	t.Run("miss", func(t *testing.T) {
		t.Parallel()
		m := new(mockCmdable)
		m.On("Get", mock.Anything, "k").Return(newStringCmd("", redis.Nil))
		_, err := NewFromClient(m, nil).Get(context.Background(), "k")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.True(t, sserr.IsInternal(err))
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		m := new(mockCmdable)
		m.On("Get", mock.Anything, "k").
			Return(newStringCmd("", errors.New("LOADING Redis is loading the dataset in memory")))
		_, err := NewFromClient(m, nil).Get(context.Background(), "k")
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
		assert.False(t, sserr.IsRetryable(err))
	})
}

func TestClient_Del(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"a", "b"}).Return(newIntCmd(2, nil)).Once()
	m.On("Del", mock.Anything, []string{"c"}).Return(newIntCmd(0, context.DeadlineExceeded)).Once()

	client := NewFromClient(m, nil)
	ctx := context.Background()

	n, err := client.Del(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = client.Del(ctx, "c")
	assert.True(t, sserr.IsTimeout(err), "got %v", err)
	assert.True(t, sserr.IsRetryable(err))

	m.AssertExpectations(t)
}

// ===========================================================================
// Health / Close
// ===========================================================================

func TestClient_Health(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).Return(newStatusCmd("PONG", nil)).Once()
	m.On("Ping", mock.Anything).Return(newStatusCmd("", errors.New("connection refused"))).Once()

	client := NewFromClient(m, nil)
	require.NoError(t, client.Health(context.Background()))

	err := client.Health(context.Background())
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableDependency))
	assert.True(t, sserr.IsRetryable(err))
	m.AssertExpectations(t)
}

func TestClient_Close(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Close").Return(nil)
	require.NoError(t, NewFromClient(m, nil).Close())
	m.AssertExpectations(t)
}

// ===========================================================================
// wrapError / tracing
// ===========================================================================

func TestWrapError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, wrapError(nil, "should not wrap"))

	tests := []struct {
		cause error
		want  sserr.Code
	}{
		{context.DeadlineExceeded, sserr.CodeTimeoutDependency},
		{context.Canceled, sserr.CodeInternalCache},
		{errors.New("WRONGTYPE"), sserr.CodeInternalCache},
	}
	for _, tt := range tests {
		got := wrapError(tt.cause, "failed")
		assert.Equal(t, tt.want, got.Code, tt.cause.Error())
		assert.ErrorIs(t, got, tt.cause)
	}
}

func TestClient_SpansOmitValues(t *testing.T) {
	t.Parallel()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m := new(mockCmdable)
	m.On("Set", mock.Anything, "session:alice", "secret-token", time.Duration(0)).Return(newStatusCmd("OK", nil))

	client := NewFromClient(m, &Config{DB: 2})
	client.tracer = tp.Tracer(tracerName)
	require.NoError(t, client.Set(context.Background(), "session:alice", "secret-token", 0))

	spans := exporter.GetSpans().Snapshots()
	require.Len(t, spans, 1)
	assert.Equal(t, "redis.Set", spans[0].Name())
	for _, kv := range spans[0].Attributes() {
		assert.NotContains(t, kv.Value.Emit(), "secret-token")
		if kv.Key == "db.statement" {
			assert.Equal(t, "SET session:alice", kv.Value.AsString())
		}
	}
}
