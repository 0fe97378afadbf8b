package cognito

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/StricklySoft/agentcore-gateway/pkg/clients/redis"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// TokenStore keeps the tokens of logged-in users, keyed by username.
// Implementations must be safe for concurrent use.
type TokenStore interface {
	// Save stores t for username, replacing any previous session. A
	// positive ttl bounds how long the session is kept.
	Save(ctx context.Context, username string, t *Tokens, ttl time.Duration) error

	// Load returns the session for username. ok is false when there is
	// none or it has expired.
	Load(ctx context.Context, username string) (t *Tokens, ok bool, err error)

	// Delete removes the session for username. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, username string) error
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

type memoryEntry struct {
	tokens  *Tokens
	expires time.Time
}

// MemoryStore is a process-local TokenStore. Sessions are lost on exit.
type MemoryStore struct {
	clock clock.Clock

	mu       sync.Mutex
	sessions map[string]memoryEntry
}

var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. clk decides expiry; nil means the
// wall clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryStore{clock: clk, sessions: make(map[string]memoryEntry)}
}

// Save implements [TokenStore].
func (s *MemoryStore) Save(_ context.Context, username string, t *Tokens, ttl time.Duration) error {
	e := memoryEntry{tokens: t}
	if ttl > 0 {
		e.expires = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[username] = e
	return nil
}

// Load implements [TokenStore]. Expired sessions are evicted on access.
func (s *MemoryStore) Load(_ context.Context, username string) (*Tokens, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[username]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !s.clock.Now().Before(e.expires) {
		delete(s.sessions, username)
		return nil, false, nil
	}
	return e.tokens, true, nil
}

// Delete implements [TokenStore].
func (s *MemoryStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, username)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ---------------------------------------------------------------------------
// RedisStore
// ---------------------------------------------------------------------------

// DefaultKeyPrefix namespaces session keys in Redis.
const DefaultKeyPrefix = "session:"

// RedisStore keeps sessions in Redis as JSON documents with a TTL, so they
// survive restarts and are shared between gateway replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ TokenStore = (*RedisStore)(nil)

// NewRedisStore creates a store on client. An empty prefix means
// [DefaultKeyPrefix].
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(username string) string {
	return s.prefix + username
}

// Save implements [TokenStore].
func (s *RedisStore) Save(ctx context.Context, username string, t *Tokens, ttl time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "cognito: failed to encode session")
	}
	return s.client.Set(ctx, s.key(username), data, max(ttl, 0))
}

// Load implements [TokenStore].
func (s *RedisStore) Load(ctx context.Context, username string) (*Tokens, bool, error) {
	data, err := s.client.Get(ctx, s.key(username))
	if redis.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var t Tokens
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, false, sserr.Wrap(err, sserr.CodeInternalCache, "cognito: stored session is corrupt")
	}
	return &t, true, nil
}

// Delete implements [TokenStore].
func (s *RedisStore) Delete(ctx context.Context, username string) error {
	_, err := s.client.Del(ctx, s.key(username))
	return err
}
