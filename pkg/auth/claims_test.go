package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseClaims_AccessToken(t *testing.T) {
	t.Parallel()
	raw := map[string]any{
		"sub":            "user-1",
		"token_use":      "access",
		"client_id":      "client-abc",
		"iss":            "https://issuer",
		"exp":            float64(1700000000),
		"iat":            json.Number("1699996400"),
		"auth_time":      int64(1699996300),
		"username":       "alice",
		"scope":          "openid profile  email",
		"cognito:groups": []any{"admins", 7, "readers"},
		"custom:tier":    "gold",
	}

	c := ParseClaims(raw)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "access", c.TokenUse)
	assert.Equal(t, "client-abc", c.ClientID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), c.ExpiresAt)
	assert.Equal(t, time.Unix(1699996400, 0).UTC(), c.IssuedAt)
	assert.Equal(t, time.Unix(1699996300, 0).UTC(), c.AuthTime)
	assert.Equal(t, "alice", c.Username)
	assert.Equal(t, []string{"openid", "profile", "email"}, c.Scopes())
	assert.Equal(t, []string{"admins", "readers"}, c.Groups)
	assert.Equal(t, map[string]any{"custom:tier": "gold"}, c.Extra)
}

func TestParseClaims_IDToken(t *testing.T) {
	t.Parallel()
	c := ParseClaims(map[string]any{
		"sub":              "user-2",
		"token_use":        "id",
		"aud":              "client-abc",
		"cognito:username": "bob",
		"email":            "bob@example.com",
	})
	assert.Equal(t, []string{"client-abc"}, c.Audience)
	assert.True(t, c.HasAudience("client-abc"))
	assert.False(t, c.HasAudience("client-xyz"))
	assert.Equal(t, "bob", c.Username)
	assert.Equal(t, "bob@example.com", c.Email)
	assert.Nil(t, c.Extra)
}

func TestParseClaims_WrongTypesAreZero(t *testing.T) {
	t.Parallel()
	c := ParseClaims(map[string]any{
		"sub": 12,
		"exp": "tomorrow",
		"aud": map[string]any{"x": 1},
	})
	assert.Empty(t, c.Subject)
	assert.True(t, c.ExpiresAt.IsZero())
	assert.Nil(t, c.Audience)
}

func TestCloneClaims(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"sub": "user-1"}
	cloned := cloneClaims(raw)
	cloned["sub"] = "changed"
	assert.Equal(t, "user-1", raw["sub"])
}
