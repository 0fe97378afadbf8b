package auth

import (
	"encoding/json"
	"maps"
	"strings"
	"time"
)

// Registered and Cognito claim names.
const (
	ClaimSubject         = "sub"
	ClaimIssuer          = "iss"
	ClaimAudience        = "aud"
	ClaimExpiresAt       = "exp"
	ClaimIssuedAt        = "iat"
	ClaimAuthTime        = "auth_time"
	ClaimTokenUse        = "token_use"
	ClaimClientID        = "client_id"
	ClaimUsername        = "username"
	ClaimCognitoUsername = "cognito:username"
	ClaimEmail           = "email"
	ClaimScope           = "scope"
	ClaimGroups          = "cognito:groups"
)

var knownClaims = map[string]bool{
	ClaimSubject: true, ClaimIssuer: true, ClaimAudience: true,
	ClaimExpiresAt: true, ClaimIssuedAt: true, ClaimAuthTime: true,
	ClaimTokenUse: true, ClaimClientID: true, ClaimUsername: true,
	ClaimCognitoUsername: true, ClaimEmail: true, ClaimScope: true,
	ClaimGroups: true,
}

// Claims is the typed view of a Cognito access or ID token. Claims not
// modelled as fields are kept in Extra.
type Claims struct {
	Subject   string
	TokenUse  string
	ClientID  string
	Audience  []string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	AuthTime  time.Time
	Username  string
	Email     string
	Scope     string
	Groups    []string
	Extra     map[string]any
}

// ParseClaims builds Claims from a decoded claim set. Fields with an
// unexpected JSON type are left zero. Username prefers "username" (access
// tokens) over "cognito:username" (ID tokens).
func ParseClaims(raw map[string]any) Claims {
	c := Claims{
		Subject:   stringClaim(raw, ClaimSubject),
		TokenUse:  stringClaim(raw, ClaimTokenUse),
		ClientID:  stringClaim(raw, ClaimClientID),
		Audience:  stringsClaim(raw, ClaimAudience),
		Issuer:    stringClaim(raw, ClaimIssuer),
		ExpiresAt: timeClaim(raw, ClaimExpiresAt),
		IssuedAt:  timeClaim(raw, ClaimIssuedAt),
		AuthTime:  timeClaim(raw, ClaimAuthTime),
		Username:  stringClaim(raw, ClaimUsername),
		Email:     stringClaim(raw, ClaimEmail),
		Scope:     stringClaim(raw, ClaimScope),
		Groups:    stringsClaim(raw, ClaimGroups),
	}
	if c.Username == "" {
		c.Username = stringClaim(raw, ClaimCognitoUsername)
	}
	for k, v := range raw {
		if knownClaims[k] {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = v
	}
	return c
}

// HasAudience reports whether aud contains audience.
func (c Claims) HasAudience(audience string) bool {
	for _, a := range c.Audience {
		if a == audience {
			return true
		}
	}
	return false
}

// Scopes splits the space-separated scope claim.
func (c Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

func stringClaim(raw map[string]any, name string) string {
	s, _ := raw[name].(string)
	return s
}

// stringsClaim accepts a single string or an array of strings.
func stringsClaim(raw map[string]any, name string) []string {
	switch v := raw[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// timeClaim reads a NumericDate (seconds since the epoch).
func timeClaim(raw map[string]any, name string) time.Time {
	var secs float64
	switch v := raw[name].(type) {
	case float64:
		secs = v
	case int64:
		secs = float64(v)
	case int:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}
		}
		secs = f
	default:
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

// cloneClaims copies the top level of a claim set.
func cloneClaims(raw map[string]any) map[string]any {
	return maps.Clone(raw)
}
