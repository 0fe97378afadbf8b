package cognito

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/golang-jwt/jwt/v5"
)

// Tokens is the result of a successful authentication. Values are never
// modified after they are returned; a refresh produces a new Tokens.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	Username     string    `json:"username"`
}

// ExpiresAt returns when the access and ID tokens expire.
func (t *Tokens) ExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Expired reports whether the access token expires within leeway of now.
func (t *Tokens) Expired(now time.Time, leeway time.Duration) bool {
	return !now.Add(leeway).Before(t.ExpiresAt())
}

// LogValue implements slog.LogValuer. Token values are reduced to their
// lengths.
func (t *Tokens) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", t.Username),
		slog.Int("access_token_len", len(t.AccessToken)),
		slog.Int("id_token_len", len(t.IDToken)),
		slog.Bool("has_refresh_token", t.RefreshToken != ""),
		slog.Int("expires_in", t.ExpiresIn),
	)
}

// tokensFrom converts an SDK result. refreshToken is used when the result
// carries none, as with REFRESH_TOKEN_AUTH.
func tokensFrom(username string, r *types.AuthenticationResultType, refreshToken string, now time.Time) *Tokens {
	t := &Tokens{
		AccessToken:  aws.ToString(r.AccessToken),
		IDToken:      aws.ToString(r.IdToken),
		RefreshToken: aws.ToString(r.RefreshToken),
		TokenType:    aws.ToString(r.TokenType),
		ExpiresIn:    int(r.ExpiresIn),
		IssuedAt:     now,
		Username:     username,
	}
	if t.RefreshToken == "" {
		t.RefreshToken = refreshToken
	}
	return t
}

// tokenOwner returns the username and sub claims of an access token. The
// username falls back to sub when Cognito omits it. The token came straight
// from Cognito, so its signature is not checked. Both are empty when the
// token cannot be decoded.
func tokenOwner(accessToken string) (username, sub string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return "", ""
	}
	sub, _ = claims.GetSubject()
	username, _ = claims["username"].(string)
	if username == "" {
		username = sub
	}
	return username, sub
}
