package mcpclient

import "context"

// TokenSource supplies the bearer token sent to a server. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to [TokenSource].
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements [TokenSource].
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) {
		return token, nil
	})
}

type bearerKey struct{}

// ContextWithBearerToken stores the caller's bearer token for
// [ForwardedToken].
func ContextWithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// ForwardedToken returns the token stored with [ContextWithBearerToken],
// so the downstream server sees the same Cognito token the gateway
// validated.
func ForwardedToken() TokenSource {
	return TokenSourceFunc(func(ctx context.Context) (string, error) {
		token, _ := ctx.Value(bearerKey{}).(string)
		return token, nil
	})
}
