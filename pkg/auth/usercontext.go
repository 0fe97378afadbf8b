package auth

import (
	"context"
	"slices"
	"time"
)

// UserContext is the authenticated caller attached to a request. UserID is
// never empty.
type UserContext struct {
	UserID          string         `json:"user_id"`
	Username        string         `json:"username,omitempty"`
	Email           string         `json:"email,omitempty"`
	TokenUse        string         `json:"token_use"`
	ClientID        string         `json:"client_id,omitempty"`
	Claims          map[string]any `json:"claims"`
	AuthenticatedAt time.Time      `json:"authenticated_at"`
}

// Groups returns the cognito:groups claim.
func (u *UserContext) Groups() []string {
	return stringsClaim(u.Claims, ClaimGroups)
}

// InGroup reports whether the user belongs to the Cognito group.
func (u *UserContext) InGroup(group string) bool {
	return slices.Contains(u.Groups(), group)
}

// contextKey is an unexported type used for context keys in this package.
type contextKey int

const userKey contextKey = iota

// ContextWithUser returns a new context carrying uc. It is retrieved with
// [UserFromContext].
func ContextWithUser(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userKey, uc)
}

// UserFromContext retrieves the authenticated user. It returns nil and
// false if the request was not authenticated (bypass paths included).
//
// Example:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    httpx.WriteError(w, sserr.MissingHeader("authentication required"))
//	    return
//	}
func UserFromContext(ctx context.Context) (*UserContext, bool) {
	uc, ok := ctx.Value(userKey).(*UserContext)
	return uc, ok && uc != nil
}

// MustUserFromContext retrieves the user, panicking if none is present.
// Use it only behind the authentication middleware.
func MustUserFromContext(ctx context.Context) *UserContext {
	uc, ok := UserFromContext(ctx)
	if !ok {
		panic("auth: no user in context; ensure authentication middleware is configured")
	}
	return uc
}
