package auth

import (
	"context"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/httpx"
	"github.com/StricklySoft/agentcore-gateway/pkg/slogx"
)

// HeaderAuthorization is the header (and gRPC metadata key, lower-cased)
// carrying the bearer token.
const HeaderAuthorization = "Authorization"

// bearerScheme is compared case-insensitively.
const bearerScheme = "bearer"

// BypassList decides which request paths skip authentication.
//
// An entry matches a path when the two are equal or when the path
// continues the entry at a segment boundary: "/docs" matches "/docs" and
// "/docs/index.html" but not "/docsearch". The entry "/" matches only "/".
// Trailing slashes on entries are ignored.
type BypassList struct {
	entries []string
}

// NewBypassList normalises the entries. Empty entries are dropped.
func NewBypassList(paths []string) BypassList {
	entries := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p != "/" {
			p = strings.TrimRight(p, "/")
			if p == "" {
				p = "/"
			}
		}
		entries = append(entries, p)
	}
	return BypassList{entries: entries}
}

// Matches reports whether path is exempt from authentication.
func (b BypassList) Matches(path string) bool {
	for _, entry := range b.entries {
		if entry == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if path == entry || strings.HasPrefix(path, entry+"/") {
			return true
		}
	}
	return false
}

// Paths returns the normalised entries.
func (b BypassList) Paths() []string {
	return append([]string(nil), b.entries...)
}

// ExtractBearerToken parses an Authorization header value. A missing
// header is MISSING_HEADER; anything other than "Bearer <token>" with a
// non-empty token is INVALID_FORMAT.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", sserr.MissingHeader("authorization header is required")
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", sserr.InvalidFormat("authorization header must use the Bearer scheme")
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", sserr.InvalidFormat("bearer token is empty or malformed")
	}
	return token, nil
}

// bearerFromValues extracts the token from the first of the received
// Authorization values. A header that was sent empty is INVALID_FORMAT;
// MISSING_HEADER means none was sent.
func bearerFromValues(values []string) (string, error) {
	if len(values) == 0 {
		return "", sserr.MissingHeader("authorization header is required")
	}
	if strings.TrimSpace(values[0]) == "" {
		return "", sserr.InvalidFormat("authorization header is empty")
	}
	return ExtractBearerToken(values[0])
}

// authenticate runs the header values through the validator and records
// the outcome.
func authenticate(ctx context.Context, v TokenValidator, values []string, o options) (*UserContext, error) {
	token, err := bearerFromValues(values)
	if err == nil {
		var uc *UserContext
		uc, err = v.ValidateToken(ctx, token)
		if err == nil {
			o.metrics.observeAuth(resultSuccess, nil)
			return uc, nil
		}
	}

	// Anything that slipped through untyped is still a rejection.
	if !sserr.IsAuthentication(err) {
		err = sserr.Network(err, "authentication could not be completed")
	}
	o.metrics.observeAuth(resultFailure, err)
	return nil, err
}

// HTTPMiddleware returns an HTTP middleware that authenticates every
// request whose path is not in bypassPaths.
//
// Rejected requests get a 401 with the JSON error body and a
// "WWW-Authenticate: Bearer" header. Accepted requests carry the
// [UserContext] in their context.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /api/v1/me", handleMe)
//	handler := auth.HTTPMiddleware(validator, cfg.BypassPaths)(mux)
func HTTPMiddleware(v TokenValidator, bypassPaths []string, opts ...Option) func(http.Handler) http.Handler {
	bypass := NewBypassList(bypassPaths)
	o := buildOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass.Matches(r.URL.Path) {
				o.metrics.observeAuth(resultBypass, nil)
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			uc, err := authenticate(ctx, v, r.Header.Values(HeaderAuthorization), o)
			if err != nil {
				slogx.FromContext(ctx).WarnContext(ctx, "auth: request rejected",
					"error_type", sserr.GetType(err),
					"error_code", sserr.GetCode(err),
					"error", err,
				)
				w.Header().Set("WWW-Authenticate", challengeHeader(err))
				httpx.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(ctx, uc)))
		})
	}
}

// challengeHeader builds the RFC 6750 WWW-Authenticate value.
func challengeHeader(err error) string {
	switch sserr.GetType(err) {
	case sserr.TypeMissingHeader:
		return "Bearer"
	case sserr.TypeNetworkError:
		return `Bearer error="temporarily_unavailable"`
	default:
		return `Bearer error="invalid_token"`
	}
}
