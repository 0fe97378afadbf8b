package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/agentcore-gateway/pkg/slogx"
)

// Headers set on outgoing requests to downstream servers. They describe
// the caller that the gateway authenticated; the downstream server must
// trust the gateway to rely on them.
const (
	HeaderUserID   = "X-Gateway-User-Id"
	HeaderUsername = "X-Gateway-Username"
	HeaderGroups   = "X-Gateway-Groups"
)

// maxHeaderValueSize bounds a single propagated header value.
const maxHeaderValueSize = 8192

var errHeaderTooLarge = errors.New("auth: propagated header value too large")

// PropagatingRoundTripper wraps an [http.RoundTripper] and copies the
// authenticated user and request id from the request context into
// headers. Requests without a user pass through unchanged.
//
// Example:
//
//	client := &http.Client{
//	    Transport: auth.NewPropagatingRoundTripper(http.DefaultTransport),
//	}
type PropagatingRoundTripper struct {
	wrapped http.RoundTripper
}

// NewPropagatingRoundTripper wraps transport. A nil transport means
// [http.DefaultTransport].
func NewPropagatingRoundTripper(transport http.RoundTripper) *PropagatingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &PropagatingRoundTripper{wrapped: transport}
}

// RoundTrip implements the [http.RoundTripper] interface.
func (t *PropagatingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	uc, hasUser := UserFromContext(ctx)
	reqID := slogx.RequestID(ctx)
	if !hasUser && reqID == "" {
		return t.wrapped.RoundTrip(r)
	}

	// Clone the request to avoid mutating the original.
	clone := r.Clone(ctx)
	if reqID != "" && clone.Header.Get(slogx.RequestIDHeader) == "" {
		clone.Header.Set(slogx.RequestIDHeader, reqID)
	}
	if hasUser {
		clone.Header.Set(HeaderUserID, uc.UserID)
		if uc.Username != "" {
			clone.Header.Set(HeaderUsername, uc.Username)
		}
		if groups := uc.Groups(); len(groups) > 0 {
			encoded, err := encodeHeaderValue(groups)
			if err != nil {
				slog.WarnContext(ctx, "auth: failed to encode groups for propagation",
					"error", err,
					"user_id", uc.UserID,
				)
			} else {
				clone.Header.Set(HeaderGroups, encoded)
			}
		}
	}
	return t.wrapped.RoundTrip(clone)
}

// encodeHeaderValue renders v as base64url JSON, refusing values larger
// than maxHeaderValueSize.
func encodeHeaderValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(data)
	if len(encoded) > maxHeaderValueSize {
		return "", errHeaderTooLarge
	}
	return encoded, nil
}

// DecodeGroupsHeader reverses the encoding used for [HeaderGroups].
func DecodeGroupsHeader(value string) ([]string, error) {
	if len(value) > maxHeaderValueSize {
		return nil, errHeaderTooLarge
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var groups []string
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}
