// Package httpx holds the HTTP plumbing shared by the gateway's handlers:
// JSON responses, the structured error body, per-key rate limiting, and
// middleware composition.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ErrorBody is the JSON document written for every failed request.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	Timestamp string      `json:"timestamp"`
}

// ErrorDetail is the "error" member of [ErrorBody].
type ErrorDetail struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

// TimestampFormat renders ErrorBody timestamps: ISO-8601 in UTC with a Z
// suffix.
const TimestampFormat = "2006-01-02T15:04:05Z"

// Now is the time source for error timestamps.
var Now = time.Now

// NewErrorBody converts err into the wire error document. Errors that are
// not *sserr.Error are reported as internal errors without leaking their
// text.
func NewErrorBody(err error) (int, ErrorBody) {
	e, ok := sserr.AsError(err)
	if !ok {
		e = sserr.Internal("an unexpected error occurred")
	}

	details := make(map[string]any, len(e.Details)+2)
	for k, v := range e.Details {
		details[k] = v
	}
	details["error_code"] = e.Code.String()
	if e.SuggestedAction != "" {
		details["suggested_action"] = e.SuggestedAction
	}

	return e.HTTPStatus(), ErrorBody{
		Error: ErrorDetail{
			Type:    e.Code.Class(),
			Message: e.Message,
			Code:    e.Type().String(),
			Details: details,
		},
		Timestamp: Now().UTC().Format(TimestampFormat),
	}
}

// WriteError writes err as an [ErrorBody] with the status its code maps to.
func WriteError(w http.ResponseWriter, err error) {
	status, body := NewErrorBody(err)
	WriteJSON(w, status, body)
}
