package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// Error is a structured error with a code, message, and optional cause.
// It implements the standard error interface and carries enough context to
// be rendered as an API error response without further classification.
//
// Error values are treated as immutable: the With* methods return copies.
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_005").
	Code Code

	// Message is the human-readable error message. It may be shown to end
	// users and must not contain tokens, passwords, or other secrets.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Details contains additional structured data about the error, such as
	// the expected and actual issuer, or the challenge name returned by
	// the identity provider.
	Details map[string]any

	// SuggestedAction tells the caller how to recover, e.g. "refresh the
	// access token". Empty when no useful action exists.
	SuggestedAction string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Type returns the error type derived from the code.
func (e *Error) Type() Type {
	return e.Code.Type()
}

// HTTPStatus returns the HTTP status code for this error based on its
// code category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "AUTH":
		return http.StatusUnauthorized
	case "VAL":
		return http.StatusBadRequest
	case "NF":
		return http.StatusNotFound
	case "RATE":
		return http.StatusTooManyRequests
	case "INT":
		return http.StatusInternalServerError
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of the error with the given details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	out := e.clone(len(details))
	maps.Copy(out.Details, details)
	return out
}

// WithDetail returns a copy of the error with a single detail added.
func (e *Error) WithDetail(key string, value any) *Error {
	out := e.clone(1)
	out.Details[key] = value
	return out
}

// WithSuggestedAction returns a copy of the error with the suggested action
// replaced.
func (e *Error) WithSuggestedAction(action string) *Error {
	out := e.clone(0)
	out.SuggestedAction = action
	return out
}

func (e *Error) clone(extra int) *Error {
	details := make(map[string]any, len(e.Details)+extra)
	maps.Copy(details, e.Details)
	return &Error{
		Code:            e.Code,
		Message:         e.Message,
		Cause:           e.Cause,
		Details:         details,
		SuggestedAction: e.SuggestedAction,
	}
}

// Format implements fmt.Formatter. Use %+v to include details, the
// suggested action, and the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Type: %q, Message: %q", e.Code, e.Type(), e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.SuggestedAction != "" {
				fmt.Fprintf(s, ", SuggestedAction: %q", e.SuggestedAction)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
