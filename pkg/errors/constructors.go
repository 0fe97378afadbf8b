package errors

import (
	"errors"
	"fmt"
)

// Default suggested actions attached by the per-type constructors.
const (
	ActionProvideToken    = "Include an Authorization header of the form 'Bearer <token>'"
	ActionCheckFormat     = "Send a well-formed JWT in the Authorization header"
	ActionReauthenticate  = "Obtain a new token by signing in again"
	ActionRefreshToken    = "Refresh the access token using the refresh token"
	ActionCheckIssuer     = "Use a token issued by the configured user pool"
	ActionCheckAudience   = "Use a token issued for this application client"
	ActionCheckTokenUse   = "Send an access token rather than an ID token"
	ActionCheckCredential = "Verify the username and password"
	ActionRetryLater      = "Retry the request later"
	ActionComplete        = "Complete the challenge with the identity provider before retrying"
)

// New creates a new Error with the specified code and message.
// Use this for creating errors without an underlying cause.
//
// Example:
//
//	err := errors.New(errors.CodeValidation, "username is required")
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with the specified code and formatted message.
//
// Example:
//
//	err := errors.Newf(errors.CodeKeyNotFound, "signing key %q not found", kid)
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrap returns nil.
//
// Example:
//
//	resp, err := client.Do(req)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeNetwork, "failed to fetch JWKS")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

func withAction(code Code, message, action string) *Error {
	return &Error{Code: code, Message: message, SuggestedAction: action}
}

// MissingHeader creates a MISSING_HEADER error.
func MissingHeader(message string) *Error {
	return withAction(CodeMissingHeader, message, ActionProvideToken)
}

// InvalidFormat creates an INVALID_FORMAT error.
//
// Example:
//
//	err := errors.InvalidFormat("token header is missing kid")
func InvalidFormat(message string) *Error {
	return withAction(CodeInvalidFormat, message, ActionCheckFormat)
}

// InvalidSignature creates an INVALID_SIGNATURE error.
func InvalidSignature(message string) *Error {
	return withAction(CodeInvalidSignature, message, ActionReauthenticate)
}

// KeyNotFound creates a KEY_NOT_FOUND error for the given key id.
func KeyNotFound(kid string) *Error {
	e := withAction(CodeKeyNotFound, fmt.Sprintf("signing key %q not found in JWKS", kid), ActionReauthenticate)
	e.Details = map[string]any{"kid": kid}
	return e
}

// TokenExpired creates a TOKEN_EXPIRED error.
func TokenExpired(message string) *Error {
	return withAction(CodeTokenExpired, message, ActionRefreshToken)
}

// InvalidIssuer creates an INVALID_ISSUER error recording the expected and
// actual issuer.
func InvalidIssuer(expected, actual string) *Error {
	e := withAction(CodeInvalidIssuer, "token issuer does not match", ActionCheckIssuer)
	e.Details = map[string]any{"expected": expected, "actual": actual}
	return e
}

// InvalidAudience creates an INVALID_AUDIENCE error.
func InvalidAudience(message string) *Error {
	return withAction(CodeInvalidAudience, message, ActionCheckAudience)
}

// InvalidTokenUse creates an INVALID_TOKEN_USE error recording the expected
// and actual token_use claim.
func InvalidTokenUse(expected, actual string) *Error {
	e := withAction(CodeInvalidTokenUse, fmt.Sprintf("token_use must be %q", expected), ActionCheckTokenUse)
	e.Details = map[string]any{"expected": expected, "actual": actual}
	return e
}

// InvalidCredentials creates an INVALID_CREDENTIALS error.
func InvalidCredentials(message string) *Error {
	return withAction(CodeInvalidCredentials, message, ActionCheckCredential)
}

// RefreshExpired creates a REFRESH_EXPIRED error.
func RefreshExpired(message string) *Error {
	return withAction(CodeRefreshExpired, message, ActionReauthenticate)
}

// Network wraps an I/O failure as a NETWORK_ERROR.
// Unlike Wrap, a nil cause still produces an error.
//
// Example:
//
//	return errors.Network(err, "JWKS endpoint unreachable")
func Network(cause error, message string) *Error {
	e := withAction(CodeNetwork, message, ActionRetryLater)
	e.Cause = cause
	return e
}

// ChallengeRequired creates a CHALLENGE_REQUIRED error naming the challenge
// returned by the identity provider.
func ChallengeRequired(challenge string) *Error {
	e := withAction(CodeChallengeRequired,
		fmt.Sprintf("identity provider requires the %s challenge", challenge), ActionComplete)
	e.Details = map[string]any{"challenge": challenge}
	return e
}

// Validation creates a new validation error.
//
// Example:
//
//	err := errors.Validation("user pool id is required")
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a new validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Internal creates a new internal error.
// Use this for unexpected failures that should not expose details to users.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates a new internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// NotFound creates a new not found error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Unavailable creates a new service unavailable error.
//
// Example:
//
//	err := errors.Unavailable("MCP server \"search\" is unavailable")
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// CircuitOpen creates an error reporting that the named breaker rejected a
// call.
func CircuitOpen(name string) *Error {
	e := withAction(CodeCircuitOpen, fmt.Sprintf("circuit breaker %q is open", name), ActionRetryLater)
	e.Details = map[string]any{"breaker": name}
	return e
}

// Timeout creates a new timeout error.
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// RateLimited creates a new rate limiting error.
func RateLimited(message string) *Error {
	return withAction(CodeRateLimited, message, ActionRetryLater)
}

// FromError converts a standard error to an Error.
// If the error is already an *Error (anywhere in the chain), it is returned
// as-is. Otherwise, it is wrapped as an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
