package errors

import (
	"errors"
	"slices"
)

// AsError finds the first *Error in err's chain.
//
// Example:
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("request failed", "code", e.Code, "type", e.Type())
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetType returns the error type of err, or "" when err is not an *Error.
func GetType(err error) Type {
	if e, ok := AsError(err); ok {
		return e.Type()
	}
	return ""
}

// IsType reports whether err has the given error type.
//
// Example:
//
//	if errors.IsType(err, errors.TypeTokenExpired) {
//	    // refresh and retry
//	}
func IsType(err error, t Type) bool {
	return GetType(err) == t
}

// inCategory reports whether err's code belongs to one of categories. A
// nil or foreign error belongs to none.
func inCategory(err error, categories ...string) bool {
	code := GetCode(err)
	return code != "" && slices.Contains(categories, code.Category())
}

// IsAuthentication reports an AUTH_xxx error, answered with 401.
func IsAuthentication(err error) bool { return inCategory(err, "AUTH") }

// IsValidation reports a VAL_xxx error.
func IsValidation(err error) bool { return inCategory(err, "VAL") }

// IsNotFound reports an NF_xxx error.
func IsNotFound(err error) bool { return inCategory(err, "NF") }

// IsRateLimited reports a RATE_xxx error.
func IsRateLimited(err error) bool { return inCategory(err, "RATE") }

// IsInternal reports an INT_xxx error.
func IsInternal(err error) bool { return inCategory(err, "INT") }

// IsUnavailable reports an UNAVAIL_xxx error, including an open breaker.
func IsUnavailable(err error) bool { return inCategory(err, "UNAVAIL") }

// IsTimeout reports a TIMEOUT_xxx error.
func IsTimeout(err error) bool { return inCategory(err, "TIMEOUT") }

// IsRetryable reports whether repeating the operation may succeed.
// Network failures, timeouts and unavailable dependencies qualify. An open
// circuit breaker does not: callers wait out the cool-down instead.
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    // retry with backoff
//	}
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case "", CodeCircuitOpen:
		return false
	case CodeNetwork:
		return true
	}
	return inCategory(err, "TIMEOUT", "UNAVAIL")
}

// IsClientError reports an error caused by the request (4xx).
func IsClientError(err error) bool { return inCategory(err, "VAL", "AUTH", "NF", "RATE") }

// IsServerError reports an error on the gateway's side (5xx).
func IsServerError(err error) bool { return inCategory(err, "INT", "UNAVAIL", "TIMEOUT") }
