// Package errors provides the structured error type used across the gateway.
// Every failure in the authentication pipeline (missing header, bad
// signature, unreachable JWKS endpoint, rejected credentials) is represented
// as an *Error carrying a stable machine-readable code, an error type from
// the authentication taxonomy, and an optional suggested action for the
// caller.
//
// # Error Codes
//
// Codes follow the pattern CATEGORY_NNN. The category determines the HTTP
// status the error maps to:
//
//	AUTH_xxx    - authentication failures (401 Unauthorized)
//	VAL_xxx     - invalid input or configuration (400 Bad Request)
//	NF_xxx      - unknown resource (404 Not Found)
//	RATE_xxx    - rate limiting (429 Too Many Requests)
//	INT_xxx     - unexpected internal failures (500)
//	UNAVAIL_xxx - downstream dependency unavailable (503)
//	TIMEOUT_xxx - downstream dependency timed out (504)
//
// Authentication codes each map to one error type (TOKEN_EXPIRED,
// KEY_NOT_FOUND, ...). The type is what clients see in the "code" field of
// the JSON error body; the numeric code is kept for log searches and alerts.
//
// # Usage
//
//	err := errors.TokenExpired("token expired at 2025-01-02T15:04:05Z")
//
//	if errors.IsType(err, errors.TypeTokenExpired) {
//	    // prompt for refresh
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("authentication failed",
//	        "code", e.Code,
//	        "type", e.Type(),
//	    )
//	}
package errors
