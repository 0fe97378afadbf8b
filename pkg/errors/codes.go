package errors

// Code is a machine-readable error code of the form CATEGORY_NNN.
// Codes are stable once assigned.
type Code string

// Type is the error type of the authentication taxonomy. It is the value
// exposed to API clients in the "code" field of an error response.
type Type string

// Authentication error types.
const (
	TypeMissingHeader      Type = "MISSING_HEADER"
	TypeInvalidFormat      Type = "INVALID_FORMAT"
	TypeInvalidSignature   Type = "INVALID_SIGNATURE"
	TypeKeyNotFound        Type = "KEY_NOT_FOUND"
	TypeTokenExpired       Type = "TOKEN_EXPIRED"
	TypeInvalidIssuer      Type = "INVALID_ISSUER"
	TypeInvalidAudience    Type = "INVALID_AUDIENCE"
	TypeInvalidTokenUse    Type = "INVALID_TOKEN_USE"
	TypeInvalidCredentials Type = "INVALID_CREDENTIALS"
	TypeRefreshExpired     Type = "REFRESH_EXPIRED"
	TypeNetworkError       Type = "NETWORK_ERROR"
	TypeChallengeRequired  Type = "CHALLENGE_REQUIRED"
)

// Types for the non-authentication categories.
const (
	TypeValidation  Type = "VALIDATION_ERROR"
	TypeNotFound    Type = "NOT_FOUND"
	TypeRateLimited Type = "RATE_LIMITED"
	TypeInternal    Type = "INTERNAL_ERROR"
	TypeUnavailable Type = "SERVICE_UNAVAILABLE"
	TypeTimeout     Type = "TIMEOUT"
)

const (
	// Authentication errors (AUTH_xxx) - HTTP 401.

	// CodeMissingHeader indicates the request carried no Authorization header.
	CodeMissingHeader Code = "AUTH_001"

	// CodeInvalidFormat indicates the Authorization header or the token
	// itself is malformed.
	CodeInvalidFormat Code = "AUTH_002"

	// CodeInvalidSignature indicates the token signature did not verify.
	CodeInvalidSignature Code = "AUTH_003"

	// CodeKeyNotFound indicates the token's kid is unknown even after a
	// forced JWKS refresh.
	CodeKeyNotFound Code = "AUTH_004"

	// CodeTokenExpired indicates the exp claim is in the past.
	CodeTokenExpired Code = "AUTH_005"

	// CodeInvalidIssuer indicates the iss claim does not match.
	CodeInvalidIssuer Code = "AUTH_006"

	// CodeInvalidAudience indicates neither aud nor client_id matches.
	CodeInvalidAudience Code = "AUTH_007"

	// CodeInvalidTokenUse indicates the token_use claim does not match.
	CodeInvalidTokenUse Code = "AUTH_008"

	// CodeInvalidCredentials indicates the identity provider rejected the
	// username/password pair.
	CodeInvalidCredentials Code = "AUTH_009"

	// CodeRefreshExpired indicates the refresh token was rejected.
	CodeRefreshExpired Code = "AUTH_010"

	// CodeNetwork indicates an I/O failure reaching the identity provider
	// or the JWKS endpoint.
	CodeNetwork Code = "AUTH_011"

	// CodeChallengeRequired indicates the identity provider answered with a
	// challenge this client does not complete (new password, MFA).
	CodeChallengeRequired Code = "AUTH_012"

	// Validation errors (VAL_xxx) - HTTP 400.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// Not found errors (NF_xxx) - HTTP 404.

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundServer indicates no MCP server is registered under the
	// requested name.
	CodeNotFoundServer Code = "NF_002"

	// Rate limiting (RATE_xxx) - HTTP 429.

	// CodeRateLimited indicates the caller exceeded its request budget.
	CodeRateLimited Code = "RATE_001"

	// Internal errors (INT_xxx) - HTTP 500.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration loading error.
	CodeInternalConfiguration Code = "INT_002"

	// CodeInternalCache indicates the session cache failed.
	CodeInternalCache Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a downstream dependency (MCP
	// server, Redis) is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeCircuitOpen indicates a circuit breaker rejected the call without
	// attempting it.
	CodeCircuitOpen Code = "UNAVAIL_003"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504.

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDependency indicates a call to a downstream dependency
	// timed out.
	CodeTimeoutDependency Code = "TIMEOUT_002"
)

// authTypes maps every authentication code to its error type.
var authTypes = map[Code]Type{
	CodeMissingHeader:      TypeMissingHeader,
	CodeInvalidFormat:      TypeInvalidFormat,
	CodeInvalidSignature:   TypeInvalidSignature,
	CodeKeyNotFound:        TypeKeyNotFound,
	CodeTokenExpired:       TypeTokenExpired,
	CodeInvalidIssuer:      TypeInvalidIssuer,
	CodeInvalidAudience:    TypeInvalidAudience,
	CodeInvalidTokenUse:    TypeInvalidTokenUse,
	CodeInvalidCredentials: TypeInvalidCredentials,
	CodeRefreshExpired:     TypeRefreshExpired,
	CodeNetwork:            TypeNetworkError,
	CodeChallengeRequired:  TypeChallengeRequired,
}

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

// Type returns the error type for the code. Authentication codes map to
// their taxonomy entry; other codes map to a type per category.
func (c Code) Type() Type {
	if t, ok := authTypes[c]; ok {
		return t
	}
	switch c.Category() {
	case "VAL":
		return TypeValidation
	case "NF":
		return TypeNotFound
	case "RATE":
		return TypeRateLimited
	case "UNAVAIL":
		return TypeUnavailable
	case "TIMEOUT":
		return TypeTimeout
	default:
		return TypeInternal
	}
}

// Class returns the error class name used in the "type" field of an error
// response body, e.g. "AuthenticationError".
func (c Code) Class() string {
	switch c.Category() {
	case "AUTH":
		return "AuthenticationError"
	case "VAL":
		return "ValidationError"
	case "NF":
		return "NotFoundError"
	case "RATE":
		return "RateLimitError"
	case "UNAVAIL":
		return "ServiceUnavailableError"
	case "TIMEOUT":
		return "TimeoutError"
	default:
		return "InternalError"
	}
}

// String returns the string representation of the error type.
func (t Type) String() string {
	return string(t)
}
