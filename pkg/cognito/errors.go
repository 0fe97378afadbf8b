package cognito

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Cognito error codes that mean the presented credential was rejected.
var rejectedCodes = map[string]bool{
	"NotAuthorizedException":         true,
	"UserNotFoundException":          true,
	"UserNotConfirmedException":      true,
	"PasswordResetRequiredException": true,
}

// Cognito error codes worth another attempt.
var transientCodes = map[string]bool{
	"TooManyRequestsException": true,
	"LimitExceededException":   true,
	"InternalErrorException":   true,
	"ServiceUnavailable":       true,
	"RequestTimeoutException":  true,
}

// classify maps an SDK error onto the authentication taxonomy. Rejected
// credentials become INVALID_CREDENTIALS, or REFRESH_EXPIRED when a refresh
// token was presented. Transport failures and throttling become
// NETWORK_ERROR, which the retry policy retries.
func classify(err error, op string, refreshing bool) error {
	if err == nil {
		return nil
	}
	if _, ok := sserr.AsError(err); ok {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case rejectedCodes[code] && refreshing:
			e := sserr.RefreshExpired("cognito: refresh token was rejected")
			e.Cause = err
			return e.WithDetail("provider_code", code)
		case rejectedCodes[code]:
			e := sserr.InvalidCredentials("cognito: credentials were rejected")
			e.Cause = err
			return e.WithDetail("provider_code", code)
		case transientCodes[code] || apiErr.ErrorFault() == smithy.FaultServer:
			return sserr.Network(err, "cognito: "+op+" failed").WithDetail("provider_code", code)
		default:
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "cognito: %s rejected the request", op).
				WithDetail("provider_code", code)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Network(err, "cognito: "+op+" timed out")
	}
	return sserr.Network(err, "cognito: "+op+" failed")
}
