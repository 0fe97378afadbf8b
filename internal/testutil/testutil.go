// Package testutil provides shared test helpers for the gateway packages.
//
// All helpers accept [testing.TB]. Require* helpers halt the test on
// failure; Assert* helpers record the failure and return false so table
// rows keep running. Every helper calls t.Helper().
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error carrying
// code.
//
// Example:
//
//	_, err := validator.ValidateToken(ctx, "")
//	testutil.RequireErrorCode(t, err, sserr.CodeInvalidFormat)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	e := requireSSError(t, err, msgAndArgs...)
	require.Equal(t, code, e.Code, "code mismatch (message: %s)", e.Message)
}

// RequireErrorType halts the test unless err is an *sserr.Error of the
// given type (TOKEN_EXPIRED, KEY_NOT_FOUND, ...).
func RequireErrorType(t testing.TB, err error, typ sserr.Type, msgAndArgs ...any) {
	t.Helper()
	e := requireSSError(t, err, msgAndArgs...)
	require.Equal(t, typ, e.Type(), "type mismatch (code: %s, message: %s)", e.Code, e.Message)
}

func requireSSError(t testing.TB, err error, msgAndArgs ...any) *sserr.Error {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	e, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	return e
}

// AssertErrorCode is the non-halting form of [RequireErrorCode].
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	e, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, e.Code, "code mismatch (message: %s)", e.Message)
}

// TempConfigFile writes content to "config"+ext (".yaml", ".json") in a
// per-test directory and returns its path.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// AssertJSONNotContains fails if the JSON encoding of v contains
// unexpected. Used to check that secrets and tokens are redacted.
func AssertJSONNotContains(t testing.TB, v any, unexpected string) bool {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return assert.NotContains(t, string(data), unexpected, "secret leaked into JSON: %s", data)
}
