// Package fixtures provides shared test identities for the gateway test
// suites.
//
// Using common constants prevents magic strings in tests and keeps the
// Cognito, auth and gateway tests talking about the same pool and user.
package fixtures

// Cognito pool and app client used by tests that never reach AWS.
const (
	// UserPoolID has the <region>_<id> form Cognito requires.
	UserPoolID = "us-east-1_TestPool"

	// ClientID is the app client id carried in client_id and aud claims.
	ClientID = "gateway-client"

	// ClientSecret is a deliberately weak value suitable only for tests.
	ClientSecret = "test-client-secret"
)

// Standard user values for login tests.
const (
	// Username is the default login name.
	Username = "alice"

	// Password is the only password fake Cognito implementations accept.
	Password = "correct horse battery staple"

	// Subject is the default sub claim for test users.
	Subject = "user-abc-123"
)

// MCP server values used by gateway tests.
const (
	// ServerName is the configured name of the stub MCP server.
	ServerName = "search"

	// ToolName is the single tool the stub MCP server exposes.
	ToolName = "echo"
)
