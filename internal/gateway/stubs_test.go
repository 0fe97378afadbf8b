package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/StricklySoft/agentcore-gateway/internal/testutil/fixtures"
	"github.com/StricklySoft/agentcore-gateway/internal/testutil/jwkstest"
	"github.com/StricklySoft/agentcore-gateway/pkg/cognito"
	"github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"
)

// ---------------------------------------------------------------------------
// MCP server
// ---------------------------------------------------------------------------

// mcpStub is a session-less MCP server with a single "echo" tool.
type mcpStub struct {
	*httptest.Server

	mu      sync.Mutex
	down    bool
	authz   []string
	methods []string
}

func newMCPStub(t *testing.T) *mcpStub {
	t.Helper()
	s := &mcpStub{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *mcpStub) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// Authorization returns the Authorization header of every request.
func (s *mcpStub) Authorization() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authz...)
}

func (s *mcpStub) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func (s *mcpStub) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	down := s.down
	s.authz = append(s.authz, r.Header.Get("Authorization"))
	s.methods = append(s.methods, req.Method)
	s.mu.Unlock()

	if down {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	msg := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "initialize":
		msg["result"] = map[string]any{
			"protocolVersion": mcpclient.ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "stub-mcp", "version": "0.0.1"},
		}
	case "ping":
		msg["result"] = map[string]any{}
	case "tools/list":
		msg["result"] = map[string]any{"tools": []map[string]any{
			{"name": fixtures.ToolName, "description": "Echoes its arguments.", "inputSchema": map[string]any{"type": "object"}},
		}}
	case "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &p)
		if p.Name != fixtures.ToolName {
			msg["error"] = map[string]any{"code": mcpclient.CodeInvalidParams, "message": "unknown tool " + p.Name}
			break
		}
		msg["result"] = map[string]any{
			"content": []map[string]any{{"type": "text", "text": strings.TrimSpace(string(p.Arguments))}},
		}
	default:
		msg["error"] = map[string]any{"code": mcpclient.CodeMethodNotFound, "message": "method not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msg)
}

// ---------------------------------------------------------------------------
// Cognito API
// ---------------------------------------------------------------------------

// fakeCognitoAPI accepts USER_PASSWORD_AUTH with fixtures.Password and issues
// tokens signed by the test issuer. An email address signs in as its local
// part.
type fakeCognitoAPI struct {
	t        testing.TB
	iss      *jwkstest.Issuer
	clientID string

	mu      sync.Mutex
	revoked map[string]bool
}

var _ cognito.API = (*fakeCognitoAPI)(nil)

func newFakeCognitoAPI(t testing.TB, iss *jwkstest.Issuer, clientID string) *fakeCognitoAPI {
	return &fakeCognitoAPI{t: t, iss: iss, clientID: clientID, revoked: map[string]bool{}}
}

func (f *fakeCognitoAPI) Revoked(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[token]
}

func (f *fakeCognitoAPI) InitiateAuth(_ context.Context, in *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	params := in.AuthParameters
	switch in.AuthFlow {
	case types.AuthFlowTypeUserPasswordAuth:
		if params["PASSWORD"] != fixtures.Password {
			return nil, &types.NotAuthorizedException{Message: aws.String("Incorrect username or password.")}
		}
		// Email aliases sign in as the local part.
		username, _, _ := strings.Cut(params["USERNAME"], "@")
		return &cip.InitiateAuthOutput{AuthenticationResult: f.result(username, "refresh-"+username)}, nil
	case types.AuthFlowTypeRefreshTokenAuth:
		token := params["REFRESH_TOKEN"]
		username, ok := strings.CutPrefix(token, "refresh-")
		if !ok || f.Revoked(token) {
			return nil, &types.NotAuthorizedException{Message: aws.String("Refresh Token has been revoked")}
		}
		return &cip.InitiateAuthOutput{AuthenticationResult: f.result(username, "")}, nil
	default:
		return nil, &types.InvalidParameterException{Message: aws.String("unsupported flow")}
	}
}

func (f *fakeCognitoAPI) RespondToAuthChallenge(context.Context, *cip.RespondToAuthChallengeInput, ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error) {
	return nil, &types.InvalidParameterException{Message: aws.String("no challenge in progress")}
}

func (f *fakeCognitoAPI) RevokeToken(_ context.Context, in *cip.RevokeTokenInput, _ ...func(*cip.Options)) (*cip.RevokeTokenOutput, error) {
	f.mu.Lock()
	f.revoked[aws.ToString(in.Token)] = true
	f.mu.Unlock()
	return &cip.RevokeTokenOutput{}, nil
}

func (f *fakeCognitoAPI) result(username, refreshToken string) *types.AuthenticationResultType {
	access := f.iss.AccessClaims(username+"-sub", f.clientID, time.Hour)
	access["username"] = username
	id := f.iss.IDClaims(username+"-sub", f.clientID, time.Hour)
	id["cognito:username"] = username

	r := &types.AuthenticationResultType{
		AccessToken: aws.String(f.iss.Token(f.t, access)),
		IdToken:     aws.String(f.iss.Token(f.t, id)),
		ExpiresIn:   3600,
		TokenType:   aws.String("Bearer"),
	}
	if refreshToken != "" {
		r.RefreshToken = aws.String(refreshToken)
	}
	return r
}
