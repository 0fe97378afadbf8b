package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	"github.com/StricklySoft/agentcore-gateway/pkg/cognito"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/httpx"
	"github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
	"github.com/StricklySoft/agentcore-gateway/pkg/slogx"
)

// Request body limits.
const (
	maxToolArgumentsSize = 1 << 20
	maxAuthBodySize      = 64 << 10
)

// Overall health values.
const (
	healthOK          = "ok"
	healthDegraded    = "degraded"
	healthUnavailable = "unavailable"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	// Status is "ok", "degraded" when an MCP server is unhealthy or a
	// breaker is not closed, or "unavailable" when tokens cannot be
	// validated or the session store is down.
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Checks  HealthChecks `json:"checks"`
}

// HealthChecks holds the per-dependency results of a health check.
type HealthChecks struct {
	JWKS     JWKSHealth                `json:"jwks"`
	Sessions string                    `json:"sessions,omitempty"`
	Servers  []mcpclient.ServerHealth  `json:"servers"`
	Breakers []resilience.BreakerState `json:"breakers"`
}

// JWKSHealth describes the signing key cache.
type JWKSHealth struct {
	Status      string `json:"status"`
	Keys        int    `json:"keys"`
	LastRefresh string `json:"last_refresh,omitempty"`
	Expired     bool   `json:"expired"`
}

// ServersResponse is the body of GET /api/v1/servers.
type ServersResponse struct {
	Servers []mcpclient.ServerHealth `json:"servers"`
}

// ToolsResponse is the body of GET /api/v1/servers/{server}/tools.
type ToolsResponse struct {
	Server string           `json:"server"`
	Tools  []mcpclient.Tool `json:"tools"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Flow is USER_SRP_AUTH (default) or USER_PASSWORD_AUTH.
	Flow string `json:"flow,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	Username     string `json:"username,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

// handleHealth godoc
//
//	@Summary		Health Check Endpoint
//	@Description	Reports the signing key cache, the session store, every MCP server and every circuit breaker.
//	@Description	Answers 503 only when tokens cannot be validated or the session store is down.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse	"ok or degraded"
//	@Failure		503	{object}	HealthResponse	"unavailable"
//	@Router			/health [get]
func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  healthOK,
		Version: Version,
		Uptime:  app.clock.Now().Sub(app.startTime).String(),
		Checks: HealthChecks{
			JWKS:    JWKSHealth{Status: "ok", Keys: app.keys.KeyCount(), Expired: app.keys.IsCacheExpired()},
			Servers: app.servers.Health(),
		},
	}
	code := http.StatusOK

	if last := app.keys.LastRefresh(); !last.IsZero() {
		resp.Checks.JWKS.LastRefresh = last.UTC().Format(httpx.TimestampFormat)
	}
	if resp.Checks.JWKS.Keys == 0 {
		resp.Checks.JWKS.Status = "error: no signing keys loaded"
		resp.Status = healthUnavailable
		code = http.StatusServiceUnavailable
	}

	if app.redis != nil {
		resp.Checks.Sessions = "ok"
		if err := app.redis.Health(r.Context()); err != nil {
			resp.Checks.Sessions = "error: " + err.Error()
			resp.Status = healthUnavailable
			code = http.StatusServiceUnavailable
		}
	} else if app.sessions != nil {
		resp.Checks.Sessions = "ok"
	}

	for _, b := range app.breakers() {
		snap := b.Snapshot()
		resp.Checks.Breakers = append(resp.Checks.Breakers, snap)
		if snap.State != resilience.StateClosed && resp.Status == healthOK {
			resp.Status = healthDegraded
		}
	}
	for _, s := range resp.Checks.Servers {
		if s.Status == mcpclient.StatusUnhealthy && resp.Status == healthOK {
			resp.Status = healthDegraded
		}
	}

	httpx.WriteJSON(w, code, resp)
}

// handleMe godoc
//
//	@Summary		Current User
//	@Description	Returns the identity extracted from the caller's token.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	auth.UserContext
//	@Failure		401	{object}	httpx.ErrorBody
//	@Router			/api/v1/me [get]
func (app *App) handleMe(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, auth.MustUserFromContext(r.Context()))
}

// handleListServers godoc
//
//	@Summary		List MCP Servers
//	@Description	Returns every configured MCP server with its latest health check and breaker state.
//	@Tags			Servers
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	ServersResponse
//	@Failure		401	{object}	httpx.ErrorBody
//	@Router			/api/v1/servers [get]
func (app *App) handleListServers(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, ServersResponse{Servers: app.servers.Health()})
}

// handleListTools godoc
//
//	@Summary		List Tools
//	@Description	Lists the tools a server offers, following pagination.
//	@Tags			Servers
//	@Produce		json
//	@Security		BearerAuth
//	@Param			server	path		string	true	"Server name"
//	@Success		200		{object}	ToolsResponse
//	@Failure		401		{object}	httpx.ErrorBody
//	@Failure		404		{object}	httpx.ErrorBody	"unknown server"
//	@Failure		503		{object}	httpx.ErrorBody	"server unavailable or breaker open"
//	@Failure		504		{object}	httpx.ErrorBody	"server timed out"
//	@Router			/api/v1/servers/{server}/tools [get]
func (app *App) handleListTools(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("server")
	client, err := app.servers.Get(name)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	tools, err := client.ListTools(r.Context())
	if err != nil {
		app.writeUpstreamError(w, r, err)
		return
	}
	if tools == nil {
		tools = []mcpclient.Tool{}
	}
	httpx.WriteJSON(w, http.StatusOK, ToolsResponse{Server: name, Tools: tools})
}

// handleCallTool godoc
//
//	@Summary		Call Tool
//	@Description	Calls a tool with the JSON object in the body as its arguments. A tool that reports its own
//	@Description	failure answers 200 with is_error set.
//	@Tags			Servers
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			server	path		string	true	"Server name"
//	@Param			tool	path		string	true	"Tool name"
//	@Param			request	body		object	false	"Tool arguments"
//	@Success		200		{object}	mcpclient.ToolResult
//	@Failure		400		{object}	httpx.ErrorBody	"arguments are not a JSON object or were rejected by the tool"
//	@Failure		401		{object}	httpx.ErrorBody
//	@Failure		404		{object}	httpx.ErrorBody	"unknown server"
//	@Failure		503		{object}	httpx.ErrorBody	"server unavailable or breaker open"
//	@Failure		504		{object}	httpx.ErrorBody	"server timed out"
//	@Router			/api/v1/servers/{server}/tools/{tool} [post]
func (app *App) handleCallTool(w http.ResponseWriter, r *http.Request) {
	client, err := app.servers.Get(r.PathValue("server"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	args, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxToolArgumentsSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, sserr.Validationf("gateway: tool arguments exceed %d bytes", maxToolArgumentsSize))
			return
		}
		httpx.WriteError(w, sserr.Wrap(err, sserr.CodeValidation, "gateway: failed to read request body"))
		return
	}

	result, err := client.CallTool(r.Context(), r.PathValue("tool"), args)
	if err != nil {
		app.writeUpstreamError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

// handleLogin godoc
//
//	@Summary		Log In
//	@Description	Authenticates against Cognito and stores the session. The password is never sent with USER_SRP_AUTH.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	cognito.Tokens
//	@Failure		400		{object}	httpx.ErrorBody
//	@Failure		401		{object}	httpx.ErrorBody	"invalid credentials or a challenge is required"
//	@Failure		503		{object}	httpx.ErrorBody	"Cognito unreachable"
//	@Router			/auth/login [post]
func (app *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	creds := cognito.StaticCredentials{Username: req.Username, Password: req.Password}
	tokens, err := app.sessions.Login(r.Context(), creds, cognito.Flow(req.Flow))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokens)
}

// handleRefresh godoc
//
//	@Summary		Refresh Tokens
//	@Description	Exchanges a refresh token for new access and ID tokens. With a username the stored session is updated; the token must have been issued to that user.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	cognito.Tokens
//	@Failure		400		{object}	httpx.ErrorBody
//	@Failure		401		{object}	httpx.ErrorBody	"refresh token expired, revoked or issued to another user"
//	@Router			/auth/refresh [post]
func (app *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	tokens, err := app.sessions.RefreshSessionFor(r.Context(), req.Username, req.RefreshToken)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokens)
}

// handleLogout godoc
//
//	@Summary		Log Out
//	@Description	Revokes the caller's refresh token and deletes the stored session.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	httpx.ErrorBody
//	@Router			/auth/logout [post]
func (app *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())
	username := user.Username
	if username == "" {
		username = user.UserID
	}
	if err := app.sessions.Logout(r.Context(), username); err != nil {
		slogx.FromContext(r.Context()).WarnContext(r.Context(), "logout did not complete", "username", username, "error", err)
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeUpstreamError logs a failed MCP call and writes its error body.
func (app *App) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).WarnContext(r.Context(), "mcp call failed",
		"server", r.PathValue("server"),
		"error_code", sserr.GetCode(err),
		"error", err,
	)
	httpx.WriteError(w, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return sserr.Wrap(err, sserr.CodeValidation, "gateway: request body is not valid JSON")
	}
	return nil
}
