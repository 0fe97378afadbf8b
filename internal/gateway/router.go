package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/StricklySoft/agentcore-gateway/api/docs" // Swagger docs
	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	"github.com/StricklySoft/agentcore-gateway/pkg/httpx"
	"github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"
	"github.com/StricklySoft/agentcore-gateway/pkg/slogx"
)

// routes builds the mux and wraps it in the global middleware chain:
// request logging, per-IP rate limiting, authentication, and bearer
// forwarding for MCP calls.
//
//	@title						AgentCore Gateway API
//	@version					0.1.0
//	@description				Authenticated REST facade over MCP tool servers. Every /api route requires a Cognito access token.
//
//	@contact.name				StricklySoft
//	@contact.url				https://github.com/StricklySoft/agentcore-gateway
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Cognito access token. Format: "Bearer {token}".
func (app *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry}))
	mux.Handle("/docs/", httpSwagger.Handler())

	mux.HandleFunc("GET /api/v1/me", app.handleMe)
	mux.HandleFunc("GET /api/v1/servers", app.handleListServers)
	mux.HandleFunc("GET /api/v1/servers/{server}/tools", app.handleListTools)
	mux.HandleFunc("POST /api/v1/servers/{server}/tools/{tool}", app.handleCallTool)

	if app.sessions != nil {
		mux.HandleFunc("POST /auth/login", app.handleLogin)
		mux.HandleFunc("POST /auth/refresh", app.handleRefresh)
		mux.HandleFunc("POST /auth/logout", app.handleLogout)
	}

	middlewares := []httpx.Middleware{slogx.HTTPMiddleware(app.logger)}
	if app.cfg.RateLimit.Enabled() {
		middlewares = append(middlewares, httpx.RateLimitByIP(app.cfg.RateLimit))
	}
	middlewares = append(middlewares,
		auth.HTTPMiddleware(app.validator, app.cfg.bypassPaths(), auth.WithMetrics(app.authMetrics)),
		forwardBearer,
	)
	return httpx.Chain(mux, middlewares...)
}

// forwardBearer keeps the caller's token in the context for
// [mcpclient.ForwardedToken].
func forwardBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, err := auth.ExtractBearerToken(r.Header.Get(auth.HeaderAuthorization)); err == nil {
			r = r.WithContext(mcpclient.ContextWithBearerToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}
