// Command gateway runs the AgentCore gateway: Cognito JWT authentication in
// front of the configured MCP servers.
//
// Configuration is read from an optional YAML or JSON file and from
// GATEWAY_* environment variables, which take precedence:
//
//	gateway --config /etc/gateway/gateway.yaml
//	GATEWAY_COGNITO_USER_POOL_ID=us-east-1_abc GATEWAY_COGNITO_CLIENT_ID=xyz gateway
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/gnuflag"

	"github.com/StricklySoft/agentcore-gateway/internal/gateway"
	"github.com/StricklySoft/agentcore-gateway/pkg/config"
)

func main() {
	configPath := gnuflag.String("config", os.Getenv("GATEWAY_CONFIG_FILE"), "path to a YAML or JSON configuration file")
	showVersion := gnuflag.Bool("version", false, "print the version and exit")
	gnuflag.Parse(true)

	if *showVersion {
		fmt.Println(gateway.ServiceName, gateway.Version)
		return
	}

	loader := config.New().WithEnvPrefix("GATEWAY")
	if *configPath != "" {
		loader = loader.WithFile(*configPath)
	}
	cfg := config.MustLoad[gateway.Config](loader)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := gateway.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create gateway: %v", err)
	}
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("gateway exited: %v", err)
	}
}
