// Command authcli logs in to a Cognito user pool and prints diagnostic
// information about the issued tokens. Credentials are always prompted for
// on the terminal; token values are never printed.
//
//	GATEWAY_COGNITO_USER_POOL_ID=us-east-1_abc GATEWAY_COGNITO_CLIENT_ID=xyz authcli --validate
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/gnuflag"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	"github.com/StricklySoft/agentcore-gateway/pkg/cognito"
	"github.com/StricklySoft/agentcore-gateway/pkg/config"
	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/slogx"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], cognito.NewTerminalCredentials(), os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "authcli:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, creds cognito.CredentialProvider, stdout, stderr io.Writer) error {
	fs := gnuflag.NewFlagSet("authcli", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("GATEWAY_CONFIG_FILE"), "path to a YAML or JSON file with the Cognito settings")
	flowName := fs.String("flow", "srp", `authentication flow, "srp" or "password"`)
	validate := fs.Bool("validate", false, "validate the access token against the pool's JWKS")
	verbose := fs.Bool("v", false, "log at debug level")
	if err := fs.Parse(true, args); err != nil {
		if errors.Is(err, gnuflag.ErrHelp) {
			return nil
		}
		return err
	}

	flow, err := parseFlow(*flowName)
	if err != nil {
		return err
	}

	loader := config.New().WithEnvPrefix("GATEWAY")
	if *configPath != "" {
		loader = loader.WithFile(*configPath)
	}
	var cfg cognito.Config
	if err := loader.Load(&cfg); err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := slogx.New(slogx.Config{Service: "authcli", Level: level, Format: "text", Output: stderr})

	a, err := cognito.New(ctx, cfg, cognito.WithLogger(logger))
	if err != nil {
		return err
	}
	tokens, err := a.Login(ctx, creds, flow)
	if err != nil {
		return err
	}
	if err := report(stdout, tokens); err != nil {
		return err
	}

	if *validate {
		uc, err := verify(ctx, cfg.AuthConfig(), tokens.AccessToken, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\naccess token is valid for user %s (%s)\n", uc.UserID, uc.Username)
	}
	return nil
}

func parseFlow(name string) (cognito.Flow, error) {
	switch name {
	case "srp", "":
		return cognito.FlowSRP, nil
	case "password":
		return cognito.FlowPassword, nil
	default:
		return "", sserr.Validationf("unknown flow %q, want srp or password", name)
	}
}

// report writes token metadata and the decoded, unverified claims of the
// access and ID tokens.
func report(w io.Writer, t *cognito.Tokens) error {
	fmt.Fprintf(w, "username:        %s\n", t.Username)
	fmt.Fprintf(w, "token type:      %s\n", t.TokenType)
	fmt.Fprintf(w, "expires in:      %ds\n", t.ExpiresIn)
	fmt.Fprintf(w, "access token:    %d bytes\n", len(t.AccessToken))
	fmt.Fprintf(w, "id token:        %d bytes\n", len(t.IDToken))
	fmt.Fprintf(w, "refresh token:   %t\n", t.RefreshToken != "")

	for _, tok := range []struct{ name, value string }{
		{"access token claims", t.AccessToken},
		{"id token claims", t.IDToken},
	} {
		if tok.value == "" {
			continue
		}
		claims, err := decodeClaims(tok.value)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", tok.name, err)
		}
		out, err := json.MarshalIndent(claims, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s:\n%s\n", tok.name, out)
	}
	return nil
}

func decodeClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func verify(ctx context.Context, cfg auth.Config, token string, logger *slog.Logger) (*auth.UserContext, error) {
	keys := auth.NewKeyManager(cfg, auth.WithLogger(logger))
	v, err := auth.NewValidator(cfg, keys, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return v.ValidateToken(ctx, token)
}
