package cognito

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// CredentialProvider supplies a username and password for [Authenticator.Login].
// Production code paths use non-interactive providers; [TerminalCredentials]
// is for CLIs.
type CredentialProvider interface {
	Credentials(ctx context.Context) (username, password string, err error)
}

// CredentialProviderFunc adapts a function to [CredentialProvider].
type CredentialProviderFunc func(ctx context.Context) (string, string, error)

// Credentials implements [CredentialProvider].
func (f CredentialProviderFunc) Credentials(ctx context.Context) (string, string, error) {
	return f(ctx)
}

// StaticCredentials returns fixed credentials. Intended for tests.
type StaticCredentials struct {
	Username string
	Password string
}

// Credentials implements [CredentialProvider].
func (s StaticCredentials) Credentials(context.Context) (string, string, error) {
	return s.Username, s.Password, nil
}

// EnvCredentials reads credentials from two environment variables.
type EnvCredentials struct {
	UsernameVar string
	PasswordVar string

	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Credentials implements [CredentialProvider].
func (e EnvCredentials) Credentials(context.Context) (string, string, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	username, ok := lookup(e.UsernameVar)
	if !ok || username == "" {
		return "", "", sserr.Validationf("cognito: %s is not set", e.UsernameVar)
	}
	password, ok := lookup(e.PasswordVar)
	if !ok || password == "" {
		return "", "", sserr.Validationf("cognito: %s is not set", e.PasswordVar)
	}
	return username, password, nil
}

// TerminalCredentials prompts for a username and password. When In is a
// terminal the password is read without echo; otherwise both values are
// read as lines, which lets scripts pipe them in.
type TerminalCredentials struct {
	In  io.Reader
	Out io.Writer
}

// NewTerminalCredentials prompts on stdin and stderr.
func NewTerminalCredentials() *TerminalCredentials {
	return &TerminalCredentials{In: os.Stdin, Out: os.Stderr}
}

// Credentials implements [CredentialProvider].
func (p *TerminalCredentials) Credentials(context.Context) (string, string, error) {
	reader := bufio.NewReader(p.In)

	fmt.Fprint(p.Out, "Username: ")
	username, err := readLine(reader)
	if err != nil {
		return "", "", sserr.Wrap(err, sserr.CodeValidation, "cognito: failed to read username")
	}

	fmt.Fprint(p.Out, "Password: ")
	var password string
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", "", sserr.Wrap(err, sserr.CodeValidation, "cognito: failed to read password")
		}
		password = string(raw)
	} else {
		password, err = readLine(reader)
		if err != nil {
			return "", "", sserr.Wrap(err, sserr.CodeValidation, "cognito: failed to read password")
		}
	}

	if username == "" || password == "" {
		return "", "", sserr.Validation("cognito: username and password are required")
	}
	return username, password, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
