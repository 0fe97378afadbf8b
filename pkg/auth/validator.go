package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// TokenValidator turns a bearer token into an authenticated user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*UserContext, error)
}

// SigningKeySource resolves the public key for a token's kid. *KeyManager
// implements it.
type SigningKeySource interface {
	GetSigningKey(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// Validator validates Cognito-issued JWTs against keys from a
// [SigningKeySource]. Checks run in a fixed order and the first failure
// determines the error type:
//
//  1. header decodes and names a kid (INVALID_FORMAT; alg "none" is
//     INVALID_SIGNATURE)
//  2. the kid resolves to a key (KEY_NOT_FOUND, NETWORK_ERROR)
//  3. the signature verifies with the configured algorithm (INVALID_SIGNATURE)
//  4. exp is in the future, allowing for clock skew (TOKEN_EXPIRED)
//  5. iss equals the configured issuer (INVALID_ISSUER)
//  6. client_id or aud matches the audience (INVALID_AUDIENCE)
//  7. token_use matches (INVALID_TOKEN_USE)
//
// Validator is safe for concurrent use by multiple goroutines.
type Validator struct {
	cfg      Config
	issuer   string
	audience string
	keys     SigningKeySource
	parser   *jwt.Parser
	opts     options
}

var _ TokenValidator = (*Validator)(nil)

// NewValidator creates a Validator. The configuration is validated first.
func NewValidator(cfg Config, keys SigningKeySource, opts ...Option) (*Validator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, sserr.Validation("auth: signing key source is required")
	}
	return &Validator{
		cfg:      cfg,
		issuer:   cfg.ResolvedIssuer(),
		audience: cfg.ResolvedAudience(),
		keys:     keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{cfg.Algorithm}),
			jwt.WithoutClaimsValidation(),
		),
		opts: buildOptions(opts),
	}, nil
}

// ValidateToken verifies token and returns the user it identifies. Every
// failure is an authentication *sserr.Error.
func (v *Validator) ValidateToken(ctx context.Context, token string) (_ *UserContext, retErr error) {
	ctx, span := startSpan(ctx, v.opts.tracer, "auth.ValidateToken")
	defer func() {
		if retErr != nil {
			span.SetAttributes(attribute.String("auth.error_type", sserr.GetType(retErr).String()))
		}
		finishSpan(span, retErr)
		span.End()
	}()

	if token == "" {
		return nil, sserr.InvalidFormat("token is empty")
	}
	if len(token) > maxTokenSize {
		return nil, sserr.InvalidFormat(fmt.Sprintf("token exceeds %d bytes", maxTokenSize))
	}

	kid, err := v.headerKeyID(token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.kid", kid))

	key, err := v.keys.GetSigningKey(ctx, kid)
	if err != nil {
		return nil, err
	}

	raw := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, raw, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, wrapAuth(sserr.InvalidFormat("token is malformed"), err)
		}
		return nil, wrapAuth(sserr.InvalidSignature("token signature is invalid"), err)
	}

	claims := ParseClaims(raw)
	span.SetAttributes(attribute.String("auth.token_use", claims.TokenUse))

	now := v.opts.clock.Now()
	if claims.ExpiresAt.IsZero() {
		return nil, sserr.TokenExpired("token has no exp claim")
	}
	if !now.Before(claims.ExpiresAt.Add(v.cfg.ClockSkew)) {
		expiredAt := claims.ExpiresAt.Format(time.RFC3339)
		return nil, sserr.TokenExpired("token expired at " + expiredAt).WithDetail("expired_at", expiredAt)
	}

	if claims.Issuer != v.issuer {
		return nil, sserr.InvalidIssuer(v.issuer, claims.Issuer)
	}

	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}

	if claims.TokenUse != v.cfg.TokenUse {
		return nil, sserr.InvalidTokenUse(v.cfg.TokenUse, claims.TokenUse)
	}

	if claims.Subject == "" {
		return nil, sserr.InvalidFormat("token has no sub claim")
	}

	span.SetAttributes(attribute.String("auth.user_id", claims.Subject))
	return &UserContext{
		UserID:          claims.Subject,
		Username:        claims.Username,
		Email:           claims.Email,
		TokenUse:        claims.TokenUse,
		ClientID:        claims.ClientID,
		Claims:          cloneClaims(raw),
		AuthenticatedAt: now,
	}, nil
}

// headerKeyID decodes the JOSE header without verifying the signature.
func (v *Validator) headerKeyID(token string) (string, error) {
	unverified, _, err := v.parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		// A named but unknown algorithm is a signature problem; anything
		// else means the token could not be decoded.
		if errors.Is(err, jwt.ErrTokenUnverifiable) && unverified != nil {
			if alg, _ := unverified.Header["alg"].(string); alg != "" {
				return "", wrapAuth(sserr.InvalidSignature("token uses an unsupported signing algorithm"), err)
			}
		}
		return "", wrapAuth(sserr.InvalidFormat("token cannot be decoded"), err)
	}

	if unverified.Method.Alg() == jwt.SigningMethodNone.Alg() {
		return "", sserr.InvalidSignature("unsigned tokens are not accepted")
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return "", sserr.InvalidFormat("token header is missing kid")
	}
	return kid, nil
}

// checkAudience compares client_id for access tokens and aud for ID
// tokens. An empty audience disables the check.
func (v *Validator) checkAudience(c Claims) error {
	if v.audience == "" {
		return nil
	}
	if c.TokenUse == TokenUseID {
		if !c.HasAudience(v.audience) {
			return sserr.InvalidAudience("token aud does not include the expected audience").
				WithDetails(map[string]any{"expected": v.audience, "actual": c.Audience})
		}
		return nil
	}
	if c.ClientID != v.audience {
		return sserr.InvalidAudience("token client_id does not match the expected audience").
			WithDetails(map[string]any{"expected": v.audience, "actual": c.ClientID})
	}
	return nil
}

// wrapAuth attaches the library error as the cause of e.
func wrapAuth(e *sserr.Error, cause error) *sserr.Error {
	e.Cause = cause
	return e
}

// startSpan creates a new OpenTelemetry span with the given name.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span and sets the status to Error.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
