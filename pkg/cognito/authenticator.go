package cognito

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
)

// tracerName is the OpenTelemetry instrumentation scope name for Cognito
// spans.
const tracerName = "github.com/StricklySoft/agentcore-gateway/pkg/cognito"

// Flow selects how [Authenticator.Login] authenticates.
type Flow string

const (
	// FlowSRP proves knowledge of the password without sending it.
	FlowSRP Flow = "USER_SRP_AUTH"
	// FlowPassword sends the password to Cognito over TLS.
	FlowPassword Flow = "USER_PASSWORD_AUTH"
)

// Option customises an [Authenticator].
type Option func(*options)

type options struct {
	api    API
	store  TokenStore
	clock  clock.Clock
	policy *resilience.Policy
	tracer trace.Tracer
	logger *slog.Logger
	random io.Reader
}

// WithAPI replaces the SDK client built by [NewAPI].
func WithAPI(api API) Option {
	return func(o *options) { o.api = api }
}

// WithStore sets the session store. Defaults to a [MemoryStore].
func WithStore(s TokenStore) Option {
	return func(o *options) { o.store = s }
}

// WithClock sets the time source for SRP timestamps and token issue times.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPolicy sets the retry and breaker policy for Cognito calls. The
// default retries Attempts times behind a breaker named "cognito".
func WithPolicy(p *resilience.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithTracerProvider takes spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// withRandom replaces crypto/rand as the source of SRP ephemeral values.
func withRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// Authenticator logs users in to a Cognito user pool and manages their
// sessions. It is safe for concurrent use; each login runs its own SRP
// exchange.
type Authenticator struct {
	cfg  Config
	opts options
}

// New creates an Authenticator. Unless [WithAPI] is given, an SDK client
// is built from cfg, which may read the shared AWS configuration files.
func New(ctx context.Context, cfg Config, opts ...Option) (*Authenticator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.store == nil {
		o.store = NewMemoryStore(o.clock)
	}
	if o.policy == nil {
		o.policy = resilience.NewPolicy(
			resilience.NewRetrier(resilience.RetryConfig{Attempts: cfg.Attempts}),
			resilience.NewBreaker(resilience.BreakerConfig{Name: "cognito", Clock: o.clock}),
		)
	}
	if o.api == nil {
		api, err := NewAPI(ctx, cfg)
		if err != nil {
			return nil, err
		}
		o.api = api
	}
	return &Authenticator{cfg: cfg, opts: o}, nil
}

// Store returns the session store.
func (a *Authenticator) Store() TokenStore {
	return a.opts.store
}

// Breaker returns the breaker guarding Cognito calls, or nil.
func (a *Authenticator) Breaker() *resilience.Breaker {
	return a.opts.policy.Breaker()
}

// Login reads credentials from p and runs flow. An empty flow means
// [FlowSRP].
func (a *Authenticator) Login(ctx context.Context, p CredentialProvider, flow Flow) (*Tokens, error) {
	username, password, err := p.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	switch flow {
	case FlowSRP, "":
		return a.AuthenticateUser(ctx, username, password)
	case FlowPassword:
		return a.AuthenticatePassword(ctx, username, password)
	default:
		return nil, sserr.Validationf("cognito: unsupported authentication flow %q", flow)
	}
}

// AuthenticateUser logs in with USER_SRP_AUTH. The password is only used
// to compute the claim signature and is never sent.
//
// Error types returned:
//   - INVALID_CREDENTIALS: Cognito rejected the user or the claim
//   - CHALLENGE_REQUIRED: Cognito asked for MFA or a new password
//   - NETWORK_ERROR: Cognito could not be reached after retries
func (a *Authenticator) AuthenticateUser(ctx context.Context, username, password string) (_ *Tokens, retErr error) {
	ctx, span := a.startSpan(ctx, "cognito.AuthenticateUser", username)
	var state SRPState
	defer func() {
		span.SetAttributes(attribute.String("cognito.srp_state", state.String()))
		a.finish(ctx, span, "srp", username, retErr)
	}()

	if username == "" || password == "" {
		return nil, sserr.InvalidCredentials("cognito: username and password are required")
	}

	session, err := newSRPSession(a.cfg.poolName(), a.opts.random)
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			session.fail()
		}
		state = session.State()
	}()

	params := map[string]string{
		"USERNAME": username,
		"SRP_A":    session.PublicA(),
	}
	a.addSecretHash(params, username)

	challenge, err := resilience.Call(ctx, a.opts.policy, func(ctx context.Context) (*cip.InitiateAuthOutput, error) {
		out, err := a.opts.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
			AuthFlow:       types.AuthFlowTypeUserSrpAuth,
			ClientId:       aws.String(a.cfg.ClientID),
			AuthParameters: params,
		})
		return out, classify(err, "InitiateAuth", false)
	})
	if err != nil {
		return nil, err
	}
	if challenge.ChallengeName != types.ChallengeNameTypePasswordVerifier {
		return nil, unexpectedChallenge(challenge.ChallengeName)
	}
	if err := session.advance(StateChallengeIssued); err != nil {
		return nil, err
	}

	cp := challenge.ChallengeParameters
	userID := cp["USER_ID_FOR_SRP"]
	if userID == "" {
		userID = username
	}
	claim, err := session.Claim(userID, password, cp["SRP_B"], cp["SALT"], cp["SECRET_BLOCK"], a.opts.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := session.advance(StateClaimComputed); err != nil {
		return nil, err
	}

	responses := map[string]string{
		"USERNAME":                    userID,
		"PASSWORD_CLAIM_SECRET_BLOCK": claim.SecretBlock,
		"PASSWORD_CLAIM_SIGNATURE":    claim.Signature,
		"TIMESTAMP":                   claim.Timestamp,
	}
	a.addSecretHash(responses, username)

	resp, err := resilience.Call(ctx, a.opts.policy, func(ctx context.Context) (*cip.RespondToAuthChallengeOutput, error) {
		out, err := a.opts.api.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
			ChallengeName:      types.ChallengeNameTypePasswordVerifier,
			ClientId:           aws.String(a.cfg.ClientID),
			ChallengeResponses: responses,
			Session:            challenge.Session,
		})
		return out, classify(err, "RespondToAuthChallenge", false)
	})
	if err != nil {
		return nil, err
	}
	if resp.ChallengeName != "" {
		return nil, unexpectedChallenge(resp.ChallengeName)
	}
	if resp.AuthenticationResult == nil {
		return nil, sserr.InvalidCredentials("cognito: no tokens in challenge response")
	}
	if err := session.advance(StateAuthenticated); err != nil {
		return nil, err
	}

	return a.establish(ctx, username, resp.AuthenticationResult)
}

// AuthenticatePassword logs in with USER_PASSWORD_AUTH. The app client
// must have the flow enabled.
func (a *Authenticator) AuthenticatePassword(ctx context.Context, username, password string) (_ *Tokens, retErr error) {
	ctx, span := a.startSpan(ctx, "cognito.AuthenticatePassword", username)
	defer func() { a.finish(ctx, span, "password", username, retErr) }()

	if username == "" || password == "" {
		return nil, sserr.InvalidCredentials("cognito: username and password are required")
	}

	params := map[string]string{
		"USERNAME": username,
		"PASSWORD": password,
	}
	a.addSecretHash(params, username)

	out, err := a.initiate(ctx, types.AuthFlowTypeUserPasswordAuth, params, false)
	if err != nil {
		return nil, err
	}
	return a.establish(ctx, username, out.AuthenticationResult)
}

// RefreshSession exchanges refreshToken for new access and ID tokens. It
// cannot be used with an app client secret, which requires the username;
// use [Authenticator.RefreshSessionFor] then.
func (a *Authenticator) RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error) {
	return a.RefreshSessionFor(ctx, "", refreshToken)
}

// RefreshSessionFor exchanges refreshToken for new tokens and, when
// username is set, stores them as that user's session. username must name
// the user the new access token was issued to, by username or sub. The
// returned tokens keep refreshToken because Cognito does not rotate it.
//
// Error types returned:
//   - REFRESH_EXPIRED: the refresh token was revoked or has expired
//   - INVALID_CREDENTIALS: the refresh token belongs to another user
//   - NETWORK_ERROR: Cognito could not be reached after retries
func (a *Authenticator) RefreshSessionFor(ctx context.Context, username, refreshToken string) (_ *Tokens, retErr error) {
	ctx, span := a.startSpan(ctx, "cognito.RefreshSession", username)
	defer func() { a.finish(ctx, span, "refresh", username, retErr) }()

	if refreshToken == "" {
		return nil, sserr.RefreshExpired("cognito: refresh token is empty")
	}
	if a.cfg.ClientSecret != "" && username == "" {
		return nil, sserr.Validation("cognito: username is required to refresh with a client secret")
	}

	params := map[string]string{"REFRESH_TOKEN": refreshToken}
	a.addSecretHash(params, username)

	out, err := a.initiate(ctx, types.AuthFlowTypeRefreshTokenAuth, params, true)
	if err != nil {
		return nil, err
	}
	tokens := tokensFrom(username, out.AuthenticationResult, refreshToken, a.opts.clock.Now())
	owner, sub := tokenOwner(tokens.AccessToken)
	if username == "" {
		tokens.Username = owner
		return tokens, nil
	}
	if owner == "" || (username != owner && username != sub) {
		return nil, sserr.InvalidCredentials("cognito: refresh token was issued to a different user").
			WithDetail("username", username)
	}
	tokens.Username = owner
	return a.save(ctx, tokens)
}

// Session returns the stored session for username, refreshing it first
// when the access token expires within leeway. A user without a session
// gets REFRESH_EXPIRED.
func (a *Authenticator) Session(ctx context.Context, username string, leeway time.Duration) (*Tokens, error) {
	tokens, ok, err := a.opts.store.Load(ctx, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sserr.RefreshExpired("cognito: no session for user").WithDetail("username", username)
	}
	if !tokens.Expired(a.opts.clock.Now(), leeway) {
		return tokens, nil
	}
	return a.RefreshSessionFor(ctx, username, tokens.RefreshToken)
}

// Logout revokes the user's refresh token, which also invalidates the
// access tokens issued from it, and deletes the stored session. The
// session is deleted even when revocation fails. Logging out a user
// without a session is a no-op.
func (a *Authenticator) Logout(ctx context.Context, username string) (retErr error) {
	ctx, span := a.startSpan(ctx, "cognito.Logout", username)
	defer func() { a.finish(ctx, span, "logout", username, retErr) }()

	tokens, ok, err := a.opts.store.Load(ctx, username)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var revokeErr error
	if tokens.RefreshToken != "" {
		in := &cip.RevokeTokenInput{
			ClientId: aws.String(a.cfg.ClientID),
			Token:    aws.String(tokens.RefreshToken),
		}
		if a.cfg.ClientSecret != "" {
			in.ClientSecret = aws.String(a.cfg.ClientSecret.Value())
		}
		revokeErr = a.opts.policy.Run(ctx, func(ctx context.Context) error {
			_, err := a.opts.api.RevokeToken(ctx, in)
			return classify(err, "RevokeToken", true)
		})
	}

	if err := a.opts.store.Delete(ctx, username); err != nil {
		return err
	}
	return revokeErr
}

// initiate runs a single-step InitiateAuth flow and insists on tokens.
func (a *Authenticator) initiate(ctx context.Context, flow types.AuthFlowType, params map[string]string, refreshing bool) (*cip.InitiateAuthOutput, error) {
	out, err := resilience.Call(ctx, a.opts.policy, func(ctx context.Context) (*cip.InitiateAuthOutput, error) {
		out, err := a.opts.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
			AuthFlow:       flow,
			ClientId:       aws.String(a.cfg.ClientID),
			AuthParameters: params,
		})
		return out, classify(err, "InitiateAuth", refreshing)
	})
	if err != nil {
		return nil, err
	}
	if out.ChallengeName != "" {
		return nil, unexpectedChallenge(out.ChallengeName)
	}
	if out.AuthenticationResult == nil {
		return nil, sserr.InvalidCredentials("cognito: no tokens in InitiateAuth response")
	}
	return out, nil
}

func (a *Authenticator) addSecretHash(params map[string]string, username string) {
	if a.cfg.ClientSecret == "" {
		return
	}
	params["SECRET_HASH"] = SecretHash(username, a.cfg.ClientID, a.cfg.ClientSecret.Value())
}

// establish stores a fresh login under the username Cognito put in the
// access token, which differs from typed when the user signed in with an
// alias.
func (a *Authenticator) establish(ctx context.Context, typed string, r *types.AuthenticationResultType) (*Tokens, error) {
	tokens := tokensFrom(typed, r, "", a.opts.clock.Now())
	if owner, _ := tokenOwner(tokens.AccessToken); owner != "" {
		tokens.Username = owner
	}
	return a.save(ctx, tokens)
}

func (a *Authenticator) save(ctx context.Context, t *Tokens) (*Tokens, error) {
	if err := a.opts.store.Save(ctx, t.Username, t, a.cfg.SessionTTL); err != nil {
		return nil, err
	}
	return t, nil
}

// unexpectedChallenge reports a challenge this package cannot answer.
func unexpectedChallenge(name types.ChallengeNameType) error {
	if name == "" {
		return sserr.InvalidCredentials("cognito: expected a PASSWORD_VERIFIER challenge")
	}
	return sserr.ChallengeRequired(string(name))
}

func (a *Authenticator) startSpan(ctx context.Context, name, username string) (context.Context, trace.Span) {
	return a.opts.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cognito.user_pool_id", a.cfg.UserPoolID),
			attribute.String("cognito.client_id", a.cfg.ClientID),
			attribute.String("enduser.id", username),
		),
	)
}

// finish records the outcome on the span and logs it. Credentials and
// tokens are never logged.
func (a *Authenticator) finish(ctx context.Context, span trace.Span, op, username string, err error) {
	defer span.End()
	if err == nil {
		a.opts.logger.DebugContext(ctx, "cognito: "+op+" succeeded", "username", username)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("auth.error_type", sserr.GetType(err).String()))
	a.opts.logger.WarnContext(ctx, "cognito: "+op+" failed",
		"username", username,
		"error_type", sserr.GetType(err),
	)
}
