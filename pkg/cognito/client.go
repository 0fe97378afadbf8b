package cognito

import (
	"context"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// API is the subset of the Cognito Identity Provider API the authenticator
// calls. *cognitoidentityprovider.Client satisfies it.
type API interface {
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, in *cip.RespondToAuthChallengeInput, optFns ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error)
	RevokeToken(ctx context.Context, in *cip.RevokeTokenInput, optFns ...func(*cip.Options)) (*cip.RevokeTokenOutput, error)
}

var _ API = (*cip.Client)(nil)

// NewAPI builds a Cognito Identity Provider client for cfg.
//
// The client signs nothing: InitiateAuth, RespondToAuthChallenge and
// RevokeToken are public app-client operations. SDK retries are disabled
// because the authenticator applies its own policy.
//
// The SDK builds the transport so that shared settings such as
// AWS_CA_BUNDLE still apply; it is instrumented afterwards.
func NewAPI(ctx context.Context, cfg Config) (*cip.Client, error) {
	cfg = cfg.withDefaults()
	buildable := awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) { d.Timeout = cfg.DialTimeout }).
		WithTimeout(cfg.Timeout)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
		awsconfig.WithHTTPClient(buildable),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "cognito: failed to load AWS configuration")
	}
	if b, ok := awsCfg.HTTPClient.(*awshttp.BuildableClient); ok {
		awsCfg.HTTPClient = instrument(b)
	}
	return cip.NewFromConfig(awsCfg, func(o *cip.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// instrument wraps the transport b resolved to with otelhttp. Redirects are
// returned rather than followed, as the SDK's own client does.
func instrument(b *awshttp.BuildableClient) *http.Client {
	return &http.Client{
		Timeout:   b.GetTimeout(),
		Transport: otelhttp.NewTransport(b.GetTransport()),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
