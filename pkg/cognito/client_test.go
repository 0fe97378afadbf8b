package cognito

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewAPI_CustomCABundle cannot run in parallel: it sets AWS_CA_BUNDLE.
func TestNewAPI_CustomCABundle(t *testing.T) {
	f := newFakeWithAlice(t)
	srv := httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, certPEM, 0o600))
	t.Setenv("AWS_CA_BUNDLE", bundle)

	api, err := NewAPI(context.Background(), Config{
		UserPoolID: testPoolID,
		ClientID:   testClientID,
		Region:     "us-east-1",
		Endpoint:   srv.URL,
	})
	require.NoError(t, err)

	out, err := api.InitiateAuth(context.Background(), &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(testClientID),
		AuthParameters: map[string]string{
			"USERNAME": "alice",
			"PASSWORD": "correct horse battery staple",
		},
	})
	require.NoError(t, err, "the bundle's CA is trusted")
	require.NotNil(t, out.AuthenticationResult)
	assert.NotEmpty(t, aws.ToString(out.AuthenticationResult.AccessToken))
}

func TestNewAPI_UntrustedServer(t *testing.T) {
	t.Parallel()
	f := newFakeWithAlice(t)
	srv := httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	api, err := NewAPI(context.Background(), Config{
		UserPoolID: testPoolID,
		ClientID:   testClientID,
		Region:     "us-east-1",
		Endpoint:   srv.URL,
	})
	require.NoError(t, err)

	_, err = api.InitiateAuth(context.Background(), &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(testClientID),
		AuthParameters: map[string]string{"USERNAME": "alice", "PASSWORD": "x"},
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.Calls("InitiateAuth"))
}
