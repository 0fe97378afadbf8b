package cognito

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/StricklySoft/agentcore-gateway/internal/testutil/jwkstest"
)

const (
	testPoolID   = "us-east-1_TestPool"
	testClientID = "test-client"
	targetPrefix = "AWSCognitoIdentityProviderService."
)

// fakeUser is a user pool entry. The password is kept only for
// USER_PASSWORD_AUTH; SRP logins are checked against the verifier.
type fakeUser struct {
	sub       string
	password  string
	salt      string
	verifier  *big.Int
	challenge string
}

// fakeSRP is the server half of one SRP exchange.
type fakeSRP struct {
	username    string
	b           *big.Int
	bigA        *big.Int
	bigB        *big.Int
	secretBlock []byte
}

// fakeCognito speaks the awsJson1.1 protocol of the Cognito Identity
// Provider API for InitiateAuth, RespondToAuthChallenge and RevokeToken,
// and issues RS256 tokens from a jwkstest.Issuer.
type fakeCognito struct {
	t      testing.TB
	Server *httptest.Server
	Issuer *jwkstest.Issuer

	mu           sync.Mutex
	clientSecret string
	users        map[string]*fakeUser
	sessions     map[string]*fakeSRP
	refresh      map[string]string
	aliases      map[string]string
	failNext     int
	calls        map[string]int
	lastRequest  map[string]fakeRequest
}

type fakeRequest struct {
	AuthFlow           string
	ClientId           string
	AuthParameters     map[string]string
	ChallengeName      string
	ChallengeResponses map[string]string
	Session            string
	Token              string
	ClientSecret       string
}

func newFakeCognito(t testing.TB) *fakeCognito {
	t.Helper()
	f := &fakeCognito{
		t:           t,
		Issuer:      jwkstest.NewIssuer(t),
		users:       make(map[string]*fakeUser),
		sessions:    make(map[string]*fakeSRP),
		refresh:     make(map[string]string),
		aliases:     make(map[string]string),
		calls:       make(map[string]int),
		lastRequest: make(map[string]fakeRequest),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// AddUser registers a user with an SRP verifier derived from password.
func (f *fakeCognito) AddUser(username, password string) {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	saltHex := hex.EncodeToString(salt)
	x := passwordExponent(poolNameOf(testPoolID), username, password, saltHex)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = &fakeUser{
		sub:      "sub-" + username,
		password: password,
		salt:     saltHex,
		verifier: new(big.Int).Exp(srpG, x, srpN),
	}
}

// AddAlias lets username sign in as alias, the way an email alias works.
func (f *fakeCognito) AddAlias(alias, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliases[alias] = username
}

// RequireChallenge makes every successful login of username end in the
// named challenge instead of tokens.
func (f *fakeCognito) RequireChallenge(username, challenge string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username].challenge = challenge
}

// SetClientSecret makes the app client confidential.
func (f *fakeCognito) SetClientSecret(secret string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientSecret = secret
}

// FailNext answers the next n requests with InternalErrorException.
func (f *fakeCognito) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// Calls returns how many times op was requested.
func (f *fakeCognito) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// LastRequest returns the most recent request body for op.
func (f *fakeCognito) LastRequest(op string) fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRequest[op]
}

func poolNameOf(poolID string) string {
	_, name, _ := strings.Cut(poolID, "_")
	return name
}

func (f *fakeCognito) serve(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), targetPrefix)
	var req fakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAWSError(w, http.StatusBadRequest, "SerializationException", err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.lastRequest[op] = req

	if f.failNext > 0 {
		f.failNext--
		writeAWSError(w, http.StatusInternalServerError, "InternalErrorException", "internal error")
		return
	}
	if req.ClientId != testClientID {
		writeAWSError(w, http.StatusBadRequest, "ResourceNotFoundException", "User pool client does not exist.")
		return
	}

	switch op {
	case "InitiateAuth":
		f.initiateAuth(w, req)
	case "RespondToAuthChallenge":
		f.respondToAuthChallenge(w, req)
	case "RevokeToken":
		f.revokeToken(w, req)
	default:
		writeAWSError(w, http.StatusBadRequest, "UnknownOperationException", op)
	}
}

func (f *fakeCognito) secretHashOK(username, hash string) bool {
	if f.clientSecret == "" {
		return true
	}
	return hmac.Equal([]byte(hash), []byte(SecretHash(username, testClientID, f.clientSecret)))
}

func (f *fakeCognito) initiateAuth(w http.ResponseWriter, req fakeRequest) {
	p := req.AuthParameters
	switch req.AuthFlow {
	case "USER_SRP_AUTH":
		user, ok := f.users[p["USERNAME"]]
		if !ok {
			writeAWSError(w, http.StatusBadRequest, "UserNotFoundException", "User does not exist.")
			return
		}
		if !f.secretHashOK(p["USERNAME"], p["SECRET_HASH"]) {
			writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Unable to verify secret hash for client")
			return
		}
		bigA := hexToBig(p["SRP_A"])
		if new(big.Int).Mod(bigA, srpN).Sign() == 0 {
			writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Invalid SRP_A")
			return
		}

		bRaw := make([]byte, 32)
		_, _ = rand.Read(bRaw)
		b := new(big.Int).SetBytes(bRaw)
		// B = k*v + g^b mod N
		bigB := new(big.Int).Mul(srpK, user.verifier)
		bigB.Add(bigB, new(big.Int).Exp(srpG, b, srpN)).Mod(bigB, srpN)

		block := make([]byte, 64)
		_, _ = rand.Read(block)
		session := uuid.NewString()
		f.sessions[session] = &fakeSRP{username: p["USERNAME"], b: b, bigA: bigA, bigB: bigB, secretBlock: block}

		writeAWSJSON(w, map[string]any{
			"ChallengeName": "PASSWORD_VERIFIER",
			"Session":       session,
			"ChallengeParameters": map[string]string{
				"SALT":            user.salt,
				"SRP_B":           bigB.Text(16),
				"SECRET_BLOCK":    base64.StdEncoding.EncodeToString(block),
				"USER_ID_FOR_SRP": p["USERNAME"],
				"USERNAME":        p["USERNAME"],
			},
		})

	case "USER_PASSWORD_AUTH":
		username := p["USERNAME"]
		if canonical, ok := f.aliases[username]; ok {
			username = canonical
		}
		user, ok := f.users[username]
		if !ok || user.password != p["PASSWORD"] || !f.secretHashOK(p["USERNAME"], p["SECRET_HASH"]) {
			writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Incorrect username or password.")
			return
		}
		f.writeTokensOrChallenge(w, username, user, true)

	case "REFRESH_TOKEN_AUTH":
		username, ok := f.refresh[p["REFRESH_TOKEN"]]
		if !ok || !f.secretHashOK(username, p["SECRET_HASH"]) {
			writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Invalid Refresh Token")
			return
		}
		writeAWSJSON(w, map[string]any{
			"AuthenticationResult": f.issue(username, f.users[username], false),
			"ChallengeParameters":  map[string]string{},
		})

	default:
		writeAWSError(w, http.StatusBadRequest, "InvalidParameterException", "unsupported flow "+req.AuthFlow)
	}
}

func (f *fakeCognito) respondToAuthChallenge(w http.ResponseWriter, req fakeRequest) {
	srp, ok := f.sessions[req.Session]
	if !ok || req.ChallengeName != "PASSWORD_VERIFIER" {
		writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Invalid session for the user.")
		return
	}
	delete(f.sessions, req.Session)

	resp := req.ChallengeResponses
	user := f.users[srp.username]
	if !f.secretHashOK(srp.username, resp["SECRET_HASH"]) ||
		resp["PASSWORD_CLAIM_SECRET_BLOCK"] != base64.StdEncoding.EncodeToString(srp.secretBlock) {
		writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Incorrect username or password.")
		return
	}
	if _, err := time.Parse(srpTimestampLayout, resp["TIMESTAMP"]); err != nil {
		writeAWSError(w, http.StatusBadRequest, "InvalidParameterException", "TIMESTAMP is malformed")
		return
	}

	key := serverSessionKey(srp.bigA, srp.bigB, srp.b, user.verifier)
	want := claimSignature(key, poolNameOf(testPoolID), resp["USERNAME"], srp.secretBlock, resp["TIMESTAMP"])
	if !hmac.Equal([]byte(want), []byte(resp["PASSWORD_CLAIM_SIGNATURE"])) {
		writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Incorrect username or password.")
		return
	}
	f.writeTokensOrChallenge(w, srp.username, user, true)
}

func (f *fakeCognito) revokeToken(w http.ResponseWriter, req fakeRequest) {
	if f.clientSecret != "" && req.ClientSecret != f.clientSecret {
		writeAWSError(w, http.StatusBadRequest, "NotAuthorizedException", "Client secret is invalid")
		return
	}
	delete(f.refresh, req.Token)
	writeAWSJSON(w, map[string]any{})
}

func (f *fakeCognito) writeTokensOrChallenge(w http.ResponseWriter, username string, user *fakeUser, withRefresh bool) {
	if user.challenge != "" {
		writeAWSJSON(w, map[string]any{
			"ChallengeName":       user.challenge,
			"Session":             uuid.NewString(),
			"ChallengeParameters": map[string]string{"USER_ID_FOR_SRP": username},
		})
		return
	}
	writeAWSJSON(w, map[string]any{
		"AuthenticationResult": f.issue(username, user, withRefresh),
		"ChallengeParameters":  map[string]string{},
	})
}

// issue mints an access and ID token pair. The caller holds f.mu.
func (f *fakeCognito) issue(username string, user *fakeUser, withRefresh bool) map[string]any {
	access := f.Issuer.AccessClaims(user.sub, testClientID, time.Hour)
	access["username"] = username
	id := f.Issuer.IDClaims(user.sub, testClientID, time.Hour)
	id["cognito:username"] = username

	result := map[string]any{
		"AccessToken": f.Issuer.Token(f.t, access),
		"IdToken":     f.Issuer.Token(f.t, id),
		"ExpiresIn":   3600,
		"TokenType":   "Bearer",
	}
	if withRefresh {
		rt := "refresh-" + uuid.NewString()
		f.refresh[rt] = username
		result["RefreshToken"] = rt
	}
	return result
}

// serverSessionKey computes the server's view of the SRP session key:
// S = (A * v^u) ^ b mod N.
func serverSessionKey(bigA, bigB, b, verifier *big.Int) []byte {
	u := scramble(bigA, bigB)
	base := new(big.Int).Exp(verifier, u, srpN)
	base.Mul(base, bigA).Mod(base, srpN)
	secret := new(big.Int).Exp(base, b, srpN)
	key, err := deriveKey(secret, u)
	if err != nil {
		panic(err)
	}
	return key
}

func writeAWSJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAWSError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.Header().Set("X-Amzn-ErrorType", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"__type": code, "message": message})
}
