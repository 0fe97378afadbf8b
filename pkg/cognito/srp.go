package cognito

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// srpPrimeHex is the 3072-bit MODP group prime of RFC 3526, the group
// Cognito uses for USER_SRP_AUTH.
const srpPrimeHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
	"3995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D04507A33" +
	"A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864" +
	"D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988C0BAD946E2" +
	"08E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

// derivedKeyInfo is the HKDF info string Cognito uses for the session key.
const derivedKeyInfo = "Caldera Derived Key"

// srpTimestampLayout formats the TIMESTAMP challenge response. Cognito
// expects the day of month without zero padding.
const srpTimestampLayout = "Mon Jan 2 15:04:05 UTC 2006"

// ephemeralBytes is the size of the client's random private value a.
const ephemeralBytes = 128

var (
	srpN = mustParseHex(srpPrimeHex)
	srpG = big.NewInt(2)
	srpK = hexToBig(hexHash(padHex(srpN) + padHex(srpG)))
)

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("cognito: invalid hex constant")
	}
	return n
}

// hexToBig parses s as a hexadecimal integer; an unparsable string is zero.
func hexToBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return new(big.Int)
	}
	return n
}

// padHex returns the hex form of n padded so that it decodes to a
// non-negative two's complement byte string.
func padHex(n *big.Int) string {
	return padHexString(n.Text(16))
}

func padHexString(s string) string {
	s = strings.ToLower(s)
	switch {
	case len(s)%2 == 1:
		return "0" + s
	case s != "" && strings.ContainsRune("89abcdef", rune(s[0])):
		return "00" + s
	default:
		return s
	}
}

// hexHash returns the hex SHA-256 digest of the bytes that s encodes.
func hexHash(s string) string {
	b, _ := hex.DecodeString(s)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// scramble computes u = H(A | B).
func scramble(bigA, bigB *big.Int) *big.Int {
	return hexToBig(hexHash(padHex(bigA) + padHex(bigB)))
}

// passwordExponent computes x = H(salt | H(poolName | userID ":" password)).
func passwordExponent(poolName, userID, password, saltHex string) *big.Int {
	inner := sha256.Sum256([]byte(poolName + userID + ":" + password))
	return hexToBig(hexHash(padHexString(saltHex) + hex.EncodeToString(inner[:])))
}

// deriveKey expands the shared secret S into the 16-byte session key.
func deriveKey(secret, u *big.Int) ([]byte, error) {
	ikm, err := hex.DecodeString(padHex(secret))
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(padHex(u))
	if err != nil {
		return nil, err
	}
	key := make([]byte, 16)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(derivedKeyInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// claimSignature signs the password claim message with the session key.
func claimSignature(key []byte, poolName, userID string, secretBlock []byte, timestamp string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(poolName))
	mac.Write([]byte(userID))
	mac.Write(secretBlock)
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SecretHash computes the SECRET_HASH parameter required by app clients
// that have a client secret: base64(HMAC-SHA256(secret, username+clientID)).
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// passwordClaim is the response to a PASSWORD_VERIFIER challenge.
type passwordClaim struct {
	SecretBlock string
	Signature   string
	Timestamp   string
}

// srpSession is the client half of one SRP exchange. It is used by a
// single goroutine and discarded once it reaches a terminal state.
type srpSession struct {
	poolName string
	a        *big.Int
	bigA     *big.Int
	state    SRPState
}

// newSRPSession draws the private value a from random and computes
// A = g^a mod N.
func newSRPSession(poolName string, random io.Reader) (*srpSession, error) {
	if random == nil {
		random = rand.Reader
	}
	buf := make([]byte, ephemeralBytes)
	if _, err := io.ReadFull(random, buf); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "cognito: failed to generate SRP ephemeral value")
	}
	a := new(big.Int).Mod(new(big.Int).SetBytes(buf), srpN)
	bigA := new(big.Int).Exp(srpG, a, srpN)
	if bigA.Sign() == 0 {
		return nil, sserr.Internal("cognito: SRP public value is zero")
	}
	return &srpSession{poolName: poolName, a: a, bigA: bigA, state: StateInit}, nil
}

// PublicA returns A as the hex string sent in SRP_A.
func (s *srpSession) PublicA() string {
	return s.bigA.Text(16)
}

// State returns the current state of the exchange.
func (s *srpSession) State() SRPState {
	return s.state
}

// advance moves the exchange to state to, rejecting transitions the state
// machine does not allow.
func (s *srpSession) advance(to SRPState) error {
	if !ValidTransition(s.state, to) {
		return sserr.Internalf("cognito: invalid SRP transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

// fail marks the exchange as failed. It is a no-op in a terminal state.
func (s *srpSession) fail() {
	if !s.state.IsTerminal() {
		s.state = StateFailed
	}
}

// Claim derives the session key from the PASSWORD_VERIFIER challenge
// parameters and signs the password claim. now is formatted in UTC.
func (s *srpSession) Claim(userID, password, srpBHex, saltHex, secretBlockB64 string, now time.Time) (passwordClaim, error) {
	bigB := hexToBig(srpBHex)
	if new(big.Int).Mod(bigB, srpN).Sign() == 0 {
		return passwordClaim{}, sserr.InvalidCredentials("cognito: server sent an invalid SRP_B value")
	}
	u := scramble(s.bigA, bigB)
	if u.Sign() == 0 {
		return passwordClaim{}, sserr.InvalidCredentials("cognito: SRP scrambling parameter is zero")
	}
	secretBlock, err := base64.StdEncoding.DecodeString(secretBlockB64)
	if err != nil {
		return passwordClaim{}, sserr.Wrap(err, sserr.CodeInvalidFormat, "cognito: SECRET_BLOCK is not valid base64")
	}

	x := passwordExponent(s.poolName, userID, password, saltHex)

	// S = (B - k*g^x) ^ (a + u*x) mod N
	base := new(big.Int).Mul(srpK, new(big.Int).Exp(srpG, x, srpN))
	base.Sub(bigB, base).Mod(base, srpN)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, s.a)
	secret := new(big.Int).Exp(base, exp, srpN)

	key, err := deriveKey(secret, u)
	if err != nil {
		return passwordClaim{}, sserr.Wrap(err, sserr.CodeInternal, "cognito: failed to derive SRP session key")
	}

	timestamp := now.UTC().Format(srpTimestampLayout)
	return passwordClaim{
		SecretBlock: secretBlockB64,
		Signature:   claimSignature(key, s.poolName, userID, secretBlock, timestamp),
		Timestamp:   timestamp,
	}, nil
}
