package authtoken

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testProjectID   = "mock-project-id"
	testKeyID       = "mock-key-id-1"
	testClientEmail = "test-signer@mock-project-id.iam.gserviceaccount.com"
)

var testNow = time.Unix(1700000000, 0)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	otherKey    *rsa.PrivateKey
)

func keys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()

	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		otherKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return testKey, otherKey
}

// testClock is a Clock that only moves when told to.
type testClock struct {
	unix atomic.Int64
}

func newTestClock(now time.Time) *testClock {
	c := &testClock{}
	c.unix.Store(now.Unix())
	return c
}

func (c *testClock) Now() time.Time {
	return time.Unix(c.unix.Load(), 0)
}

func (c *testClock) Advance(d time.Duration) {
	c.unix.Add(int64(d / time.Second))
}

func fixedClock(now time.Time) Clock {
	return ClockFunc(func() time.Time { return now })
}

func encodeJSONSegment(t *testing.T, v any) string {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(b)
}

// signTestToken returns a compact token of header and payload signed with key.
// A nil key produces an empty signature segment.
func signTestToken(t *testing.T, key *rsa.PrivateKey, header, payload map[string]any) string {
	t.Helper()

	input := encodeJSONSegment(t, header) + "." + encodeJSONSegment(t, payload)
	if key == nil {
		return input + "."
	}
	sig, err := jwt.SigningMethodRS256.Sign(input, key)
	require.NoError(t, err)
	return input + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func idTokenHeader() map[string]any {
	return map[string]any{"alg": "RS256", "typ": "JWT", "kid": testKeyID}
}

func idTokenPayload(now time.Time) map[string]any {
	return map[string]any{
		"iss":       idTokenIssuerPrefix + testProjectID,
		"aud":       testProjectID,
		"sub":       "user1",
		"iat":       now.Add(-10 * time.Minute).Unix(),
		"exp":       now.Add(50 * time.Minute).Unix(),
		"auth_time": now.Add(-10 * time.Minute).Unix(),
		"admin":     true,
		"firebase": map[string]any{
			"sign_in_provider": "custom",
		},
	}
}

// decodeTestToken splits a compact token into its decoded header and payload.
func decodeTestToken(t *testing.T, token string) (map[string]any, map[string]any, string) {
	t.Helper()

	payload := jwt.MapClaims{}
	parsed, segments, err := jwt.NewParser().ParseUnverified(token, payload)
	require.NoError(t, err)
	return parsed.Header, map[string]any(payload), segments[2]
}
