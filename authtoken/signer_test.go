package authtoken

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewLocalSigner(t *testing.T) {
	key, _ := keys(t)

	tests := []struct {
		name   string
		email  string
		nilKey bool

		err string
	}{
		{
			name:  "valid",
			email: testClientEmail,
		},
		{
			name: "empty email",
			err:  "client email must not be empty",
		},
		{
			name:   "nil key",
			email:  testClientEmail,
			nilKey: true,
			err:    "private key must not be nil",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := key
			if tc.nilKey {
				k = nil
			}
			s, err := NewLocalSigner(tc.email, k)
			if tc.err != "" {
				require.True(t, IsInvalidArgument(err))
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)

			id, err := s.KeyID(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.email, id)
			require.Equal(t, "RS256", s.Algorithm())
		})
	}
}

func TestLocalSignerSign(t *testing.T) {
	key, _ := keys(t)
	s, err := NewLocalSigner(testClientEmail, key)
	require.NoError(t, err)

	sig, err := s.Sign(context.Background(), []byte("header.payload"))
	require.NoError(t, err)
	require.NoError(t, jwt.SigningMethodRS256.Verify("header.payload", sig, &key.PublicKey))
	require.Error(t, jwt.SigningMethodRS256.Verify("header.payload2", sig, &key.PublicKey))

	// Deterministic for the same input.
	sig2, err := s.Sign(context.Background(), []byte("header.payload"))
	require.NoError(t, err)
	require.Equal(t, sig, sig2)
}

func TestLocalSignerSignCancelled(t *testing.T) {
	key, _ := keys(t)
	s, err := NewLocalSigner(testClientEmail, key)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Sign(ctx, []byte("data"))
	require.True(t, IsCancelled(err))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalSignerFromServiceAccount(t *testing.T) {
	key, _ := keys(t)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))

	serviceAccount := func(fields map[string]string) []byte {
		b, err := json.Marshal(fields)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name string
		data []byte

		err string
	}{
		{
			name: "valid",
			data: serviceAccount(map[string]string{
				"type":         "service_account",
				"project_id":   testProjectID,
				"client_email": testClientEmail,
				"private_key":  keyPEM,
			}),
		},
		{
			name: "not json",
			data: []byte("{"),
			err:  "failed to parse service account credentials",
		},
		{
			name: "authorized user",
			data: serviceAccount(map[string]string{"type": "authorized_user"}),
			err:  `credentials of type "authorized_user" are not service account credentials`,
		},
		{
			name: "no private key",
			data: serviceAccount(map[string]string{"type": "service_account", "client_email": testClientEmail}),
			err:  "service account credentials have no private key",
		},
		{
			name: "bad private key",
			data: serviceAccount(map[string]string{
				"type":         "service_account",
				"client_email": testClientEmail,
				"private_key":  "not a key",
			}),
			err: "failed to parse service account private key",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewLocalSignerFromServiceAccount(tc.data)
			if tc.err != "" {
				require.True(t, IsInvalidArgument(err))
				require.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)

			id, err := s.KeyID(context.Background())
			require.NoError(t, err)
			require.Equal(t, testClientEmail, id)

			sig, err := s.Sign(context.Background(), []byte("data"))
			require.NoError(t, err)
			require.NoError(t, jwt.SigningMethodRS256.Verify("data", sig, &key.PublicKey))
		})
	}
}

func TestEmulatorSigner(t *testing.T) {
	var s Signer = EmulatorSigner{}

	id, err := s.KeyID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "firebase-auth-emulator@example.com", id)

	sig, err := s.Sign(context.Background(), []byte("data"))
	require.NoError(t, err)
	require.Empty(t, sig)
	require.Equal(t, "none", s.Algorithm())
}
