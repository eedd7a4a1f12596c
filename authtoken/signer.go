package authtoken

import (
	"context"
	"crypto/rsa"
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
)

var (
	algorithmRS256 = jwt.SigningMethodRS256.Alg()
	algorithmNone  = jwt.SigningMethodNone.Alg()
)

const (

	// EmulatorServiceAccount is the key id reported by the emulator signer.
	EmulatorServiceAccount = "firebase-auth-emulator@example.com"
)

// Signer signs custom tokens.
type Signer interface {
	// KeyID returns the identity of the signer, a service account email,
	// used as the issuer and subject of custom tokens.
	KeyID(ctx context.Context) (string, error)

	// Sign returns the signature of data.
	Sign(ctx context.Context, data []byte) ([]byte, error)

	// Algorithm returns the JWS algorithm of signatures returned by Sign.
	Algorithm() string
}

// LocalSigner signs with an RSA private key held in memory.
type LocalSigner struct {
	clientEmail string
	key         *rsa.PrivateKey
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner returns a LocalSigner identifying as clientEmail and signing
// with key.
func NewLocalSigner(clientEmail string, key *rsa.PrivateKey) (*LocalSigner, error) {
	if clientEmail == "" {
		return nil, newError(InvalidArgument, "client email must not be empty")
	}
	if key == nil {
		return nil, newError(InvalidArgument, "private key must not be nil")
	}
	return &LocalSigner{clientEmail: clientEmail, key: key}, nil
}

type serviceAccountFile struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// NewLocalSignerFromServiceAccount returns a LocalSigner for the service
// account key file contents in data.
func NewLocalSignerFromServiceAccount(data []byte) (*LocalSigner, error) {
	var sa serviceAccountFile
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, wrapError(InvalidArgument, err, "failed to parse service account credentials")
	}
	if sa.Type != "" && sa.Type != "service_account" {
		return nil, newError(InvalidArgument, "credentials of type %q are not service account credentials", sa.Type)
	}
	if sa.PrivateKey == "" {
		return nil, newError(InvalidArgument, "service account credentials have no private key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, wrapError(InvalidArgument, err, "failed to parse service account private key")
	}
	return NewLocalSigner(sa.ClientEmail, key)
}

// KeyID implements Signer.
func (s *LocalSigner) KeyID(context.Context) (string, error) {
	return s.clientEmail, nil
}

// Sign implements Signer using RSASSA-PKCS1-v1_5 with SHA-256.
func (s *LocalSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	sig, err := jwt.SigningMethodRS256.Sign(string(data), s.key)
	if err != nil {
		return nil, wrapError(SigningError, err, "failed to sign data")
	}
	return sig, nil
}

// Algorithm implements Signer.
func (s *LocalSigner) Algorithm() string {
	return algorithmRS256
}

// EmulatorSigner produces unsigned tokens for the Auth emulator. It never
// performs I/O.
type EmulatorSigner struct{}

var _ Signer = EmulatorSigner{}

// KeyID implements Signer.
func (EmulatorSigner) KeyID(context.Context) (string, error) {
	return EmulatorServiceAccount, nil
}

// Sign implements Signer. The signature is always empty.
func (EmulatorSigner) Sign(_ context.Context, data []byte) ([]byte, error) {
	return jwt.SigningMethodNone.Sign(string(data), jwt.UnsafeAllowNoneSignatureType)
}

// Algorithm implements Signer.
func (EmulatorSigner) Algorithm() string {
	return algorithmNone
}
