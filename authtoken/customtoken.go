package authtoken

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CustomTokenAudience is the audience of custom tokens, the service that
	// exchanges them for ID tokens.
	CustomTokenAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"

	customTokenLifetime = time.Hour
	maxUIDLength        = 128
)

var reservedClaims = []string{
	"acr", "amr", "at_hash", "aud", "auth_time", "azp", "cnf", "c_hash",
	"exp", "firebase", "iat", "iss", "jti", "nbf", "nonce", "sub", "tenant_id", "uid",
}

// ReservedClaims returns the claim names that may not be used as developer
// claims in a custom token.
func ReservedClaims() []string {
	return slices.Clone(reservedClaims)
}

type customTokenPayload struct {
	Issuer   string         `json:"iss"`
	Subject  string         `json:"sub"`
	Audience string         `json:"aud"`
	IssuedAt int64          `json:"iat"`
	Expires  int64          `json:"exp"`
	UID      string         `json:"uid"`
	Claims   map[string]any `json:"claims,omitempty"`
	TenantID string         `json:"tenant_id,omitempty"`
}

var _ jwt.Claims = customTokenPayload{}

func (p customTokenPayload) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(p.Expires, 0)), nil
}

func (p customTokenPayload) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(p.IssuedAt, 0)), nil
}

func (p customTokenPayload) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (p customTokenPayload) GetIssuer() (string, error) {
	return p.Issuer, nil
}

func (p customTokenPayload) GetSubject() (string, error) {
	return p.Subject, nil
}

func (p customTokenPayload) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{p.Audience}, nil
}

// CustomTokenFactory mints custom tokens that client SDKs exchange for an
// ID token.
type CustomTokenFactory struct {
	signer   Signer
	clock    Clock
	tenantID string
}

// NewCustomTokenFactory returns a CustomTokenFactory signing with signer.
func NewCustomTokenFactory(signer Signer, opts ...FactoryOption) (*CustomTokenFactory, error) {
	if signer == nil {
		return nil, newError(InvalidArgument, "signer must not be nil")
	}

	conf := factoryConfig{clock: SystemClock()}
	for _, o := range opts {
		o.applyFactory(&conf)
	}
	if conf.clock == nil {
		return nil, newError(InvalidArgument, "clock must not be nil")
	}

	f := &CustomTokenFactory{signer: signer, clock: conf.clock}
	if conf.tenantID != nil {
		return f.ForTenant(*conf.tenantID)
	}
	return f, nil
}

// ForTenant returns a copy of the factory whose tokens carry tenantID.
func (f *CustomTokenFactory) ForTenant(tenantID string) (*CustomTokenFactory, error) {
	if tenantID == "" {
		return nil, newError(InvalidArgument, "tenant ID must not be empty")
	}
	c := *f
	c.tenantID = tenantID
	return &c, nil
}

// TenantID returns the tenant tokens are minted for, or empty if the factory
// is not tenant-scoped.
func (f *CustomTokenFactory) TenantID() string {
	return f.tenantID
}

// CreateCustomToken returns a signed custom token for uid. claims, if not
// empty, are made available to security rules of the signed in user.
func (f *CustomTokenFactory) CreateCustomToken(ctx context.Context, uid string, claims map[string]any) (string, error) {
	if uid == "" {
		return "", newError(InvalidArgument, "uid must be a non-empty string")
	}
	if utf8.RuneCountInString(uid) > maxUIDLength {
		return "", newError(InvalidArgument, "uid must not be longer than %d characters", maxUIDLength)
	}
	var reserved []string
	for k := range claims {
		if slices.Contains(reservedClaims, k) {
			reserved = append(reserved, k)
		}
	}
	if len(reserved) > 0 {
		slices.Sort(reserved)
		return "", newError(InvalidArgument, "developer claims %q are reserved and cannot be specified", strings.Join(reserved, ", "))
	}

	keyID, err := f.signer.KeyID(ctx)
	if err != nil {
		return "", asError(err, SigningIdentityError, "failed to determine signer key ID")
	}

	method := jwt.GetSigningMethod(f.signer.Algorithm())
	if method == nil {
		return "", newError(Internal, "unsupported signing algorithm %q", f.signer.Algorithm())
	}

	iat := f.clock.Now().Unix()
	payload := customTokenPayload{
		Issuer:   keyID,
		Subject:  keyID,
		Audience: CustomTokenAudience,
		IssuedAt: iat,
		Expires:  iat + int64(customTokenLifetime/time.Second),
		UID:      uid,
		TenantID: f.tenantID,
	}
	if len(claims) > 0 {
		payload.Claims = claims
	}

	token := jwt.NewWithClaims(method, payload)
	token.Header["kid"] = keyID
	signingInput, err := token.SigningString()
	if err != nil {
		return "", wrapError(InvalidArgument, err, "failed to encode custom token")
	}

	sig, err := f.signer.Sign(ctx, []byte(signingInput))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", cancelled(ctxErr)
		}
		return "", asError(err, SigningError, "failed to sign custom token")
	}

	return signingInput + "." + token.EncodeSegment(sig), nil
}

type factoryConfig struct {
	clock    Clock
	tenantID *string
}

// FactoryOption is a configuration option for NewCustomTokenFactory.
type FactoryOption interface {
	applyFactory(conf *factoryConfig)
}

type factoryOptionFunc func(conf *factoryConfig)

func (f factoryOptionFunc) applyFactory(conf *factoryConfig) {
	f(conf)
}

// WithFactoryClock returns a FactoryOption to set the clock tokens are
// timestamped with.
func WithFactoryClock(c Clock) FactoryOption {
	return factoryOptionFunc(func(conf *factoryConfig) {
		conf.clock = c
	})
}

// WithTenantID returns a FactoryOption scoping minted tokens to tenantID.
// An empty tenantID fails construction.
func WithTenantID(tenantID string) FactoryOption {
	return factoryOptionFunc(func(conf *factoryConfig) {
		conf.tenantID = &tenantID
	})
}
