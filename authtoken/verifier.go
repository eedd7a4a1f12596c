package authtoken

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

const (
	clockSkew = 300 * time.Second

	idTokenIssuerPrefix       = "https://securetoken.google.com/"
	sessionCookieIssuerPrefix = "https://session.firebase.google.com/"

	// IDTokenKeysURL serves the keys ID tokens are signed with, as a JWKS.
	IDTokenKeysURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	// IDTokenCertsURL serves the keys ID tokens are signed with, as X.509
	// certificates.
	IDTokenCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	// SessionCookieKeysURL serves the keys session cookies are signed with.
	SessionCookieKeysURL = "https://identitytoolkit.googleapis.com/v1/sessionCookiePublicKeys"
)

// FirebaseInfo is the firebase claim of a verified token.
type FirebaseInfo struct {
	SignInProvider string         `json:"sign_in_provider"`
	Tenant         string         `json:"tenant"`
	Identities     map[string]any `json:"identities"`
}

// Token is a verified ID token or session cookie.
type Token struct {
	AuthTime int64        `json:"auth_time"`
	Issuer   string       `json:"iss"`
	Audience string       `json:"aud"`
	Expires  int64        `json:"exp"`
	IssuedAt int64        `json:"iat"`
	Subject  string       `json:"sub,omitempty"`
	UID      string       `json:"uid,omitempty"`
	Firebase FirebaseInfo `json:"firebase"`

	// Claims holds every claim of the payload, including the ones above.
	Claims map[string]any `json:"-"`
}

var _ jwt.Claims = (*Token)(nil)

// UnmarshalJSON decodes a token payload, filling Claims with every claim.
func (t *Token) UnmarshalJSON(b []byte) error {
	type payload Token
	if err := json.Unmarshal(b, (*payload)(t)); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &t.Claims); err != nil {
		return err
	}
	t.UID = t.Subject
	return nil
}

// GetExpirationTime implements jwt.Claims.
func (t *Token) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(t.Expires, 0)), nil
}

// GetIssuedAt implements jwt.Claims.
func (t *Token) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(t.IssuedAt, 0)), nil
}

// GetNotBefore implements jwt.Claims.
func (t *Token) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims.
func (t *Token) GetIssuer() (string, error) {
	return t.Issuer, nil
}

// GetSubject implements jwt.Claims.
func (t *Token) GetSubject() (string, error) {
	return t.Subject, nil
}

// GetAudience implements jwt.Claims.
func (t *Token) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{t.Audience}, nil
}

// TokenVerifierConfig configures a TokenVerifier.
type TokenVerifierConfig struct {
	// ProjectID is the expected audience, and suffix of the expected issuer.
	ProjectID string

	// ShortName names the kind of token in error messages, e.g. "ID token".
	ShortName string

	// Operation names the verifying method in error messages, e.g.
	// "VerifyIDToken()".
	Operation string

	// URL is a documentation link included in error messages.
	URL string

	// Issuer is the expected issuer without the project ID.
	Issuer string

	// KeySource provides the keys signatures are verified against. It is not
	// used in emulator mode and may be nil there.
	KeySource PublicKeySource

	// Clock defaults to the system clock.
	Clock Clock

	// Emulator accepts unsigned tokens from the Auth emulator.
	Emulator bool

	// UserLookup is required for revocation checks.
	UserLookup UserLookup
}

// TokenVerifier verifies ID tokens or session cookies.
type TokenVerifier struct {
	projectID  string
	shortName  string
	articled   string
	operation  string
	url        string
	issuer     string
	algorithm  string
	parser     *jwt.Parser
	keySource  PublicKeySource
	clock      Clock
	emulator   bool
	tenantID   string
	userLookup UserLookup
}

// NewTokenVerifier returns a TokenVerifier for conf.
func NewTokenVerifier(conf TokenVerifierConfig) (*TokenVerifier, error) {
	switch {
	case conf.ProjectID == "":
		return nil, newError(InvalidArgument, "project ID must not be empty")
	case conf.ShortName == "":
		return nil, newError(InvalidArgument, "short name must not be empty")
	case conf.Operation == "":
		return nil, newError(InvalidArgument, "operation name must not be empty")
	case conf.URL == "":
		return nil, newError(InvalidArgument, "URL must not be empty")
	case conf.Issuer == "":
		return nil, newError(InvalidArgument, "issuer must not be empty")
	case conf.KeySource == nil && !conf.Emulator:
		return nil, newError(InvalidArgument, "key source must not be nil")
	}

	clock := conf.Clock
	if clock == nil {
		clock = SystemClock()
	}
	algorithm := algorithmRS256
	if conf.Emulator {
		algorithm = algorithmNone
	}

	return &TokenVerifier{
		projectID:  conf.ProjectID,
		shortName:  conf.ShortName,
		articled:   withArticle(conf.ShortName),
		operation:  conf.Operation,
		url:        conf.URL,
		issuer:     conf.Issuer + conf.ProjectID,
		algorithm:  algorithm,
		parser:     jwt.NewParser(),
		keySource:  conf.KeySource,
		clock:      clock,
		emulator:   conf.Emulator,
		userLookup: conf.UserLookup,
	}, nil
}

// NewIDTokenVerifier returns a TokenVerifier for Firebase ID tokens of
// projectID. conf may be used to set the clock, emulator mode and user
// lookup; its naming fields are overwritten.
func NewIDTokenVerifier(projectID string, keySource PublicKeySource, conf TokenVerifierConfig) (*TokenVerifier, error) {
	conf.ProjectID = projectID
	conf.KeySource = keySource
	conf.ShortName = "ID token"
	conf.Operation = "VerifyIDToken()"
	conf.URL = "https://firebase.google.com/docs/auth/admin/verify-id-tokens"
	conf.Issuer = idTokenIssuerPrefix
	return NewTokenVerifier(conf)
}

// NewSessionCookieVerifier returns a TokenVerifier for Firebase session
// cookies of projectID. conf is treated as in NewIDTokenVerifier.
func NewSessionCookieVerifier(projectID string, keySource PublicKeySource, conf TokenVerifierConfig) (*TokenVerifier, error) {
	conf.ProjectID = projectID
	conf.KeySource = keySource
	conf.ShortName = "session cookie"
	conf.Operation = "VerifySessionCookie()"
	conf.URL = "https://firebase.google.com/docs/auth/admin/manage-cookies"
	conf.Issuer = sessionCookieIssuerPrefix
	return NewTokenVerifier(conf)
}

// ForTenant returns a copy of the verifier that only accepts tokens of
// tenantID.
func (v *TokenVerifier) ForTenant(tenantID string) (*TokenVerifier, error) {
	if tenantID == "" {
		return nil, newError(InvalidArgument, "tenant ID must not be empty")
	}
	c := *v
	c.tenantID = tenantID
	return &c, nil
}

// TenantID returns the tenant the verifier is scoped to, or empty.
func (v *TokenVerifier) TenantID() string {
	return v.tenantID
}

// VerifyToken verifies token and returns its decoded content.
func (v *TokenVerifier) VerifyToken(ctx context.Context, token string) (*Token, error) {
	return v.verify(ctx, token, false)
}

// VerifyTokenAndCheckRevoked verifies token and additionally checks that
// the tokens of its user were not revoked after it was issued. This requires
// a call to the user lookup on every invocation.
func (v *TokenVerifier) VerifyTokenAndCheckRevoked(ctx context.Context, token string) (*Token, error) {
	return v.verify(ctx, token, true)
}

func (v *TokenVerifier) verify(ctx context.Context, token string, checkRevoked bool) (*Token, error) {
	if token == "" {
		return nil, newError(InvalidArgument, "%s must be a non-empty string", v.shortName)
	}
	if checkRevoked && v.userLookup == nil {
		return nil, newError(InvalidArgument, "checking revocation of %s requires a user lookup", v.articled)
	}

	if strings.Count(token, ".") != 2 {
		return nil, newError(Malformed, "incorrect number of segments in %s", v.shortName)
	}

	// The parser decodes the header before the payload, and sets Claims only
	// once the header decoded.
	decoded := &Token{}
	parsed, segments, err := v.parser.ParseUnverified(token, decoded)
	if parsed == nil || parsed.Claims == nil {
		return nil, wrapError(Malformed, err, "failed to decode %s header", v.shortName)
	}
	keyID, _ := parsed.Header["kid"].(string)
	if !v.emulator && keyID == "" {
		return nil, newError(InvalidSignature, "%s has no 'kid' claim", v.shortName)
	}
	if alg, _ := parsed.Header["alg"].(string); alg != v.algorithm {
		return nil, newError(InvalidSignature, "%s has incorrect algorithm; expected %q but got %q; %s",
			v.shortName, v.algorithm, alg, v.verifyTokenHint())
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return nil, wrapError(Malformed, err, "failed to decode %s payload", v.shortName)
	}

	if err := v.checkClaims(decoded); err != nil {
		return nil, err
	}
	if err := v.verifySignature(ctx, segments, keyID); err != nil {
		return nil, err
	}
	if checkRevoked {
		if err := v.checkRevoked(ctx, decoded); err != nil {
			return nil, err
		}
	}

	return decoded, nil
}

func (v *TokenVerifier) checkClaims(t *Token) error {
	if t.Audience == CustomTokenAudience {
		return newError(CustomTokenGivenToVerifier, "%s expects %s, but was given a custom token",
			v.operation, v.articled)
	}

	now := v.clock.Now().Unix()
	skew := int64(clockSkew / time.Second)
	if t.Expires+skew < now {
		return newError(Expired, "%s expired at %d; expected to be greater than %d",
			v.shortName, t.Expires, now)
	}
	if t.IssuedAt-skew > now {
		return newError(IssuedInFuture, "%s issued at future timestamp %d; expected to be less than %d",
			v.shortName, t.IssuedAt, now)
	}

	if t.Issuer != v.issuer {
		return newError(InvalidIssuer, "%s has incorrect issuer (iss) claim; expected %q but got %q; %s; %s",
			v.shortName, v.issuer, t.Issuer, v.projectIDHint(), v.verifyTokenHint())
	}
	if t.Audience != v.projectID {
		return newError(InvalidAudience, "%s has incorrect audience (aud) claim; expected %q but got %q; %s; %s",
			v.shortName, v.projectID, t.Audience, v.projectIDHint(), v.verifyTokenHint())
	}

	if t.Subject == "" {
		return newError(InvalidSubject, "%s has no or empty subject (sub) claim", v.shortName)
	}
	if utf8.RuneCountInString(t.Subject) > maxUIDLength {
		return newError(InvalidSubject, "%s has a subject (sub) claim longer than %d characters",
			v.shortName, maxUIDLength)
	}

	if v.tenantID != "" && t.Firebase.Tenant != v.tenantID {
		return newError(TenantIDMismatch, "%s has incorrect tenant ID; expected %q but got %q",
			v.shortName, v.tenantID, t.Firebase.Tenant)
	}
	return nil
}

func (v *TokenVerifier) verifySignature(ctx context.Context, segments []string, keyID string) error {
	if v.emulator {
		return nil
	}

	keys, err := v.keySource.PublicKeys(ctx)
	if err != nil {
		return asError(err, CertificateFetchFailed, "failed to fetch public keys")
	}

	sig, err := v.parser.DecodeSegment(segments[2])
	if err != nil {
		return wrapError(InvalidSignature, err, "failed to verify signature of %s", v.articled)
	}
	signingInput := segments[0] + "." + segments[1]
	for _, k := range keys {
		if k.ID != keyID {
			continue
		}
		if err := jwt.SigningMethodRS256.Verify(signingInput, sig, k.Key); err == nil {
			return nil
		}
	}
	return newError(InvalidSignature, "failed to verify signature of %s", v.articled)
}

func (v *TokenVerifier) checkRevoked(ctx context.Context, t *Token) error {
	user, err := v.userLookup.LookupUser(ctx, t.UID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(ctxErr)
		}
		return asError(err, Internal, "failed to look up user for revocation check")
	}
	if user == nil || !user.Exists {
		return newError(UserNotFound, "no user record found for the given identifier: %q", t.UID)
	}
	if user.ValidSince >= t.IssuedAt {
		return newError(Revoked, "%s has been revoked", v.shortName)
	}
	return nil
}

func (v *TokenVerifier) projectIDHint() string {
	return "make sure the " + v.shortName + " comes from the same Firebase project as the credential used to initialize this SDK"
}

func (v *TokenVerifier) verifyTokenHint() string {
	return "see " + v.url + " for details on how to retrieve " + v.articled
}

func withArticle(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return "an " + s
	default:
		return "a " + s
	}
}
