package authtoken

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Config configures a Client. The signer is selected from the fields in
// order: emulator mode if EmulatorHost is set, a LocalSigner if Credentials
// hold a service account key, otherwise an IAMSigner.
type Config struct {
	// ProjectID is the Firebase project. If empty, it is read from
	// Credentials or the application default credentials.
	ProjectID string

	// Credentials is the JSON of a credentials file, usually a service
	// account key. If empty, application default credentials are used.
	Credentials []byte

	// ServiceAccountID fixes the account an IAMSigner signs as.
	ServiceAccountID string

	// EmulatorHost is the host of the Auth emulator, usually from the
	// FIREBASE_AUTH_EMULATOR_HOST environment variable.
	EmulatorHost string

	// TenantID scopes minting and ID token verification to a tenant.
	TenantID string

	// SignerHTTPClient is used for IAM requests and must attach credentials.
	// If nil, one is created from Credentials or application default
	// credentials.
	SignerHTTPClient *http.Client

	// KeysHTTPClient is used to fetch public keys. Defaults to
	// [http.DefaultClient].
	KeysHTTPClient *http.Client

	// IDTokenKeyFormat selects the endpoint ID token keys are fetched from:
	// IDTokenKeysURL for JWKS, the default, or IDTokenCertsURL for
	// X509CertMap.
	IDTokenKeyFormat KeyFormat

	// UserLookup enables revocation checks.
	UserLookup UserLookup

	Clock  Clock
	Logger *slog.Logger
}

// Client mints custom tokens and verifies ID tokens and session cookies of a
// single project.
type Client struct {
	projectID     string
	factory       *CustomTokenFactory
	idTokens      *TokenVerifier
	sessionCookie *TokenVerifier
}

// NewClient returns a Client for conf.
func NewClient(ctx context.Context, conf Config) (*Client, error) {
	if conf.Clock == nil {
		conf.Clock = SystemClock()
	}
	if conf.Logger == nil {
		conf.Logger = slog.Default()
	}

	var creds *google.Credentials
	if len(conf.Credentials) > 0 {
		c, err := google.CredentialsFromJSON(ctx, conf.Credentials, cloudPlatformScope)
		if err != nil {
			return nil, wrapError(InvalidArgument, err, "failed to parse credentials")
		}
		creds = c
	}

	projectID := conf.ProjectID
	if projectID == "" && creds != nil {
		projectID = creds.ProjectID
	}
	if projectID == "" && conf.EmulatorHost == "" {
		if c, err := google.FindDefaultCredentials(ctx, cloudPlatformScope); err == nil {
			projectID = c.ProjectID
		}
	}
	if projectID == "" {
		return nil, newError(InvalidArgument, "project ID is required to create a client; "+
			"set it in Config or use credentials that carry one")
	}

	signer, err := newSigner(ctx, conf, creds)
	if err != nil {
		return nil, err
	}

	emulator := conf.EmulatorHost != ""
	if emulator {
		conf.Logger.InfoContext(ctx, "Using Auth emulator, tokens will not be signed",
			slog.String("emulatorHost", conf.EmulatorHost))
	}

	verifierConf := TokenVerifierConfig{
		Clock:      conf.Clock,
		Emulator:   emulator,
		UserLookup: conf.UserLookup,
	}
	var idKeys, cookieKeys PublicKeySource
	if !emulator {
		keysOpts := []KeySourceOption{WithKeySourceClock(conf.Clock), WithKeySourceLogger(conf.Logger)}
		if conf.KeysHTTPClient != nil {
			keysOpts = append(keysOpts, WithHTTPClient(conf.KeysHTTPClient))
		}
		idKeysURL := IDTokenKeysURL
		if conf.IDTokenKeyFormat == X509CertMap {
			idKeysURL = IDTokenCertsURL
		}
		idKeysOpts := append([]KeySourceOption{WithKeyFormat(conf.IDTokenKeyFormat)}, keysOpts...)
		if idKeys, err = NewHTTPKeySource(idKeysURL, idKeysOpts...); err != nil {
			return nil, err
		}
		if cookieKeys, err = NewHTTPKeySource(SessionCookieKeysURL, keysOpts...); err != nil {
			return nil, err
		}
	}

	idTokens, err := NewIDTokenVerifier(projectID, idKeys, verifierConf)
	if err != nil {
		return nil, err
	}
	sessionCookie, err := NewSessionCookieVerifier(projectID, cookieKeys, verifierConf)
	if err != nil {
		return nil, err
	}
	factory, err := NewCustomTokenFactory(signer, WithFactoryClock(conf.Clock))
	if err != nil {
		return nil, err
	}

	c := &Client{
		projectID:     projectID,
		factory:       factory,
		idTokens:      idTokens,
		sessionCookie: sessionCookie,
	}
	if conf.TenantID != "" {
		return c.ForTenant(conf.TenantID)
	}
	return c, nil
}

func newSigner(ctx context.Context, conf Config, creds *google.Credentials) (Signer, error) {
	if conf.EmulatorHost != "" {
		return EmulatorSigner{}, nil
	}

	if creds != nil && hasPrivateKey(creds.JSON) {
		return NewLocalSignerFromServiceAccount(creds.JSON)
	}

	httpClient := conf.SignerHTTPClient
	if httpClient == nil {
		var ts oauth2.TokenSource
		if creds != nil {
			ts = creds.TokenSource
		} else {
			c, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
			if err != nil {
				return nil, &Error{Code: SigningIdentityError, Message: serviceAccountIDErrorMessage, Err: err}
			}
			ts = c.TokenSource
		}
		httpClient = oauth2.NewClient(context.WithoutCancel(ctx), ts)
	}

	opts := []IAMSignerOption{WithSignerLogger(conf.Logger)}
	if conf.ServiceAccountID != "" {
		opts = append(opts, WithServiceAccountID(conf.ServiceAccountID))
	}
	return NewIAMSigner(httpClient, opts...)
}

func hasPrivateKey(credsJSON []byte) bool {
	var f serviceAccountFile
	return json.Unmarshal(credsJSON, &f) == nil && f.PrivateKey != ""
}

// ProjectID returns the project of the client.
func (c *Client) ProjectID() string {
	return c.projectID
}

// ForTenant returns a copy of the client whose custom tokens and ID token
// verification are scoped to tenantID. Session cookies are not tenant
// scoped.
func (c *Client) ForTenant(tenantID string) (*Client, error) {
	factory, err := c.factory.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	idTokens, err := c.idTokens.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	t := *c
	t.factory = factory
	t.idTokens = idTokens
	return &t, nil
}

// CustomToken returns a custom token for uid.
func (c *Client) CustomToken(ctx context.Context, uid string) (string, error) {
	return c.factory.CreateCustomToken(ctx, uid, nil)
}

// CustomTokenWithClaims returns a custom token for uid carrying claims.
func (c *Client) CustomTokenWithClaims(ctx context.Context, uid string, claims map[string]any) (string, error) {
	return c.factory.CreateCustomToken(ctx, uid, claims)
}

// VerifyIDToken verifies an ID token.
func (c *Client) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	return c.idTokens.VerifyToken(ctx, idToken)
}

// VerifyIDTokenAndCheckRevoked verifies an ID token and checks it was not
// revoked.
func (c *Client) VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*Token, error) {
	return c.idTokens.VerifyTokenAndCheckRevoked(ctx, idToken)
}

// VerifySessionCookie verifies a session cookie.
func (c *Client) VerifySessionCookie(ctx context.Context, cookie string) (*Token, error) {
	return c.sessionCookie.VerifyToken(ctx, cookie)
}

// VerifySessionCookieAndCheckRevoked verifies a session cookie and checks it
// was not revoked.
func (c *Client) VerifySessionCookieAndCheckRevoked(ctx context.Context, cookie string) (*Token, error) {
	return c.sessionCookie.VerifyTokenAndCheckRevoked(ctx, cookie)
}

// IDTokenVerifier returns the verifier used for ID tokens.
func (c *Client) IDTokenVerifier() *TokenVerifier {
	return c.idTokens
}

// SessionCookieVerifier returns the verifier used for session cookies.
func (c *Client) SessionCookieVerifier() *TokenVerifier {
	return c.sessionCookie
}
