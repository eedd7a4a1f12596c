package firebaseauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/curioswitch/go-firebasetoken/authtoken"
	"github.com/curioswitch/go-firebasetoken/internal/contextholder"
	"github.com/curioswitch/go-firebasetoken/middleware/requestlog"
)

// NewMiddleware returns an http.Handler middleware that authenticates requests
// using Firebase Authentication ID tokens or session cookies. Requests with a
// valid ID token as the bearer token in the Authorization header, or a valid
// session cookie if SessionCookie is set, will proceed, with the token content
// accessible from context.Context via TokenFromContext or RawTokenFromContext.
// Requests without a valid token will be rejected with a 401 Unauthorized
// response. If the verifier could not fetch the keys needed to check
// signatures, requests are rejected with 503 Service Unavailable. CheckRevoked
// with a verifier that has no user lookup rejects every request with 500
// Internal Server Error.
//
// verifier is usually [authtoken.Client.IDTokenVerifier] or
// [authtoken.Client.SessionCookieVerifier].
func NewMiddleware(verifier *authtoken.TokenVerifier, opts ...Option) func(http.Handler) http.Handler {
	var conf config
	for _, o := range opts {
		o.apply(&conf)
	}

	return func(next http.Handler) http.Handler {
		return &handler{
			next:         next,
			verifier:     verifier,
			cookieName:   conf.cookieName,
			checkRevoked: conf.checkRevoked,
			logger:       conf.logger,
		}
	}
}

type tokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*authtoken.Token, error)
	VerifyTokenAndCheckRevoked(ctx context.Context, token string) (*authtoken.Token, error)
}

type handler struct {
	next http.Handler

	verifier     tokenVerifier
	cookieName   string
	checkRevoked bool
	logger       *slog.Logger
}

// ServeHTTP implements http.Handler.
func (m *handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	token, msg := m.rawToken(req)
	if token == "" {
		http.Error(w, msg, http.StatusUnauthorized)
		return
	}

	var decoded *authtoken.Token
	var err error
	if m.checkRevoked {
		decoded, err = m.verifier.VerifyTokenAndCheckRevoked(req.Context(), token)
	} else {
		decoded, err = m.verifier.VerifyToken(req.Context(), token)
	}
	if err != nil {
		m.reject(w, req, err)
		return
	}

	ctx := req.Context()
	requestlog.AddExtraAttr(ctx, slog.String("firebaseUid", decoded.UID))
	if tenant := decoded.Firebase.Tenant; tenant != "" {
		requestlog.AddExtraAttr(ctx, slog.String("firebaseTenant", tenant))
	}
	req = req.WithContext(contextholder.WithToken(ctx, decoded, token))

	m.next.ServeHTTP(w, req)
}

// rawToken returns the token of the request, or an empty token and the reason
// it is missing.
func (m *handler) rawToken(req *http.Request) (string, string) {
	if m.cookieName != "" {
		c, err := req.Cookie(m.cookieName)
		if err != nil || c.Value == "" {
			return "", "missing session cookie"
		}
		return c.Value, ""
	}

	hdr := req.Header.Get("Authorization")
	if hdr == "" {
		return "", "missing authorization header"
	}
	token, ok := strings.CutPrefix(hdr, "Bearer ")
	if !ok || token == "" {
		return "", "malformed authorization header"
	}
	return token, ""
}

func (m *handler) reject(w http.ResponseWriter, req *http.Request, err error) {
	l := m.logger
	if l == nil {
		l = slog.Default()
	}

	switch authtoken.CodeOf(err) {
	case authtoken.InvalidArgument:
		// rawToken never passes an empty token, so the verifier itself is misconfigured.
		l.ErrorContext(req.Context(), "Token verifier misconfigured", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	case authtoken.CertificateFetchFailed, authtoken.Unavailable, authtoken.Internal:
		l.WarnContext(req.Context(), "Could not verify token", slog.Any("error", err))
		http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
	case authtoken.Revoked:
		http.Error(w, "revoked token", http.StatusUnauthorized)
	default:
		l.DebugContext(req.Context(), "Rejected token", slog.Any("error", err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}
}

type config struct {
	cookieName   string
	checkRevoked bool
	logger       *slog.Logger
}

// Option is a configuration option for NewMiddleware.
type Option interface {
	apply(conf *config)
}

// SessionCookie returns an Option to read the token from the cookie with the
// given name instead of the Authorization header. The middleware should then
// be given a session cookie verifier.
func SessionCookie(name string) Option {
	return sessionCookieOption(name)
}

type sessionCookieOption string

func (o sessionCookieOption) apply(conf *config) {
	conf.cookieName = string(o)
}

// CheckRevoked returns an Option to reject tokens that were revoked or whose
// user no longer exists. This looks up the user on every request, so
// the verifier must have been created with a user lookup.
func CheckRevoked() Option {
	return checkRevokedOption{}
}

type checkRevokedOption struct{}

func (o checkRevokedOption) apply(conf *config) {
	conf.checkRevoked = true
}

// Logger returns an Option to set the [slog.Logger] used to report rejected
// requests. If not provided, the default logger is used.
func Logger(l *slog.Logger) Option {
	return &loggerOption{logger: l}
}

type loggerOption struct {
	logger *slog.Logger
}

func (o *loggerOption) apply(conf *config) {
	conf.logger = o.logger
}
