package authtoken

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httpcc"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// PublicKey is a key that may have signed a token, identified by the key id
// found in token headers.
type PublicKey struct {
	ID  string
	Key *rsa.PublicKey
}

// PublicKeySource returns the keys tokens are verified against.
type PublicKeySource interface {
	// PublicKeys returns the current keys. The returned slice belongs to the
	// caller.
	PublicKeys(ctx context.Context) ([]PublicKey, error)
}

// KeyFormat is the response format of a public key endpoint.
type KeyFormat int

const (
	// JWKS is a JSON Web Key Set, {"keys": [...]}.
	JWKS KeyFormat = iota
	// X509CertMap is a JSON object mapping key ids to PEM encoded X.509
	// certificates, as served by the legacy securetoken endpoint.
	X509CertMap
)

type cachedKeySet struct {
	keys      []PublicKey
	expiresAt time.Time
}

// HTTPKeySource fetches public keys over HTTP, caching them for as long as
// the Cache-Control max-age of the response allows. Responses without
// max-age are not cached.
type HTTPKeySource struct {
	url    string
	client *http.Client
	clock  Clock
	format KeyFormat
	logger *slog.Logger

	// Immutable once stored. Concurrent refreshes may race; the last one wins.
	cache atomic.Pointer[cachedKeySet]
}

var _ PublicKeySource = (*HTTPKeySource)(nil)

// NewHTTPKeySource returns an HTTPKeySource for keys served at url.
func NewHTTPKeySource(url string, opts ...KeySourceOption) (*HTTPKeySource, error) {
	if url == "" {
		return nil, newError(InvalidArgument, "public key URL must not be empty")
	}

	conf := keySourceConfig{
		client: http.DefaultClient,
		clock:  SystemClock(),
		format: JWKS,
	}
	for _, o := range opts {
		o.applyKeySource(&conf)
	}
	if conf.client == nil {
		return nil, newError(InvalidArgument, "http client must not be nil")
	}
	if conf.clock == nil {
		return nil, newError(InvalidArgument, "clock must not be nil")
	}
	if conf.logger == nil {
		conf.logger = slog.Default()
	}

	return &HTTPKeySource{
		url:    url,
		client: conf.client,
		clock:  conf.clock,
		format: conf.format,
		logger: conf.logger,
	}, nil
}

// PublicKeys implements PublicKeySource.
func (s *HTTPKeySource) PublicKeys(ctx context.Context) ([]PublicKey, error) {
	set, err := s.keySet(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(set.keys), nil
}

// keySet returns the cached set, refreshing it when missing or expired.
func (s *HTTPKeySource) keySet(ctx context.Context) (*cachedKeySet, error) {
	now := s.clock.Now()
	if cached := s.cache.Load(); cached != nil && now.Before(cached.expiresAt) {
		return cached, nil
	}

	set, err := s.fetch(ctx, now)
	if err != nil {
		return nil, err
	}
	s.cache.Store(set)
	return set, nil
}

func (s *HTTPKeySource) fetch(ctx context.Context, now time.Time) (*cachedKeySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, wrapError(CertificateFetchFailed, err, "failed to create public key request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		return nil, wrapError(CertificateFetchFailed, err, "failed to fetch public keys")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		return nil, &Error{Code: CertificateFetchFailed, Message: "failed to read public keys", Response: resp, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		return nil, &Error{
			Code:     CertificateFetchFailed,
			Message:  fmt.Sprintf("failed to fetch public keys; unexpected http response with status: %d; body: %s", resp.StatusCode, body),
			Response: resp,
		}
	}

	var keys []PublicKey
	switch s.format {
	case X509CertMap:
		keys, err = parseX509CertMap(body)
	default:
		keys, err = parseJWKS(body)
	}
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Response = resp
			return nil, e
		}
		return nil, &Error{Code: CertificateFetchFailed, Message: "failed to parse public keys", Response: resp, Err: err}
	}

	maxAge := parseMaxAge(resp.Header.Get("Cache-Control"))
	s.logger.DebugContext(ctx, "Fetched public keys",
		slog.String("url", s.url),
		slog.Int("keys", len(keys)),
		slog.Duration("maxAge", maxAge))

	return &cachedKeySet{keys: keys, expiresAt: now.Add(maxAge)}, nil
}

func noKeysError() *Error {
	return newError(CertificateFetchFailed, "no public keys present in the response")
}

func parseJWKS(body []byte) ([]PublicKey, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if len(doc.Keys) == 0 {
		return nil, noKeysError()
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, err
	}

	keys := make([]PublicKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		k, ok := set.Key(i)
		if !ok || k.KeyType() != jwa.RSA || k.KeyID() == "" {
			continue
		}
		var raw any
		if err := k.Raw(&raw); err != nil {
			continue
		}
		pub, ok := raw.(*rsa.PublicKey)
		if !ok {
			continue
		}
		keys = append(keys, PublicKey{ID: k.KeyID(), Key: pub})
	}
	if len(keys) == 0 {
		return nil, noKeysError()
	}
	return keys, nil
}

func parseX509CertMap(body []byte) ([]PublicKey, error) {
	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, noKeysError()
	}

	keys := make([]PublicKey, 0, len(certs))
	for kid, cert := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
		if err != nil {
			return nil, fmt.Errorf("certificate %q: %w", kid, err)
		}
		keys = append(keys, PublicKey{ID: kid, Key: key})
	}
	slices.SortFunc(keys, func(a, b PublicKey) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return keys, nil
}

// parseMaxAge returns the max-age of a Cache-Control header, or zero when
// absent or unparseable.
func parseMaxAge(cacheControl string) time.Duration {
	if cacheControl == "" {
		return 0
	}
	dir, err := httpcc.ParseResponse(cacheControl)
	if err != nil {
		return 0
	}
	maxAge, ok := dir.MaxAge()
	if !ok {
		return 0
	}
	return time.Duration(maxAge) * time.Second
}

// StaticKeySource is a PublicKeySource with a fixed set of keys.
type StaticKeySource []PublicKey

var _ PublicKeySource = StaticKeySource(nil)

// PublicKeys implements PublicKeySource.
func (s StaticKeySource) PublicKeys(ctx context.Context) ([]PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	return slices.Clone([]PublicKey(s)), nil
}

type keySourceConfig struct {
	client *http.Client
	clock  Clock
	format KeyFormat
	logger *slog.Logger
}

// KeySourceOption is a configuration option for NewHTTPKeySource.
type KeySourceOption interface {
	applyKeySource(conf *keySourceConfig)
}

type keySourceOptionFunc func(conf *keySourceConfig)

func (f keySourceOptionFunc) applyKeySource(conf *keySourceConfig) {
	f(conf)
}

// WithHTTPClient returns a KeySourceOption to set the client keys are
// fetched with. If not provided, [http.DefaultClient] is used.
func WithHTTPClient(c *http.Client) KeySourceOption {
	return keySourceOptionFunc(func(conf *keySourceConfig) {
		conf.client = c
	})
}

// WithKeySourceClock returns a KeySourceOption to set the clock used to
// expire cached keys.
func WithKeySourceClock(c Clock) KeySourceOption {
	return keySourceOptionFunc(func(conf *keySourceConfig) {
		conf.clock = c
	})
}

// WithKeyFormat returns a KeySourceOption to set the response format of the
// key endpoint. The default is JWKS.
func WithKeyFormat(f KeyFormat) KeySourceOption {
	return keySourceOptionFunc(func(conf *keySourceConfig) {
		conf.format = f
	})
}

// WithKeySourceLogger returns a KeySourceOption to set the [slog.Logger]
// fetches are reported to. If not provided, the default logger is used.
func WithKeySourceLogger(l *slog.Logger) KeySourceOption {
	return keySourceOptionFunc(func(conf *keySourceConfig) {
		conf.logger = l
	})
}
