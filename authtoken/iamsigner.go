package authtoken

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

const (
	defaultIAMEndpoint     = "https://iam.googleapis.com"
	serviceAccountMetadata = "instance/service-accounts/default/email"

	defaultMaxRetries     = 5
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	discoveryTimeout      = 10 * time.Second
)

const serviceAccountIDErrorMessage = "failed to determine service account ID; make sure to initialize " +
	"the SDK with service account credentials or specify a service account ID with " +
	"iam.serviceAccounts.signBlob permission; see " +
	"https://firebase.google.com/docs/auth/admin/create-custom-tokens for more details on " +
	"creating custom tokens"

// IAMSigner signs using the signBlob method of the IAM API. Unless a service
// account ID is configured, the ID is discovered from the metadata server on
// first use and remembered for the lifetime of the signer.
type IAMSigner struct {
	httpClient     *http.Client
	iamEndpoint    string
	metadata       *metadata.Client
	maxRetries     uint64
	initialBackoff time.Duration
	logger         *slog.Logger

	// nil until resolved. Resolution runs at most once at a time through
	// discovery; failures leave it nil.
	serviceAccountID atomic.Pointer[string]
	discovery        singleflight.Group
}

var _ Signer = (*IAMSigner)(nil)

// NewIAMSigner returns an IAMSigner issuing requests with httpClient, which
// must attach credentials allowed to call signBlob, for example a client
// from [golang.org/x/oauth2/google.DefaultClient].
func NewIAMSigner(httpClient *http.Client, opts ...IAMSignerOption) (*IAMSigner, error) {
	if httpClient == nil {
		return nil, newError(InvalidArgument, "http client must not be nil")
	}

	conf := iamSignerConfig{
		iamEndpoint:    defaultIAMEndpoint,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}
	for _, o := range opts {
		o.applyIAMSigner(&conf)
	}
	if conf.serviceAccountID != nil && *conf.serviceAccountID == "" {
		return nil, newError(InvalidArgument, "service account ID must not be empty")
	}
	if conf.iamEndpoint == "" {
		return nil, newError(InvalidArgument, "IAM endpoint must not be empty")
	}
	if conf.metadata == nil {
		conf.metadata = metadata.NewClient(httpClient)
	}

	s := &IAMSigner{
		httpClient:     httpClient,
		iamEndpoint:    strings.TrimSuffix(conf.iamEndpoint, "/"),
		metadata:       conf.metadata,
		maxRetries:     conf.maxRetries,
		initialBackoff: conf.initialBackoff,
		logger:         conf.logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if conf.serviceAccountID != nil {
		s.serviceAccountID.Store(conf.serviceAccountID)
	}
	return s, nil
}

// KeyID implements Signer.
func (s *IAMSigner) KeyID(ctx context.Context) (string, error) {
	if id := s.serviceAccountID.Load(); id != nil {
		return *id, nil
	}
	if err := ctx.Err(); err != nil {
		return "", cancelled(err)
	}

	ch := s.discovery.DoChan("", func() (any, error) {
		if id := s.serviceAccountID.Load(); id != nil {
			return *id, nil
		}
		// Shared by all waiters, so one caller giving up must not fail the others.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discoveryTimeout)
		defer cancel()
		id, err := s.discoverServiceAccountID(dctx)
		if err != nil {
			return "", err
		}
		s.serviceAccountID.Store(&id)
		return id, nil
	})

	select {
	case <-ctx.Done():
		return "", cancelled(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", &Error{
				Code:    SigningIdentityError,
				Message: serviceAccountIDErrorMessage,
				Err:     res.Err,
			}
		}
		return res.Val.(string), nil
	}
}

func (s *IAMSigner) discoverServiceAccountID(ctx context.Context) (string, error) {
	email, err := s.metadata.GetWithContext(ctx, serviceAccountMetadata)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(email)
	if id == "" {
		return "", errors.New("metadata server returned an empty service account ID")
	}
	s.logger.DebugContext(ctx, "Discovered service account for signing", slog.String("serviceAccount", id))
	return id, nil
}

type signBlobRequest struct {
	BytesToSign string `json:"bytesToSign"`
}

type signBlobResponse struct {
	Signature string `json:"signature"`
}

// Sign implements Signer. Server errors, rate limiting and transport failures
// are retried with exponential backoff.
func (s *IAMSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	id, err := s.KeyID(ctx)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(signBlobRequest{BytesToSign: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, wrapError(Internal, err, "failed to encode sign request")
	}
	url := fmt.Sprintf("%s/v1/projects/-/serviceAccounts/%s:signBlob", s.iamEndpoint, id)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = defaultMaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.maxRetries), ctx)

	attempts := 0
	sig, err := backoff.RetryNotifyWithData(func() ([]byte, error) {
		attempts++
		return s.signOnce(ctx, url, reqBody)
	}, policy, func(err error, next time.Duration) {
		s.logger.WarnContext(ctx, "Retrying sign request",
			slog.Int("attempt", attempts),
			slog.Duration("backoff", next),
			slog.Any("error", err))
	})
	if err == nil {
		return sig, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, cancelled(ctxErr)
	}
	var e *Error
	if errors.As(err, &e) && e.retryable {
		return nil, &Error{
			Code:    Unavailable,
			Message: fmt.Sprintf("failed to sign data after %d attempts", attempts),
			Err:     e,
		}
	}
	return nil, asError(err, Internal, "failed to sign data")
}

// signOnce issues a single signBlob request. Errors that must not be retried
// are wrapped with backoff.Permanent.
func (s *IAMSigner) signOnce(ctx context.Context, url string, reqBody []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, backoff.Permanent(wrapError(Internal, err, "failed to create sign request"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, backoff.Permanent(cancelled(ctxErr))
		}
		return nil, &Error{Code: SigningError, Message: "failed to send sign request", Err: err, retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: SigningError, Message: "failed to read sign response", Err: err, retryable: true}
	}

	if resp.StatusCode/100 != 2 {
		e := &Error{
			Code:      SigningError,
			Message:   fmt.Sprintf("failed to sign data; unexpected http response with status: %d; body: %s", resp.StatusCode, body),
			Response:  resp,
			retryable: retryableStatus(resp.StatusCode),
		}
		if !e.retryable {
			return nil, backoff.Permanent(e)
		}
		return nil, e
	}

	var parsed signBlobResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, backoff.Permanent(&Error{Code: Internal, Message: "failed to parse sign response", Response: resp, Err: err})
	}
	sig, err := base64.StdEncoding.DecodeString(parsed.Signature)
	if err != nil {
		return nil, backoff.Permanent(&Error{Code: Internal, Message: "failed to decode signature", Response: resp, Err: err})
	}
	return sig, nil
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// Algorithm implements Signer.
func (s *IAMSigner) Algorithm() string {
	return algorithmRS256
}

type iamSignerConfig struct {
	serviceAccountID *string
	iamEndpoint      string
	metadata         *metadata.Client
	maxRetries       uint64
	initialBackoff   time.Duration
	logger           *slog.Logger
}

// IAMSignerOption is a configuration option for NewIAMSigner.
type IAMSignerOption interface {
	applyIAMSigner(conf *iamSignerConfig)
}

type iamSignerOptionFunc func(conf *iamSignerConfig)

func (f iamSignerOptionFunc) applyIAMSigner(conf *iamSignerConfig) {
	f(conf)
}

// WithServiceAccountID returns an IAMSignerOption that fixes the service
// account used for signing, skipping discovery.
func WithServiceAccountID(id string) IAMSignerOption {
	return iamSignerOptionFunc(func(conf *iamSignerConfig) {
		conf.serviceAccountID = &id
	})
}

// WithIAMEndpoint returns an IAMSignerOption to override the base URL of the
// IAM API.
func WithIAMEndpoint(endpoint string) IAMSignerOption {
	return iamSignerOptionFunc(func(conf *iamSignerConfig) {
		conf.iamEndpoint = endpoint
	})
}

// WithMetadataClient returns an IAMSignerOption to set the client the service
// account ID is discovered with. If not provided, the metadata server is
// queried with the signer's http client.
func WithMetadataClient(c *metadata.Client) IAMSignerOption {
	return iamSignerOptionFunc(func(conf *iamSignerConfig) {
		conf.metadata = c
	})
}

// WithMaxRetries returns an IAMSignerOption to set how many times a failed
// sign request is retried. Zero disables retries.
func WithMaxRetries(n uint64) IAMSignerOption {
	return iamSignerOptionFunc(func(conf *iamSignerConfig) {
		conf.maxRetries = n
	})
}

// WithInitialBackoff returns an IAMSignerOption to set the delay before the
// first retry. Later delays grow exponentially.
func WithInitialBackoff(d time.Duration) IAMSignerOption {
	return iamSignerOptionFunc(func(conf *iamSignerConfig) {
		conf.initialBackoff = d
	})
}

// WithSignerLogger returns an IAMSignerOption to set the [slog.Logger] used
// to report retries. If not provided, the default logger is used.
func WithSignerLogger(l *slog.Logger) IAMSignerOption {
	return iamSignerOptionFunc(func(conf *iamSignerConfig) {
		conf.logger = l
	})
}
