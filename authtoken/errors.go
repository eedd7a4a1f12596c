package authtoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies the category of an [Error].
type ErrorCode string

const (
	// InvalidArgument is returned for bad input detected before any I/O.
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// Malformed is returned when a token cannot be parsed.
	Malformed ErrorCode = "MALFORMED_TOKEN"
	// InvalidSignature covers a missing or unknown key id, a wrong algorithm
	// and a signature that does not verify.
	InvalidSignature ErrorCode = "INVALID_SIGNATURE"
	// Expired is returned for tokens past their expiry, beyond clock skew.
	Expired ErrorCode = "TOKEN_EXPIRED"
	// IssuedInFuture is returned for tokens issued after now, beyond clock skew.
	IssuedInFuture  ErrorCode = "ISSUED_IN_FUTURE"
	InvalidIssuer   ErrorCode = "INVALID_ISSUER"
	InvalidAudience ErrorCode = "INVALID_AUDIENCE"
	InvalidSubject  ErrorCode = "INVALID_SUBJECT"
	// TenantIDMismatch is returned when a tenant-scoped verifier is given a
	// token of another tenant.
	TenantIDMismatch ErrorCode = "TENANT_ID_MISMATCH"
	// CustomTokenGivenToVerifier is returned when a custom token is passed
	// where an ID token or session cookie is expected.
	CustomTokenGivenToVerifier ErrorCode = "CUSTOM_TOKEN_GIVEN_TO_VERIFIER"
	Revoked                    ErrorCode = "TOKEN_REVOKED"
	UserNotFound               ErrorCode = "USER_NOT_FOUND"
	// CertificateFetchFailed is returned when public keys could not be
	// fetched or parsed.
	CertificateFetchFailed ErrorCode = "CERTIFICATE_FETCH_FAILED"
	// SigningIdentityError is returned when a signer cannot determine its
	// own key id.
	SigningIdentityError ErrorCode = "SIGNING_IDENTITY_ERROR"
	SigningError         ErrorCode = "SIGNING_ERROR"
	// Cancelled is returned when the context of an operation is done.
	Cancelled ErrorCode = "CANCELLED"
	// Unavailable is returned when retryable remote failures are exhausted.
	Unavailable ErrorCode = "UNAVAILABLE"
	Internal    ErrorCode = "INTERNAL"
)

// Error is the error returned by all operations in this package.
type Error struct {
	// Code is the category of the error. Callers should branch on it, or
	// use the IsXxx helpers, rather than on Message.
	Code ErrorCode

	// Message is a human readable description.
	Message string

	// Response is the HTTP response that caused the error, if any. Its body
	// has already been consumed.
	Response *http.Response

	// Err is the underlying cause, if any.
	Err error

	retryable bool
}

// Error implements error.
func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation that returned the error may
// succeed if attempted again.
func (e *Error) Retryable() bool {
	return e.retryable || e.Code == Unavailable
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// cancelled converts a done context's error into a Cancelled error.
func cancelled(err error) *Error {
	return &Error{Code: Cancelled, Message: "operation cancelled", Err: err}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// asError returns err unchanged when it is already an *Error, otherwise
// it is wrapped with the given code.
func asError(err error, code ErrorCode, msg string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isContextError(err) {
		return cancelled(err)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CodeOf returns the ErrorCode of err, or the empty code if err is not
// an [*Error].
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidArgument reports whether err was caused by bad input.
func IsInvalidArgument(err error) bool { return hasCode(err, InvalidArgument) }

// IsMalformed reports whether err was caused by an unparseable token.
func IsMalformed(err error) bool { return hasCode(err, Malformed) }

// IsInvalidSignature reports whether err was caused by a key id,
// algorithm or signature failure.
func IsInvalidSignature(err error) bool { return hasCode(err, InvalidSignature) }

// IsExpired reports whether err was caused by an expired token.
func IsExpired(err error) bool { return hasCode(err, Expired) }

// IsIssuedInFuture reports whether err was caused by a token issued in
// the future.
func IsIssuedInFuture(err error) bool { return hasCode(err, IssuedInFuture) }

// IsInvalidIssuer reports whether err was caused by an unexpected issuer.
func IsInvalidIssuer(err error) bool { return hasCode(err, InvalidIssuer) }

// IsInvalidAudience reports whether err was caused by an unexpected
// audience.
func IsInvalidAudience(err error) bool { return hasCode(err, InvalidAudience) }

// IsInvalidSubject reports whether err was caused by a missing or too long
// subject.
func IsInvalidSubject(err error) bool { return hasCode(err, InvalidSubject) }

// IsTenantIDMismatch reports whether err was caused by a token of another
// tenant.
func IsTenantIDMismatch(err error) bool { return hasCode(err, TenantIDMismatch) }

// IsCustomTokenGivenToVerifier reports whether err was caused by passing a
// custom token to a verifier.
func IsCustomTokenGivenToVerifier(err error) bool { return hasCode(err, CustomTokenGivenToVerifier) }

// IsRevoked reports whether err was caused by a revoked token.
func IsRevoked(err error) bool { return hasCode(err, Revoked) }

// IsUserNotFound reports whether err was caused by a missing user during a
// revocation check.
func IsUserNotFound(err error) bool { return hasCode(err, UserNotFound) }

// IsCertificateFetchFailed reports whether err was caused by a failure to
// fetch public keys.
func IsCertificateFetchFailed(err error) bool { return hasCode(err, CertificateFetchFailed) }

// IsSigningIdentityError reports whether err was caused by a signer that
// could not determine its key id.
func IsSigningIdentityError(err error) bool { return hasCode(err, SigningIdentityError) }

// IsSigningError reports whether err was caused by a failed sign request.
func IsSigningError(err error) bool { return hasCode(err, SigningError) }

// IsCancelled reports whether err was caused by a done context.
func IsCancelled(err error) bool { return hasCode(err, Cancelled) }

// IsUnavailable reports whether err was caused by exhausted retries.
func IsUnavailable(err error) bool { return hasCode(err, Unavailable) }
