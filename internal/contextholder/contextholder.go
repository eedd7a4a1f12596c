// Package contextholder stores verified tokens in a context.Context so that
// the middleware setting them and the packages reading them agree on a key.
package contextholder

import (
	"context"

	"github.com/curioswitch/go-firebasetoken/authtoken"
)

type tokenContextKeyType struct{}

var tokenContextKey tokenContextKeyType = struct{}{}

// TokenHolder is a container of both a verified and raw Firebase token.
type TokenHolder struct {
	// Token is the verified token.
	Token *authtoken.Token

	// RawToken is the raw JWT string, an ID token or session cookie.
	RawToken string
}

// WithToken returns a copy of ctx carrying token and rawToken.
func WithToken(ctx context.Context, token *authtoken.Token, rawToken string) context.Context {
	return context.WithValue(ctx, tokenContextKey, &TokenHolder{Token: token, RawToken: rawToken})
}

// FromContext returns the holder stored in ctx, or nil.
func FromContext(ctx context.Context) *TokenHolder {
	h, _ := ctx.Value(tokenContextKey).(*TokenHolder)
	return h
}
