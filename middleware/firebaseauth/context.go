package firebaseauth

import (
	"context"

	"github.com/curioswitch/go-firebasetoken/authtoken"
	"github.com/curioswitch/go-firebasetoken/internal/contextholder"
)

// TokenFromContext returns the authtoken.Token contained in ctx, if any.
// Note, this is not the string JWT token but the decoded token. Use
// RawTokenFromContext to get the JWT token.
func TokenFromContext(ctx context.Context) *authtoken.Token {
	if h := contextholder.FromContext(ctx); h != nil {
		return h.Token
	}
	return nil
}

// RawTokenFromContext returns the raw JWT token string contained in ctx, if any.
// This is the ID token or session cookie the request was authenticated with.
// To get the decoded token, use TokenFromContext.
func RawTokenFromContext(ctx context.Context) string {
	if h := contextholder.FromContext(ctx); h != nil {
		return h.RawToken
	}
	return ""
}
