package testutil

import (
	"context"

	"github.com/curioswitch/go-firebasetoken/authtoken"
	"github.com/curioswitch/go-firebasetoken/internal/contextholder"
)

// ContextWithToken returns a new context with the given verified token set. This is only
// useful in unit tests, for example of handlers that read the token within a
// server using the firebaseauth middleware.
func ContextWithToken(ctx context.Context, token *authtoken.Token, rawToken string) context.Context {
	return contextholder.WithToken(ctx, token, rawToken)
}
