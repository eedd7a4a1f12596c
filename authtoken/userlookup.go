package authtoken

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// UserRecord is the part of a user account relevant to revocation checks.
type UserRecord struct {
	// Exists is false if no account has the looked up uid.
	Exists bool

	// ValidSince is the epoch second before which tokens of the user are
	// considered revoked.
	ValidSince int64
}

// UserLookup finds users for revocation checks.
type UserLookup interface {
	LookupUser(ctx context.Context, uid string) (*UserRecord, error)
}

// UserLookupFunc adapts a function to a [UserLookup].
type UserLookupFunc func(ctx context.Context, uid string) (*UserRecord, error)

// LookupUser implements UserLookup.
func (f UserLookupFunc) LookupUser(ctx context.Context, uid string) (*UserRecord, error) {
	return f(ctx, uid)
}

type firebaseUserGetter interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// FirebaseUserLookup looks up users with the Firebase Admin SDK.
type FirebaseUserLookup struct {
	client     firebaseUserGetter
	isNotFound func(error) bool
}

var _ UserLookup = (*FirebaseUserLookup)(nil)

// NewFirebaseUserLookup returns a FirebaseUserLookup backed by client.
func NewFirebaseUserLookup(client *auth.Client) *FirebaseUserLookup {
	return &FirebaseUserLookup{client: client, isNotFound: auth.IsUserNotFound}
}

// LookupUser implements UserLookup.
func (l *FirebaseUserLookup) LookupUser(ctx context.Context, uid string) (*UserRecord, error) {
	u, err := l.client.GetUser(ctx, uid)
	if err != nil {
		if l.isNotFound(err) {
			return &UserRecord{Exists: false}, nil
		}
		return nil, err
	}
	return &UserRecord{
		Exists:     true,
		ValidSince: u.TokensValidAfterMillis / 1000,
	}, nil
}
