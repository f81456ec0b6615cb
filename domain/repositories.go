package domain

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CredentialStore is the durable source of truth for users, clients,
// grants and tokens. Get* methods return (nil, nil) when nothing
// matches; they return an error only for malformed input or a backend
// failure.
type CredentialStore interface {
	// GetClient looks up a client by its public client_id.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// GetUser looks up a user by username. When password is non-empty
	// the stored digest must additionally verify against it; a mismatch
	// is reported identically to an absent user, as (nil, nil).
	GetUser(ctx context.Context, username, password string) (*User, error)

	// GetToken looks up a token by exactly one of accessToken or
	// refreshToken, attaching the owning User on a hit. Supplying
	// neither fails with errors.ErrTokenReferenceRequired.
	GetToken(ctx context.Context, accessToken, refreshToken string) (*Token, error)

	// GetGrant looks up a grant by (clientID, code), attaching the
	// owning User on a hit.
	GetGrant(ctx context.Context, clientID, code string) (*Grant, error)

	// SaveGrant inserts a new grant expiring GrantTTL from now and
	// returns it with its identity set.
	SaveGrant(ctx context.Context, clientID, code string, userID bson.ObjectID, redirectURI string, scopes []string) (*Grant, error)

	// TakeGrant deletes the grant row by identity and reports whether
	// this caller performed the delete. Concurrent takers of the same
	// grant see exactly one true.
	TakeGrant(ctx context.Context, grantID bson.ObjectID) (bool, error)

	// SaveToken upserts the token row keyed by (userID, clientID),
	// replacing any prior row in place, and write-through indexes the
	// access token in the cache with the same TTL. A cache failure does
	// not fail the save.
	SaveToken(ctx context.Context, clientID string, userID bson.ObjectID, tokenType, accessToken, refreshToken string, scopes []string, expiresIn time.Duration) (*Token, error)

	// GenerateClient inserts a new public client with fresh random
	// credentials.
	GenerateClient(ctx context.Context, name, description string, redirectURIs []string) (*Client, error)

	// SaveUser hashes password and inserts a new user. Fails with
	// errors.ErrUsernameTaken on a duplicate username.
	SaveUser(ctx context.Context, username, password string) (*User, error)

	// DeleteUser deletes all tokens owned by the user, then the user
	// row. Returns (nil, nil) for an unknown username.
	DeleteUser(ctx context.Context, username string) (*User, error)

	// DeleteClient deletes all tokens issued to the client, then the
	// client row. Returns (nil, nil) for an unknown client_id.
	DeleteClient(ctx context.Context, clientID string) (*Client, error)

	// DeleteToken deletes a token under the same dual-lookup contract as
	// GetToken, and evicts its cache entry.
	DeleteToken(ctx context.Context, accessToken, refreshToken string) (*Token, error)

	// DeleteGrant deletes a grant by identity. Idempotent.
	DeleteGrant(ctx context.Context, grantID bson.ObjectID) error

	AllUsers(ctx context.Context) ([]*User, error)
	AllClients(ctx context.Context) ([]*Client, error)
	AllTokens(ctx context.Context) ([]*Token, error)
	AllGrants(ctx context.Context) ([]*Grant, error)
}

// TokenCache is a TTL-bound secondary index keyed by access token. It is
// never the source of truth: a miss means "ask the store", not "token
// invalid". Entries expire no later than the backing token row.
type TokenCache interface {
	Set(ctx context.Context, accessToken, userID string, ttl time.Duration) error
	// Get returns the owning user ID, or ("", nil) on a miss.
	Get(ctx context.Context, accessToken string) (string, error)
	Evict(ctx context.Context, accessToken string) error
}

// PasswordHasher produces and verifies one-way password digests. The
// digest is self-describing: the salt is recoverable from it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns nil when password matches the digest.
	Verify(digest, password string) error
}
