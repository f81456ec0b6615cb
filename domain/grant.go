package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// GrantTTL is the default lifetime of an authorization grant.
const GrantTTL = 100 * time.Second

// Grant is a short-lived, one-time authorization code binding a client,
// a user and the requested scopes. It is deleted on exchange.
type Grant struct {
	ID          bson.ObjectID // zero until persisted
	ClientID    string        // public client identifier
	UserID      bson.ObjectID
	Code        string
	RedirectURI string
	Scopes      []string
	ExpiresAt   time.Time // UTC

	// User is attached by join-on-read lookups. Never persisted.
	User *User
}

// Expired reports whether the grant is past its expiry at now.
func (g *Grant) Expired(now time.Time) bool {
	return !now.UTC().Before(g.ExpiresAt)
}
