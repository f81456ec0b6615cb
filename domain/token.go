package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Token is a Bearer credential authorizing a client to act on behalf of
// a user until expiry. At most one live Token row exists per
// (client_id, user_id) pair; a new issuance replaces the prior row.
type Token struct {
	ID           bson.ObjectID // zero until persisted
	ClientID     string        // public client identifier
	UserID       bson.ObjectID
	TokenType    string
	AccessToken  string // unique
	RefreshToken string // optional
	Scopes       []string
	ExpiresAt    time.Time // UTC

	// User is attached by join-on-read lookups. Never persisted.
	User *User
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.UTC().Before(t.ExpiresAt)
}
