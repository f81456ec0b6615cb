package domain

import "go.mongodb.org/mongo-driver/v2/bson"

// User is a resource-owner account. Only the bcrypt digest of the
// password is ever persisted.
type User struct {
	ID           bson.ObjectID // zero until persisted
	Username     string
	PasswordHash string
}
