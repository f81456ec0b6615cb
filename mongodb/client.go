// Package mongodb implements the durable credential store on MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

const (
	UsersCollection   = "users"
	ClientsCollection = "clients"
	GrantsCollection  = "grants"
	TokensCollection  = "tokens"
)

// Connect establishes a MongoDB connection, verifies it with a ping and
// returns the database handle. Callers own the handle; there is no
// package-level client.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	log.Ctx(ctx).Info().Str("db", dbName).Msg("connecting to MongoDB")

	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetConnectTimeout(10 * time.Second)
	clientOptions.SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB primary: %w", err)
	}

	return client.Database(dbName), nil
}

// EnsureIndexes creates the indexes the store relies on: the uniqueness
// constraints behind SaveUser and GenerateClient, the lookup keys for
// codes and access tokens, the (user_id, client_id) upsert key, and a
// TTL index that reaps long-dead grant rows the protocol never
// exchanged.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create username index: %w", err)
	}

	_, err = db.Collection(ClientsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create client_id index: %w", err)
	}

	_, err = db.Collection(GrantsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create grant indexes: %w", err)
	}

	_, err = db.Collection(TokensCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "access_token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create token indexes: %w", err)
	}

	return nil
}
