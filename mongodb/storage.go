package mongodb

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/sentinel/domain"
	serrors "go.pilab.hu/sentinel/errors"
)

// credentialLength is the length in characters of generated client IDs
// and secrets.
const credentialLength = 40

// Storage implements domain.CredentialStore over a MongoDB database,
// with write-through indexing of access tokens into the token cache.
// The database is the source of truth; the cache is best-effort.
type Storage struct {
	users    *mongo.Collection
	clients  *mongo.Collection
	grants   *mongo.Collection
	tokens   *mongo.Collection
	cache    domain.TokenCache
	hasher   domain.PasswordHasher
	grantTTL time.Duration
}

// NewStorage creates a Storage on db. cache may be nil, in which case
// token indexing is skipped entirely. grantTTL <= 0 falls back to
// domain.GrantTTL.
func NewStorage(db *mongo.Database, cache domain.TokenCache, hasher domain.PasswordHasher, grantTTL time.Duration) *Storage {
	if grantTTL <= 0 {
		grantTTL = domain.GrantTTL
	}
	return &Storage{
		users:    db.Collection(UsersCollection),
		clients:  db.Collection(ClientsCollection),
		grants:   db.Collection(GrantsCollection),
		tokens:   db.Collection(TokensCollection),
		cache:    cache,
		hasher:   hasher,
		grantTTL: grantTTL,
	}
}

// findOne runs a single-document equality lookup. Absence is reported
// as (nil, nil); an error means the backend failed.
func findOne(ctx context.Context, coll *mongo.Collection, filter bson.M) (bson.M, error) {
	var rec bson.M
	err := coll.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s lookup failed: %w", coll.Name(), err)
	}
	return rec, nil
}

func findMany(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]bson.M, error) {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s find failed: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var recs []bson.M
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("%s cursor read failed: %w", coll.Name(), err)
	}
	return recs, nil
}

// GetClient looks up a client by its public client_id.
func (s *Storage) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	rec, err := findOne(ctx, s.clients, bson.M{"client_id": clientID})
	if err != nil {
		return nil, err
	}
	return fromRecord(rec, clientSchema), nil
}

// GetUser looks up a user by username. With a non-empty password the
// stored digest must verify against it; a mismatch is indistinguishable
// from an absent user so callers cannot tell which check failed.
func (s *Storage) GetUser(ctx context.Context, username, password string) (*domain.User, error) {
	rec, err := findOne(ctx, s.users, bson.M{"username": username})
	if err != nil {
		return nil, err
	}
	user := fromRecord(rec, userSchema)
	if user == nil {
		return nil, nil
	}
	if password != "" {
		if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
			return nil, nil
		}
	}
	return user, nil
}

// loadUser fetches a user by identity for join-on-read. A missing user
// yields nil without error: cascade ordering can leave a token pointing
// at a deleted user, and lookups tolerate that.
func (s *Storage) loadUser(ctx context.Context, id bson.ObjectID) (*domain.User, error) {
	rec, err := findOne(ctx, s.users, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	return fromRecord(rec, userSchema), nil
}

// tokenFilter builds the dual-lookup filter shared by GetToken and
// DeleteToken. When both values are supplied the access token wins.
func tokenFilter(accessToken, refreshToken string) (bson.M, error) {
	switch {
	case accessToken != "":
		return bson.M{"access_token": accessToken}, nil
	case refreshToken != "":
		return bson.M{"refresh_token": refreshToken}, nil
	default:
		return nil, serrors.ErrTokenReferenceRequired
	}
}

// GetToken looks up a token by access or refresh token and attaches the
// owning user.
func (s *Storage) GetToken(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error) {
	filter, err := tokenFilter(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	rec, err := findOne(ctx, s.tokens, filter)
	if err != nil {
		return nil, err
	}
	token := fromRecord(rec, tokenSchema)
	if token == nil {
		return nil, nil
	}
	if token.User, err = s.loadUser(ctx, token.UserID); err != nil {
		return nil, err
	}
	return token, nil
}

// GetGrant looks up a grant by (client_id, code) and attaches the
// owning user.
func (s *Storage) GetGrant(ctx context.Context, clientID, code string) (*domain.Grant, error) {
	rec, err := findOne(ctx, s.grants, bson.M{"client_id": clientID, "code": code})
	if err != nil {
		return nil, err
	}
	grant := fromRecord(rec, grantSchema)
	if grant == nil {
		return nil, nil
	}
	if grant.User, err = s.loadUser(ctx, grant.UserID); err != nil {
		return nil, err
	}
	return grant, nil
}

// SaveGrant inserts a new grant expiring grantTTL from now.
func (s *Storage) SaveGrant(ctx context.Context, clientID, code string, userID bson.ObjectID, redirectURI string, scopes []string) (*domain.Grant, error) {
	grant := &domain.Grant{
		ClientID:    clientID,
		UserID:      userID,
		Code:        code,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		ExpiresAt:   time.Now().UTC().Add(s.grantTTL).Truncate(time.Millisecond),
	}

	res, err := s.grants.InsertOne(ctx, toRecord(grant, grantSchema))
	if err != nil {
		return nil, fmt.Errorf("grant insert failed: %w", err)
	}
	grant.ID = res.InsertedID.(bson.ObjectID)
	return grant, nil
}

// TakeGrant deletes the grant row by identity and reports whether this
// caller performed the delete. The conditional delete is what makes a
// code single-use under concurrent exchanges: the store removes the row
// exactly once, so exactly one caller sees true.
func (s *Storage) TakeGrant(ctx context.Context, grantID bson.ObjectID) (bool, error) {
	res, err := s.grants.DeleteOne(ctx, bson.M{"_id": grantID})
	if err != nil {
		return false, fmt.Errorf("grant delete failed: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// SaveToken upserts the token row keyed by (user_id, client_id). The
// replace-whole-document upsert is the mechanism enforcing one active
// token per principal: an existing row is overwritten in place with its
// identity preserved, a missing row is inserted. The replaced row's
// access token is evicted from the cache so a superseded token cannot
// keep validating on the fast path, then the new access token is
// indexed with the same TTL. Cache failures are logged and swallowed
// because the durable write is authoritative.
func (s *Storage) SaveToken(ctx context.Context, clientID string, userID bson.ObjectID, tokenType, accessToken, refreshToken string, scopes []string, expiresIn time.Duration) (*domain.Token, error) {
	token := &domain.Token{
		ClientID:     clientID,
		UserID:       userID,
		TokenType:    tokenType,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Scopes:       scopes,
		ExpiresAt:    time.Now().UTC().Add(expiresIn).Truncate(time.Millisecond),
	}

	key := bson.M{"user_id": userID, "client_id": clientID}

	var prior *domain.Token
	var res *mongo.UpdateResult
	for attempt := 0; ; attempt++ {
		rec, err := findOne(ctx, s.tokens, key)
		if err != nil {
			return nil, err
		}
		prior = fromRecord(rec, tokenSchema)

		res, err = s.tokens.ReplaceOne(ctx, key, toRecord(token, tokenSchema), options.Replace().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) && attempt == 0 {
			// Two concurrent upserts for the same pair both tried an
			// insert; the loser replaces the now-existing row instead.
			// That race resolves in one retry, so a violation that
			// survives it is a different constraint: the access token
			// is already held by another (user, client) pair. Surface
			// it rather than spin.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("token upsert failed: %w", err)
		}
		break
	}

	if res.UpsertedID != nil {
		token.ID = res.UpsertedID.(bson.ObjectID)
	} else if prior != nil {
		token.ID = prior.ID
	}

	if s.cache != nil {
		if prior != nil && prior.AccessToken != accessToken {
			if err := s.cache.Evict(ctx, prior.AccessToken); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("superseded token cache evict failed")
			}
		}
		if err := s.cache.Set(ctx, accessToken, userID.Hex(), expiresIn); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("token cache write failed, durable write stands")
		}
	}

	return token, nil
}

// GenerateClient inserts a new public client with freshly generated
// credentials. A client_id collision is an index violation; it is
// regenerated internally instead of surfacing.
func (s *Storage) GenerateClient(ctx context.Context, name, description string, redirectURIs []string) (*domain.Client, error) {
	for {
		clientID, err := randomHex(credentialLength / 2)
		if err != nil {
			return nil, err
		}
		clientSecret, err := randomHex(credentialLength / 2)
		if err != nil {
			return nil, err
		}
		client := &domain.Client{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			ClientType:   domain.ClientTypePublic,
			Name:         name,
			Description:  description,
			RedirectURIs: redirectURIs,
		}

		res, err := s.clients.InsertOne(ctx, toRecord(client, clientSchema))
		if mongo.IsDuplicateKeyError(err) {
			log.Ctx(ctx).Debug().Msg("client_id collision, regenerating")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("client insert failed: %w", err)
		}
		client.ID = res.InsertedID.(bson.ObjectID)
		return client, nil
	}
}

// SaveUser hashes the password and inserts a new user.
func (s *Storage) SaveUser(ctx context.Context, username, password string) (*domain.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{Username: username, PasswordHash: hash}
	res, err := s.users.InsertOne(ctx, toRecord(user, userSchema))
	if mongo.IsDuplicateKeyError(err) {
		return nil, serrors.ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("user insert failed: %w", err)
	}
	user.ID = res.InsertedID.(bson.ObjectID)
	return user, nil
}

// purgeTokens deletes every token row matching filter and evicts each
// deleted access token from the cache, so a token revoked by a cascade
// cannot keep validating on the fast path. Cache evictions are
// best-effort; the entries expire with the token TTL regardless.
func (s *Storage) purgeTokens(ctx context.Context, filter bson.M) (int64, error) {
	recs, err := findMany(ctx, s.tokens, filter)
	if err != nil {
		return 0, err
	}

	res, err := s.tokens.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("token cascade delete failed: %w", err)
	}

	if s.cache != nil {
		for _, t := range fromRecords(recs, tokenSchema) {
			if err := s.cache.Evict(ctx, t.AccessToken); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("cascaded token cache evict failed")
			}
		}
	}
	return res.DeletedCount, nil
}

// DeleteUser cascades over the user's tokens before removing the user
// row. The ordering matters: a crash mid-operation may orphan a token
// pointing at a deleted user, which lookups tolerate, but must never
// leave a deleted token's user behind as an apparently live principal.
func (s *Storage) DeleteUser(ctx context.Context, username string) (*domain.User, error) {
	rec, err := findOne(ctx, s.users, bson.M{"username": username})
	if err != nil {
		return nil, err
	}
	user := fromRecord(rec, userSchema)
	if user == nil {
		return nil, nil
	}

	deleted, err := s.purgeTokens(ctx, bson.M{"user_id": user.ID})
	if err != nil {
		return nil, err
	}
	if _, err := s.users.DeleteOne(ctx, bson.M{"_id": user.ID}); err != nil {
		return nil, fmt.Errorf("user delete failed: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("username", username).
		Int64("tokens_deleted", deleted).
		Msg("user deleted")
	return user, nil
}

// DeleteClient cascades over the client's tokens before removing the
// client row. Tokens reference the public client_id, not the store
// identity, so the cascade is keyed on it.
func (s *Storage) DeleteClient(ctx context.Context, clientID string) (*domain.Client, error) {
	rec, err := findOne(ctx, s.clients, bson.M{"client_id": clientID})
	if err != nil {
		return nil, err
	}
	client := fromRecord(rec, clientSchema)
	if client == nil {
		return nil, nil
	}

	deleted, err := s.purgeTokens(ctx, bson.M{"client_id": client.ClientID})
	if err != nil {
		return nil, err
	}
	if _, err := s.clients.DeleteOne(ctx, bson.M{"_id": client.ID}); err != nil {
		return nil, fmt.Errorf("client delete failed: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("client_id", clientID).
		Int64("tokens_deleted", deleted).
		Msg("client deleted")
	return client, nil
}

// DeleteToken deletes a token under the same dual-lookup contract as
// GetToken and evicts its cache entry.
func (s *Storage) DeleteToken(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error) {
	filter, err := tokenFilter(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	rec, err := findOne(ctx, s.tokens, filter)
	if err != nil {
		return nil, err
	}
	token := fromRecord(rec, tokenSchema)
	if token == nil {
		return nil, nil
	}

	if _, err := s.tokens.DeleteOne(ctx, bson.M{"_id": token.ID}); err != nil {
		return nil, fmt.Errorf("token delete failed: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Evict(ctx, token.AccessToken); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("token cache evict failed")
		}
	}

	return token, nil
}

// DeleteGrant deletes a grant by identity. Deleting an absent grant is
// not an error.
func (s *Storage) DeleteGrant(ctx context.Context, grantID bson.ObjectID) error {
	if _, err := s.grants.DeleteOne(ctx, bson.M{"_id": grantID}); err != nil {
		return fmt.Errorf("grant delete failed: %w", err)
	}
	return nil
}

// AllUsers returns a snapshot of every user row.
func (s *Storage) AllUsers(ctx context.Context) ([]*domain.User, error) {
	recs, err := findMany(ctx, s.users, bson.M{})
	if err != nil {
		return nil, err
	}
	return fromRecords(recs, userSchema), nil
}

// AllClients returns a snapshot of every client row.
func (s *Storage) AllClients(ctx context.Context) ([]*domain.Client, error) {
	recs, err := findMany(ctx, s.clients, bson.M{})
	if err != nil {
		return nil, err
	}
	return fromRecords(recs, clientSchema), nil
}

// AllTokens returns a snapshot of every token row.
func (s *Storage) AllTokens(ctx context.Context) ([]*domain.Token, error) {
	recs, err := findMany(ctx, s.tokens, bson.M{})
	if err != nil {
		return nil, err
	}
	return fromRecords(recs, tokenSchema), nil
}

// AllGrants returns a snapshot of every grant row.
func (s *Storage) AllGrants(ctx context.Context) ([]*domain.Grant, error) {
	recs, err := findMany(ctx, s.grants, bson.M{})
	if err != nil {
		return nil, err
	}
	return fromRecords(recs, grantSchema), nil
}

// randomHex returns a secure random string of 2*length hex characters.
func randomHex(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var _ domain.CredentialStore = (*Storage)(nil)
