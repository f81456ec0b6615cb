// Package services orchestrates the grant and token lifecycle on top of
// the credential store and token cache.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"go.pilab.hu/sentinel/domain"
	serrors "go.pilab.hu/sentinel/errors"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

const (
	grantCodeLength   = 32 // length of the authorization code in bytes
	accessTokenLength = 32 // length of access and refresh tokens in bytes
)

// generateRandomString generates a secure random string of given length
// in bytes, hex encoded.
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IssuanceService drives the grant/token state machine:
//
//	Requested -> GrantIssued -> Exchanged -> TokenIssued -> Expired|Revoked
//
// It holds explicit store and cache handles; the acting user is always a
// parameter, never ambient state.
type IssuanceService struct {
	store domain.CredentialStore
	cache domain.TokenCache
}

// NewIssuanceService creates a new IssuanceService. cache may be nil
// when no fast-path index is deployed; validation then always hits the
// store.
func NewIssuanceService(store domain.CredentialStore, cache domain.TokenCache) *IssuanceService {
	return &IssuanceService{store: store, cache: cache}
}

// Authorize records an approved authorization request as a grant with a
// fresh unguessable one-time code. The caller has already validated the
// request against the protocol rules.
func (s *IssuanceService) Authorize(ctx context.Context, clientID string, userID bson.ObjectID, redirectURI string, scopes []string) (*domain.Grant, error) {
	code, err := generateRandomString(grantCodeLength)
	if err != nil {
		return nil, err
	}

	grant, err := s.store.SaveGrant(ctx, clientID, code, userID, redirectURI, scopes)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Str("client_id", clientID).
		Str("user_id", userID.Hex()).
		Time("expires_at", grant.ExpiresAt).
		Msg("authorization grant issued")
	return grant, nil
}

// Exchange redeems a one-time code for a token. The grant row is
// conditionally deleted as part of the exchange, so of two concurrent
// redemptions of the same code exactly one succeeds; the other sees
// ErrGrantNotFound, the same answer a replayed code gets. An expired
// grant fails with ErrGrantExpired so callers can message it apart from
// an invalid one.
func (s *IssuanceService) Exchange(ctx context.Context, clientID, code string, tokenTTL time.Duration) (*domain.Token, error) {
	grant, err := s.store.GetGrant(ctx, clientID, code)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, serrors.ErrGrantNotFound
	}
	if grant.Expired(time.Now()) {
		return nil, serrors.ErrGrantExpired
	}

	won, err := s.store.TakeGrant(ctx, grant.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, serrors.ErrGrantNotFound
	}

	token, err := s.issueToken(ctx, clientID, grant.UserID, "", grant.Scopes, tokenTTL)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("client_id", clientID).
		Str("user_id", grant.UserID.Hex()).
		Msg("grant exchanged for token")
	return token, nil
}

// Refresh issues a fresh access token and expiry against an existing
// refresh token. The refresh token itself is preserved, not rotated:
// the upsert replaces the row for the (client, user) pair, and the
// caller keeps using the refresh token it already holds.
func (s *IssuanceService) Refresh(ctx context.Context, refreshToken string, tokenTTL time.Duration) (*domain.Token, error) {
	token, err := s.store.GetToken(ctx, "", refreshToken)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, serrors.ErrTokenNotFound
	}

	fresh, err := s.issueToken(ctx, token.ClientID, token.UserID, token.RefreshToken, token.Scopes, tokenTTL)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("client_id", token.ClientID).
		Str("user_id", token.UserID.Hex()).
		Msg("token refreshed")
	return fresh, nil
}

// issueToken generates fresh token material and runs the
// single-active-token upsert. An empty refreshToken means "mint one".
func (s *IssuanceService) issueToken(ctx context.Context, clientID string, userID bson.ObjectID, refreshToken string, scopes []string, tokenTTL time.Duration) (*domain.Token, error) {
	accessToken, err := generateRandomString(accessTokenLength)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		if refreshToken, err = generateRandomString(accessTokenLength); err != nil {
			return nil, err
		}
	}
	return s.store.SaveToken(ctx, clientID, userID, TokenTypeBearer, accessToken, refreshToken, scopes, tokenTTL)
}

// ValidateToken resolves an access token to its owning user ID. The
// cache answers the hot path; a miss or a degraded cache falls back to
// the durable store, which is the authority on whether the token is
// merely uncached, expired, or gone.
func (s *IssuanceService) ValidateToken(ctx context.Context, accessToken string) (string, error) {
	if s.cache != nil {
		userID, err := s.cache.Get(ctx, accessToken)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("token cache read failed, falling back to store")
		} else if userID != "" {
			return userID, nil
		}
	}

	token, err := s.store.GetToken(ctx, accessToken, "")
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", serrors.ErrTokenNotFound
	}
	now := time.Now().UTC()
	if token.Expired(now) {
		return "", serrors.ErrTokenExpired
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, accessToken, token.UserID.Hex(), token.ExpiresAt.Sub(now)); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("token cache rewarm failed")
		}
	}
	return token.UserID.Hex(), nil
}

// Revoke explicitly deletes a token by its access token.
func (s *IssuanceService) Revoke(ctx context.Context, accessToken string) (*domain.Token, error) {
	token, err := s.store.DeleteToken(ctx, accessToken, "")
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, serrors.ErrTokenNotFound
	}
	return token, nil
}
