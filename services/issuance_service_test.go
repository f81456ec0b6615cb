package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"go.pilab.hu/sentinel/domain"
	serrors "go.pilab.hu/sentinel/errors"
)

// --- Mock Implementations ---

type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockCredentialStore) GetUser(ctx context.Context, username, password string) (*domain.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockCredentialStore) GetToken(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockCredentialStore) GetGrant(ctx context.Context, clientID, code string) (*domain.Grant, error) {
	args := m.Called(ctx, clientID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Grant), args.Error(1)
}

func (m *MockCredentialStore) SaveGrant(ctx context.Context, clientID, code string, userID bson.ObjectID, redirectURI string, scopes []string) (*domain.Grant, error) {
	args := m.Called(ctx, clientID, code, userID, redirectURI, scopes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Grant), args.Error(1)
}

func (m *MockCredentialStore) TakeGrant(ctx context.Context, grantID bson.ObjectID) (bool, error) {
	args := m.Called(ctx, grantID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) SaveToken(ctx context.Context, clientID string, userID bson.ObjectID, tokenType, accessToken, refreshToken string, scopes []string, expiresIn time.Duration) (*domain.Token, error) {
	args := m.Called(ctx, clientID, userID, tokenType, accessToken, refreshToken, scopes, expiresIn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockCredentialStore) GenerateClient(ctx context.Context, name, description string, redirectURIs []string) (*domain.Client, error) {
	args := m.Called(ctx, name, description, redirectURIs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockCredentialStore) SaveUser(ctx context.Context, username, password string) (*domain.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockCredentialStore) DeleteUser(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockCredentialStore) DeleteClient(ctx context.Context, clientID string) (*domain.Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockCredentialStore) DeleteToken(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockCredentialStore) DeleteGrant(ctx context.Context, grantID bson.ObjectID) error {
	args := m.Called(ctx, grantID)
	return args.Error(0)
}

func (m *MockCredentialStore) AllUsers(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockCredentialStore) AllClients(ctx context.Context) ([]*domain.Client, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Client), args.Error(1)
}

func (m *MockCredentialStore) AllTokens(ctx context.Context) ([]*domain.Token, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

func (m *MockCredentialStore) AllGrants(ctx context.Context) ([]*domain.Grant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Grant), args.Error(1)
}

type MockTokenCache struct {
	mock.Mock
}

func (m *MockTokenCache) Set(ctx context.Context, accessToken, userID string, ttl time.Duration) error {
	args := m.Called(ctx, accessToken, userID, ttl)
	return args.Error(0)
}

func (m *MockTokenCache) Get(ctx context.Context, accessToken string) (string, error) {
	args := m.Called(ctx, accessToken)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCache) Evict(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

var (
	_ domain.CredentialStore = (*MockCredentialStore)(nil)
	_ domain.TokenCache      = (*MockTokenCache)(nil)
)

// --- IssuanceService Tests ---

func TestIssuanceService_Authorize(t *testing.T) {
	store := new(MockCredentialStore)
	svc := NewIssuanceService(store, nil)
	ctx := context.Background()

	userID := bson.NewObjectID()
	var seenCodes []string
	store.On("SaveGrant", ctx, "cid", mock.AnythingOfType("string"), userID, "/cb", []string{"read"}).
		Run(func(args mock.Arguments) {
			seenCodes = append(seenCodes, args.String(2))
		}).
		Return(&domain.Grant{ID: bson.NewObjectID(), ClientID: "cid", UserID: userID}, nil).
		Twice()

	_, err := svc.Authorize(ctx, "cid", userID, "/cb", []string{"read"})
	require.NoError(t, err)
	_, err = svc.Authorize(ctx, "cid", userID, "/cb", []string{"read"})
	require.NoError(t, err)

	require.Len(t, seenCodes, 2)
	assert.Len(t, seenCodes[0], 2*grantCodeLength, "code is hex of grantCodeLength random bytes")
	assert.NotEqual(t, seenCodes[0], seenCodes[1], "codes must be unique")
	store.AssertExpectations(t)
}

func TestIssuanceService_Exchange(t *testing.T) {
	ctx := context.Background()
	userID := bson.NewObjectID()

	liveGrant := func() *domain.Grant {
		return &domain.Grant{
			ID:        bson.NewObjectID(),
			ClientID:  "cid",
			UserID:    userID,
			Code:      "code-1",
			Scopes:    []string{"read"},
			ExpiresAt: time.Now().UTC().Add(time.Minute),
		}
	}

	t.Run("Success", func(t *testing.T) {
		store := new(MockCredentialStore)
		svc := NewIssuanceService(store, nil)
		grant := liveGrant()

		store.On("GetGrant", ctx, "cid", "code-1").Return(grant, nil).Once()
		store.On("TakeGrant", ctx, grant.ID).Return(true, nil).Once()
		store.On("SaveToken", ctx, "cid", userID, TokenTypeBearer,
			mock.AnythingOfType("string"), mock.AnythingOfType("string"),
			[]string{"read"}, time.Hour).
			Return(&domain.Token{ClientID: "cid", UserID: userID}, nil).Once()

		token, err := svc.Exchange(ctx, "cid", "code-1", time.Hour)
		require.NoError(t, err)
		require.NotNil(t, token)
		store.AssertExpectations(t)
	})

	t.Run("UnknownOrReplayedCode", func(t *testing.T) {
		store := new(MockCredentialStore)
		svc := NewIssuanceService(store, nil)

		store.On("GetGrant", ctx, "cid", "nope").Return(nil, nil).Once()

		_, err := svc.Exchange(ctx, "cid", "nope", time.Hour)
		assert.ErrorIs(t, err, serrors.ErrGrantNotFound)
		store.AssertNotCalled(t, "SaveToken", mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ExpiredGrant", func(t *testing.T) {
		store := new(MockCredentialStore)
		svc := NewIssuanceService(store, nil)
		grant := liveGrant()
		grant.ExpiresAt = time.Now().UTC().Add(-time.Second)

		store.On("GetGrant", ctx, "cid", "code-1").Return(grant, nil).Once()

		_, err := svc.Exchange(ctx, "cid", "code-1", time.Hour)
		assert.ErrorIs(t, err, serrors.ErrGrantExpired)
		store.AssertNotCalled(t, "TakeGrant", mock.Anything, mock.Anything)
	})

	t.Run("LostTakeRace", func(t *testing.T) {
		store := new(MockCredentialStore)
		svc := NewIssuanceService(store, nil)
		grant := liveGrant()

		store.On("GetGrant", ctx, "cid", "code-1").Return(grant, nil).Once()
		store.On("TakeGrant", ctx, grant.ID).Return(false, nil).Once()

		_, err := svc.Exchange(ctx, "cid", "code-1", time.Hour)
		assert.ErrorIs(t, err, serrors.ErrGrantNotFound)
		store.AssertNotCalled(t, "SaveToken", mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIssuanceService_Refresh(t *testing.T) {
	store := new(MockCredentialStore)
	svc := NewIssuanceService(store, nil)
	ctx := context.Background()
	userID := bson.NewObjectID()

	existing := &domain.Token{
		ID:           bson.NewObjectID(),
		ClientID:     "cid",
		UserID:       userID,
		TokenType:    TokenTypeBearer,
		AccessToken:  "old-access",
		RefreshToken: "ref-1",
		Scopes:       []string{"read"},
		ExpiresAt:    time.Now().UTC().Add(-time.Minute), // access expiry does not block refresh
	}

	var mintedAccess string
	store.On("GetToken", ctx, "", "ref-1").Return(existing, nil).Once()
	store.On("SaveToken", ctx, "cid", userID, TokenTypeBearer,
		mock.AnythingOfType("string"), "ref-1", []string{"read"}, time.Hour).
		Run(func(args mock.Arguments) { mintedAccess = args.String(4) }).
		Return(&domain.Token{ClientID: "cid", UserID: userID, RefreshToken: "ref-1"}, nil).Once()

	token, err := svc.Refresh(ctx, "ref-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", token.RefreshToken, "refresh token is preserved, not rotated")
	assert.NotEqual(t, "old-access", mintedAccess, "a fresh access token is minted")
	store.AssertExpectations(t)

	t.Run("UnknownRefreshToken", func(t *testing.T) {
		store.On("GetToken", ctx, "", "nope").Return(nil, nil).Once()
		_, err := svc.Refresh(ctx, "nope", time.Hour)
		assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
	})
}

func TestIssuanceService_ValidateToken(t *testing.T) {
	ctx := context.Background()
	userID := bson.NewObjectID()

	t.Run("CacheHit", func(t *testing.T) {
		store := new(MockCredentialStore)
		tokenCache := new(MockTokenCache)
		svc := NewIssuanceService(store, tokenCache)

		tokenCache.On("Get", ctx, "tok-1").Return(userID.Hex(), nil).Once()

		got, err := svc.ValidateToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, userID.Hex(), got)
		store.AssertNotCalled(t, "GetToken", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CacheMissFallsBackToStoreAndRewarms", func(t *testing.T) {
		store := new(MockCredentialStore)
		tokenCache := new(MockTokenCache)
		svc := NewIssuanceService(store, tokenCache)

		tokenCache.On("Get", ctx, "tok-1").Return("", nil).Once()
		store.On("GetToken", ctx, "tok-1", "").Return(&domain.Token{
			UserID:      userID,
			AccessToken: "tok-1",
			ExpiresAt:   time.Now().UTC().Add(time.Hour),
		}, nil).Once()
		tokenCache.On("Set", ctx, "tok-1", userID.Hex(), mock.AnythingOfType("time.Duration")).
			Return(nil).Once()

		got, err := svc.ValidateToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, userID.Hex(), got)
		tokenCache.AssertExpectations(t)
	})

	t.Run("DegradedCacheFallsBackToStore", func(t *testing.T) {
		store := new(MockCredentialStore)
		tokenCache := new(MockTokenCache)
		svc := NewIssuanceService(store, tokenCache)

		tokenCache.On("Get", ctx, "tok-1").Return("", errors.New("redis down")).Once()
		store.On("GetToken", ctx, "tok-1", "").Return(&domain.Token{
			UserID:      userID,
			AccessToken: "tok-1",
			ExpiresAt:   time.Now().UTC().Add(time.Hour),
		}, nil).Once()
		tokenCache.On("Set", ctx, "tok-1", userID.Hex(), mock.AnythingOfType("time.Duration")).
			Return(errors.New("redis down")).Once()

		got, err := svc.ValidateToken(ctx, "tok-1")
		require.NoError(t, err, "a degraded cache must not fail validation")
		assert.Equal(t, userID.Hex(), got)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		store := new(MockCredentialStore)
		svc := NewIssuanceService(store, nil)

		store.On("GetToken", ctx, "tok-1", "").Return(&domain.Token{
			UserID:    userID,
			ExpiresAt: time.Now().UTC().Add(-time.Second),
		}, nil).Once()

		_, err := svc.ValidateToken(ctx, "tok-1")
		assert.ErrorIs(t, err, serrors.ErrTokenExpired)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		store := new(MockCredentialStore)
		svc := NewIssuanceService(store, nil)

		store.On("GetToken", ctx, "tok-1", "").Return(nil, nil).Once()

		_, err := svc.ValidateToken(ctx, "tok-1")
		assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
	})
}

func TestIssuanceService_Revoke(t *testing.T) {
	store := new(MockCredentialStore)
	svc := NewIssuanceService(store, nil)
	ctx := context.Background()

	store.On("DeleteToken", ctx, "tok-1", "").Return(&domain.Token{AccessToken: "tok-1"}, nil).Once()
	token, err := svc.Revoke(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.AccessToken)

	store.On("DeleteToken", ctx, "gone", "").Return(nil, nil).Once()
	_, err = svc.Revoke(ctx, "gone")
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
}
