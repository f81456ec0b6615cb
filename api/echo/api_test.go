package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"go.pilab.hu/sentinel/domain"
	serrors "go.pilab.hu/sentinel/errors"
	"go.pilab.hu/sentinel/services"
)

// stubStore overrides just the operations a handler under test reaches;
// anything else panics through the embedded nil interface.
type stubStore struct {
	domain.CredentialStore
	saveUser    func(ctx context.Context, username, password string) (*domain.User, error)
	getToken    func(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error)
	deleteToken func(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error)
}

func (s *stubStore) SaveUser(ctx context.Context, username, password string) (*domain.User, error) {
	return s.saveUser(ctx, username, password)
}

func (s *stubStore) GetToken(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error) {
	return s.getToken(ctx, accessToken, refreshToken)
}

func (s *stubStore) DeleteToken(ctx context.Context, accessToken, refreshToken string) (*domain.Token, error) {
	return s.deleteToken(ctx, accessToken, refreshToken)
}

func newTestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAddUserHandler(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		store := &stubStore{
			saveUser: func(_ context.Context, username, password string) (*domain.User, error) {
				assert.Equal(t, "alice", username)
				assert.Equal(t, "secret123", password)
				return &domain.User{ID: bson.NewObjectID(), Username: username}, nil
			},
		}
		api := NewManagementAPI(store, nil)

		c, rec := newTestContext(t, http.MethodPost, "/management/users",
			`{"username":"alice","password":"secret123"}`)
		require.NoError(t, api.AddUserHandler(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"alice"`)
		assert.NotContains(t, rec.Body.String(), "secret123")
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		store := &stubStore{
			saveUser: func(context.Context, string, string) (*domain.User, error) {
				return nil, serrors.ErrUsernameTaken
			},
		}
		api := NewManagementAPI(store, nil)

		c, rec := newTestContext(t, http.MethodPost, "/management/users",
			`{"username":"alice","password":"secret123"}`)
		require.NoError(t, api.AddUserHandler(c))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("MissingFields", func(t *testing.T) {
		api := NewManagementAPI(&stubStore{}, nil)

		c, rec := newTestContext(t, http.MethodPost, "/management/users", `{"username":"alice"}`)
		require.NoError(t, api.AddUserHandler(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteTokenHandler(t *testing.T) {
	store := &stubStore{
		deleteToken: func(_ context.Context, accessToken, _ string) (*domain.Token, error) {
			if accessToken == "tok-1" {
				return &domain.Token{AccessToken: "tok-1", TokenType: "Bearer"}, nil
			}
			return nil, nil
		},
	}
	api := NewManagementAPI(store, nil)

	c, rec := newTestContext(t, http.MethodDelete, "/management/tokens/tok-1", "")
	c.SetParamNames("access_token")
	c.SetParamValues("tok-1")
	require.NoError(t, api.DeleteTokenHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newTestContext(t, http.MethodDelete, "/management/tokens/gone", "")
	c.SetParamNames("access_token")
	c.SetParamValues("gone")
	require.NoError(t, api.DeleteTokenHandler(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateTokenHandler(t *testing.T) {
	userID := bson.NewObjectID()
	store := &stubStore{
		getToken: func(_ context.Context, accessToken, _ string) (*domain.Token, error) {
			switch accessToken {
			case "tok-live":
				return &domain.Token{
					UserID:      userID,
					AccessToken: accessToken,
					ExpiresAt:   time.Now().UTC().Add(time.Hour),
				}, nil
			case "tok-stale":
				return &domain.Token{
					UserID:      userID,
					AccessToken: accessToken,
					ExpiresAt:   time.Now().UTC().Add(-time.Hour),
				}, nil
			default:
				return nil, nil
			}
		},
	}
	api := NewManagementAPI(store, services.NewIssuanceService(store, nil))

	t.Run("Valid", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodPost, "/oauth/validate", `{"access_token":"tok-live"}`)
		require.NoError(t, api.ValidateTokenHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), userID.Hex())
	})

	t.Run("Expired", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodPost, "/oauth/validate", `{"access_token":"tok-stale"}`)
		require.NoError(t, api.ValidateTokenHandler(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "expired")
	})

	t.Run("Unknown", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodPost, "/oauth/validate", `{"access_token":"nope"}`)
		require.NoError(t, api.ValidateTokenHandler(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		c, rec := newTestContext(t, http.MethodPost, "/oauth/validate", `{}`)
		require.NoError(t, api.ValidateTokenHandler(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
