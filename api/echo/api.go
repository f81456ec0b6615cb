// Package echo exposes the administrative and introspection surface
// over HTTP. Every handler is a 1:1 call into the credential store or
// the issuance service; protocol-level request validation lives with
// the outer authorization flow, not here.
package echo

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"go.pilab.hu/sentinel/domain"
	serrors "go.pilab.hu/sentinel/errors"
	"go.pilab.hu/sentinel/services"
)

// ManagementAPI struct to hold dependencies.
type ManagementAPI struct {
	store    domain.CredentialStore
	issuance *services.IssuanceService
}

// NewManagementAPI initializes the management API.
func NewManagementAPI(store domain.CredentialStore, issuance *services.IssuanceService) *ManagementAPI {
	return &ManagementAPI{store: store, issuance: issuance}
}

// RegisterRoutes registers the management and introspection routes.
// The /management group is guarded by basic auth; an empty adminPassword
// disables it entirely.
func (a *ManagementAPI) RegisterRoutes(e *echo.Echo, adminUser, adminPassword string) {
	e.POST("/oauth/validate", a.ValidateTokenHandler)

	if adminPassword == "" {
		log.Warn().Msg("ADMIN_PASSWORD not set, /management surface disabled")
		return
	}

	g := e.Group("/management", middleware.BasicAuth(func(user, password string, _ echo.Context) (bool, error) {
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(adminPassword)) == 1
		return userOK && passOK, nil
	}))

	g.GET("/users", a.ListUsersHandler)
	g.POST("/users", a.AddUserHandler)
	g.DELETE("/users/:username", a.DeleteUserHandler)

	g.GET("/clients", a.ListClientsHandler)
	g.POST("/clients", a.AddClientHandler)
	g.DELETE("/clients/:client_id", a.DeleteClientHandler)

	g.GET("/tokens", a.ListTokensHandler)
	g.DELETE("/tokens/:access_token", a.DeleteTokenHandler)

	g.GET("/grants", a.ListGrantsHandler)
	g.DELETE("/grants/:grant_id", a.DeleteGrantHandler)
}

// AddUserHandler creates a resource-owner account.
func (a *ManagementAPI) AddUserHandler(c echo.Context) error {
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&req); err != nil || req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("username and password are required"))
	}

	user, err := a.store.SaveUser(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, serrors.ErrUsernameTaken) {
		return c.JSON(http.StatusConflict, serrors.NewInvalidRequest("username already taken"))
	}
	if err != nil {
		return a.serverError(c, err)
	}
	return c.JSON(http.StatusCreated, toUserResponse(user))
}

// DeleteUserHandler deletes a user and cascades over its tokens.
func (a *ManagementAPI) DeleteUserHandler(c echo.Context) error {
	user, err := a.store.DeleteUser(c.Request().Context(), c.Param("username"))
	if err != nil {
		return a.serverError(c, err)
	}
	if user == nil {
		return c.JSON(http.StatusNotFound, serrors.NewInvalidRequest("unknown username"))
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// ListUsersHandler returns a snapshot of every user.
func (a *ManagementAPI) ListUsersHandler(c echo.Context) error {
	users, err := a.store.AllUsers(c.Request().Context())
	if err != nil {
		return a.serverError(c, err)
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return c.JSON(http.StatusOK, out)
}

// AddClientHandler generates a new public client. The secret appears
// only in this response.
func (a *ManagementAPI) AddClientHandler(c echo.Context) error {
	var req struct {
		Name         string   `json:"name" form:"name"`
		Description  string   `json:"description" form:"description"`
		RedirectURIs []string `json:"redirect_uris" form:"redirect_uris"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("malformed client request"))
	}

	client, err := a.store.GenerateClient(c.Request().Context(), req.Name, req.Description, req.RedirectURIs)
	if err != nil {
		return a.serverError(c, err)
	}
	return c.JSON(http.StatusCreated, toClientResponse(client, true))
}

// DeleteClientHandler deletes a client and cascades over its tokens.
func (a *ManagementAPI) DeleteClientHandler(c echo.Context) error {
	client, err := a.store.DeleteClient(c.Request().Context(), c.Param("client_id"))
	if err != nil {
		return a.serverError(c, err)
	}
	if client == nil {
		return c.JSON(http.StatusNotFound, serrors.NewInvalidRequest("unknown client_id"))
	}
	return c.JSON(http.StatusOK, toClientResponse(client, false))
}

// ListClientsHandler returns a snapshot of every client, without
// secrets.
func (a *ManagementAPI) ListClientsHandler(c echo.Context) error {
	clients, err := a.store.AllClients(c.Request().Context())
	if err != nil {
		return a.serverError(c, err)
	}
	out := make([]ClientResponse, 0, len(clients))
	for _, cl := range clients {
		out = append(out, toClientResponse(cl, false))
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteTokenHandler revokes a token by its access token.
func (a *ManagementAPI) DeleteTokenHandler(c echo.Context) error {
	token, err := a.store.DeleteToken(c.Request().Context(), c.Param("access_token"), "")
	if err != nil {
		return a.serverError(c, err)
	}
	if token == nil {
		return c.JSON(http.StatusNotFound, serrors.NewInvalidToken("unknown access token"))
	}
	return c.JSON(http.StatusOK, toTokenResponse(token))
}

// ListTokensHandler returns a snapshot of every token.
func (a *ManagementAPI) ListTokensHandler(c echo.Context) error {
	tokens, err := a.store.AllTokens(c.Request().Context())
	if err != nil {
		return a.serverError(c, err)
	}
	out := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenResponse(t))
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteGrantHandler revokes a pending grant by identity.
func (a *ManagementAPI) DeleteGrantHandler(c echo.Context) error {
	grantID, err := bson.ObjectIDFromHex(c.Param("grant_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("malformed grant id"))
	}
	if err := a.store.DeleteGrant(c.Request().Context(), grantID); err != nil {
		return a.serverError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListGrantsHandler returns a snapshot of every pending grant.
func (a *ManagementAPI) ListGrantsHandler(c echo.Context) error {
	grants, err := a.store.AllGrants(c.Request().Context())
	if err != nil {
		return a.serverError(c, err)
	}
	out := make([]GrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	return c.JSON(http.StatusOK, out)
}

// ValidateTokenHandler resolves an access token to its owning user,
// answering from the cache when it can.
func (a *ManagementAPI) ValidateTokenHandler(c echo.Context) error {
	var req struct {
		AccessToken string `json:"access_token" form:"access_token"`
	}
	if err := c.Bind(&req); err != nil || req.AccessToken == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("access_token is required"))
	}

	userID, err := a.issuance.ValidateToken(c.Request().Context(), req.AccessToken)
	switch {
	case errors.Is(err, serrors.ErrTokenExpired):
		return c.JSON(http.StatusUnauthorized, serrors.NewInvalidToken("token expired"))
	case errors.Is(err, serrors.ErrTokenNotFound):
		return c.JSON(http.StatusUnauthorized, serrors.NewInvalidToken("token invalid"))
	case err != nil:
		return a.serverError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"user_id": userID})
}

func (a *ManagementAPI) serverError(c echo.Context, err error) error {
	log.Ctx(c.Request().Context()).Error().Err(err).Msg("backend failure")
	return c.JSON(http.StatusInternalServerError, serrors.NewServerError("backend unavailable"))
}
