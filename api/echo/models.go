package echo

import (
	"time"

	"go.pilab.hu/sentinel/domain"
)

// Response shapes for the management surface. Password digests and
// client secrets are only exposed where the administrative caller needs
// them (the secret is shown once, on client creation).

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type ClientResponse struct {
	ID                 string   `json:"id"`
	ClientID           string   `json:"client_id"`
	ClientSecret       string   `json:"client_secret,omitempty"`
	ClientType         string   `json:"client_type"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	RedirectURIs       []string `json:"redirect_uris"`
	DefaultRedirectURI string   `json:"default_redirect_uri"`
}

type TokenResponse struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	UserID       string    `json:"user_id"`
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scopes       []string  `json:"scopes"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type GrantResponse struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id"`
	Code        string    `json:"code"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID.Hex(), Username: u.Username}
}

func toClientResponse(c *domain.Client, withSecret bool) ClientResponse {
	resp := ClientResponse{
		ID:                 c.ID.Hex(),
		ClientID:           c.ClientID,
		ClientType:         c.ClientType,
		Name:               c.Name,
		Description:        c.Description,
		RedirectURIs:       c.RedirectURIs,
		DefaultRedirectURI: c.DefaultRedirectURI(),
	}
	if withSecret {
		resp.ClientSecret = c.ClientSecret
	}
	return resp
}

func toTokenResponse(t *domain.Token) TokenResponse {
	return TokenResponse{
		ID:           t.ID.Hex(),
		ClientID:     t.ClientID,
		UserID:       t.UserID.Hex(),
		TokenType:    t.TokenType,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Scopes:       t.Scopes,
		ExpiresAt:    t.ExpiresAt,
	}
}

func toGrantResponse(g *domain.Grant) GrantResponse {
	return GrantResponse{
		ID:          g.ID.Hex(),
		ClientID:    g.ClientID,
		UserID:      g.UserID.Hex(),
		Code:        g.Code,
		RedirectURI: g.RedirectURI,
		Scopes:      g.Scopes,
		ExpiresAt:   g.ExpiresAt,
	}
}
