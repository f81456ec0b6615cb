package mongodb

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"go.pilab.hu/sentinel/domain"
)

// Static field tables for each persisted entity kind. The computed
// client views (default_redirect_uri, allowed_grant_types,
// default_scopes) are written with the record for inspectability but
// have no setter; they are derived again on the entity after a read.
// The User attached to tokens and grants by join-on-read is
// deliberately absent from both tables: it is never persisted
// redundantly.

var userSchema = schema[domain.User]{
	id: func(u *domain.User) *bson.ObjectID { return &u.ID },
	fields: []field[domain.User]{
		{
			name: "username",
			get:  func(u *domain.User) any { return u.Username },
			set:  func(u *domain.User, v any) { u.Username = asString(v) },
		},
		{
			name: "password_hash",
			get:  func(u *domain.User) any { return u.PasswordHash },
			set:  func(u *domain.User, v any) { u.PasswordHash = asString(v) },
		},
	},
}

var clientSchema = schema[domain.Client]{
	id: func(c *domain.Client) *bson.ObjectID { return &c.ID },
	fields: []field[domain.Client]{
		{
			name: "client_id",
			get:  func(c *domain.Client) any { return c.ClientID },
			set:  func(c *domain.Client, v any) { c.ClientID = asString(v) },
		},
		{
			name: "client_secret",
			get:  func(c *domain.Client) any { return c.ClientSecret },
			set:  func(c *domain.Client, v any) { c.ClientSecret = asString(v) },
		},
		{
			name: "client_type",
			get:  func(c *domain.Client) any { return c.ClientType },
			set:  func(c *domain.Client, v any) { c.ClientType = asString(v) },
		},
		{
			name: "name",
			get:  func(c *domain.Client) any { return c.Name },
			set:  func(c *domain.Client, v any) { c.Name = asString(v) },
		},
		{
			name: "description",
			get:  func(c *domain.Client) any { return c.Description },
			set:  func(c *domain.Client, v any) { c.Description = asString(v) },
		},
		{
			name: "redirect_uris",
			get:  func(c *domain.Client) any { return c.RedirectURIs },
			set:  func(c *domain.Client, v any) { c.RedirectURIs = asStringSlice(v) },
		},
		{
			name: "default_redirect_uri",
			get:  func(c *domain.Client) any { return c.DefaultRedirectURI() },
		},
		{
			name: "allowed_grant_types",
			get:  func(c *domain.Client) any { return c.AllowedGrantTypes() },
		},
		{
			name: "default_scopes",
			get:  func(c *domain.Client) any { return c.DefaultScopes() },
		},
	},
}

var grantSchema = schema[domain.Grant]{
	id: func(g *domain.Grant) *bson.ObjectID { return &g.ID },
	fields: []field[domain.Grant]{
		{
			name: "client_id",
			get:  func(g *domain.Grant) any { return g.ClientID },
			set:  func(g *domain.Grant, v any) { g.ClientID = asString(v) },
		},
		{
			name: "user_id",
			get:  func(g *domain.Grant) any { return g.UserID },
			set:  func(g *domain.Grant, v any) { g.UserID = asObjectID(v) },
		},
		{
			name: "code",
			get:  func(g *domain.Grant) any { return g.Code },
			set:  func(g *domain.Grant, v any) { g.Code = asString(v) },
		},
		{
			name: "redirect_uri",
			get:  func(g *domain.Grant) any { return g.RedirectURI },
			set:  func(g *domain.Grant, v any) { g.RedirectURI = asString(v) },
		},
		{
			name: "scopes",
			get:  func(g *domain.Grant) any { return g.Scopes },
			set:  func(g *domain.Grant, v any) { g.Scopes = asStringSlice(v) },
		},
		{
			name: "expires_at",
			get:  func(g *domain.Grant) any { return g.ExpiresAt },
			set:  func(g *domain.Grant, v any) { g.ExpiresAt = asTime(v) },
		},
	},
}

var tokenSchema = schema[domain.Token]{
	id: func(t *domain.Token) *bson.ObjectID { return &t.ID },
	fields: []field[domain.Token]{
		{
			name: "client_id",
			get:  func(t *domain.Token) any { return t.ClientID },
			set:  func(t *domain.Token, v any) { t.ClientID = asString(v) },
		},
		{
			name: "user_id",
			get:  func(t *domain.Token) any { return t.UserID },
			set:  func(t *domain.Token, v any) { t.UserID = asObjectID(v) },
		},
		{
			name: "token_type",
			get:  func(t *domain.Token) any { return t.TokenType },
			set:  func(t *domain.Token, v any) { t.TokenType = asString(v) },
		},
		{
			name: "access_token",
			get:  func(t *domain.Token) any { return t.AccessToken },
			set:  func(t *domain.Token, v any) { t.AccessToken = asString(v) },
		},
		{
			name: "refresh_token",
			get:  func(t *domain.Token) any { return t.RefreshToken },
			set:  func(t *domain.Token, v any) { t.RefreshToken = asString(v) },
		},
		{
			name: "scopes",
			get:  func(t *domain.Token) any { return t.Scopes },
			set:  func(t *domain.Token, v any) { t.Scopes = asStringSlice(v) },
		},
		{
			name: "expires_at",
			get:  func(t *domain.Token) any { return t.ExpiresAt },
			set:  func(t *domain.Token, v any) { t.ExpiresAt = asTime(v) },
		},
	},
}
