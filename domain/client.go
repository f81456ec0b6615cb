package domain

import "go.mongodb.org/mongo-driver/v2/bson"

// ClientTypePublic is the only client type issued by GenerateClient.
// Confidential clients are not supported.
const ClientTypePublic = "public"

// Client is an application authorized to request tokens on behalf of
// users. ClientID is the public identifier used in protocol exchanges;
// ID is the store identity.
type Client struct {
	ID           bson.ObjectID // zero until persisted
	ClientID     string        // unique, immutable after creation
	ClientSecret string
	ClientType   string
	Name         string
	Description  string
	RedirectURIs []string
}

// DefaultRedirectURI returns the first registered redirect URI, or ""
// when none are registered.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// AllowedGrantTypes returns the grant types a client may use. The set is
// fixed for all clients.
func (c *Client) AllowedGrantTypes() []string {
	return []string{"authorization_code", "password", "refresh_token"}
}

// DefaultScopes returns the scopes granted when a request names none.
func (c *Client) DefaultScopes() []string {
	return []string{}
}
