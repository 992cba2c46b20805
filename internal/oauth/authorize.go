package oauth

import (
	"strings"

	"golang.org/x/oauth2"
)

// CallbackPath is the fixed callback route for a provider.
func CallbackPath(id ProviderID) string {
	return "/internal/auth/" + string(id) + "/callback"
}

// CallbackURL derives the redirect URI from the application's own base URL.
// It never uses request input.
func CallbackURL(baseURL string, id ProviderID) string {
	return strings.TrimRight(baseURL, "/") + CallbackPath(id)
}

// oauthConfig builds the x/oauth2 client config for one exchange. Client
// credentials always travel in the form body.
func oauthConfig(d Descriptor, c Credentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret.Reveal(),
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(d.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   d.AuthorizationEndpoint,
			TokenURL:  d.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizationURL returns the consent screen URL carrying client_id,
// redirect_uri, response_type=code, state and scope.
func AuthorizationURL(d Descriptor, c Credentials, redirectURI, state string) string {
	return oauthConfig(d, c, redirectURI).AuthCodeURL(state)
}
