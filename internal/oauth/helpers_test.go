package oauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// newProviderServer starts a TLS server standing in for a provider's token
// and profile endpoints.
func newProviderServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// testDescriptor points a provider descriptor at srv.
func testDescriptor(id ProviderID, srv *httptest.Server) Descriptor {
	return Descriptor{
		ID:                    id,
		DisplayName:           string(id),
		AuthorizationEndpoint: srv.URL + "/authorize",
		TokenEndpoint:         srv.URL + "/token",
		ProfileEndpoint:       srv.URL + "/profile",
		Scope:                 "read:user",
	}
}
