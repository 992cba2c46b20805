package oauth

import (
	"net/url"
	"strings"
	"testing"
)

func TestAuthorizationURL_Parameters(t *testing.T) {
	const baseURL = "https://portier.example.com"
	r := DefaultRegistry()

	for _, id := range Providers {
		d, _ := r.Resolve(id)
		creds := Credentials{Provider: id, ClientID: "client-" + string(id), ClientSecret: "s3cret"}
		redirect := CallbackURL(baseURL, id)

		raw := AuthorizationURL(d, creds, redirect, "state-123")
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("%s: unparseable url %q: %v", id, raw, err)
		}
		want, _ := url.Parse(d.AuthorizationEndpoint)
		if u.Host != want.Host || u.Path != want.Path {
			t.Errorf("%s: expected %s%s, got %s%s", id, want.Host, want.Path, u.Host, u.Path)
		}

		q := u.Query()
		for _, key := range []string{"client_id", "redirect_uri", "response_type", "state", "scope"} {
			if len(q[key]) != 1 {
				t.Errorf("%s: expected exactly one %s, got %v", id, key, q[key])
			}
		}
		if q.Get("response_type") != "code" {
			t.Errorf("%s: expected response_type=code, got %q", id, q.Get("response_type"))
		}
		if q.Get("client_id") != creds.ClientID {
			t.Errorf("%s: expected client_id %q, got %q", id, creds.ClientID, q.Get("client_id"))
		}
		if q.Get("redirect_uri") != baseURL+"/internal/auth/"+string(id)+"/callback" {
			t.Errorf("%s: unexpected redirect_uri %q", id, q.Get("redirect_uri"))
		}
		if q.Get("state") != "state-123" {
			t.Errorf("%s: unexpected state %q", id, q.Get("state"))
		}
		if q.Get("scope") != d.Scope {
			t.Errorf("%s: expected scope %q, got %q", id, d.Scope, q.Get("scope"))
		}
		if strings.Contains(raw, "s3cret") {
			t.Errorf("%s: client secret leaked into the authorization url", id)
		}
	}
}

func TestAuthorizationURL_Deterministic(t *testing.T) {
	d, _ := DefaultRegistry().Resolve(GitHub)
	c := Credentials{Provider: GitHub, ClientID: "id", ClientSecret: "secret"}
	a := AuthorizationURL(d, c, "https://x.test/internal/auth/github/callback", "s")
	b := AuthorizationURL(d, c, "https://x.test/internal/auth/github/callback", "s")
	if a != b {
		t.Errorf("expected identical urls, got %q and %q", a, b)
	}
}

func TestCallbackURL_TrimsTrailingSlash(t *testing.T) {
	got := CallbackURL("https://portier.example.com/", Discord)
	if got != "https://portier.example.com/internal/auth/discord/callback" {
		t.Errorf("unexpected callback url %q", got)
	}
}
