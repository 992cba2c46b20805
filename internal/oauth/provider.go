package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// ProviderID names one of the supported identity providers.
type ProviderID string

const (
	GitHub  ProviderID = "github"
	Google  ProviderID = "google"
	Discord ProviderID = "discord"
	Slack   ProviderID = "slack"
)

// Providers lists every supported provider in a stable order.
var Providers = []ProviderID{GitHub, Google, Discord, Slack}

// ParseProviderID maps a route parameter onto the closed provider set.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case GitHub, Google, Discord, Slack:
		return id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

func (id ProviderID) String() string { return string(id) }

// Descriptor is the static endpoint and scope metadata for one provider.
type Descriptor struct {
	ID                    ProviderID
	DisplayName           string
	AuthorizationEndpoint string
	TokenEndpoint         string
	ProfileEndpoint       string
	Scope                 string
}

func (d Descriptor) validate() error {
	if _, err := ParseProviderID(string(d.ID)); err != nil {
		return err
	}
	for name, raw := range map[string]string{
		"authorization endpoint": d.AuthorizationEndpoint,
		"token endpoint":         d.TokenEndpoint,
		"profile endpoint":       d.ProfileEndpoint,
	} {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("%s %s must be an absolute https URL, got %q", d.ID, name, raw)
		}
	}
	return nil
}

// Slack OpenID Connect endpoints (Sign in with Slack).
var slackDescriptor = Descriptor{
	ID:                    Slack,
	DisplayName:           "Slack",
	AuthorizationEndpoint: "https://slack.com/openid/connect/authorize",
	TokenEndpoint:         "https://slack.com/api/openid.connect.token",
	ProfileEndpoint:       "https://slack.com/api/openid.connect.userInfo",
	Scope:                 "openid email profile",
}

var discordDescriptor = Descriptor{
	ID:                    Discord,
	DisplayName:           "Discord",
	AuthorizationEndpoint: "https://discord.com/oauth2/authorize",
	TokenEndpoint:         "https://discord.com/api/oauth2/token",
	ProfileEndpoint:       "https://discord.com/api/users/@me",
	Scope:                 "identify email",
}

// DefaultDescriptors returns the production catalog.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:                    GitHub,
			DisplayName:           "GitHub",
			AuthorizationEndpoint: github.Endpoint.AuthURL,
			TokenEndpoint:         github.Endpoint.TokenURL,
			ProfileEndpoint:       "https://api.github.com/user",
			Scope:                 "read:user user:email",
		},
		{
			ID:                    Google,
			DisplayName:           "Google",
			AuthorizationEndpoint: google.Endpoint.AuthURL,
			TokenEndpoint:         google.Endpoint.TokenURL,
			ProfileEndpoint:       "https://openidconnect.googleapis.com/v1/userinfo",
			Scope:                 "openid email profile",
		},
		discordDescriptor,
		slackDescriptor,
	}
}

// Registry resolves provider ids to descriptors. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	descriptors map[ProviderID]Descriptor
}

// NewRegistry validates and indexes the given descriptors.
func NewRegistry(list ...Descriptor) (*Registry, error) {
	m := make(map[ProviderID]Descriptor, len(list))
	for _, d := range list {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := m[d.ID]; dup {
			return nil, fmt.Errorf("duplicate provider descriptor: %s", d.ID)
		}
		m[d.ID] = d
	}
	return &Registry{descriptors: m}, nil
}

// DefaultRegistry returns a registry over DefaultDescriptors.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDescriptors()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the descriptor for id, or ErrUnknownProvider.
func (r *Registry) Resolve(id ProviderID) (Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return d, nil
}

// List returns the registered descriptors in catalog order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, id := range Providers {
		if d, ok := r.descriptors[id]; ok {
			out = append(out, d)
		}
	}
	return out
}
