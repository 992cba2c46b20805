package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gsarma/portier/internal/metrics"
)

// maxProfileBytes caps how much of a profile response is read.
const maxProfileBytes = 1 << 20

// User is the provider-agnostic identity produced by a successful login.
// Provider and ExternalID together identify a real-world account.
type User struct {
	Provider    ProviderID `json:"provider"`
	ExternalID  string     `json:"external_id"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Email       string     `json:"email,omitempty"`
}

// RawProfile is the undecoded body of a provider's profile endpoint.
type RawProfile []byte

// Adapter fetches and maps one provider's profile.
type Adapter interface {
	FetchRawProfile(ctx context.Context, accessToken string) (RawProfile, error)
	Normalize(raw RawProfile) (*User, error)
}

// Normalizer dispatches profile lookups to the adapter for a provider.
type Normalizer struct {
	registry *Registry
	client   *http.Client
}

// NewNormalizer returns a Normalizer whose profile requests go through base
// (http.DefaultTransport when nil) and give up after timeout.
func NewNormalizer(registry *Registry, base http.RoundTripper, timeout time.Duration) *Normalizer {
	if base == nil {
		base = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Normalizer{
		registry: registry,
		client:   &http.Client{Transport: base, Timeout: timeout},
	}
}

// FetchAndNormalize performs one authenticated profile GET and maps the
// result onto User.
func (n *Normalizer) FetchAndNormalize(ctx context.Context, id ProviderID, accessToken string) (*User, error) {
	d, err := n.registry.Resolve(id)
	if err != nil {
		return nil, err
	}
	a, err := AdapterFor(d, n.client)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := a.FetchRawProfile(ctx, accessToken)
	metrics.ObserveProviderCall(string(id), "profile", start)
	if err != nil {
		return nil, err
	}
	return a.Normalize(raw)
}

// AdapterFor returns the profile adapter for d.ID. Adding a provider means
// adding a case here.
func AdapterFor(d Descriptor, client *http.Client) (Adapter, error) {
	f := bearerFetcher{descriptor: d, client: client}
	switch d.ID {
	case GitHub:
		return githubAdapter{f}, nil
	case Google:
		return googleAdapter{f}, nil
	case Discord:
		return discordAdapter{f}, nil
	case Slack:
		return slackAdapter{f}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, d.ID)
	}
}

// bearerFetcher does the single authenticated GET every adapter needs.
type bearerFetcher struct {
	descriptor Descriptor
	client     *http.Client
}

func (f bearerFetcher) FetchRawProfile(ctx context.Context, accessToken string) (RawProfile, error) {
	id := f.descriptor.ID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.descriptor.ProfileEndpoint, nil)
	if err != nil {
		return nil, &ProfileFetchError{Provider: id, Reason: "building request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		reason := "transport error"
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			reason = "timeout"
		} else if errors.Is(err, context.Canceled) {
			reason = "canceled"
		}
		return nil, &ProfileFetchError{Provider: id, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProfileFetchError{Provider: id, HTTPStatus: resp.StatusCode, Reason: "profile endpoint returned an error"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, &ProfileFetchError{Provider: id, HTTPStatus: resp.StatusCode, Reason: "reading body", Err: err}
	}
	return RawProfile(body), nil
}

func decodeProfile(id ProviderID, raw RawProfile, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &ProfileFetchError{Provider: id, HTTPStatus: http.StatusOK, Reason: "decoding profile", Err: err}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
