package oauth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/gsarma/portier/internal/metrics"
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 10 * time.Second

// Exchanger trades authorization codes for access tokens. Exchanges are
// never retried: a code is single-use.
type Exchanger struct {
	client *http.Client
}

// NewExchanger returns an Exchanger whose token requests go through base
// (http.DefaultTransport when nil) and give up after timeout.
func NewExchanger(base http.RoundTripper, timeout time.Duration) *Exchanger {
	if base == nil {
		base = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Exchanger{client: &http.Client{Transport: base, Timeout: timeout}}
}

// Exchange posts the code to the provider's token endpoint and returns the
// access token. The token is not stored anywhere.
func (e *Exchanger) Exchange(ctx context.Context, d Descriptor, c Credentials, code, redirectURI string) (string, error) {
	rec := &statusRecorder{base: e.client.Transport}
	client := &http.Client{Transport: rec, Timeout: e.client.Timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	start := time.Now()
	t, err := oauthConfig(d, c, redirectURI).Exchange(ctx, code)
	metrics.ObserveProviderCall(string(d.ID), "token", start)
	if err != nil {
		return "", exchangeError(d.ID, rec.status(), err)
	}
	return t.AccessToken, nil
}

func exchangeError(id ProviderID, status int, err error) *TokenExchangeError {
	out := &TokenExchangeError{Provider: id, HTTPStatus: status, Err: err}

	var re *oauth2.RetrieveError
	var ne net.Error
	switch {
	case errors.As(err, &re):
		if re.Response != nil {
			out.HTTPStatus = re.Response.StatusCode
		}
		out.Reason = "token endpoint rejected the request"
		if re.ErrorCode != "" {
			out.Reason += ": " + re.ErrorCode
		}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		out.Reason = "timeout"
	case errors.Is(err, context.Canceled):
		out.Reason = "canceled"
	case status >= 200 && status < 300:
		out.Reason = "response missing access_token"
	default:
		out.Reason = "transport error"
	}
	return out
}

// statusRecorder remembers the status of the last response it carried so a
// failed exchange can report it even when x/oauth2 does not.
type statusRecorder struct {
	base http.RoundTripper
	mu   sync.Mutex
	code int
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(req)
	if resp != nil {
		s.mu.Lock()
		s.code = resp.StatusCode
		s.mu.Unlock()
	}
	return resp, err
}

func (s *statusRecorder) status() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}
