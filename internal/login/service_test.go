package login

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gsarma/portier/internal/attempt"
	"github.com/gsarma/portier/internal/audit"
	"github.com/gsarma/portier/internal/crypto"
	"github.com/gsarma/portier/internal/oauth"
	"github.com/gsarma/portier/internal/session"
)

const baseURL = "https://portier.example.com"

// --- stubs ---

type stubExchanger struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, code string) (string, error)
}

func (s *stubExchanger) Exchange(ctx context.Context, d oauth.Descriptor, c oauth.Credentials, code, redirectURI string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, code)
	}
	return "tok123", nil
}

type stubNormalizer struct {
	calls int
	fn    func(ctx context.Context, token string) (*oauth.User, error)
}

func (s *stubNormalizer) FetchAndNormalize(ctx context.Context, id oauth.ProviderID, token string) (*oauth.User, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(ctx, token)
	}
	return &oauth.User{Provider: id, ExternalID: "42", DisplayName: "alice"}, nil
}

type stubIssuer struct{ calls int }

func (s *stubIssuer) Issue(u oauth.User) (session.Credential, error) {
	s.calls++
	return session.Credential{Value: "session-for-" + u.ExternalID, Cookie: &http.Cookie{Name: "session"}}, nil
}

type stubAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *stubAudit) Record(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

var (
	_ Exchanger      = (*stubExchanger)(nil)
	_ Normalizer     = (*stubNormalizer)(nil)
	_ SessionIssuer  = (*stubIssuer)(nil)
	_ audit.Recorder = (*stubAudit)(nil)
)

type fixture struct {
	svc        *Service
	exchanger  *stubExchanger
	normalizer *stubNormalizer
	issuer     *stubIssuer
	audit      *stubAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		exchanger:  &stubExchanger{},
		normalizer: &stubNormalizer{},
		issuer:     &stubIssuer{},
		audit:      &stubAudit{},
	}
	f.svc = NewService(Deps{
		Registry: oauth.DefaultRegistry(),
		Credentials: oauth.NewCredentialStore(
			oauth.Credentials{Provider: oauth.GitHub, ClientID: "gh-id", ClientSecret: "gh-secret"},
			oauth.Credentials{Provider: oauth.Google, ClientID: "g-id", ClientSecret: "g-secret"},
		),
		Attempts:   attempt.NewMemoryStore(time.Minute, time.Minute),
		Exchanger:  f.exchanger,
		Normalizer: f.normalizer,
		Sessions:   f.issuer,
		Audit:      f.audit,
		BaseURL:    baseURL,
		AttemptTTL: time.Minute,
	})
	return f
}

// start begins a login and returns the attempt id and the state that was
// sent to the provider.
func (f *fixture) start(t *testing.T, provider string) (string, string) {
	t.Helper()
	st, err := f.svc.StartLogin(context.Background(), provider)
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	u, _ := url.Parse(st.AuthorizationURL)
	return st.AttemptID, u.Query().Get("state")
}

// --- StartLogin ---

func TestStartLogin(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.StartLogin(context.Background(), "GitHub")
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	if st.Provider != oauth.GitHub || st.AttemptID == "" {
		t.Errorf("unexpected start %+v", st)
	}
	u, _ := url.Parse(st.AuthorizationURL)
	if u.Host != "github.com" {
		t.Errorf("expected github.com, got %s", u.Host)
	}
	q := u.Query()
	if q.Get("redirect_uri") != baseURL+"/internal/auth/github/callback" {
		t.Errorf("unexpected redirect_uri %q", q.Get("redirect_uri"))
	}
	if q.Get("state") == "" || q.Get("client_id") != "gh-id" {
		t.Errorf("unexpected query %v", q)
	}
}

func TestStartLogin_Failures(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartLogin(context.Background(), "twitter")
	if !errors.Is(err, oauth.ErrUnknownProvider) {
		t.Errorf("twitter: expected ErrUnknownProvider, got %v", err)
	}

	_, err = f.svc.StartLogin(context.Background(), "discord")
	var mc *oauth.MissingConfigurationError
	if !errors.As(err, &mc) {
		t.Errorf("discord: expected MissingConfigurationError, got %v", err)
	}
}

func TestStartLogin_FreshStatePerAttempt(t *testing.T) {
	f := newFixture(t)
	id1, s1 := f.start(t, "github")
	id2, s2 := f.start(t, "github")
	if id1 == id2 || s1 == s2 {
		t.Error("each attempt needs its own id and state")
	}
}

// --- CompleteLogin ---

func TestCompleteLogin_Success(t *testing.T) {
	f := newFixture(t)
	id, state := f.start(t, "github")

	res, err := f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: state})
	if err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
	if res.User.ExternalID != "42" || res.Session.Value != "session-for-42" {
		t.Errorf("unexpected result %+v", res)
	}
	if f.exchanger.calls != 1 || f.normalizer.calls != 1 || f.issuer.calls != 1 {
		t.Errorf("expected one call each, got exchange=%d normalize=%d issue=%d",
			f.exchanger.calls, f.normalizer.calls, f.issuer.calls)
	}
	if len(f.audit.events) != 1 || f.audit.events[0].Outcome != audit.OutcomeSuccess || f.audit.events[0].ExternalID != "42" {
		t.Errorf("unexpected audit events %+v", f.audit.events)
	}
}

func TestCompleteLogin_StateMismatch_NeverExchanges(t *testing.T) {
	f := newFixture(t)
	id, state := f.start(t, "github")

	_, err := f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: state + "x"})
	if !errors.Is(err, oauth.ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
	if f.exchanger.calls != 0 || f.normalizer.calls != 0 || f.issuer.calls != 0 {
		t.Error("a mismatched state must not reach the token endpoint")
	}
	if len(f.audit.events) != 1 || f.audit.events[0].Kind != oauth.KindStateMismatch {
		t.Errorf("expected a state_mismatch audit event, got %+v", f.audit.events)
	}
}

func TestCompleteLogin_StateMismatchCases(t *testing.T) {
	cases := map[string]func(f *fixture, id, state string) (string, Callback){
		"no attempt cookie": func(f *fixture, id, state string) (string, Callback) {
			return "github", Callback{Code: "abc", State: state}
		},
		"unknown attempt": func(f *fixture, id, state string) (string, Callback) {
			return "github", Callback{AttemptID: "5b0e1f4e-8a55-4d1c-9b6f-3c2a1d0e9f87", Code: "abc", State: state}
		},
		"empty state": func(f *fixture, id, state string) (string, Callback) {
			return "github", Callback{AttemptID: id, Code: "abc"}
		},
		"attempt for another provider": func(f *fixture, id, state string) (string, Callback) {
			return "google", Callback{AttemptID: id, Code: "abc", State: state}
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			id, state := f.start(t, "github")
			provider, cb := build(f, id, state)

			_, err := f.svc.CompleteLogin(context.Background(), provider, cb)
			if !errors.Is(err, oauth.ErrStateMismatch) {
				t.Fatalf("expected ErrStateMismatch, got %v", err)
			}
			if f.exchanger.calls != 0 {
				t.Error("exchange must not run")
			}
		})
	}
}

func TestCompleteLogin_AttemptIsSingleUse(t *testing.T) {
	f := newFixture(t)
	id, state := f.start(t, "github")
	cb := Callback{AttemptID: id, Code: "abc", State: state}

	if _, err := f.svc.CompleteLogin(context.Background(), "github", cb); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if _, err := f.svc.CompleteLogin(context.Background(), "github", cb); !errors.Is(err, oauth.ErrStateMismatch) {
		t.Fatalf("replayed callback: expected ErrStateMismatch, got %v", err)
	}
	if f.exchanger.calls != 1 {
		t.Errorf("expected a single exchange, got %d", f.exchanger.calls)
	}
}

func TestCompleteLogin_FailedAttemptIsDiscarded(t *testing.T) {
	f := newFixture(t)
	id, state := f.start(t, "github")

	f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: "wrong"})
	_, err := f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: state})
	if !errors.Is(err, oauth.ErrStateMismatch) {
		t.Fatalf("retry on a failed attempt must need a fresh start, got %v", err)
	}
}

func TestCompleteLogin_ProviderDenied(t *testing.T) {
	f := newFixture(t)
	id, state := f.start(t, "github")

	_, err := f.svc.CompleteLogin(context.Background(), "github",
		Callback{AttemptID: id, State: state, Error: "access_denied", ErrorDescription: "The user has denied your application access."})
	if !errors.Is(err, oauth.ErrAuthorizationDenied) {
		t.Fatalf("expected ErrAuthorizationDenied, got %v", err)
	}
	if FailureKind(err) != oauth.KindAuthorizationDenied || f.exchanger.calls != 0 {
		t.Errorf("unexpected kind %s / exchange calls %d", FailureKind(err), f.exchanger.calls)
	}
	if !strings.Contains(err.Error(), "The user has denied your application access.") {
		t.Errorf("expected the provider's description in %q", err)
	}
}

func TestCompleteLogin_MissingCode(t *testing.T) {
	f := newFixture(t)
	id, state := f.start(t, "github")

	_, err := f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, State: state})
	var te *oauth.TokenExchangeError
	if !errors.As(err, &te) {
		t.Fatalf("expected TokenExchangeError, got %v", err)
	}
	if f.exchanger.calls != 0 {
		t.Error("exchange must not run without a code")
	}
}

func TestCompleteLogin_ExchangeFailed_NoUser(t *testing.T) {
	f := newFixture(t)
	f.exchanger.fn = func(context.Context, string) (string, error) {
		return "", &oauth.TokenExchangeError{Provider: oauth.GitHub, HTTPStatus: http.StatusBadRequest, Reason: "invalid_grant"}
	}
	id, state := f.start(t, "github")

	res, err := f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: state})
	var te *oauth.TokenExchangeError
	if !errors.As(err, &te) || te.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected 400 TokenExchangeError, got %v", err)
	}
	if res != nil || f.normalizer.calls != 0 || f.issuer.calls != 0 {
		t.Error("no user or session may be produced after a failed exchange")
	}
}

func TestCompleteLogin_ProfileFailures(t *testing.T) {
	for name, perr := range map[string]error{
		"fetch":   &oauth.ProfileFetchError{Provider: oauth.GitHub, HTTPStatus: 502},
		"missing": &oauth.ProfileFieldMissingError{Provider: oauth.GitHub, Field: "id"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.normalizer.fn = func(context.Context, string) (*oauth.User, error) { return nil, perr }
			id, state := f.start(t, "github")

			_, err := f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: state})
			if !errors.Is(err, perr) {
				t.Fatalf("expected %v, got %v", perr, err)
			}
			if f.issuer.calls != 0 {
				t.Error("session must not be issued")
			}
		})
	}
}

func TestCompleteLogin_AbandonedMidFlight(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.exchanger.fn = func(context.Context, string) (string, error) {
		cancel() // client went away while the exchange was in flight
		return "tok123", nil
	}
	id, state := f.start(t, "github")

	_, err := f.svc.CompleteLogin(ctx, "github", Callback{AttemptID: id, Code: "abc", State: state})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.normalizer.calls != 0 || f.issuer.calls != 0 {
		t.Error("an abandoned attempt must not fetch a profile or issue a session")
	}
	if len(f.audit.events) != 1 || f.audit.events[0].Kind != KindAbandoned {
		t.Errorf("expected an abandoned audit event even after cancel, got %+v", f.audit.events)
	}
}

func TestCompleteLogin_TimedOutIsAbandoned(t *testing.T) {
	f := newFixture(t)
	f.normalizer.fn = func(context.Context, string) (*oauth.User, error) {
		return nil, context.DeadlineExceeded
	}
	id, state := f.start(t, "github")

	_, err := f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: state})
	if FailureKind(err) != KindAbandoned {
		t.Fatalf("expected %s, got %s (%v)", KindAbandoned, FailureKind(err), err)
	}
	if IsServerFault(err) {
		t.Error("an abandoned attempt is not a server fault")
	}
	if f.issuer.calls != 0 {
		t.Error("session must not be issued")
	}
}

func TestIsServerFault(t *testing.T) {
	for err, want := range map[error]bool{
		oauth.ErrUnknownProvider:                                true,
		&oauth.MissingConfigurationError{Provider: oauth.Slack}: true,
		errors.New("redis: connection refused"):                 true,
		oauth.ErrStateMismatch:                                  false,
		context.Canceled:                                        false,
		context.DeadlineExceeded:                                false,
	} {
		if got := IsServerFault(err); got != want {
			t.Errorf("IsServerFault(%v) = %v, want %v", err, got, want)
		}
	}
}

func TestCompleteLogin_UnknownProviderConsumesAttempt(t *testing.T) {
	f := newFixture(t)
	id, state := f.start(t, "github")

	_, err := f.svc.CompleteLogin(context.Background(), "twitter", Callback{AttemptID: id, Code: "abc", State: state})
	if !errors.Is(err, oauth.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	_, err = f.svc.CompleteLogin(context.Background(), "github", Callback{AttemptID: id, Code: "abc", State: state})
	if !errors.Is(err, oauth.ErrStateMismatch) {
		t.Fatalf("attempt should be gone after the first callback, got %v", err)
	}
	if f.exchanger.calls != 0 {
		t.Error("exchange must not run")
	}
}

func TestCompleteLogin_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CompleteLogin(context.Background(), "twitter", Callback{Code: "abc", State: "s"})
	if !errors.Is(err, oauth.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if f.audit.events[0].Provider != "unknown" {
		t.Errorf("expected provider label to be normalized, got %q", f.audit.events[0].Provider)
	}
}

// --- end to end ---

func TestEndToEnd_GitHub(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login/oauth/access_token":
			r.ParseForm()
			if r.PostForm.Get("code") != "abc" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"bad_verification_code"}`))
				return
			}
			w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","scope":"read:user"}`))
		case "/user":
			if r.Header.Get("Authorization") != "Bearer tok123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":42,"login":"alice","avatar_url":"https://avatars.example.com/a.png"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	// The authorization endpoint is browser-navigated, so it keeps the real host.
	gh, _ := oauth.DefaultRegistry().Resolve(oauth.GitHub)
	gh.TokenEndpoint = srv.URL + "/login/oauth/access_token"
	gh.ProfileEndpoint = srv.URL + "/user"
	reg, err := oauth.NewRegistry(gh)
	if err != nil {
		t.Fatal(err)
	}

	sealer, _ := crypto.NewSealer(strings.Repeat("0f", 32))
	issuer, _ := session.NewIssuer(session.Options{SigningSecret: []byte(strings.Repeat("k", 32)), Sealer: sealer, Secure: true})
	transport := srv.Client().Transport

	svc := NewService(Deps{
		Registry:    reg,
		Credentials: oauth.NewCredentialStore(oauth.Credentials{Provider: oauth.GitHub, ClientID: "gh-id", ClientSecret: "gh-secret"}),
		Attempts:    attempt.NewMemoryStore(time.Minute, time.Minute),
		Exchanger:   oauth.NewExchanger(transport, time.Second),
		Normalizer:  oauth.NewNormalizer(reg, transport, time.Second),
		Sessions:    issuer,
		BaseURL:     baseURL,
	})

	st, err := svc.StartLogin(context.Background(), "github")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(st.AuthorizationURL)
	if u.Host != "github.com" {
		t.Errorf("expected github.com authorization host, got %s", u.Host)
	}
	if u.Query().Get("scope") != "read:user user:email" {
		t.Errorf("expected configured scope, got %q", u.Query().Get("scope"))
	}

	res, err := svc.CompleteLogin(context.Background(), "github",
		Callback{AttemptID: st.AttemptID, Code: "abc", State: u.Query().Get("state")})
	if err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
	want := oauth.User{Provider: oauth.GitHub, ExternalID: "42", DisplayName: "alice", AvatarURL: "https://avatars.example.com/a.png"}
	if res.User != want {
		t.Errorf("expected %+v, got %+v", want, res.User)
	}

	claims, err := issuer.Parse(res.Session.Value)
	if err != nil {
		t.Fatalf("issued session does not parse: %v", err)
	}
	if claims.User != want {
		t.Errorf("session carries %+v, want %+v", claims.User, want)
	}
}

// --- phases ---

func TestFlow_Transitions(t *testing.T) {
	f := &flow{phase: Initiated}
	for _, p := range []Phase{AwaitingCallback, Exchanging, Normalizing, SessionIssued} {
		if err := f.advance(p); err != nil {
			t.Fatalf("advance to %s: %v", p, err)
		}
	}
	if err := f.advance(Failed); err == nil {
		t.Error("a terminal attempt must not transition again")
	}

	f = &flow{phase: AwaitingCallback}
	if err := f.advance(Normalizing); err == nil {
		t.Error("skipping the exchange must be rejected")
	}
	if err := f.advance(Failed); err != nil {
		t.Errorf("failure is reachable from any non-terminal phase: %v", err)
	}
	if err := f.advance(AwaitingCallback); err == nil {
		t.Error("a failed attempt must not be re-entered")
	}
	if Failed.String() != "failed" || Phase(42).String() != "phase(42)" {
		t.Error("unexpected phase names")
	}
}
