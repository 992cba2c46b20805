// Package login runs the OAuth2 authorization-code flow end to end: it
// starts attempts, validates callbacks, exchanges codes, normalizes profiles
// and issues sessions.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gsarma/portier/internal/attempt"
	"github.com/gsarma/portier/internal/audit"
	"github.com/gsarma/portier/internal/logger"
	"github.com/gsarma/portier/internal/metrics"
	"github.com/gsarma/portier/internal/oauth"
	"github.com/gsarma/portier/internal/session"
)

// KindAbandoned labels attempts whose callback request went away mid-flight.
const KindAbandoned = "abandoned"

// Exchanger trades an authorization code for an access token.
type Exchanger interface {
	Exchange(ctx context.Context, d oauth.Descriptor, c oauth.Credentials, code, redirectURI string) (string, error)
}

// Normalizer fetches a provider profile and maps it to oauth.User.
type Normalizer interface {
	FetchAndNormalize(ctx context.Context, id oauth.ProviderID, accessToken string) (*oauth.User, error)
}

// SessionIssuer mints the session credential for a user.
type SessionIssuer interface {
	Issue(u oauth.User) (session.Credential, error)
}

var (
	_ Exchanger     = (*oauth.Exchanger)(nil)
	_ Normalizer    = (*oauth.Normalizer)(nil)
	_ SessionIssuer = (*session.Issuer)(nil)
)

// Deps wires a Service.
type Deps struct {
	Registry    *oauth.Registry
	Credentials *oauth.CredentialStore
	Attempts    attempt.Store
	Exchanger   Exchanger
	Normalizer  Normalizer
	Sessions    SessionIssuer
	Audit       audit.Recorder
	Logger      *logger.Logger

	// BaseURL is the application's own public URL; callback URLs are
	// derived from it.
	BaseURL    string
	AttemptTTL time.Duration
	Now        func() time.Time
}

type Service struct {
	registry   *oauth.Registry
	creds      *oauth.CredentialStore
	attempts   attempt.Store
	exchanger  Exchanger
	normalizer Normalizer
	sessions   SessionIssuer
	audit      audit.Recorder
	log        *logger.Logger
	baseURL    string
	attemptTTL time.Duration
	now        func() time.Time
}

func NewService(d Deps) *Service {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.AttemptTTL <= 0 {
		d.AttemptTTL = 10 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		registry:   d.Registry,
		creds:      d.Credentials,
		attempts:   d.Attempts,
		exchanger:  d.Exchanger,
		normalizer: d.Normalizer,
		sessions:   d.Sessions,
		audit:      d.Audit,
		log:        d.Logger.WithComponent("login"),
		baseURL:    d.BaseURL,
		attemptTTL: d.AttemptTTL,
		now:        d.Now,
	}
}

// Start is the result of StartLogin.
type Start struct {
	Provider         oauth.ProviderID
	AttemptID        string
	AuthorizationURL string
	ExpiresAt        time.Time
}

// StartLogin creates a login attempt for provider and returns the consent
// screen URL the browser should be redirected to.
func (s *Service) StartLogin(ctx context.Context, provider string) (*Start, error) {
	id, err := oauth.ParseProviderID(provider)
	if err != nil {
		return nil, err
	}
	d, err := s.registry.Resolve(id)
	if err != nil {
		return nil, err
	}
	creds, err := s.creds.CredentialsFor(id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a, err := attempt.New(id, oauth.CallbackURL(s.baseURL, id), now)
	if err != nil {
		return nil, err
	}
	if err := s.attempts.Save(ctx, a, s.attemptTTL); err != nil {
		return nil, fmt.Errorf("saving login attempt: %w", err)
	}

	metrics.LoginStarted.WithLabelValues(string(id)).Inc()
	s.log.Debug("login started", map[string]any{logger.FieldProvider: string(id), "attempt_id": a.ID})
	return &Start{
		Provider:         id,
		AttemptID:        a.ID,
		AuthorizationURL: oauth.AuthorizationURL(d, creds, a.RedirectURI, a.State),
		ExpiresAt:        now.Add(s.attemptTTL),
	}, nil
}

// Callback is what the provider sent back, plus the attempt id from the
// browser's cookie.
type Callback struct {
	AttemptID        string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Result is a completed login.
type Result struct {
	User    oauth.User
	Session session.Credential
}

// CompleteLogin validates the callback against its attempt and, if it
// matches, exchanges the code, normalizes the profile and issues a session.
// No session is issued if ctx is done before the last step.
func (s *Service) CompleteLogin(ctx context.Context, provider string, cb Callback) (*Result, error) {
	f := &flow{phase: AwaitingCallback}
	res, err := s.complete(ctx, f, provider, cb)
	if err != nil {
		at := f.phase
		f.advance(Failed)
		s.recordFailure(ctx, provider, at, err)
		return nil, err
	}
	s.recordSuccess(ctx, res.User)
	return res, nil
}

func (s *Service) complete(ctx context.Context, f *flow, provider string, cb Callback) (*Result, error) {
	// The attempt is consumed whatever happens next, including when the
	// provider in the path turns out to be unknown.
	a, takeErr := s.attempts.Take(ctx, cb.AttemptID)

	id, err := oauth.ParseProviderID(provider)
	if err != nil {
		return nil, err
	}
	d, err := s.registry.Resolve(id)
	if err != nil {
		return nil, err
	}
	if errors.Is(takeErr, attempt.ErrNotFound) {
		return nil, fmt.Errorf("%w: no pending attempt", oauth.ErrStateMismatch)
	}
	if takeErr != nil {
		return nil, fmt.Errorf("loading login attempt: %w", takeErr)
	}
	if a.Provider != id {
		return nil, fmt.Errorf("%w: attempt was started for %s", oauth.ErrStateMismatch, a.Provider)
	}
	if err := oauth.VerifyState(a.State, cb.State); err != nil {
		return nil, err
	}
	if cb.Error != "" {
		if cb.ErrorDescription != "" {
			return nil, fmt.Errorf("%w: %s (%s)", oauth.ErrAuthorizationDenied, cb.Error, cb.ErrorDescription)
		}
		return nil, fmt.Errorf("%w: %s", oauth.ErrAuthorizationDenied, cb.Error)
	}
	if cb.Code == "" {
		return nil, &oauth.TokenExchangeError{Provider: id, Reason: "callback carried no code"}
	}

	creds, err := s.creds.CredentialsFor(id)
	if err != nil {
		return nil, err
	}

	if err := f.advance(Exchanging); err != nil {
		return nil, err
	}
	token, err := s.exchanger.Exchange(ctx, d, creds, cb.Code, a.RedirectURI)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := f.advance(Normalizing); err != nil {
		return nil, err
	}
	user, err := s.normalizer.FetchAndNormalize(ctx, id, token)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cred, err := s.sessions.Issue(*user)
	if err != nil {
		return nil, err
	}
	if err := f.advance(SessionIssued); err != nil {
		return nil, err
	}
	return &Result{User: *user, Session: cred}, nil
}

// FailureKind classifies a CompleteLogin or StartLogin error. A request
// that was canceled or ran out of time counts as abandoned.
func FailureKind(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindAbandoned
	}
	return oauth.Kind(err)
}

// IsServerFault reports whether err points at the deployment rather than at
// the attempt itself. Abandoned attempts are never server faults.
func IsServerFault(err error) bool {
	return FailureKind(err) != KindAbandoned && oauth.IsServerFault(err)
}

func (s *Service) recordFailure(ctx context.Context, provider string, at Phase, err error) {
	kind := FailureKind(err)
	fields := map[string]any{
		logger.FieldProvider: provider,
		logger.FieldKind:     kind,
		logger.FieldPhase:    at.String(),
	}
	if IsServerFault(err) {
		s.log.WithError(err).Error("login failed", fields)
	} else {
		s.log.WithError(err).Warn("login failed", fields)
	}

	label := provider
	if _, perr := oauth.ParseProviderID(provider); perr != nil {
		label = "unknown"
	}
	metrics.LoginFailed(label, kind)
	s.record(ctx, audit.Event{Provider: label, Outcome: audit.OutcomeFailure, Kind: kind})
}

func (s *Service) recordSuccess(ctx context.Context, u oauth.User) {
	s.log.Info("login succeeded", map[string]any{
		logger.FieldProvider: string(u.Provider),
		"external_id":        u.ExternalID,
	})
	metrics.LoginSucceeded(string(u.Provider))
	s.record(ctx, audit.Event{Provider: string(u.Provider), Outcome: audit.OutcomeSuccess, ExternalID: u.ExternalID})
}

// record writes the audit event even if the request context is gone.
func (s *Service) record(ctx context.Context, e audit.Event) {
	e.OccurredAt = s.now()
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.audit.Record(actx, e); err != nil {
		s.log.WithError(err).Warn("audit record failed", map[string]any{logger.FieldProvider: e.Provider})
	}
}
