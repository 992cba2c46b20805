package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned for provider ids outside the supported set.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrStateMismatch is returned when a callback cannot be correlated with
	// the login attempt that started it.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrAuthorizationDenied is returned when the provider redirects back with
	// an error instead of a code.
	ErrAuthorizationDenied = errors.New("oauth authorization denied")
)

// MissingConfigurationError reports a provider whose client credentials were
// not supplied at startup.
type MissingConfigurationError struct {
	Provider ProviderID
	Field    string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("%s oauth credentials not configured: missing %s", e.Provider, e.Field)
}

// TokenExchangeError reports a failed authorization code exchange.
// HTTPStatus is zero when no response was received.
type TokenExchangeError struct {
	Provider   ProviderID
	HTTPStatus int
	Reason     string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("%s token exchange failed (status %d): %s", e.Provider, e.HTTPStatus, e.Reason)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// ProfileFetchError reports a failed profile endpoint call.
type ProfileFetchError struct {
	Provider   ProviderID
	HTTPStatus int
	Reason     string
	Err        error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("%s profile fetch failed (status %d): %s", e.Provider, e.HTTPStatus, e.Reason)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// ProfileFieldMissingError reports a profile without an identity-critical field.
type ProfileFieldMissingError struct {
	Provider ProviderID
	Field    string
}

func (e *ProfileFieldMissingError) Error() string {
	return fmt.Sprintf("%s profile missing field %q", e.Provider, e.Field)
}

// Failure kinds reported in logs, metrics and the audit log.
const (
	KindUnknownProvider      = "unknown_provider"
	KindMissingConfiguration = "missing_configuration"
	KindStateMismatch        = "state_mismatch"
	KindAuthorizationDenied  = "authorization_denied"
	KindTokenExchangeFailed  = "token_exchange_failed"
	KindProfileFetchFailed   = "profile_fetch_failed"
	KindProfileFieldMissing  = "profile_field_missing"
	KindInternal             = "internal"
)

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	var (
		missingCfg *MissingConfigurationError
		exchange   *TokenExchangeError
		fetch      *ProfileFetchError
		field      *ProfileFieldMissingError
	)
	switch {
	case errors.Is(err, ErrUnknownProvider):
		return KindUnknownProvider
	case errors.As(err, &missingCfg):
		return KindMissingConfiguration
	case errors.Is(err, ErrStateMismatch):
		return KindStateMismatch
	case errors.Is(err, ErrAuthorizationDenied):
		return KindAuthorizationDenied
	case errors.As(err, &exchange):
		return KindTokenExchangeFailed
	case errors.As(err, &fetch):
		return KindProfileFetchFailed
	case errors.As(err, &field):
		return KindProfileFieldMissing
	default:
		return KindInternal
	}
}

// IsServerFault reports whether err indicates a deployment or programming
// error rather than a failed or tampered login.
func IsServerFault(err error) bool {
	switch Kind(err) {
	case KindUnknownProvider, KindMissingConfiguration, KindInternal:
		return true
	}
	return false
}
