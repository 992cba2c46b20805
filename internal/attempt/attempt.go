// Package attempt keeps the server-side half of a login attempt: the state
// token issued with an authorization request, looked up again when the
// provider redirects back. Attempts are single-use and expire.
package attempt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gsarma/portier/internal/oauth"
)

// ErrNotFound is returned when an attempt does not exist, has expired or was
// already consumed.
var ErrNotFound = errors.New("login attempt not found")

// Attempt correlates an authorization request with its callback.
type Attempt struct {
	ID          string           `json:"id"`
	Provider    oauth.ProviderID `json:"provider"`
	State       string           `json:"state"`
	RedirectURI string           `json:"redirect_uri"`
	CreatedAt   time.Time        `json:"created_at"`
}

// New starts an attempt for provider with a fresh id and state token.
func New(provider oauth.ProviderID, redirectURI string, now time.Time) (Attempt, error) {
	state, err := oauth.GenerateState()
	if err != nil {
		return Attempt{}, err
	}
	return Attempt{
		ID:          uuid.NewString(),
		Provider:    provider,
		State:       state,
		RedirectURI: redirectURI,
		CreatedAt:   now,
	}, nil
}

// Store persists attempts until their callback arrives.
type Store interface {
	// Save stores a for ttl.
	Save(ctx context.Context, a Attempt, ttl time.Duration) error
	// Take returns and removes the attempt with id. A second Take for the
	// same id returns ErrNotFound.
	Take(ctx context.Context, id string) (Attempt, error)
}

// validID filters out ids that could not have been issued by New, so
// arbitrary cookie values never reach the backing store.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
