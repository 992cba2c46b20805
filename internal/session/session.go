// Package session mints and verifies the session cookie handed out after a
// successful login. The cookie value is an HS256 JWT carrying the user,
// sealed with AES-GCM so profile fields are not readable by the browser.
package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gsarma/portier/internal/crypto"
	"github.com/gsarma/portier/internal/oauth"
)

const (
	CookieName = "session"
	issuer     = "portier"
	// MinSecretBytes is the shortest accepted HMAC signing secret.
	MinSecretBytes = 32
)

var sealContext = []byte("portier-session-v1")

// ErrInvalid is returned for any credential that fails to open, verify or
// has expired.
var ErrInvalid = errors.New("session: invalid credential")

// Claims is the JWT body of a session.
type Claims struct {
	User oauth.User `json:"usr"`
	jwt.RegisteredClaims
}

// Options configures an Issuer.
type Options struct {
	SigningSecret []byte
	Sealer        *crypto.Sealer
	TTL           time.Duration
	Secure        bool
	Now           func() time.Time
}

// Issuer creates and parses session credentials.
type Issuer struct {
	secret []byte
	sealer *crypto.Sealer
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewIssuer validates opts and returns an Issuer.
func NewIssuer(opts Options) (*Issuer, error) {
	if len(opts.SigningSecret) < MinSecretBytes {
		return nil, fmt.Errorf("session: signing secret must be at least %d bytes", MinSecretBytes)
	}
	if opts.Sealer == nil {
		return nil, errors.New("session: sealer is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Issuer{
		secret: opts.SigningSecret,
		sealer: opts.Sealer,
		ttl:    opts.TTL,
		secure: opts.Secure,
		now:    opts.Now,
	}, nil
}

// Credential is an issued session: the opaque value and the cookie that
// carries it.
type Credential struct {
	Value     string
	ExpiresAt time.Time
	Cookie    *http.Cookie
}

// HeaderValue renders the Set-Cookie header value.
func (c Credential) HeaderValue() string { return c.Cookie.String() }

// Issue mints a credential for u. It only fails if the system random source
// does.
func (i *Issuer) Issue(u oauth.User) (Credential, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		User: u,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(u.Provider) + ":" + u.ExternalID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("session: signing: %w", err)
	}
	sealed, err := i.sealer.Seal([]byte(signed), sealContext)
	if err != nil {
		return Credential{}, fmt.Errorf("session: sealing: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(sealed)

	return Credential{
		Value:     value,
		ExpiresAt: exp,
		Cookie: &http.Cookie{
			Name:     CookieName,
			Value:    value,
			Path:     "/",
			Expires:  exp,
			MaxAge:   int(i.ttl.Seconds()),
			HttpOnly: true,
			Secure:   i.secure,
			SameSite: http.SameSiteLaxMode,
		},
	}, nil
}

// Parse opens and verifies a credential value.
func (i *Issuer) Parse(value string) (*Claims, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrInvalid
	}
	signed, err := i.sealer.Open(sealed, sealContext)
	if err != nil {
		return nil, ErrInvalid
	}

	var claims Claims
	_, err = jwt.ParseWithClaims(string(signed), &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.User.ExternalID == "" {
		return nil, ErrInvalid
	}
	return &claims, nil
}

// ClearCookie returns a cookie that removes the session from the browser.
func (i *Issuer) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
