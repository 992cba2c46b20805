package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gsarma/portier/internal/logger"
	"github.com/gsarma/portier/internal/login"
	"github.com/gsarma/portier/internal/oauth"
	"github.com/gsarma/portier/internal/session"
)

// AttemptCookie carries the login attempt id between the start and callback
// requests. The attempt itself stays server-side.
const AttemptCookie = "login_attempt"

const attemptCookiePath = "/internal/auth/"

// Logins is the part of login.Service the handlers drive.
type Logins interface {
	StartLogin(ctx context.Context, provider string) (*login.Start, error)
	CompleteLogin(ctx context.Context, provider string, cb login.Callback) (*login.Result, error)
}

var _ Logins = (*login.Service)(nil)

// Options holds the cookie and redirect settings of the login surface.
type Options struct {
	CookieSecure bool
	SuccessPath  string
	FailurePath  string
}

type Handler struct {
	logins   Logins
	sessions *session.Issuer
	log      *logger.Logger
	opts     Options
}

func NewHandler(logins Logins, sessions *session.Issuer, log *logger.Logger, opts Options) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if opts.SuccessPath == "" {
		opts.SuccessPath = "/"
	}
	if opts.FailurePath == "" {
		opts.FailurePath = "/login"
	}
	return &Handler{logins: logins, sessions: sessions, log: log.WithComponent("api"), opts: opts}
}

// StartLogin creates a login attempt and redirects to the provider's
// consent screen.
func (h *Handler) StartLogin(c *gin.Context) {
	provider := c.Param("provider")

	st, err := h.logins.StartLogin(c.Request.Context(), provider)
	if err != nil {
		h.log.WithError(err).Error("start login failed", map[string]any{
			logger.FieldProvider: provider,
			logger.FieldKind:     login.FailureKind(err),
		})
		h.abortServerFault(c, err)
		return
	}

	// The cookie lives exactly as long as the stored attempt.
	maxAge := int(time.Until(st.ExpiresAt).Round(time.Second) / time.Second)
	if maxAge <= 0 {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	http.SetCookie(c.Writer, h.attemptCookie(st.AttemptID, maxAge))
	c.Redirect(http.StatusFound, st.AuthorizationURL)
}

// Callback completes the login the provider redirected back for.
func (h *Handler) Callback(c *gin.Context) {
	var attemptID string
	if ck, err := c.Request.Cookie(AttemptCookie); err == nil {
		attemptID = ck.Value
	}
	// The attempt is single-use whatever the outcome.
	http.SetCookie(c.Writer, h.attemptCookie("", -1))

	res, err := h.logins.CompleteLogin(c.Request.Context(), c.Param("provider"), login.Callback{
		AttemptID:        attemptID,
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		if login.IsServerFault(err) {
			h.abortServerFault(c, err)
			return
		}
		c.Redirect(http.StatusFound, h.opts.FailurePath)
		return
	}

	http.SetCookie(c.Writer, res.Session.Cookie)
	c.Redirect(http.StatusFound, h.opts.SuccessPath)
}

// Logout clears the session cookie. It succeeds whether or not a session
// was present.
func (h *Handler) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, h.sessions.ClearCookie())
	c.Status(http.StatusNoContent)
}

// Me returns the signed-in user.
func (h *Handler) Me(c *gin.Context) {
	u, ok := session.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// abortServerFault answers configuration problems without detail; the
// cause is in the logs.
func (h *Handler) abortServerFault(c *gin.Context, err error) {
	var mc *oauth.MissingConfigurationError
	if errors.As(err, &mc) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "login provider unavailable"})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (h *Handler) attemptCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     AttemptCookie,
		Value:    value,
		Path:     attemptCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
