package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gsarma/portier/internal/oauth"
)

const ctxKey = "session"

// RequireSession rejects requests without a valid session cookie and puts
// the session claims in the Gin context.
func (i *Issuer) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Request.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}

		claims, err := i.Parse(cookie.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}

		c.Set(ctxKey, claims)
		c.Next()
	}
}

// FromContext retrieves the session claims set by RequireSession.
func FromContext(c *gin.Context) *Claims {
	v, _ := c.Get(ctxKey)
	claims, _ := v.(*Claims)
	return claims
}

// UserFromContext is a shortcut for the signed-in user.
func UserFromContext(c *gin.Context) (oauth.User, bool) {
	claims := FromContext(c)
	if claims == nil {
		return oauth.User{}, false
	}
	return claims.User, true
}
