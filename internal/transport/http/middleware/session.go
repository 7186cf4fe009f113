package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"loganalyzer/internal/app"
	"loganalyzer/internal/pkg/jwtutil"
	"loganalyzer/internal/transport/http/response"
)

const ContextSessionKey = "session"

type SessionOptions struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Session resolves the caller's session from a signed cookie. A missing,
// invalid or expired cookie gets a brand new session and a fresh cookie.
func Session(store *app.SessionStore, opts SessionOptions) gin.HandlerFunc {
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}

	return func(c *gin.Context) {
		var sessionID string
		var expiresAt time.Time
		if raw, err := c.Cookie(opts.CookieName); err == nil && raw != "" {
			if claims, err := jwtutil.ParseToken(opts.Secret, raw); err == nil {
				sessionID = claims.SessionID
				if claims.ExpiresAt != nil {
					expiresAt = claims.ExpiresAt.Time
				}
			}
		}

		session, created := store.GetOrCreate(sessionID)
		if created || time.Until(expiresAt) < opts.TTL/2 {
			token, err := jwtutil.GenerateToken(opts.Secret, session.ID, opts.TTL)
			if err != nil {
				log.Printf("[session] issue token failed: %v", err)
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session unavailable")
				c.Abort()
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(opts.CookieName, token, int(opts.TTL.Seconds()), "/", "", opts.Secure, true)
		}

		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

// SessionFrom returns the session stored by the Session middleware.
func SessionFrom(c *gin.Context) (*app.Session, bool) {
	v, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil, false
	}
	s, ok := v.(*app.Session)
	return s, ok
}
