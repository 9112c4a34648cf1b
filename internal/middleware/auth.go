package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionUserKey is the session field holding the user's opaque key.
	SessionUserKey = "user_key"

	// ContextUserKey is the gin context field the user key is exposed under.
	ContextUserKey = "user_key"
)

// Identify assigns every browser session an opaque user key and exposes it on
// the gin context. The key scopes all token state: the callback from the
// authorization server arrives in the same browser, so the same session
// cookie identifies the pending flow.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		key, ok := session.Get(SessionUserKey).(string)
		if !ok || key == "" {
			key = uuid.New().String()
			session.Set(SessionUserKey, key)
			if err := session.Save(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "session_error",
				})
				return
			}
		}

		c.Set(ContextUserKey, key)
		c.Next()
	}
}

// UserKey returns the session user key set by Identify.
func UserKey(c *gin.Context) string {
	v, _ := c.Get(ContextUserKey)
	key, _ := v.(string)
	return key
}
