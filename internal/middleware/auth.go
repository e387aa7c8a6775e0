package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
)

// RequireAuth copies the session user into the request context and rejects
// requests without one.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := sessions.Default(c).Get(constants.ContextKeyUserID)
		if userID == nil {
			apierrors.Unauthorized(c, "")
			return
		}

		c.Set(constants.ContextKeyUserID, userID)
		c.Next()
	}
}

// GetUserID reads the id set by RequireAuth. Session codecs may hand back
// any integer kind.
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}

	switch v := userID.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
