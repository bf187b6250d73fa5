package middleware

import (
	"net/http"
	"strings"

	"teamchat/tools/errs"
	"teamchat/tools/security"

	"github.com/gin-gonic/gin"
)

// CtxUserKey is where the authenticated user id lands in the gin context.
const CtxUserKey = "userID"

// Auth verifies the bearer token and stashes the subject user id. The
// websocket endpoint does its own verification before upgrading; this
// middleware covers the REST surface.
func Auth(jwt security.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("Authorization"))
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		if token == "" {
			token = c.Query("token")
		}

		userID, err := security.Verify(jwt, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}
		c.Set(CtxUserKey, userID)
		c.Next()
	}
}

// UserID reads the authenticated user from the request context.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserKey)
}
