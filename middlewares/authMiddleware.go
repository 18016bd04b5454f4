package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/utils"
)

const bearerPrefix = "Bearer "

// AuthMiddleware validates a bearer token when one is sent and puts its claims
// into the request context. Requests without a token pass through anonymous.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(auth, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		validate, err := utils.JwtValidate(strings.TrimSpace(auth[len(bearerPrefix):]))
		if err != nil || !validate.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.ID <= 0 || claim.Id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetAccountIdInContext(c.Request.Context(), claim.ID)
		ctx = utils.SetLoginInContext(ctx, claim.Login)
		ctx = utils.SetIsPrivilegedInContext(ctx, claim.IsPrivileged)
		ctx = utils.SetTokenIdInContext(ctx, claim.Id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
