package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/models"
	"github.com/mmdatafocus/stockroom_backend/utils"
)

// SessionResolver reloads the account behind a token.
type SessionResolver interface {
	ResolveSession(ctx context.Context, s models.Session) (models.Session, error)
}

// SessionMiddleware rejects tokens that were revoked by logout or by an
// account change, then refreshes the caller's role from the store. It must
// run after AuthMiddleware.
func SessionMiddleware(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tokenId, ok := utils.GetTokenIdFromContext(ctx)
		if !ok || tokenId == "" {
			c.Next()
			return
		}
		active, err := models.SessionActive(ctx, tokenId)
		if err != nil {
			config.LogError(config.GetLogger(), "middlewares", "SessionMiddleware", "SessionActive", nil, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": models.ErrStoreUnavailable.Error()})
			return
		}
		if !active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		current, err := resolver.ResolveSession(ctx, SessionFromContext(ctx))
		if errors.Is(err, models.ErrNotAuthenticated) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "middlewares", "SessionMiddleware", "ResolveSession", nil, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": models.ErrStoreUnavailable.Error()})
			return
		}
		ctx = utils.SetLoginInContext(ctx, current.Login)
		ctx = utils.SetIsPrivilegedInContext(ctx, current.Privileged)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SessionFromContext rebuilds the caller's session; it is Anonymous when no
// valid token came with the request.
func SessionFromContext(ctx context.Context) models.Session {
	accountId, ok := utils.GetAccountIdFromContext(ctx)
	if !ok || accountId <= 0 {
		return models.Anonymous
	}
	login, _ := utils.GetLoginFromContext(ctx)
	privileged, _ := utils.GetIsPrivilegedFromContext(ctx)
	tokenId, _ := utils.GetTokenIdFromContext(ctx)
	return models.Session{
		AccountId:  accountId,
		Login:      login,
		Privileged: privileged,
		TokenId:    tokenId,
	}
}
