package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves validated claims into the acting user and puts
// the identity on the request context. Assignment rows record this username.
// A token whose user is gone or disabled is rejected here, not at the claim
// check, so revoking an account takes effect before the token expires.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := CtxValue(c.Request.Context())
		if claim == nil {
			c.Next()
			return
		}

		user, err := models.GetUserById(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if user.IsActive == nil || !*user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account is disabled"})
			c.Abort()
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), user.ID)
		ctx = utils.SetUsernameInContext(ctx, user.Username)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		ctx = utils.SetIsAdminInContext(ctx, user.Role == models.UserRoleAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
