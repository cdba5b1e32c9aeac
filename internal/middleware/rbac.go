package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/surgitrack-api/internal/models"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
	"github.com/noah-isme/surgitrack-api/pkg/response"
)

// RequireMinRole rejects callers ranked below min. Unauthenticated callers get 401,
// authenticated ones with too little privilege get 403.
func RequireMinRole(min models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor(c)
		if actor.Role.AtLeast(min) {
			c.Next()
			return
		}
		if Claims(c) == nil {
			response.Error(c, appErrors.ErrUnauthorized)
		} else {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("requires the %s role", min)))
		}
		c.Abort()
	}
}
