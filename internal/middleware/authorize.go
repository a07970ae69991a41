package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/response"
)

func RequireRoles(render response.Renderer, roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			render.Error(c, apperr.Unauthorized(MsgMissingToken))
			return
		}

		if _, ok := roleSet[user.Role]; !ok {
			render.Error(c, apperr.Forbidden(MsgForbidden))
			return
		}

		c.Next()
	}
}
