package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/response"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/security"
)

const currentUserKey = "current_user"

const (
	MsgMissingToken = "Access token is required"
	MsgInvalidToken = "Invalid or expired access token"
	MsgForbidden    = "You do not have permission to access this resource"
)

type AccessTokenParser interface {
	ParseAccessToken(raw string) (*security.Claims, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Auth resolves the bearer access token to a stored user and exposes it via
// CurrentUser. Unknown users are rejected like bad tokens.
func Auth(tokens AccessTokenParser, users UserLoader, render response.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			render.Error(c, apperr.Unauthorized(MsgMissingToken))
			return
		}

		claims, err := tokens.ParseAccessToken(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
		if err != nil {
			render.Error(c, apperr.Unauthorized(MsgInvalidToken))
			return
		}

		id, err := primitive.ObjectIDFromHex(claims.Subject)
		if err != nil {
			render.Error(c, apperr.Unauthorized(MsgInvalidToken))
			return
		}

		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil {
			render.Error(c, apperr.Internal(err))
			return
		}
		if user == nil {
			render.Error(c, apperr.Unauthorized(MsgInvalidToken))
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok && user != nil
}
