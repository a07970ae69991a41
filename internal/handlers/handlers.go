package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/metrics"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/middleware"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/repository"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/response"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/security"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/service"
)

type AuthAPI interface {
	Register(ctx context.Context, input service.RegisterInput) (service.RegisterResult, error)
	Login(ctx context.Context, input service.LoginInput) (service.LoginResult, error)
	VerifyEmail(ctx context.Context, token string, meta service.RequestMeta) (string, error)
	ResendVerificationEmail(ctx context.Context, email string) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string, meta service.RequestMeta) (string, error)
	RefreshToken(ctx context.Context, raw string, meta service.RequestMeta) (security.TokenPair, error)
	Logout(ctx context.Context, user *models.User, meta service.RequestMeta) string
}

type ProfileAPI interface {
	GetProfile(ctx context.Context, id primitive.ObjectID) (models.PublicUser, error)
	UploadAvatar(ctx context.Context, in service.AvatarUpload) (models.PublicUser, error)
	ListActivity(ctx context.Context, userID primitive.ObjectID, opts repository.PageOptions) (repository.Page[models.Activity], error)
}

type AdminAPI interface {
	ListUsers(ctx context.Context, role models.UserRole, opts repository.PageOptions) (repository.Page[models.PublicUser], error)
	Stats(ctx context.Context) (service.UserStats, error)
}

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Log      zerolog.Logger
	Config   *config.AppConfig
	Auth     AuthAPI
	Profiles ProfileAPI
	Admin    AdminAPI
	Tokens   middleware.AccessTokenParser
	Users    middleware.UserLoader
	Limiter  middleware.Allower
	Checks   map[string]HealthCheck
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     AuthAPI
	profiles ProfileAPI
	admin    AdminAPI
	tokens   middleware.AccessTokenParser
	users    middleware.UserLoader
	limiter  middleware.Allower
	checks   map[string]HealthCheck
	render   response.Renderer
}

func NewHandlerSet(deps Deps) HandlerSet {
	registerValidators()

	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		auth:     deps.Auth,
		profiles: deps.Profiles,
		admin:    deps.Admin,
		tokens:   deps.Tokens,
		users:    deps.Users,
		limiter:  deps.Limiter,
		checks:   deps.Checks,
		render:   response.NewRenderer(deps.Log, !deps.Config.IsProduction()),
	}
}

func (h HandlerSet) Renderer() response.Renderer {
	return h.render
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.limit("login"), h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.GET("/verify-email", h.VerifyEmail)
		auth.POST("/resend-verification", h.limit("resend-verification"), h.ResendVerification)
		auth.POST("/forgot-password", h.limit("forgot-password"), h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
	}

	protected := v1.Group("/auth")
	protected.Use(middleware.Auth(h.tokens, h.users, h.render))
	{
		protected.POST("/logout", h.Logout)
		protected.GET("/profile", h.Profile)
		protected.POST("/profile/avatar", h.UploadAvatar)
		protected.GET("/profile/activity", h.Activity)
	}

	admin := v1.Group("/admin")
	admin.Use(
		middleware.Auth(h.tokens, h.users, h.render),
		middleware.RequireRoles(h.render, models.UserRoleAdmin),
	)
	admin.GET("/users", h.AdminListUsers)
	admin.GET("/users/stats", h.AdminUserStats)
}

func (h HandlerSet) limit(name string) gin.HandlerFunc {
	if h.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(h.limiter, name, h.log, h.render)
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}

func (h HandlerSet) currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		h.render.Error(c, errUnauthenticated)
	}
	return user, ok
}

// bindJSON decodes the body into req, rendering a validation error on
// failure.
func (h HandlerSet) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, io.EOF) {
			h.render.Error(c, errEmptyBody)
			return false
		}
		h.render.Error(c, bindingError(err))
		return false
	}
	return true
}

func ok(c *gin.Context, message string, data interface{}) {
	response.JSON(c, http.StatusOK, message, data)
}
