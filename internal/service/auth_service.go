package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/events"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/metrics"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/notify"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/repository"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/security"
)

// User-facing messages. The anti-enumeration ones must not vary with
// whether the account exists.
const (
	MsgRegistered                = "Registration successful. Please check your email to verify your account."
	MsgEmailTaken                = "User with this email already exists"
	MsgStudentAge                = "Students must be between 13 and 18 years old"
	MsgParentEmailRequired       = "Parent email is required for students under 18"
	MsgInvalidCredentials        = "Invalid email or password"
	MsgEmailNotVerified          = "Please verify your email before logging in"
	MsgLoginSuccess              = "Login successful"
	MsgVerificationTokenRequired = "Verification token is required"
	MsgInvalidVerificationToken  = "Invalid or expired verification token"
	MsgEmailVerified             = "Email verified successfully"
	MsgEmailAlreadyVerified      = "Email already verified"
	MsgVerificationSent          = "If an account with that email exists, a verification email has been sent"
	MsgAlreadyVerified           = "Email is already verified"
	MsgResendTooSoon             = "Please wait before requesting another verification email"
	MsgResetLinkSent             = "If an account with that email exists, a password reset link has been sent"
	MsgResetTokenRequired        = "Reset token is required"
	MsgInvalidResetToken         = "Invalid or expired reset token"
	MsgPasswordReset             = "Password reset successfully"
	MsgInvalidRefreshToken       = "Invalid refresh token"
	MsgTokenRefreshed            = "Token refreshed successfully"
	MsgLoggedOut                 = "Logged out successfully"
	MsgPasswordTooLong           = "Password must be at most 72 bytes"
)

const (
	tokenBytes       = 32
	lastLoginTimeout = 5 * time.Second
	minStudentAge    = 13
	maxStudentAge    = 18
)

// UserStore is the identity persistence the auth flows need. Lookups return
// (nil, nil) when nothing matches; the token-consuming updates return nil
// when the token no longer matches or has expired.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmailWithPassword(ctx context.Context, email string) (*models.User, error)
	FindByEmailWithVerification(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	VerifyUserEmail(ctx context.Context, id primitive.ObjectID, token string) (*models.User, error)
	UpdateVerificationToken(ctx context.Context, id primitive.ObjectID, token string, expires time.Time) (*models.User, error)
	FindByResetPasswordToken(ctx context.Context, token string) (*models.User, error)
	UpdateResetPasswordToken(ctx context.Context, id primitive.ObjectID, token string, expires time.Time) (*models.User, error)
	ResetPassword(ctx context.Context, id primitive.ObjectID, token string, passwordHash string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, activity models.Activity) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// RequestMeta identifies the client behind a call for the activity ledger.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type AuthDeps struct {
	Users    UserStore
	Tokens   *security.TokenService
	Hasher   *security.PasswordHasher
	Mailer   notify.Mailer
	Composer *notify.Composer
	Events   EventPublisher
	Activity ActivityRecorder
	Security config.SecurityConfig
	Log      zerolog.Logger
}

type AuthService struct {
	users    UserStore
	tokens   *security.TokenService
	hasher   *security.PasswordHasher
	mailer   notify.Mailer
	composer *notify.Composer
	events   EventPublisher
	activity ActivityRecorder
	cfg      config.SecurityConfig
	log      zerolog.Logger
	now      func() time.Time

	background sync.WaitGroup
	dummyOnce  sync.Once
	dummyHash  string
}

func NewAuthService(deps AuthDeps) *AuthService {
	return &AuthService{
		users:    deps.Users,
		tokens:   deps.Tokens,
		hasher:   deps.Hasher,
		mailer:   deps.Mailer,
		composer: deps.Composer,
		events:   deps.Events,
		activity: deps.Activity,
		cfg:      deps.Security,
		log:      deps.Log,
		now:      time.Now,
	}
}

// Wait blocks until best-effort background writes have finished.
func (s *AuthService) Wait() {
	s.background.Wait()
}

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Role        models.UserRole
	DateOfBirth *time.Time
	ParentEmail string
	Meta        RequestMeta
}

type RegisterResult struct {
	User    models.PublicUser
	Message string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (result RegisterResult, err error) {
	defer observe("register", &err)

	email := models.NormalizeEmail(input.Email)
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return RegisterResult{}, apperr.Internal(err)
	}
	if exists {
		return RegisterResult{}, apperr.Conflict(MsgEmailTaken)
	}

	role, err := models.ParseUserRole(string(input.Role))
	if err != nil {
		return RegisterResult{}, apperr.Validation("Invalid role")
	}
	input.Role = role

	now := s.now()
	if err := checkStudentPolicy(input, now); err != nil {
		return RegisterResult{}, err
	}
	if err := s.checkPasswordStrength(input.Password); err != nil {
		return RegisterResult{}, err
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return RegisterResult{}, apperr.Internal(err)
	}
	token, err := security.RandomHex(tokenBytes)
	if err != nil {
		return RegisterResult{}, apperr.Internal(err)
	}
	expires := now.Add(s.cfg.VerificationTTL)

	user := models.NewUser(models.NewUserInput{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         input.Role,
		DateOfBirth:  input.DateOfBirth,
		ParentEmail:  input.ParentEmail,
	}, now)
	user.VerificationToken = token
	user.VerificationTokenExpires = &expires

	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return RegisterResult{}, apperr.Conflict(MsgEmailTaken)
		}
		if errors.Is(err, models.ErrRoleProfileMismatch) {
			return RegisterResult{}, apperr.Validation(err.Error())
		}
		return RegisterResult{}, apperr.Internal(err)
	}

	if err := s.sendVerification(ctx, created.Email, created.FirstName, token); err != nil {
		s.log.Error().Err(err).Str("user_id", created.ID.Hex()).Msg("verification email failed after registration")
		return RegisterResult{}, apperr.Internal(err)
	}

	s.log.Info().Str("user_id", created.ID.Hex()).Str("role", string(created.Role)).Msg("user registered")
	s.track(ctx, created, models.ActivityRegister, events.UserRegistered, input.Meta)

	return RegisterResult{User: created.Public(), Message: MsgRegistered}, nil
}

// checkStudentPolicy applies the student age window and the parental
// contact rule for minors. Age counts birth years only.
func checkStudentPolicy(input RegisterInput, now time.Time) error {
	if input.Role != models.UserRoleStudent || input.DateOfBirth == nil {
		return nil
	}
	age := models.AgeInYears(*input.DateOfBirth, now)
	if age < minStudentAge || age > maxStudentAge {
		return apperr.Validation(MsgStudentAge)
	}
	if age < maxStudentAge && models.NormalizeEmail(input.ParentEmail) == "" {
		return apperr.Validation(MsgParentEmailRequired)
	}
	return nil
}

// MaxPasswordBytes is the longest input bcrypt will hash.
const MaxPasswordBytes = 72

func (s *AuthService) checkPasswordStrength(password string) error {
	if len(password) < s.cfg.MinPasswordLength {
		return apperr.Validation(weakPasswordMessage(s.cfg.MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return apperr.Validation(MsgPasswordTooLong)
	}
	return nil
}

func weakPasswordMessage(minLength int) string {
	return fmt.Sprintf("Password must be at least %d characters long", minLength)
}

type LoginInput struct {
	Email    string
	Password string
	Meta     RequestMeta
}

type LoginResult struct {
	User   models.PublicUser
	Tokens security.TokenPair
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (result LoginResult, err error) {
	defer observe("login", &err)

	user, err := s.users.FindByEmailWithPassword(ctx, input.Email)
	if err != nil {
		return LoginResult{}, apperr.Internal(err)
	}
	if user == nil {
		// Burn a comparison so unknown emails cost the same as bad passwords.
		s.hasher.Compare(input.Password, s.dummyPasswordHash())
		return LoginResult{}, apperr.Unauthorized(MsgInvalidCredentials)
	}
	if !s.hasher.Compare(input.Password, user.PasswordHash) {
		return LoginResult{}, apperr.Unauthorized(MsgInvalidCredentials)
	}
	if !user.IsVerified {
		return LoginResult{}, apperr.Unauthorized(MsgEmailNotVerified)
	}

	s.touchLastLogin(user.ID)

	tokens, err := s.tokens.GenerateTokens(user.ID.Hex())
	if err != nil {
		return LoginResult{}, apperr.Internal(err)
	}

	s.track(ctx, user, models.ActivityLogin, events.UserLoggedIn, input.Meta)
	return LoginResult{User: user.Public(), Tokens: tokens}, nil
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("tutorhub-dummy-password")
		if err != nil {
			s.log.Warn().Err(err).Msg("dummy password hash failed")
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// touchLastLogin records the login time without holding up the response.
func (s *AuthService) touchLastLogin(id primitive.ObjectID) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), lastLoginTimeout)
		defer cancel()
		if _, err := s.users.UpdateLastLogin(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("user_id", id.Hex()).Msg("update last login failed")
		}
	}()
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string, meta RequestMeta) (msg string, err error) {
	defer observe("verify_email", &err)

	if token == "" {
		return "", apperr.Validation(MsgVerificationTokenRequired)
	}

	user, err := s.users.FindByVerificationToken(ctx, token)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if user == nil {
		return "", apperr.Validation(MsgInvalidVerificationToken)
	}
	if user.IsVerified {
		return MsgEmailAlreadyVerified, nil
	}

	verified, err := s.users.VerifyUserEmail(ctx, user.ID, token)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if verified == nil {
		// Another request consumed the token first.
		return "", apperr.Validation(MsgInvalidVerificationToken)
	}

	s.log.Info().Str("user_id", verified.ID.Hex()).Msg("email verified")
	s.track(ctx, verified, models.ActivityVerifyEmail, events.UserVerified, meta)
	return MsgEmailVerified, nil
}

func (s *AuthService) ResendVerificationEmail(ctx context.Context, email string) (msg string, err error) {
	defer observe("resend_verification", &err)

	user, err := s.users.FindByEmailWithVerification(ctx, email)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if user == nil {
		return MsgVerificationSent, nil
	}
	if user.IsVerified {
		return "", apperr.Validation(MsgAlreadyVerified)
	}

	now := s.now()
	if user.VerificationTokenExpires != nil && s.cfg.ResendCooldown > 0 {
		sentAt := user.VerificationTokenExpires.Add(-s.cfg.VerificationTTL)
		if now.Sub(sentAt) < s.cfg.ResendCooldown {
			return "", apperr.TooManyRequests(MsgResendTooSoon)
		}
	}

	token, err := security.RandomHex(tokenBytes)
	if err != nil {
		return "", apperr.Internal(err)
	}
	updated, err := s.users.UpdateVerificationToken(ctx, user.ID, token, now.Add(s.cfg.VerificationTTL))
	if err != nil {
		return "", apperr.Internal(err)
	}
	if updated == nil {
		return MsgVerificationSent, nil
	}

	if err := s.sendVerification(ctx, updated.Email, updated.FirstName, token); err != nil {
		s.log.Error().Err(err).Str("user_id", updated.ID.Hex()).Msg("resend verification email failed")
		return "", apperr.Internal(err)
	}
	return MsgVerificationSent, nil
}

// ForgotPassword answers identically whether or not the account exists. A
// failed reset email is logged rather than surfaced for the same reason.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (msg string, err error) {
	defer observe("forgot_password", &err)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if user == nil {
		return MsgResetLinkSent, nil
	}

	token, err := security.RandomHex(tokenBytes)
	if err != nil {
		return "", apperr.Internal(err)
	}
	updated, err := s.users.UpdateResetPasswordToken(ctx, user.ID, token, s.now().Add(s.cfg.ResetTTL))
	if err != nil {
		return "", apperr.Internal(err)
	}
	if updated == nil {
		return MsgResetLinkSent, nil
	}

	if err := s.sendPasswordReset(ctx, updated.Email, updated.FirstName, token); err != nil {
		s.log.Error().Err(err).Str("user_id", updated.ID.Hex()).Msg("password reset email failed")
	}
	return MsgResetLinkSent, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) (msg string, err error) {
	defer observe("reset_password", &err)

	if token == "" {
		return "", apperr.Validation(MsgResetTokenRequired)
	}
	if err := s.checkPasswordStrength(newPassword); err != nil {
		return "", err
	}

	user, err := s.users.FindByResetPasswordToken(ctx, token)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if user == nil {
		return "", apperr.Validation(MsgInvalidResetToken)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", apperr.Internal(err)
	}
	updated, err := s.users.ResetPassword(ctx, user.ID, token, passwordHash)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if updated == nil {
		return "", apperr.Validation(MsgInvalidResetToken)
	}

	s.log.Info().Str("user_id", updated.ID.Hex()).Msg("password reset")
	s.track(ctx, updated, models.ActivityPasswordReset, events.UserPasswordReset, meta)
	return MsgPasswordReset, nil
}

// RefreshToken rotates both tokens. Every failure, including an unknown or
// unverified user, reads as an invalid refresh token.
func (s *AuthService) RefreshToken(ctx context.Context, raw string, meta RequestMeta) (pair security.TokenPair, err error) {
	defer observe("refresh_token", &err)

	claims, err := s.tokens.ParseRefreshToken(raw)
	if err != nil {
		return security.TokenPair{}, apperr.Unauthorized(MsgInvalidRefreshToken)
	}
	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return security.TokenPair{}, apperr.Unauthorized(MsgInvalidRefreshToken)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return security.TokenPair{}, apperr.Internal(err)
	}
	if user == nil || !user.IsVerified {
		return security.TokenPair{}, apperr.Unauthorized(MsgInvalidRefreshToken)
	}

	pair, err = s.tokens.GenerateTokens(user.ID.Hex())
	if err != nil {
		return security.TokenPair{}, apperr.Internal(err)
	}
	s.track(ctx, user, models.ActivityTokenRefresh, "", meta)
	return pair, nil
}

// Logout is stateless: clients discard their tokens. Only the ledger entry
// is written here.
func (s *AuthService) Logout(ctx context.Context, user *models.User, meta RequestMeta) string {
	s.track(ctx, user, models.ActivityLogout, "", meta)
	return MsgLoggedOut
}

func (s *AuthService) sendVerification(ctx context.Context, to, firstName, token string) error {
	msg, err := s.composer.VerificationEmail(to, firstName, token, s.cfg.VerificationTTL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	metrics.EmailsTotal.WithLabelValues("verification", metrics.Outcome(err)).Inc()
	return err
}

func (s *AuthService) sendPasswordReset(ctx context.Context, to, firstName, token string) error {
	msg, err := s.composer.PasswordResetEmail(to, firstName, token, s.cfg.ResetTTL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	metrics.EmailsTotal.WithLabelValues("password_reset", metrics.Outcome(err)).Inc()
	return err
}

// track writes the activity row and publishes the event. Both are
// best-effort; failures are logged only.
func (s *AuthService) track(ctx context.Context, user *models.User, kind models.ActivityKind, eventType events.Type, meta RequestMeta) {
	if user == nil {
		return
	}
	userID := user.ID.Hex()

	if s.activity != nil {
		err := s.activity.Record(ctx, models.Activity{
			UserID:    userID,
			Kind:      kind,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			CreatedAt: s.now(),
		})
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Str("kind", string(kind)).Msg("record activity failed")
		}
	}

	if s.events != nil && eventType != "" {
		event := events.New(eventType, userID, user.Email, string(user.Role), s.now())
		if err := s.events.Publish(ctx, event); err != nil {
			metrics.EventPublishErrorsTotal.Inc()
			s.log.Warn().Err(err).Str("user_id", userID).Str("event", string(eventType)).Msg("publish event failed")
		}
	}
}

func observe(operation string, errp *error) {
	outcome := metrics.OutcomeSuccess
	if *errp != nil {
		var appErr *apperr.Error
		if errors.As(*errp, &appErr) {
			outcome = string(appErr.Kind)
		} else {
			outcome = metrics.OutcomeFailure
		}
	}
	metrics.AuthOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
