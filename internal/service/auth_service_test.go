package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/events"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/notify"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/security"
)

type authFixture struct {
	svc      *AuthService
	store    *memoryUserStore
	mailer   *recordingMailer
	activity *recordingActivity
	events   *recordingPublisher
	clock    *testClock
	tokens   *security.TokenService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clock := newTestClock(time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC))
	secCfg := config.SecurityConfig{
		JWTAccessSecret:   "access-secret",
		JWTRefreshSecret:  "refresh-secret",
		JWTAccessTTL:      15 * time.Minute,
		JWTRefreshTTL:     7 * 24 * time.Hour,
		BcryptCost:        bcrypt.MinCost,
		VerificationTTL:   24 * time.Hour,
		ResetTTL:          time.Hour,
		MinPasswordLength: 8,
		ResendCooldown:    time.Minute,
	}

	f := &authFixture{
		store:    newMemoryUserStore(clock),
		mailer:   &recordingMailer{},
		activity: &recordingActivity{},
		events:   &recordingPublisher{},
		clock:    clock,
		tokens:   security.NewTokenService(secCfg).WithClock(clock.Now),
	}
	f.svc = NewAuthService(AuthDeps{
		Users:    f.store,
		Tokens:   f.tokens,
		Hasher:   security.NewPasswordHasher(bcrypt.MinCost),
		Mailer:   f.mailer,
		Composer: notify.NewComposer("TutorHub", "https://app.example.com"),
		Events:   f.events,
		Activity: f.activity,
		Security: secCfg,
		Log:      zerolog.Nop(),
	})
	f.svc.now = clock.Now
	return f
}

func (f *authFixture) register(t *testing.T, email string) models.PublicUser {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "Password123!",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      models.UserRoleTutor,
	})
	require.NoError(t, err)
	return res.User
}

func (f *authFixture) registerVerified(t *testing.T, email string) {
	t.Helper()
	f.register(t, email)
	token := f.store.raw(email).VerificationToken
	_, err := f.svc.VerifyEmail(context.Background(), token, RequestMeta{})
	require.NoError(t, err)
}

func requireAppErr(t *testing.T, err error, kind apperr.Kind, msg string) {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, kind, appErr.Kind)
	assert.Equal(t, msg, appErr.Message)
}

func TestRegisterCreatesUnverifiedUserWithToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, RegisterInput{
		Email:     "Tutor@Example.com",
		Password:  "Password123!",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      "tutor",
	})
	require.NoError(t, err)
	assert.Equal(t, MsgRegistered, res.Message)
	assert.Equal(t, "tutor@example.com", res.User.Email)
	assert.Equal(t, models.UserRoleTutor, res.User.Role)
	assert.False(t, res.User.IsVerified)
	require.NotNil(t, res.User.Tutor)
	assert.Empty(t, res.User.Tutor.Subjects)
	assert.Nil(t, res.User.Student)

	stored := f.store.raw("tutor@example.com")
	assert.False(t, stored.IsVerified)
	assert.Len(t, stored.VerificationToken, 64)
	require.NotNil(t, stored.VerificationTokenExpires)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *stored.VerificationTokenExpires)
	assert.NotEqual(t, "Password123!", stored.PasswordHash)

	found, err := f.store.FindByEmail(ctx, "TUTOR@EXAMPLE.COM")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, stored.ID, found.ID)

	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, "tutor@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].HTML, stored.VerificationToken)
	assert.Equal(t, []models.ActivityKind{models.ActivityRegister}, f.activity.kinds)
	assert.Equal(t, []events.Type{events.UserRegistered}, f.events.types)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "dup@example.com")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "DUP@example.com",
		Password:  "AnotherPass99",
		FirstName: "Other",
		LastName:  "Person",
		Role:      models.UserRoleParent,
	})
	requireAppErr(t, err, apperr.KindConflict, MsgEmailTaken)
	assert.Equal(t, 1, f.mailer.count())
}

func TestRegisterStudentAgePolicy(t *testing.T) {
	dob := func(year int) *time.Time {
		d := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
		return &d
	}
	cases := []struct {
		name    string
		dob     *time.Time
		parent  string
		wantMsg string
	}{
		{"twelve", dob(2014), "p@example.com", MsgStudentAge},
		{"nineteen", dob(2007), "p@example.com", MsgStudentAge},
		{"sixteen without parent", dob(2010), "", MsgParentEmailRequired},
		{"sixteen with parent", dob(2010), "parent@example.com", ""},
		{"thirteen with parent", dob(2013), "parent@example.com", ""},
		{"eighteen without parent", dob(2008), "", ""},
		{"no birth date", nil, "", ""},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAuthFixture(t)
			res, err := f.svc.Register(context.Background(), RegisterInput{
				Email:       strings.Repeat("s", i+1) + "@example.com",
				Password:    "Password123!",
				FirstName:   "Sam",
				LastName:    "Student",
				Role:        models.UserRoleStudent,
				DateOfBirth: tc.dob,
				ParentEmail: tc.parent,
			})
			if tc.wantMsg != "" {
				requireAppErr(t, err, apperr.KindValidation, tc.wantMsg)
				assert.Zero(t, f.mailer.count())
				return
			}
			require.NoError(t, err)
			require.NotNil(t, res.User.Student)
			assert.Empty(t, res.User.Student.AcademicGoals)
			assert.Nil(t, res.User.Tutor)
		})
	}
}

func TestRegisterRejectsWeakPasswordAndUnknownRole(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "short", Role: models.UserRoleParent})
	requireAppErr(t, err, apperr.KindValidation, "Password must be at least 8 characters long")

	_, err = f.svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "Password123!", Role: "JANITOR"})
	requireAppErr(t, err, apperr.KindValidation, "Invalid role")
}

func TestPasswordsBeyondBcryptLimitAreValidationErrors(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	long := strings.Repeat("a", 100)

	_, err := f.svc.Register(ctx, RegisterInput{
		Email:     "long@example.com",
		Password:  long,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      models.UserRoleTutor,
	})
	requireAppErr(t, err, apperr.KindValidation, MsgPasswordTooLong)
	assert.Empty(t, f.store.raw("long@example.com").Email)

	_, err = f.svc.Register(ctx, RegisterInput{
		Email:     "edge@example.com",
		Password:  strings.Repeat("b", MaxPasswordBytes),
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      models.UserRoleTutor,
	})
	require.NoError(t, err)

	f.registerVerified(t, "reset-long@example.com")
	_, err = f.svc.ForgotPassword(ctx, "reset-long@example.com")
	require.NoError(t, err)
	stored := f.store.raw("reset-long@example.com")

	_, err = f.svc.ResetPassword(ctx, stored.ResetPasswordToken, long, RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgPasswordTooLong)
	after := f.store.raw("reset-long@example.com")
	assert.Equal(t, stored.PasswordHash, after.PasswordHash)
	assert.Equal(t, stored.ResetPasswordToken, after.ResetPasswordToken)
	f.svc.Wait()
}

func TestRegisterSurfacesMailFailureWithoutRollback(t *testing.T) {
	f := newAuthFixture(t)
	f.mailer.err = errors.New("smtp down")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "mailfail@example.com", Password: "Password123!", Role: models.UserRoleParent,
	})
	requireAppErr(t, err, apperr.KindInternal, "Internal server error")
	assert.NotEmpty(t, f.store.raw("mailfail@example.com").VerificationToken)
}

func TestRegisterWrapsStoreErrors(t *testing.T) {
	f := newAuthFixture(t)
	f.store.err = errStoreDown

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "x@example.com", Password: "Password123!", Role: models.UserRoleParent})
	requireAppErr(t, err, apperr.KindInternal, "Internal server error")
	assert.ErrorIs(t, err, errStoreDown)
}

func TestLoginRequiresVerification(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "Test@Example.com")

	_, err := f.svc.Login(ctx, LoginInput{Email: "test@example.com", Password: "Password123!"})
	requireAppErr(t, err, apperr.KindUnauthorized, MsgEmailNotVerified)

	token := f.store.raw("test@example.com").VerificationToken
	msg, err := f.svc.VerifyEmail(ctx, token, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, MsgEmailVerified, msg)

	res, err := f.svc.Login(ctx, LoginInput{Email: "TEST@EXAMPLE.COM", Password: "Password123!"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.Equal(t, "test@example.com", res.User.Email)

	claims, err := f.tokens.ParseAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)

	f.svc.Wait()
	lastLogin := f.store.raw("test@example.com").LastLoginAt
	require.NotNil(t, lastLogin)
	assert.Equal(t, f.clock.Now(), *lastLogin)
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	f := newAuthFixture(t)
	f.registerVerified(t, "known@example.com")

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "unknown@example.com", Password: "Password123!"})
	requireAppErr(t, err, apperr.KindUnauthorized, MsgInvalidCredentials)

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "known@example.com", Password: "WrongPassword1"})
	requireAppErr(t, err, apperr.KindUnauthorized, MsgInvalidCredentials)
}

func TestVerifyEmailIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "once@example.com")
	token := f.store.raw("once@example.com").VerificationToken

	msg, err := f.svc.VerifyEmail(ctx, token, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, MsgEmailVerified, msg)

	stored := f.store.raw("once@example.com")
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.VerificationToken)
	assert.Nil(t, stored.VerificationTokenExpires)

	_, err = f.svc.VerifyEmail(ctx, token, RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgInvalidVerificationToken)
}

func TestVerifyEmailConcurrentCallsConsumeOnce(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "race@example.com")
	token := f.store.raw("race@example.com").VerificationToken

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := f.svc.VerifyEmail(context.Background(), token, RequestMeta{})
			if err == nil && msg == MsgEmailVerified {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestVerifyEmailRejectsMissingAndExpiredTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyEmail(ctx, "", RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgVerificationTokenRequired)

	f.register(t, "late@example.com")
	token := f.store.raw("late@example.com").VerificationToken
	f.clock.Advance(25 * time.Hour)

	_, err = f.svc.VerifyEmail(ctx, token, RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgInvalidVerificationToken)
	assert.False(t, f.store.raw("late@example.com").IsVerified)
}

func TestVerifyEmailAlreadyVerifiedLeavesRecordUntouched(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "kept@example.com")
	f.store.mutate("kept@example.com", func(u *models.User) { u.IsVerified = true })
	before := f.store.raw("kept@example.com")

	msg, err := f.svc.VerifyEmail(context.Background(), before.VerificationToken, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, MsgEmailAlreadyVerified, msg)
	assert.Equal(t, before, f.store.raw("kept@example.com"))
}

func TestResendVerificationEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	msg, err := f.svc.ResendVerificationEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgVerificationSent, msg)
	assert.Zero(t, f.mailer.count())

	f.register(t, "pending@example.com")
	first := f.store.raw("pending@example.com").VerificationToken

	_, err = f.svc.ResendVerificationEmail(ctx, "pending@example.com")
	requireAppErr(t, err, apperr.KindTooManyRequests, MsgResendTooSoon)

	f.clock.Advance(2 * time.Minute)
	msg, err = f.svc.ResendVerificationEmail(ctx, "PENDING@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgVerificationSent, msg)
	assert.Equal(t, 2, f.mailer.count())

	second := f.store.raw("pending@example.com").VerificationToken
	assert.NotEqual(t, first, second)

	_, err = f.svc.VerifyEmail(ctx, first, RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgInvalidVerificationToken)
	_, err = f.svc.VerifyEmail(ctx, second, RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.ResendVerificationEmail(ctx, "pending@example.com")
	requireAppErr(t, err, apperr.KindValidation, MsgAlreadyVerified)
}

func TestForgotPasswordRespondsIdentically(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "known@example.com")
	mailsBefore := f.mailer.count()

	unknown, err := f.svc.ForgotPassword(ctx, "unknown@example.com")
	require.NoError(t, err)
	assert.Equal(t, mailsBefore, f.mailer.count())

	known, err := f.svc.ForgotPassword(ctx, "known@example.com")
	require.NoError(t, err)
	assert.Equal(t, unknown, known)
	assert.Equal(t, MsgResetLinkSent, known)
	assert.Equal(t, mailsBefore+1, f.mailer.count())

	stored := f.store.raw("known@example.com")
	assert.Len(t, stored.ResetPasswordToken, 64)
	require.NotNil(t, stored.ResetPasswordExpires)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *stored.ResetPasswordExpires)
}

func TestForgotPasswordHidesMailFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.registerVerified(t, "known@example.com")
	f.mailer.err = errors.New("smtp down")

	msg, err := f.svc.ForgotPassword(context.Background(), "known@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgResetLinkSent, msg)
}

func TestResetPasswordFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "reset@example.com")

	_, err := f.svc.ForgotPassword(ctx, "reset@example.com")
	require.NoError(t, err)
	stored := f.store.raw("reset@example.com")
	token := stored.ResetPasswordToken

	_, err = f.svc.ResetPassword(ctx, "", "NewPassword123!", RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgResetTokenRequired)

	_, err = f.svc.ResetPassword(ctx, token, "short", RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, "Password must be at least 8 characters long")
	assert.Equal(t, stored.PasswordHash, f.store.raw("reset@example.com").PasswordHash)

	msg, err := f.svc.ResetPassword(ctx, token, "NewPassword123!", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, MsgPasswordReset, msg)

	after := f.store.raw("reset@example.com")
	assert.Empty(t, after.ResetPasswordToken)
	assert.Nil(t, after.ResetPasswordExpires)

	_, err = f.svc.Login(ctx, LoginInput{Email: "reset@example.com", Password: "Password123!"})
	requireAppErr(t, err, apperr.KindUnauthorized, MsgInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginInput{Email: "reset@example.com", Password: "NewPassword123!"})
	require.NoError(t, err)

	_, err = f.svc.ResetPassword(ctx, token, "AnotherPass123!", RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgInvalidResetToken)
	f.svc.Wait()
}

func TestResetPasswordRejectsExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "slow@example.com")
	_, err := f.svc.ForgotPassword(ctx, "slow@example.com")
	require.NoError(t, err)
	token := f.store.raw("slow@example.com").ResetPasswordToken

	f.clock.Advance(61 * time.Minute)
	_, err = f.svc.ResetPassword(ctx, token, "NewPassword123!", RequestMeta{})
	requireAppErr(t, err, apperr.KindValidation, MsgInvalidResetToken)
}

func TestRefreshTokenRotatesPair(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "refresh@example.com")

	login, err := f.svc.Login(ctx, LoginInput{Email: "refresh@example.com", Password: "Password123!"})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	pair, err := f.svc.RefreshToken(ctx, login.Tokens.RefreshToken, RequestMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.AccessToken, pair.AccessToken)
	assert.NotEqual(t, login.Tokens.RefreshToken, pair.RefreshToken)

	claims, err := f.tokens.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, claims.Subject)
	f.svc.Wait()
}

func TestRefreshTokenFailuresCollapse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, "unverified@example.com")

	unverified, err := f.tokens.GenerateTokens(user.ID)
	require.NoError(t, err)
	stranger, err := f.tokens.GenerateTokens("64b7f0c2e13f4a0001a2b3c4")
	require.NoError(t, err)
	garbage, err := f.tokens.GenerateTokens("not-an-object-id")
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"malformed":         "definitely.not.a.jwt",
		"empty":             "",
		"access as refresh": unverified.AccessToken,
		"unverified user":   unverified.RefreshToken,
		"unknown user":      stranger.RefreshToken,
		"bad subject":       garbage.RefreshToken,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RefreshToken(ctx, raw, RequestMeta{})
			requireAppErr(t, err, apperr.KindUnauthorized, MsgInvalidRefreshToken)
		})
	}

	f.clock.Advance(8 * 24 * time.Hour)
	f.store.mutate("unverified@example.com", func(u *models.User) { u.IsVerified = true })
	_, err = f.svc.RefreshToken(ctx, unverified.RefreshToken, RequestMeta{})
	requireAppErr(t, err, apperr.KindUnauthorized, MsgInvalidRefreshToken)
}

func TestSideEffectFailuresDoNotFailFlows(t *testing.T) {
	f := newAuthFixture(t)
	f.activity.err = errors.New("postgres down")
	f.events.err = errors.New("kafka down")

	f.registerVerified(t, "best-effort@example.com")
	_, err := f.svc.Login(context.Background(), LoginInput{Email: "best-effort@example.com", Password: "Password123!"})
	require.NoError(t, err)
	f.svc.Wait()
}

func TestTrackedTransitions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "track@example.com")

	login, err := f.svc.Login(ctx, LoginInput{Email: "track@example.com", Password: "Password123!"})
	require.NoError(t, err)
	_, err = f.svc.RefreshToken(ctx, login.Tokens.RefreshToken, RequestMeta{})
	require.NoError(t, err)
	user, err := f.store.FindByEmail(ctx, "track@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgLoggedOut, f.svc.Logout(ctx, user, RequestMeta{IPAddress: "10.0.0.1"}))
	f.svc.Wait()

	assert.Equal(t, []models.ActivityKind{
		models.ActivityRegister,
		models.ActivityVerifyEmail,
		models.ActivityLogin,
		models.ActivityTokenRefresh,
		models.ActivityLogout,
	}, f.activity.kinds)
	assert.Equal(t, []events.Type{
		events.UserRegistered,
		events.UserVerified,
		events.UserLoggedIn,
	}, f.events.types)
}
