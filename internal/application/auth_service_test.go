package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/testfixtures"
)

func newAuthServiceForTest(t *testing.T, env serviceEnv) *AuthService {
	t.Helper()
	tokens, err := NewTokenIssuer("test-secret", env.clock.NowFunc())
	require.NoError(t, err)
	svc := NewAuthServiceWithLogger(env.harness.Users, env.harness.Sessions, tokens, env.ids.NextFunc(), env.clock.NowFunc(), time.Hour, discardLogger())
	svc.hashPassword = func(password string) (string, error) {
		return CreatePasswordHash(password, testArgonParams)
	}
	return svc
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	t.Run("issues sessions for valid credentials", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t)
		user := env.harness.SeedUser(t, testfixtures.WithUserEmail("hanako@example.com"), testfixtures.WithUserPasswordHash(testHash(t, "passw0rd")))
		svc := newAuthServiceForTest(t, env)
		ctx := context.Background()

		result, err := svc.Login(ctx, LoginInput{Email: " Hanako@Example.com ", Password: "passw0rd"}, " Mozilla ")
		require.NoError(t, err)
		require.NotNil(t, result.User)
		assert.False(t, result.TwoFactorRequired)
		assert.Equal(t, user.ID, result.User.ID)
		assert.NotEmpty(t, result.Token)
		require.NotNil(t, result.ExpiresAt)
		assert.Equal(t, env.clock.Now().Add(time.Hour), *result.ExpiresAt)

		principal, err := svc.Authenticate(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, principal.UserID)
		assert.Equal(t, RoleEmployee, principal.Role)

		session, err := env.harness.Sessions.GetSession(ctx, principal.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "Mozilla", session.UserAgent)
	})

	t.Run("rejects invalid credentials with sentinel error", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t)
		env.harness.SeedUser(t, testfixtures.WithUserEmail("taro@example.com"), testfixtures.WithUserPasswordHash(testHash(t, "passw0rd")))
		svc := newAuthServiceForTest(t, env)

		_, err := svc.Login(context.Background(), LoginInput{Email: "taro@example.com", Password: "wrong"}, "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "passw0rd"}, "")
		assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown email")
		assert.Equal(t, KindUnauthorized, KindOf(err))
	})

	t.Run("rejects disabled accounts", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t)
		env.harness.SeedUser(t, testfixtures.WithUserEmail("gone@example.com"), testfixtures.WithUserPasswordHash(testHash(t, "passw0rd")), testfixtures.Inactive())
		svc := newAuthServiceForTest(t, env)

		_, err := svc.Login(context.Background(), LoginInput{Email: "gone@example.com", Password: "passw0rd"}, "")
		assert.ErrorIs(t, err, ErrAccountDisabled)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t)
		svc := newAuthServiceForTest(t, env)

		_, err := svc.Login(context.Background(), LoginInput{Email: "not-an-email"}, "")
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "email")
		assert.Contains(t, vErr.FieldErrors, "password")
	})
}

func TestAuthService_SessionLifecycle(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	env.harness.SeedUser(t, testfixtures.WithUserEmail("life@example.com"), testfixtures.WithUserPasswordHash(testHash(t, "passw0rd")))
	svc := newAuthServiceForTest(t, env)
	ctx := context.Background()

	first, err := svc.Login(ctx, LoginInput{Email: "life@example.com", Password: "passw0rd"}, "")
	require.NoError(t, err)
	principal, err := svc.Authenticate(ctx, first.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, principal))
	_, err = svc.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	second, err := svc.Login(ctx, LoginInput{Email: "life@example.com", Password: "passw0rd"}, "")
	require.NoError(t, err)
	env.clock.Advance(2 * time.Hour)
	_, err = svc.Authenticate(ctx, second.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	removed, err := svc.PruneSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthService_TwoFactor(t *testing.T) {
	t.Parallel()

	t.Run("admin enrolls and logs in with a code", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t)
		admin := env.harness.SeedUser(t, testfixtures.WithAdminRole(), testfixtures.WithUserEmail("root@example.com"), testfixtures.WithUserPasswordHash(testHash(t, "passw0rd")))
		svc := newAuthServiceForTest(t, env)
		ctx := context.Background()

		setup, err := svc.SetupTwoFactor(ctx, principalOf(admin))
		require.NoError(t, err)
		assert.NotEmpty(t, setup.Secret)
		assert.Contains(t, setup.URI, "otpauth://totp/HRMS:root@example.com")
		assert.Contains(t, setup.URI, "secret="+setup.Secret)

		code := totpCode(t, setup.Secret, env.clock.Now())
		err = svc.EnableTwoFactor(ctx, principalOf(admin), EnableTwoFactorInput{Code: invalidCode(t, setup.Secret, env.clock.Now())})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "code is invalid", vErr.FieldErrors["code"])

		require.NoError(t, svc.EnableTwoFactor(ctx, principalOf(admin), EnableTwoFactorInput{Code: code}))

		login, err := svc.Login(ctx, LoginInput{Email: "root@example.com", Password: "passw0rd"}, "")
		require.NoError(t, err)
		assert.True(t, login.TwoFactorRequired)
		assert.Empty(t, login.Token)
		require.NotEmpty(t, login.ChallengeToken)

		_, err = svc.Authenticate(ctx, login.ChallengeToken)
		assert.ErrorIs(t, err, ErrUnauthenticated)

		env.clock.Advance(time.Minute)
		code = totpCode(t, setup.Secret, env.clock.Now())
		verified, err := svc.VerifyTwoFactor(ctx, VerifyTwoFactorInput{ChallengeToken: login.ChallengeToken, Code: code}, "")
		require.NoError(t, err)
		require.NotNil(t, verified.User)
		assert.Equal(t, admin.ID, verified.User.ID)
		assert.True(t, verified.User.TwoFactorEnabled)

		_, err = svc.VerifyTwoFactor(ctx, VerifyTwoFactorInput{ChallengeToken: login.ChallengeToken, Code: invalidCode(t, setup.Secret, env.clock.Now())}, "")
		assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)

		require.NoError(t, svc.DisableTwoFactor(ctx, principalOf(admin), DisableTwoFactorInput{Password: "passw0rd"}))
		login, err = svc.Login(ctx, LoginInput{Email: "root@example.com", Password: "passw0rd"}, "")
		require.NoError(t, err)
		assert.False(t, login.TwoFactorRequired)
	})

	t.Run("employees cannot enroll", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t)
		employee := env.harness.SeedUser(t)
		svc := newAuthServiceForTest(t, env)

		_, err := svc.SetupTwoFactor(context.Background(), principalOf(employee))
		assert.Equal(t, KindForbidden, KindOf(err))
	})

	t.Run("challenge tokens expire", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t)
		admin := env.harness.SeedUser(t, testfixtures.WithAdminRole(), testfixtures.WithUserEmail("late@example.com"), testfixtures.WithUserPasswordHash(testHash(t, "passw0rd")))
		svc := newAuthServiceForTest(t, env)
		ctx := context.Background()

		setup, err := svc.SetupTwoFactor(ctx, principalOf(admin))
		require.NoError(t, err)
		code := totpCode(t, setup.Secret, env.clock.Now())
		require.NoError(t, svc.EnableTwoFactor(ctx, principalOf(admin), EnableTwoFactorInput{Code: code}))

		login, err := svc.Login(ctx, LoginInput{Email: "late@example.com", Password: "passw0rd"}, "")
		require.NoError(t, err)

		env.clock.Advance(10 * time.Minute)
		code = totpCode(t, setup.Secret, env.clock.Now())
		_, err = svc.VerifyTwoFactor(ctx, VerifyTwoFactorInput{ChallengeToken: login.ChallengeToken, Code: code}, "")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	user := env.harness.SeedUser(t, testfixtures.WithUserEmail("change@example.com"), testfixtures.WithUserPasswordHash(testHash(t, "passw0rd")))
	svc := newAuthServiceForTest(t, env)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, principalOf(user), ChangePasswordInput{CurrentPassword: "wrong", NewPassword: "newpass12"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "current password is incorrect", vErr.FieldErrors["currentPassword"])

	err = svc.ChangePassword(ctx, principalOf(user), ChangePasswordInput{CurrentPassword: "passw0rd", NewPassword: "short"})
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "newPassword")

	require.NoError(t, svc.ChangePassword(ctx, principalOf(user), ChangePasswordInput{CurrentPassword: "passw0rd", NewPassword: "newpass12"}))
	_, err = svc.Login(ctx, LoginInput{Email: "change@example.com", Password: "newpass12"}, "")
	require.NoError(t, err)

	me, err := svc.Me(ctx, principalOf(user))
	require.NoError(t, err)
	assert.Equal(t, "change@example.com", me.Email)

	_, err = svc.Me(ctx, Principal{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

// invalidCode returns a well-formed code that VerifyTOTP rejects at the given instant.
func invalidCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !VerifyTOTP(secret, candidate, at) {
			return candidate
		}
	}
	require.FailNow(t, "no rejected code candidate")
	return ""
}
