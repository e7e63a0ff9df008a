package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/persistence"
	"github.com/example/hrms/internal/testfixtures"
)

func newEmployeeServiceForTest(env serviceEnv) *EmployeeService {
	svc := NewEmployeeServiceWithLogger(env.harness.Users, env.harness.Sessions, env.harness.Payroll, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())
	svc.hashPassword = func(password string) (string, error) {
		return CreatePasswordHash(password, testArgonParams)
	}
	return svc
}

func ptr[T any](v T) *T { return &v }

func TestEmployeeService_CreateAndList(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t, testfixtures.WithUserDepartment("Sales"))
	env.harness.SeedUser(t, testfixtures.Inactive())
	svc := newEmployeeServiceForTest(env)
	ctx := context.Background()

	_, err := svc.Create(ctx, principalOf(admin), CreateEmployeeInput{Email: "new@example.com", Name: "New", Password: "short"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "password")

	created, err := svc.Create(ctx, principalOf(admin), CreateEmployeeInput{
		Email: " New@Example.com ", Name: "New Hire", Password: "welcome123", Department: "Sales", HireDate: "2025-01-06", BaseSalary: 280000,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", created.Email)
	assert.Equal(t, RoleEmployee, created.Role)

	stored, err := env.harness.Users.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, VerifyPassword(stored.PasswordHash, "welcome123"))

	_, err = svc.Create(ctx, principalOf(admin), CreateEmployeeInput{Email: "new@example.com", Name: "Dup", Password: "welcome123"})
	assert.Equal(t, KindConflict, KindOf(err))
	_, err = svc.Create(ctx, principalOf(alice), CreateEmployeeInput{Email: "x@example.com", Name: "X", Password: "welcome123"})
	assert.Equal(t, KindForbidden, KindOf(err))

	all, err := svc.List(ctx, principalOf(admin), ListEmployeesInput{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	sales, err := svc.List(ctx, principalOf(admin), ListEmployeesInput{Department: "Sales"})
	require.NoError(t, err)
	assert.Len(t, sales, 2)
	_, err = svc.List(ctx, principalOf(alice), ListEmployeesInput{})
	assert.Equal(t, KindForbidden, KindOf(err))

	directory, err := svc.Directory(ctx, principalOf(alice), ListEmployeesInput{})
	require.NoError(t, err)
	assert.Len(t, directory, 3)

	_, err = svc.Get(ctx, principalOf(alice), admin.ID)
	assert.Equal(t, KindForbidden, KindOf(err))
	entry, err := svc.DirectoryEntry(ctx, principalOf(alice), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.Email, entry.Email)

	profile, err := svc.Profile(ctx, principalOf(alice))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, profile.ID)
}

func TestEmployeeService_UpdatePermissions(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	bob := env.harness.SeedUser(t)
	svc := newEmployeeServiceForTest(env)
	ctx := context.Background()

	self, err := svc.Update(ctx, principalOf(alice), UpdateEmployeeInput{ID: alice.ID, Name: ptr(" Alice A. "), Phone: ptr("090-0000-0000")})
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", self.Name)
	assert.Equal(t, "090-0000-0000", self.Phone)
	assert.Equal(t, alice.Department, self.Department)

	_, err = svc.Update(ctx, principalOf(alice), UpdateEmployeeInput{ID: alice.ID, BaseSalary: ptr(999999.0)})
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = svc.Update(ctx, principalOf(alice), UpdateEmployeeInput{ID: bob.ID, Name: ptr("Bob")})
	assert.Equal(t, KindForbidden, KindOf(err))

	promoted, err := svc.Update(ctx, principalOf(admin), UpdateEmployeeInput{ID: bob.ID, Role: ptr(RoleAdmin), Position: ptr("Lead"), BaseSalary: ptr(450000.0)})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, promoted.Role)
	assert.Equal(t, 450000.0, promoted.BaseSalary)

	_, err = svc.Update(ctx, principalOf(admin), UpdateEmployeeInput{ID: bob.ID, Email: ptr(alice.Email)})
	assert.Equal(t, KindConflict, KindOf(err))

	_, err = svc.Update(ctx, principalOf(admin), UpdateEmployeeInput{ID: admin.ID, Active: ptr(false)})
	assert.Equal(t, KindBadRequest, KindOf(err))
}

func TestEmployeeService_DeactivateRevokesSessions(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	svc := newEmployeeServiceForTest(env)
	ctx := context.Background()

	session := persistence.Session{ID: "session-1", UserID: alice.ID, ExpiresAt: env.clock.Now().Add(time.Hour), CreatedAt: env.clock.Now()}
	require.NoError(t, env.harness.Sessions.CreateSession(ctx, session))

	_, err := svc.Deactivate(ctx, principalOf(admin), admin.ID)
	assert.Equal(t, KindBadRequest, KindOf(err))
	_, err = svc.Deactivate(ctx, principalOf(alice), admin.ID)
	assert.Equal(t, KindForbidden, KindOf(err))

	deactivated, err := svc.Deactivate(ctx, principalOf(admin), alice.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	stored, err := env.harness.Sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.RevokedAt)

	_, err = svc.DirectoryEntry(ctx, principalOf(admin), alice.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestEmployeeService_ResetPasswordAndPayslips(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	svc := newEmployeeServiceForTest(env)
	ctx := context.Background()

	err := svc.ResetPassword(ctx, principalOf(admin), ResetPasswordInput{UserID: alice.ID, NewPassword: "letters-only"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "newPassword")

	require.NoError(t, svc.ResetPassword(ctx, principalOf(admin), ResetPasswordInput{UserID: alice.ID, NewPassword: "fresh-pass-1"}))
	stored, err := env.harness.Users.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.NoError(t, VerifyPassword(stored.PasswordHash, "fresh-pass-1"))

	for i, status := range []string{PayrollStatusFinalized, PayrollStatusDraft} {
		record := persistence.PayrollRecord{
			ID:         env.ids.Next(),
			UserID:     alice.ID,
			Period:     []string{"2024-12", "2025-01"}[i],
			BaseSalary: 300000,
			NetPay:     300000,
			Status:     status,
			CreatedAt:  env.clock.Now(),
			UpdatedAt:  env.clock.Now(),
		}
		require.NoError(t, env.harness.Payroll.CreatePayroll(ctx, record))
	}

	payslips, err := svc.Payslips(ctx, principalOf(alice))
	require.NoError(t, err)
	require.Len(t, payslips, 1)
	assert.Equal(t, "2024-12", payslips[0].Period)
}
