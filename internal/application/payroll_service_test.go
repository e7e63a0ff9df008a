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

func newPayrollServiceForTest(env serviceEnv, notifier Notifier) *PayrollService {
	sources := PayrollSources{Users: env.harness.Users, Entries: env.harness.TimeEntries, Leaves: env.harness.Leaves}
	return NewPayrollServiceWithLogger(env.harness.Payroll, sources, notifier, testLocation, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())
}

func TestPayrollService_Generate(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	env.harness.SeedUser(t, testfixtures.Inactive())
	svc := newPayrollServiceForTest(env, nil)
	ctx := context.Background()

	jan6 := time.Date(2025, time.January, 6, 9, 0, 0, 0, testLocation)
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(alice.ID, jan6, 8*time.Hour, EntryStatusCompleted))
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(alice.ID, jan6.AddDate(0, 0, 1), 6*time.Hour, EntryStatusEarlyOut))
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(alice.ID, jan6.AddDate(0, 1, 0), 8*time.Hour, EntryStatusCompleted))

	annual := testfixtures.NewLeaveFixture(alice.ID, "2024-12-30", "2025-01-02", 4)
	annual.Status = LeaveStatusApproved
	require.NoError(t, env.harness.Leaves.CreateLeave(ctx, annual))
	unpaid := testfixtures.NewLeaveFixture(alice.ID, "2025-01-30", "2025-01-31", 2)
	unpaid.LeaveType = "unpaid"
	unpaid.Status = LeaveStatusApproved
	require.NoError(t, env.harness.Leaves.CreateLeave(ctx, unpaid))

	_, err := svc.Generate(ctx, principalOf(alice), GeneratePayrollInput{Period: "2025-01"})
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = svc.Generate(ctx, principalOf(admin), GeneratePayrollInput{Period: "2025-13"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "period")

	run, err := svc.Generate(ctx, principalOf(admin), GeneratePayrollInput{Period: "2025-01"})
	require.NoError(t, err)
	require.Len(t, run.Created, 2)
	assert.Empty(t, run.Skipped)

	byUser := make(map[string]PayrollRecord)
	for _, r := range run.Created {
		byUser[r.UserID] = r
	}
	got := byUser[alice.ID]
	assert.Equal(t, 14.0, got.HoursWorked)
	assert.Equal(t, 2, got.DaysPresent)
	assert.Equal(t, 4, got.LeaveDays)
	// 23 working days in January 2025; two unpaid days.
	assert.Equal(t, 26087.0, got.Deductions)
	assert.Equal(t, 273913.0, got.NetPay)
	assert.Equal(t, PayrollStatusDraft, got.Status)
	assert.Equal(t, 300000.0, byUser[admin.ID].NetPay)

	again, err := svc.Generate(ctx, principalOf(admin), GeneratePayrollInput{Period: "2025-01"})
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Len(t, again.Skipped, 2)
}

func TestPayrollService_AdjustAndFinalize(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	notifier := &recordingNotifier{}
	svc := newPayrollServiceForTest(env, notifier)
	ctx := context.Background()

	run, err := svc.Generate(ctx, principalOf(admin), GeneratePayrollInput{Period: "2025-02"})
	require.NoError(t, err)
	require.Len(t, run.Created, 2)

	drafts, err := svc.List(ctx, principalOf(admin), ListPayrollInput{Period: "2025-02", UserID: alice.ID})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	adjusted, err := svc.Adjust(ctx, principalOf(admin), AdjustPayrollInput{ID: drafts[0].ID, Allowances: 15000, Deductions: 42000.5})
	require.NoError(t, err)
	assert.Equal(t, 272999.5, adjusted.NetPay)

	_, err = svc.Finalize(ctx, principalOf(admin), FinalizePayrollInput{})
	require.ErrorAs(t, err, new(*ValidationError))

	finalized, err := svc.Finalize(ctx, principalOf(admin), FinalizePayrollInput{IDs: []string{drafts[0].ID}})
	require.NoError(t, err)
	require.Len(t, finalized, 1)
	assert.Equal(t, []string{alice.ID}, notifier.recipients())

	_, err = svc.Adjust(ctx, principalOf(admin), AdjustPayrollInput{ID: drafts[0].ID})
	assert.Equal(t, KindBadRequest, KindOf(err))

	rest, err := svc.Finalize(ctx, principalOf(admin), FinalizePayrollInput{Period: "2025-02"})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, admin.ID, rest[0].UserID)

	remaining, err := svc.List(ctx, principalOf(admin), ListPayrollInput{Status: PayrollStatusDraft})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

// stalePayrollRepository hands out the stored record and then finalizes it behind the
// caller's back, as a concurrent finalize would.
type stalePayrollRepository struct {
	persistence.PayrollRepository
}

func (r stalePayrollRepository) GetPayroll(ctx context.Context, id string) (persistence.PayrollRecord, error) {
	record, err := r.PayrollRepository.GetPayroll(ctx, id)
	if err != nil || record.Status != PayrollStatusDraft {
		return record, err
	}
	finalized := record
	finalized.Status = PayrollStatusFinalized
	if err := r.PayrollRepository.UpdatePayroll(ctx, finalized, PayrollStatusDraft); err != nil {
		return persistence.PayrollRecord{}, err
	}
	return record, nil
}

func TestPayrollService_ConcurrentFinalizeIsSkipped(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	ctx := context.Background()

	run, err := newPayrollServiceForTest(env, nil).Generate(ctx, principalOf(admin), GeneratePayrollInput{Period: "2025-03"})
	require.NoError(t, err)
	require.Len(t, run.Created, 2)
	var draftIDs []string
	for _, r := range run.Created {
		draftIDs = append(draftIDs, r.ID)
	}

	notifier := &recordingNotifier{}
	sources := PayrollSources{Users: env.harness.Users, Entries: env.harness.TimeEntries, Leaves: env.harness.Leaves}
	svc := NewPayrollServiceWithLogger(stalePayrollRepository{env.harness.Payroll}, sources, notifier, testLocation, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())

	finalized, err := svc.Finalize(ctx, principalOf(admin), FinalizePayrollInput{IDs: draftIDs[:1]})
	require.NoError(t, err)
	assert.Empty(t, finalized)
	assert.Empty(t, notifier.recipients())

	_, err = svc.Adjust(ctx, principalOf(admin), AdjustPayrollInput{ID: draftIDs[1], Allowances: 1000})
	assert.Equal(t, KindBadRequest, KindOf(err))

	stored, err := env.harness.Payroll.ListPayroll(ctx, "2025-03", alice.ID, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, PayrollStatusFinalized, stored[0].Status)
	assert.Zero(t, stored[0].Allowances)
}
