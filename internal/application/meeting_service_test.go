package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/testfixtures"
)

func newMeetingServiceForTest(env serviceEnv, notifier Notifier) *MeetingService {
	return NewMeetingServiceWithLogger(env.harness.Meetings, env.harness.Users, notifier, testLocation, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())
}

func TestMeetingService_CreateWarnsOnOverlap(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	alice := env.harness.SeedUser(t)
	bob := env.harness.SeedUser(t)
	carol := env.harness.SeedUser(t)
	gone := env.harness.SeedUser(t, testfixtures.Inactive())
	notifier := &recordingNotifier{}
	svc := newMeetingServiceForTest(env, notifier)
	ctx := context.Background()
	start := time.Date(2025, time.January, 7, 10, 0, 0, 0, testLocation)

	_, err := svc.Create(ctx, principalOf(alice), MeetingInput{Title: "Sync", StartTime: start, EndTime: start})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "endTime")

	_, err = svc.Create(ctx, principalOf(alice), MeetingInput{Title: "Sync", StartTime: start, EndTime: start.Add(time.Hour), ParticipantIDs: []string{gone.ID}})
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "participantIds")

	first, err := svc.Create(ctx, principalOf(alice), MeetingInput{
		Title:          "Planning",
		Location:       "Room A",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		ParticipantIDs: []string{bob.ID, alice.ID, bob.ID},
	})
	require.NoError(t, err)
	assert.Empty(t, first.Warnings)
	require.Len(t, first.Meeting.Participants, 1)
	assert.Equal(t, ResponsePending, first.Meeting.Participants[0].Response)
	assert.Equal(t, []string{bob.ID}, notifier.recipients())

	second, err := svc.Create(ctx, principalOf(carol), MeetingInput{
		Title:          "Review",
		Location:       "room a",
		StartTime:      start.Add(30 * time.Minute),
		EndTime:        start.Add(90 * time.Minute),
		ParticipantIDs: []string{bob.ID},
	})
	require.NoError(t, err)
	require.Len(t, second.Warnings, 2)
	for _, w := range second.Warnings {
		assert.Equal(t, first.Meeting.ID, w.MeetingID)
	}
	assert.ElementsMatch(t, []string{"participant", "location"}, []string{second.Warnings[0].Type, second.Warnings[1].Type})

	backToBack, err := svc.Conflicts(ctx, principalOf(bob), ConflictsInput{StartTime: start.Add(90 * time.Minute), EndTime: start.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, backToBack)
}

func TestMeetingService_Lifecycle(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	alice := env.harness.SeedUser(t)
	bob := env.harness.SeedUser(t)
	carol := env.harness.SeedUser(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	notifier := &recordingNotifier{}
	svc := newMeetingServiceForTest(env, notifier)
	ctx := context.Background()
	start := time.Date(2025, time.January, 8, 14, 0, 0, 0, testLocation)

	created, err := svc.Create(ctx, principalOf(alice), MeetingInput{Title: "1on1", StartTime: start, EndTime: start.Add(30 * time.Minute), ParticipantIDs: []string{bob.ID}})
	require.NoError(t, err)
	id := created.Meeting.ID

	_, err = svc.Get(ctx, principalOf(carol), id)
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = svc.Get(ctx, principalOf(admin), id)
	require.NoError(t, err)

	_, err = svc.Respond(ctx, principalOf(carol), RespondInput{MeetingID: id, Response: ResponseAccepted})
	assert.Equal(t, KindForbidden, KindOf(err))
	responded, err := svc.Respond(ctx, principalOf(bob), RespondInput{MeetingID: id, Response: ResponseAccepted})
	require.NoError(t, err)
	assert.Equal(t, ResponseAccepted, responded.Participants[0].Response)

	// Same time: existing responses survive, new invitees start pending.
	updated, err := svc.Update(ctx, principalOf(alice), UpdateMeetingInput{
		ID: id, Title: "1on1 + carol", StartTime: start, EndTime: start.Add(30 * time.Minute), ParticipantIDs: []string{bob.ID, carol.ID},
	})
	require.NoError(t, err)
	require.Len(t, updated.Meeting.Participants, 2)
	assert.Equal(t, ResponseAccepted, updated.Meeting.Participants[0].Response)
	assert.Equal(t, ResponsePending, updated.Meeting.Participants[1].Response)

	moved, err := svc.Update(ctx, principalOf(alice), UpdateMeetingInput{
		ID: id, Title: "1on1 + carol", StartTime: start.Add(time.Hour), EndTime: start.Add(90 * time.Minute), ParticipantIDs: []string{bob.ID, carol.ID},
	})
	require.NoError(t, err)
	for _, p := range moved.Meeting.Participants {
		assert.Equal(t, ResponsePending, p.Response)
	}

	_, err = svc.Update(ctx, principalOf(bob), UpdateMeetingInput{ID: id, Title: "x", StartTime: start, EndTime: start.Add(time.Hour)})
	assert.Equal(t, KindForbidden, KindOf(err))

	listed, err := svc.List(ctx, principalOf(carol), ListMeetingsInput{Range: RangeWeek, Reference: &start})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	upcoming, err := svc.upcoming(ctx, bob.ID, 5)
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)

	notifier = &recordingNotifier{}
	svc.notifier = notifier
	_, err = svc.Cancel(ctx, principalOf(alice), id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bob.ID, carol.ID}, notifier.recipients())
	_, err = svc.Cancel(ctx, principalOf(alice), id)
	assert.Equal(t, KindBadRequest, KindOf(err))

	listed, err = svc.List(ctx, principalOf(carol), ListMeetingsInput{Range: RangeWeek, Reference: &start})
	require.NoError(t, err)
	assert.Empty(t, listed)

	assert.Equal(t, KindForbidden, KindOf(svc.Delete(ctx, principalOf(bob), id)))
	require.NoError(t, svc.Delete(ctx, principalOf(admin), id))
	_, err = svc.Get(ctx, principalOf(alice), id)
	assert.Equal(t, KindNotFound, KindOf(err))
}
