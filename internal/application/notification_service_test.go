package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	user := env.harness.SeedUser(t)
	other := env.harness.SeedUser(t)
	svc := NewNotificationServiceWithLogger(env.harness.Notifications, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())
	ctx := context.Background()

	svc.Notify(ctx, NotificationInput{UserID: user.ID, Kind: NotificationChatMessage, Title: "first"})
	env.clock.Advance(time.Minute)
	svc.Notify(ctx, NotificationInput{UserID: user.ID, Kind: NotificationLeaveResolved, Title: "second"})
	svc.Notify(ctx, NotificationInput{UserID: other.ID, Kind: NotificationLeaveResolved, Title: "other"})
	// Unknown recipients are dropped without surfacing an error.
	svc.Notify(ctx, NotificationInput{UserID: "ghost", Title: "lost"})
	svc.Notify(ctx, NotificationInput{Title: "nobody"})

	list, err := svc.List(ctx, principalOf(user), ListNotificationsInput{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Title)

	count, err := svc.UnreadCount(ctx, principalOf(user))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, svc.MarkRead(ctx, principalOf(user), list[0].ID))
	assert.Equal(t, KindNotFound, KindOf(svc.MarkRead(ctx, principalOf(other), list[1].ID)))

	unread, err := svc.List(ctx, principalOf(user), ListNotificationsInput{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "first", unread[0].Title)

	updated, err := svc.MarkAllRead(ctx, principalOf(user))
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	require.NoError(t, svc.Delete(ctx, principalOf(user), list[1].ID))
	list, err = svc.List(ctx, principalOf(user), ListNotificationsInput{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.List(ctx, principalOf(user), ListNotificationsInput{Limit: 1000})
	assert.Equal(t, KindBadRequest, KindOf(err))
	_, err = svc.UnreadCount(ctx, Principal{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
