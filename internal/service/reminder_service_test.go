package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/model"
)

func pendingWith(t *testing.T, env *testEnv, chatID int64, deadline *time.Time, interval time.Duration) *model.Task {
	t.Helper()
	task := &model.Task{
		Title:          "sweep target",
		AssigneeChatID: chatID,
		Status:         model.StatusPending,
		Deadline:       deadline,
		RemindInterval: interval,
		Estimate:       1,
	}
	require.NoError(t, env.tasks.Create(context.Background(), task))
	return task
}

func TestSweepOverdueAlertFiresExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := testNow()
	deadline := now.Add(-time.Hour)

	task := pendingWith(t, env, 500, &deadline, 0)

	sent, err := env.reminders.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, env.notifier.to(500), 1)
	assert.True(t, strings.Contains(env.notifier.to(500)[0].Text, "overdue"))

	got, err := env.tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeadlineNotifiedAt)
	first := *got.DeadlineNotifiedAt

	// A later sweep does not re-alert and does not move the marker.
	sent, err = env.reminders.Sweep(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	require.Len(t, env.notifier.to(500), 1)

	got, err = env.tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.DeadlineNotifiedAt.Equal(first))
}

func TestSweepOverdueGoesToReporterToo(t *testing.T) {
	env := newTestEnv(t)
	now := testNow()
	deadline := now.Add(-time.Minute)

	task := pendingWith(t, env, 500, &deadline, 0)
	task.ReporterChatID = 600
	require.NoError(t, env.db.Save(task).Error)

	sent, err := env.reminders.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "assignee and reporter alerts each count")
	assert.Len(t, env.notifier.to(500), 1)
	assert.Len(t, env.notifier.to(600), 1)
}

func TestSweepCountsOnlySuccessfulSends(t *testing.T) {
	env := newTestEnv(t)
	now := testNow()
	deadline := now.Add(-time.Minute)

	task := pendingWith(t, env, 500, &deadline, 0)
	task.ReporterChatID = 600
	require.NoError(t, env.db.Save(task).Error)
	env.notifier.failFor = map[int64]error{500: assert.AnError}

	sent, err := env.reminders.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "only the reporter alert went out")
	assert.Len(t, env.notifier.to(600), 1)
}

func TestSweepIntervalReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := testNow()

	task := pendingWith(t, env, 500, nil, 4*time.Hour)

	// First sweep: no reminder yet ever sent, so one goes out.
	sent, err := env.reminders.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// Too soon: nothing.
	sent, err = env.reminders.Sweep(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	// Interval elapsed: reminded again, marker only moves forward.
	sent, err = env.reminders.Sweep(ctx, now.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got, err := env.tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRemindedAt)
	assert.True(t, got.LastRemindedAt.Equal(now.Add(5*time.Hour)))
}

func TestSweepZeroIntervalDisablesReminders(t *testing.T) {
	env := newTestEnv(t)
	pendingWith(t, env, 500, nil, 0)

	for i := 0; i < 3; i++ {
		sent, err := env.reminders.Sweep(context.Background(), testNow().Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
	}
}

// Pins down the rule-interaction decision: the one-time overdue alert
// does not suppress later interval reminders.
func TestSweepRemindersContinueAfterOverdueAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := testNow()
	deadline := now.Add(-time.Hour)

	pendingWith(t, env, 500, &deadline, 2*time.Hour)

	// Tick 1: rule 1 wins, only the overdue alert goes out.
	sent, err := env.reminders.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, env.notifier.to(500), 1)
	assert.Contains(t, env.notifier.to(500)[0].Text, "overdue")

	// Tick 2: the alert is spent; the interval reminder takes over.
	sent, err = env.reminders.Sweep(ctx, now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	msgs := env.notifier.to(500)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "Still pending")

	// And keeps going while the task stays pending.
	sent, err = env.reminders.Sweep(ctx, now.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestSweepSkipsCompletedTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := testNow()
	deadline := now.Add(-time.Hour)

	task := pendingWith(t, env, 500, &deadline, time.Hour)
	_, err := env.tasks.Complete(ctx, task.ID, "", now)
	require.NoError(t, err)

	sent, err := env.reminders.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, env.notifier.count())
}

func TestSweepCountsAcrossManyTasks(t *testing.T) {
	env := newTestEnv(t)
	now := testNow()
	past := now.Add(-time.Minute)

	// One overdue alert, one first interval reminder, two quiet tasks.
	pendingWith(t, env, 501, &past, 0)
	pendingWith(t, env, 502, nil, time.Hour)
	pendingWith(t, env, 503, nil, 0)
	future := now.Add(time.Hour)
	pendingWith(t, env, 504, &future, 0)

	sent, err := env.reminders.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}
