package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"taskbot/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := NewDB(dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestCompleteIsGuardedAndTerminal(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	task := &model.Task{Title: "ship report", AssigneeChatID: 100, Status: model.StatusPending}
	require.NoError(t, repo.Create(ctx, task))

	ok, err := repo.Complete(ctx, task.ID, "sent", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, "sent", got.Proof)

	// Second completion hits the status guard.
	ok, err = repo.Complete(ctx, task.ID, "again", now)
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown id looks the same as already-completed.
	ok, err = repo.Complete(ctx, 9999, "", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkRemindedIsMonotonic(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	ctx := context.Background()

	task := &model.Task{Title: "t", AssigneeChatID: 100, Status: model.StatusPending}
	require.NoError(t, repo.Create(ctx, task))

	t1 := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	ok, err := repo.MarkReminded(ctx, task.ID, t1)
	require.NoError(t, err)
	assert.True(t, ok)

	// An older timestamp never wins.
	ok, err = repo.MarkReminded(ctx, task.ID, t1.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	t2 := t1.Add(2 * time.Hour)
	ok, err = repo.MarkReminded(ctx, task.ID, t2)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRemindedAt)
	assert.True(t, got.LastRemindedAt.Equal(t2))
}

func TestMarkRemindedSkipsCompletedTasks(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	ctx := context.Background()

	task := &model.Task{Title: "t", AssigneeChatID: 100, Status: model.StatusPending}
	require.NoError(t, repo.Create(ctx, task))
	_, err := repo.Complete(ctx, task.ID, "", time.Now())
	require.NoError(t, err)

	ok, err := repo.MarkReminded(ctx, task.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "a completed task must not accept reminder bookkeeping")
}

func TestClaimDeadlineNotifiedIsExactlyOnce(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	ctx := context.Background()
	deadline := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	task := &model.Task{Title: "t", AssigneeChatID: 100, Status: model.StatusPending, Deadline: &deadline}
	require.NoError(t, repo.Create(ctx, task))

	first := deadline.Add(time.Hour)
	ok, err := repo.ClaimDeadlineNotified(ctx, task.ID, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimDeadlineNotified(ctx, task.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeadlineNotifiedAt)
	assert.True(t, got.DeadlineNotifiedAt.Equal(first), "claim timestamp must never move")
}

func TestFindPendingByAssigneeMatchesEitherIdentity(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	// One task carries only the internal id, one only the chat id.
	require.NoError(t, repo.Create(ctx, &model.Task{Title: "by user id", AssigneeUserID: 7, Status: model.StatusPending}))
	require.NoError(t, repo.Create(ctx, &model.Task{Title: "by chat id", AssigneeChatID: 700, Status: model.StatusPending}))
	require.NoError(t, repo.Create(ctx, &model.Task{Title: "someone else", AssigneeChatID: 900, Status: model.StatusPending}))

	tasks, err := repo.FindPendingByAssignee(ctx, 7, 700)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	tasks, err = repo.FindPendingByAssignee(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
