package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"taskbot/internal/model"
	"taskbot/internal/repository"
)

// fakeNotifier records every send so tests can assert on exactly what
// went out and to whom.
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
}

type sentMessage struct {
	ChatID int64
	Text   string
}

func (f *fakeNotifier) SendToUser(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeNotifier) to(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	templates *repository.TemplateRepository
	notifier  *fakeNotifier
	workload  *WorkloadResolver
	taskSvc   *TaskService
	reminders *ReminderService
	runner    *TemplateService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := repository.NewDB(dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	env := &testEnv{
		db:        db,
		users:     repository.NewUserRepository(db),
		tasks:     repository.NewTaskRepository(db),
		templates: repository.NewTemplateRepository(db),
		notifier:  &fakeNotifier{},
	}
	env.workload = NewWorkloadResolver(env.users, env.tasks)
	env.taskSvc = NewTaskService(env.tasks, env.users, env.workload, env.notifier)
	env.reminders = NewReminderService(env.tasks, env.notifier)
	env.runner = NewTemplateService(env.templates, env.taskSvc)
	return env
}

func (e *testEnv) addUser(t *testing.T, chatID int64, username, tags string) *model.User {
	t.Helper()
	user, err := e.users.Upsert(context.Background(), chatID, username, "", username)
	require.NoError(t, err)
	if tags != "" {
		require.NoError(t, e.users.SetTags(context.Background(), user.ID, strings.Split(tags, ",")))
		user.Tags = tags
	}
	return user
}

func (e *testEnv) addPendingTask(t *testing.T, chatID int64, estimate float64) *model.Task {
	t.Helper()
	task := &model.Task{
		Title:          "seed",
		AssigneeChatID: chatID,
		Status:         model.StatusPending,
		Estimate:       estimate,
	}
	require.NoError(t, e.tasks.Create(context.Background(), task))
	return task
}

func testNow() time.Time {
	return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}
