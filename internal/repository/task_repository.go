package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskbot/internal/model"
)

// TaskRepository handles persistence for tasks.
//
// Mutations that race with the sweeps (completion, reminder
// bookkeeping) are guarded updates: the WHERE clause carries the
// expected prior state and the caller checks RowsAffected, so a lost
// race shows up as zero rows instead of a silently clobbered record.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindPendingByAssignee matches either identity form: tasks created
// through the bot carry the chat id, tasks imported from elsewhere may
// only carry the internal user id.
func (r *TaskRepository) FindPendingByAssignee(ctx context.Context, userID uint, chatID int64) ([]model.Task, error) {
	var tasks []model.Task
	q := r.db.WithContext(ctx).Where("status = ?", model.StatusPending)
	switch {
	case userID != 0 && chatID != 0:
		q = q.Where("assignee_user_id = ? OR assignee_chat_id = ?", userID, chatID)
	case userID != 0:
		q = q.Where("assignee_user_id = ?", userID)
	case chatID != 0:
		q = q.Where("assignee_chat_id = ?", chatID)
	default:
		return nil, nil
	}
	if err := q.Order("deadline IS NULL, deadline ASC, created_at ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) FindAllPending(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// Complete flips a pending task to completed. Returns false when the
// task does not exist or was already completed; the two cases are
// indistinguishable on purpose.
func (r *TaskRepository) Complete(ctx context.Context, taskID uint, proof string, completedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ?", taskID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":       model.StatusCompleted,
			"proof":        proof,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("complete task: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkReminded advances last_reminded_at. The guard keeps the field
// monotonic and skips tasks completed since the sweep loaded them.
func (r *TaskRepository) MarkReminded(ctx context.Context, taskID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ? AND (last_reminded_at IS NULL OR last_reminded_at < ?)",
			taskID, model.StatusPending, at).
		Update("last_reminded_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("mark reminded: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ClaimDeadlineNotified sets deadline_notified_at exactly once per task.
// The caller sends the overdue alert only when the claim landed.
func (r *TaskRepository) ClaimDeadlineNotified(ctx context.Context, taskID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ? AND deadline_notified_at IS NULL", taskID, model.StatusPending).
		Update("deadline_notified_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("claim deadline notified: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
