package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"taskbot/internal/model"
	"taskbot/internal/notify"
	"taskbot/internal/repository"
)

// TaskInput represents data required to create a task. Exactly one of
// AssigneeChatID and Tag should be set; a tag routes the task through
// workload-based auto-assignment.
type TaskInput struct {
	Title          string
	CreatorChatID  int64
	AssigneeChatID int64
	Tag            string
	ReporterChatID int64
	DeadlineDays   int // 0 means no deadline
	RemindInterval time.Duration
	Priority       model.Priority
	Note           string
	Estimate       float64
}

// TaskService owns the task lifecycle: creation with direct or
// tag-based assignment, the pending→completed transition, and the
// notifications both emit. Sends are best-effort; a failed send is
// logged and never rolls back the task operation.
type TaskService struct {
	taskRepo *repository.TaskRepository
	userRepo *repository.UserRepository
	workload *WorkloadResolver
	notifier notify.Notifier
}

func NewTaskService(taskRepo *repository.TaskRepository, userRepo *repository.UserRepository, workload *WorkloadResolver, notifier notify.Notifier) *TaskService {
	return &TaskService{taskRepo: taskRepo, userRepo: userRepo, workload: workload, notifier: notifier}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput, now time.Time) (*model.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}

	task := model.Task{
		Title:          strings.TrimSpace(input.Title),
		CreatorChatID:  input.CreatorChatID,
		ReporterChatID: input.ReporterChatID,
		Status:         model.StatusPending,
		RemindInterval: input.RemindInterval,
		Priority:       input.Priority,
		Note:           input.Note,
		Estimate:       input.Estimate,
	}
	if task.Priority == "" {
		task.Priority = model.PriorityP1
	}
	if task.Estimate <= 0 {
		task.Estimate = 1
	}
	if input.DeadlineDays > 0 {
		deadline := now.AddDate(0, 0, input.DeadlineDays)
		task.Deadline = &deadline
	}

	switch {
	case input.Tag != "":
		assignee, err := s.workload.PickAssignee(ctx, input.Tag)
		if err != nil {
			return nil, err
		}
		task.AssigneeUserID = assignee.ID
		task.AssigneeChatID = assignee.ChatID
		task.TargetTag = input.Tag
	case input.AssigneeChatID != 0:
		assignee, err := s.userRepo.FindByChatID(ctx, input.AssigneeChatID)
		switch {
		case err == nil:
			task.AssigneeUserID = assignee.ID
			task.AssigneeChatID = assignee.ChatID
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrInvalidAssignee
		default:
			return nil, fmt.Errorf("resolve assignee: %w", err)
		}
	default:
		return nil, ErrInvalidAssignee
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	if err := s.notifier.SendToUser(ctx, task.AssigneeChatID, formatAssigned(&task)); err != nil {
		log.Printf("[warn] notify assignee of task %d: %v", task.ID, err)
	}

	return &task, nil
}

// CompleteTask transitions a pending task to completed. Missing and
// already-completed ids both come back as ErrNotFoundOrCompleted.
func (s *TaskService) CompleteTask(ctx context.Context, taskID uint, proof string, now time.Time) (*model.Task, error) {
	ok, err := s.taskRepo.Complete(ctx, taskID, proof, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFoundOrCompleted
	}

	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("reload completed task: %w", err)
	}

	if task.ReporterChatID != 0 {
		if err := s.notifier.SendToUser(ctx, task.ReporterChatID, formatCompleted(task)); err != nil {
			log.Printf("[warn] notify reporter of task %d: %v", task.ID, err)
		}
	}

	return task, nil
}

// GetUserPendingTasks lists pending tasks addressable by either
// identity form of the assignee.
func (s *TaskService) GetUserPendingTasks(ctx context.Context, userID uint, chatID int64) ([]model.Task, error) {
	return s.taskRepo.FindPendingByAssignee(ctx, userID, chatID)
}

// GetTask fetches one task without any ownership filtering; callers
// enforce who may see or complete it.
func (s *TaskService) GetTask(ctx context.Context, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFoundOrCompleted
	}
	return task, err
}

func formatAssigned(task *model.Task) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📌 New task #%d: <b>%s</b>", task.ID, html.EscapeString(task.Title)))
	if task.TargetTag != "" {
		sb.WriteString(fmt.Sprintf("\nAssigned to you from the <i>%s</i> pool.", html.EscapeString(task.TargetTag)))
	}
	if task.Deadline != nil {
		sb.WriteString(fmt.Sprintf("\n⏰ Due %s", task.Deadline.Format("2006-01-02 15:04")))
	}
	if task.Note != "" {
		sb.WriteString(fmt.Sprintf("\n📝 %s", html.EscapeString(task.Note)))
	}
	sb.WriteString(fmt.Sprintf("\nComplete with /complete %d &lt;proof&gt;", task.ID))
	return sb.String()
}

func formatCompleted(task *model.Task) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Task #%d done: <b>%s</b>", task.ID, html.EscapeString(task.Title)))
	if task.Proof != "" {
		sb.WriteString(fmt.Sprintf("\nProof: %s", html.EscapeString(task.Proof)))
	}
	return sb.String()
}
