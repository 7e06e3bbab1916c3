package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"taskbot/internal/model"
	"taskbot/internal/notify"
	"taskbot/internal/repository"
)

// ReminderService sweeps pending tasks and decides, per task, between
// a one-time overdue alert, a repeat reminder, or nothing.
//
// The overdue alert is a one-shot side channel: after it fires, repeat
// reminders keep going on later sweeps for as long as the task stays
// pending. Bookkeeping writes go through guarded updates, so a sweep
// racing a completion sends nothing for the completed task.
type ReminderService struct {
	taskRepo *repository.TaskRepository
	notifier notify.Notifier
}

func NewReminderService(taskRepo *repository.TaskRepository, notifier notify.Notifier) *ReminderService {
	return &ReminderService{taskRepo: taskRepo, notifier: notifier}
}

// Sweep walks all pending tasks once and returns how many
// notifications went out. One task's failure never stops the sweep.
func (s *ReminderService) Sweep(ctx context.Context, now time.Time) (int, error) {
	tasks, err := s.taskRepo.FindAllPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending tasks: %w", err)
	}

	sent := 0
	for i := range tasks {
		n, err := s.sweepTask(ctx, &tasks[i], now)
		if err != nil {
			log.Printf("[warn] reminder sweep task %d: %v", tasks[i].ID, err)
			continue
		}
		sent += n
	}
	return sent, nil
}

func (s *ReminderService) sweepTask(ctx context.Context, task *model.Task, now time.Time) (int, error) {
	if overdue(task, now) {
		// Claim first, send after: if the claim lost a race (or a
		// previous sweep already alerted), nothing goes out.
		claimed, err := s.taskRepo.ClaimDeadlineNotified(ctx, task.ID, now)
		if err != nil {
			return 0, err
		}
		if claimed {
			sent := 0
			if err := s.notifier.SendToUser(ctx, task.AssigneeChatID, formatOverdue(task)); err != nil {
				log.Printf("[warn] overdue alert for task %d: %v", task.ID, err)
			} else {
				sent++
			}
			if task.ReporterChatID != 0 {
				if err := s.notifier.SendToUser(ctx, task.ReporterChatID, formatOverdue(task)); err != nil {
					log.Printf("[warn] overdue alert to reporter of task %d: %v", task.ID, err)
				} else {
					sent++
				}
			}
			return sent, nil
		}
		// Already alerted; fall through to the repeat-reminder rule.
	}

	if !reminderDue(task, now) {
		return 0, nil
	}

	marked, err := s.taskRepo.MarkReminded(ctx, task.ID, now)
	if err != nil {
		return 0, err
	}
	if !marked {
		// Completed or reminded concurrently since we loaded it.
		return 0, nil
	}
	if err := s.notifier.SendToUser(ctx, task.AssigneeChatID, formatReminder(task, now)); err != nil {
		log.Printf("[warn] reminder for task %d: %v", task.ID, err)
		return 0, nil
	}
	return 1, nil
}

func overdue(task *model.Task, now time.Time) bool {
	return task.Deadline != nil && !task.Deadline.After(now) && task.DeadlineNotifiedAt == nil
}

func reminderDue(task *model.Task, now time.Time) bool {
	if task.RemindInterval <= 0 {
		return false
	}
	if task.LastRemindedAt == nil {
		return true
	}
	return now.Sub(*task.LastRemindedAt) >= task.RemindInterval
}

func formatOverdue(task *model.Task) string {
	return fmt.Sprintf("⚠️ Task #%d is <b>overdue</b>: %s\nDeadline was %s.",
		task.ID, html.EscapeString(task.Title), task.Deadline.Format("2006-01-02 15:04"))
}

func formatReminder(task *model.Task, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏳ Still pending: task #%d <b>%s</b>", task.ID, html.EscapeString(task.Title)))
	if task.Deadline != nil {
		d := *task.Deadline
		if d.After(now) {
			sb.WriteString(fmt.Sprintf("\n⏰ Due %s", d.Format("2006-01-02 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("\n⏰ Was due %s", d.Format("2006-01-02 15:04")))
		}
	}
	sb.WriteString(fmt.Sprintf("\nComplete with /complete %d &lt;proof&gt;", task.ID))
	return sb.String()
}
