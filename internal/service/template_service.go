package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskbot/internal/cron"
	"taskbot/internal/repository"
)

// TemplateService is the scheduled-task runner: each tick it walks the
// enabled templates and materializes one task for every template whose
// cron matched a new minute since its last run.
type TemplateService struct {
	templateRepo *repository.TemplateRepository
	tasks        *TaskService
}

func NewTemplateService(templateRepo *repository.TemplateRepository, tasks *TaskService) *TemplateService {
	return &TemplateService{templateRepo: templateRepo, tasks: tasks}
}

// RunOnce performs a single sweep and returns how many tasks were
// materialized. Template fires are independent: one template failing
// (bad cron, empty tag pool) is logged and the sweep moves on.
func (s *TemplateService) RunOnce(ctx context.Context, now time.Time) (int, error) {
	templates, err := s.templateRepo.FindAllEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("load templates: %w", err)
	}

	created := 0
	for i := range templates {
		tpl := &templates[i]

		matched, fire, err := cron.ShouldFire(tpl.CronExpr, tpl.Timezone, now, tpl.LastRunAt)
		if err != nil {
			log.Printf("[warn] template %d (%s): %v", tpl.ID, tpl.Name, err)
			continue
		}
		if !fire {
			continue
		}

		input := TaskInput{
			Title:          tpl.Title,
			AssigneeChatID: tpl.TargetChatID,
			Tag:            tpl.TargetTag,
			ReporterChatID: tpl.ReporterChatID,
			DeadlineDays:   tpl.DeadlineDays,
			RemindInterval: tpl.RemindInterval,
			Priority:       tpl.Priority,
			Note:           tpl.Note,
		}
		if _, err := s.tasks.CreateTask(ctx, input, now); err != nil {
			log.Printf("[warn] template %d (%s): create task: %v", tpl.ID, tpl.Name, err)
			continue
		}

		// Record the matched minute, not the tick instant, so a faster
		// checker cannot re-fire within the same scheduled minute.
		if err := s.templateRepo.UpdateLastRunAt(ctx, tpl.ID, matched); err != nil {
			log.Printf("[warn] template %d (%s): %v", tpl.ID, tpl.Name, err)
			continue
		}
		created++
	}
	return created, nil
}
