package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskbot/internal/model"
)

// TemplateRepository handles CRUD for scheduled-task templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, tpl *model.TaskTemplate) error {
	if tpl.TargetChatID == 0 && tpl.TargetTag == "" {
		return fmt.Errorf("template needs a fixed target or a tag")
	}
	if tpl.TargetChatID != 0 && tpl.TargetTag != "" {
		return fmt.Errorf("template target and tag are mutually exclusive")
	}
	if err := r.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	var tpl model.TaskTemplate
	if err := r.db.WithContext(ctx).First(&tpl, id).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *TemplateRepository) ListAll(ctx context.Context) ([]model.TaskTemplate, error) {
	var tpls []model.TaskTemplate
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&tpls).Error; err != nil {
		return nil, err
	}
	return tpls, nil
}

func (r *TemplateRepository) FindAllEnabled(ctx context.Context) ([]model.TaskTemplate, error) {
	var tpls []model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&tpls).Error; err != nil {
		return nil, err
	}
	return tpls, nil
}

func (r *TemplateRepository) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("set template enabled: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateLastRunAt records the matched minute of the most recent
// materialization; the runner uses it to dedupe fires.
func (r *TemplateRepository) UpdateLastRunAt(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).
		Where("id = ?", id).
		Update("last_run_at", at).Error; err != nil {
		return fmt.Errorf("update template last run: %w", err)
	}
	return nil
}
