package model

import "time"

// TaskTemplate is a recurring generator of tasks.
//
// Exactly one of TargetChatID and TargetTag is set: a fixed assignee or
// a tag pool for workload-based auto-assignment. LastRunAt records the
// matched minute of the most recent materialization so a template never
// fires twice for the same scheduled minute.
type TaskTemplate struct {
	ID             uint `gorm:"primaryKey"`
	Name           string
	Title          string
	TargetChatID   int64
	TargetTag      string
	ReporterChatID int64
	CronExpr       string
	Timezone       string
	DeadlineDays   int
	Priority       Priority `gorm:"default:p1"`
	Note           string
	RemindInterval time.Duration
	Enabled        bool
	LastRunAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
