package model

import "time"

// TaskStatus is the lifecycle state of a task. The transition is
// one-way: pending tasks become completed and stay completed.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// Priority is informational only; it does not affect scheduling.
type Priority string

const (
	PriorityP0 Priority = "p0"
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
)

// Task is a single unit of work assigned to exactly one person.
//
// The assignee carries two identity forms: AssigneeUserID is our stable
// internal id, AssigneeChatID is the messaging-platform id used for
// delivery. Either may be zero depending on how the assignee was
// provisioned, but delivery needs AssigneeChatID.
type Task struct {
	ID                 uint `gorm:"primaryKey"`
	Title              string
	CreatorChatID      int64
	AssigneeUserID     uint  `gorm:"index"`
	AssigneeChatID     int64 `gorm:"index"`
	ReporterChatID     int64
	Status             TaskStatus `gorm:"index;default:pending"`
	Deadline           *time.Time
	RemindInterval     time.Duration // 0 disables repeat reminders
	LastRemindedAt     *time.Time
	DeadlineNotifiedAt *time.Time // overdue alert sent at most once
	Proof              string
	Note               string
	Priority           Priority `gorm:"default:p1"`
	Estimate           float64  `gorm:"default:1"` // effort weight for workload
	TargetTag          string   // set when auto-assigned by tag, kept for audit
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Pending reports whether the task still counts toward workload and
// reminder sweeps.
func (t *Task) Pending() bool {
	return t.Status == StatusPending
}

// Weight returns the effort used for workload ordering, defaulting to 1
// for tasks created before estimates existed.
func (t *Task) Weight() float64 {
	if t.Estimate <= 0 {
		return 1
	}
	return t.Estimate
}
