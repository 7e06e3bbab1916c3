package model

import (
	"strings"
	"time"
)

// Role gates administrative commands; see internal/auth.
type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// User maps a messaging-platform account to our internal identity.
// Tags form the pools used for workload-based auto-assignment.
type User struct {
	ID        uint  `gorm:"primaryKey"`
	ChatID    int64 `gorm:"uniqueIndex"`
	FirstName string
	LastName  string
	Username  string `gorm:"index"`
	Tags      string // comma-separated, e.g. "finance,oncall"
	Role      Role   `gorm:"default:member"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TagList splits the stored tag string, dropping empties.
func (u *User) TagList() []string {
	var tags []string
	for _, t := range strings.Split(u.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// HasTag reports whether the user belongs to the given pool.
func (u *User) HasTag(tag string) bool {
	for _, t := range u.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}
