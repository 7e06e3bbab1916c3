package model

import "time"

// Session is a store-backed record for a multi-step conversation.
// Payload is an opaque JSON blob owned by the flow that created it;
// expired sessions are treated as absent.
type Session struct {
	ChatID    int64  `gorm:"primaryKey"`
	Key       string // opaque handle kept for audit logs
	Kind      string
	Payload   string
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the session is past its TTL at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
