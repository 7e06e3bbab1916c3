package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskbot/internal/model"
)

// ErrNoSession is returned by WithSession when the chat has no live
// (unexpired) session.
var ErrNoSession = errors.New("no live session")

// SessionAction tells WithSession how to settle the session once the
// handler returns.
type SessionAction int

const (
	// SessionKeep writes the (possibly mutated) session back and
	// refreshes its expiry.
	SessionKeep SessionAction = iota
	// SessionClear removes the session.
	SessionClear
)

// SessionRepository stores multi-step conversation state. Sessions are
// keyed one-per-chat; an expired row is treated as absent and lazily
// removed on the next read.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get returns the live session for a chat, or nil when there is none.
func (r *SessionRepository) Get(ctx context.Context, chatID int64, now time.Time) (*model.Session, error) {
	var sess model.Session
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&sess).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess.Expired(now) {
		if err := r.Delete(ctx, chatID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &sess, nil
}

// Put upserts the chat's session and refreshes its expiry.
func (r *SessionRepository) Put(ctx context.Context, sess *model.Session, ttl time.Duration, now time.Time) error {
	sess.ExpiresAt = now.Add(ttl)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"key", "kind", "payload", "expires_at", "updated_at"}),
	}).Create(sess).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// WithSession loads the chat's live session, hands it to fn, and
// settles the row on every return path, whatever fn decides and even
// when it fails: the session is saved back with a fresh expiry
// (SessionKeep) or deleted (SessionClear). An active conversation
// therefore never times out mid-step, and a finished one never
// lingers. Returns ErrNoSession when the chat has no live session.
func (r *SessionRepository) WithSession(ctx context.Context, chatID int64, ttl time.Duration, now time.Time, fn func(*model.Session) (SessionAction, error)) error {
	sess, err := r.Get(ctx, chatID, now)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNoSession
	}

	action, fnErr := fn(sess)

	var settleErr error
	if action == SessionClear {
		settleErr = r.Delete(ctx, chatID)
	} else {
		settleErr = r.Put(ctx, sess, ttl, now)
	}
	if fnErr != nil {
		return fnErr
	}
	return settleErr
}

func (r *SessionRepository) Delete(ctx context.Context, chatID int64) error {
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Delete(&model.Session{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
