package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"taskbot/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert finds or creates a user by chat id and refreshes basic profile info.
func (r *UserRepository) Upsert(ctx context.Context, chatID int64, firstName, lastName, username string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("chat_id = ?", chatID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case err == gorm.ErrRecordNotFound:
		user = model.User{
			ChatID:    chatID,
			FirstName: firstName,
			LastName:  lastName,
			Username:  username,
			Role:      model.RoleMember,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	username = strings.TrimPrefix(username, "@")
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindMembersByTag returns every user carrying the tag. The LIKE is a
// coarse prefilter over the comma-separated column; exact membership is
// re-checked in Go.
func (r *UserRepository) FindMembersByTag(ctx context.Context, tag string) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).
		Where("tags LIKE ?", "%"+tag+"%").
		Order("chat_id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	members := users[:0]
	for _, u := range users {
		if u.HasTag(tag) {
			members = append(members, u)
		}
	}
	return members, nil
}

func (r *UserRepository) SetTags(ctx context.Context, userID uint, tags []string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("tags", strings.Join(tags, ","))
	if res.Error != nil {
		return fmt.Errorf("set tags: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) SetRole(ctx context.Context, userID uint, role model.Role) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("role", role)
	if res.Error != nil {
		return fmt.Errorf("set role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
