package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"videotube/internal/model"
)

// UserRepository is the credential store. Password hashes and refresh tokens
// stay inside the records it returns; callers decide what to expose.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.first(ctx, "query user by username", "username = ?", normalize(username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "query user by email", "email = ?", normalize(email))
}

// GetByUsernameOrEmail matches identifier against both unique columns.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*model.User, error) {
	id := normalize(identifier)
	return r.first(ctx, "query user by identifier", "username = ? OR email = ?", id, id)
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	return r.first(ctx, "query user by id", "id = ?", id)
}

// GetPublicByID loads the user without the password hash or refresh token columns.
func (r *UserRepository) GetPublicByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Select(model.PublicUserColumns).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query public user failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("password_hash", hash).Error
	if err != nil {
		return fmt.Errorf("update password failed: %w", err)
	}
	return nil
}

// SetRefreshToken writes only the refresh_token column; nil clears it.
// It skips hooks and leaves updated_at alone.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id uint, token *string) error {
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("refresh_token", token).Error
	if err != nil {
		return fmt.Errorf("set refresh token failed: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id uint, url string) error {
	return r.updateField(ctx, id, "avatar_url", url)
}

func (r *UserRepository) UpdateCoverImage(ctx context.Context, id uint, url string) error {
	return r.updateField(ctx, id, "cover_image_url", url)
}

// UpdateAccount changes full name and/or email; empty values are left as they are.
func (r *UserRepository) UpdateAccount(ctx context.Context, id uint, fullName, email string) error {
	updates := map[string]interface{}{}
	if fullName != "" {
		updates["full_name"] = fullName
	}
	if email != "" {
		updates["email"] = normalize(email)
	}
	if len(updates) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("update account failed: %w", err)
	}
	return nil
}

func (r *UserRepository) updateField(ctx context.Context, id uint, column, value string) error {
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update(column, value).Error
	if err != nil {
		return fmt.Errorf("update %s failed: %w", column, err)
	}
	return nil
}

func (r *UserRepository) first(ctx context.Context, op string, query string, args ...interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	return &user, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
