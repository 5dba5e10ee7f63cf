package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"videotube/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, subscriberID, channelID uint) error {
	sub := &model.Subscription{SubscriberID: subscriberID, ChannelID: channelID}
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create subscription failed: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, subscriberID, channelID uint) error {
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND channel_id = ?", subscriberID, channelID).
		Delete(&model.Subscription{}).Error
	if err != nil {
		return fmt.Errorf("delete subscription failed: %w", err)
	}
	return nil
}

const channelProfileColumns = `users.id, users.username, users.email, users.full_name,
	users.avatar_url, users.cover_image_url, users.created_at,
	(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = users.id) AS subscribers_count,
	(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = users.id) AS subscribed_to_count,
	EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = users.id AND s.subscriber_id = ?) AS is_subscribed`

// GetChannelProfile computes the public profile and its three derived values
// in one statement, so the counts and the flag come from the same snapshot.
// viewerID 0 means anonymous and never matches an edge.
func (r *SubscriptionRepository) GetChannelProfile(ctx context.Context, username string, viewerID uint) (*model.ChannelProfile, error) {
	var profile model.ChannelProfile
	result := r.db.WithContext(ctx).
		Table("users").
		Select(channelProfileColumns, viewerID).
		Where("users.username = ?", normalize(username)).
		Limit(1).
		Scan(&profile)
	if result.Error != nil {
		return nil, fmt.Errorf("query channel profile failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &profile, nil
}
