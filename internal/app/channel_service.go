package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"videotube/internal/model"
	"videotube/internal/repository"
)

type SubscriptionStore interface {
	Create(ctx context.Context, subscriberID, channelID uint) error
	Delete(ctx context.Context, subscriberID, channelID uint) error
	GetChannelProfile(ctx context.Context, username string, viewerID uint) (*model.ChannelProfile, error)
}

type ChannelLookup interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// ChannelService serves channel profiles and the subscription edges behind them.
type ChannelService struct {
	subs  SubscriptionStore
	users ChannelLookup
	log   *zap.Logger
}

func NewChannelService(subs SubscriptionStore, users ChannelLookup, log *zap.Logger) *ChannelService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChannelService{subs: subs, users: users, log: log}
}

// GetChannelProfile returns the channel's public fields with subscriber
// counts. viewer is nil for anonymous callers, in which case IsSubscribed is false.
func (s *ChannelService) GetChannelProfile(ctx context.Context, username string, viewer *Identity) (*model.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := requireFields("username", username); err != nil {
		return nil, err
	}

	var viewerID uint
	if viewer != nil {
		viewerID = viewer.UserID
	}

	profile, err := s.subs.GetChannelProfile(ctx, username, viewerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrChannelNotFound
	}
	return profile, nil
}

// Subscribe is idempotent: subscribing again leaves the single edge in place.
func (s *ChannelService) Subscribe(ctx context.Context, id Identity, channelUsername string) error {
	channel, err := s.channelFor(ctx, id, channelUsername)
	if err != nil {
		return err
	}
	if channel.ID == id.UserID {
		return &ValidationError{Message: "cannot subscribe to your own channel", Fields: []string{"username"}}
	}

	if err := s.subs.Create(ctx, id.UserID, channel.ID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return err
	}
	s.log.Debug("subscribed", zap.Uint("subscriber_id", id.UserID), zap.Uint("channel_id", channel.ID))
	return nil
}

func (s *ChannelService) Unsubscribe(ctx context.Context, id Identity, channelUsername string) error {
	channel, err := s.channelFor(ctx, id, channelUsername)
	if err != nil {
		return err
	}
	return s.subs.Delete(ctx, id.UserID, channel.ID)
}

func (s *ChannelService) channelFor(ctx context.Context, id Identity, channelUsername string) (*model.User, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	channelUsername = strings.ToLower(strings.TrimSpace(channelUsername))
	if err := requireFields("username", channelUsername); err != nil {
		return nil, err
	}

	channel, err := s.users.GetByUsername(ctx, channelUsername)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, ErrChannelNotFound
	}
	return channel, nil
}
