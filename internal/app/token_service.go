package app

import (
	"context"
	"errors"
	"time"

	"videotube/internal/model"
	"videotube/internal/pkg/jwtutil"
)

type RefreshTokenStore interface {
	SetRefreshToken(ctx context.Context, id uint, token *string) error
}

type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService mints and verifies access/refresh JWTs. The two kinds are
// signed with different secrets, so one can never be replayed as the other.
type TokenService struct {
	store RefreshTokenStore
	cfg   TokenConfig
}

func NewTokenService(store RefreshTokenStore, cfg TokenConfig) *TokenService {
	return &TokenService{store: store, cfg: cfg}
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

func (s *TokenService) RefreshTTL() time.Duration {
	return s.cfg.RefreshTTL
}

func (s *TokenService) IssueAccessToken(user *model.User) (string, error) {
	return jwtutil.GenerateToken(s.cfg.AccessSecret, s.cfg.AccessTTL, user.ID)
}

func (s *TokenService) IssueRefreshToken(user *model.User) (string, error) {
	return jwtutil.GenerateToken(s.cfg.RefreshSecret, s.cfg.RefreshTTL, user.ID)
}

// Verify returns the user id claimed by token. Failures are either
// jwtutil.ErrTokenExpired or jwtutil.ErrTokenInvalid.
func (s *TokenService) Verify(token, secret string) (uint, error) {
	claims, err := jwtutil.ParseToken(secret, token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func (s *TokenService) VerifyAccessToken(token string) (uint, error) {
	return s.Verify(token, s.cfg.AccessSecret)
}

func (s *TokenService) VerifyRefreshToken(token string) (uint, error) {
	return s.Verify(token, s.cfg.RefreshSecret)
}

// IssuePair mints a new pair and stores the refresh token as the user's only
// valid one. Whatever refresh token the user held before stops working.
func (s *TokenService) IssuePair(ctx context.Context, user *model.User) (*TokenPair, error) {
	if user == nil || user.ID == 0 {
		return nil, errors.New("issue token pair: user is not persisted")
	}

	access, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, &refresh); err != nil {
		return nil, err
	}
	user.RefreshToken = &refresh

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
