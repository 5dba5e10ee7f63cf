package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"videotube/internal/model"
	"videotube/internal/pkg/jwtutil"
	"videotube/internal/repository"
)

// bcrypt only hashes the first 72 bytes and rejects anything longer.
const maxPasswordBytes = 72

type UserStore interface {
	RefreshTokenStore
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*model.User, error)
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetPublicByID(ctx context.Context, id uint) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
	UpdateAvatar(ctx context.Context, id uint, url string) error
	UpdateCoverImage(ctx context.Context, id uint, url string) error
	UpdateAccount(ctx context.Context, id uint, fullName, email string) error
}

// BlobStore uploads a local file to media storage and returns its public URL.
// Delete removes an object previously returned by Upload.
type BlobStore interface {
	Upload(ctx context.Context, localFilePath string) (string, error)
	Delete(ctx context.Context, url string) error
}

type UserCache interface {
	Get(ctx context.Context, id uint) (*model.User, bool, error)
	Set(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uint) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.AuthEvent) error
}

// Identity is the authenticated caller, produced by access-token verification.
type Identity struct {
	UserID uint
}

type AuthService struct {
	users             UserStore
	tokens            *TokenService
	blobs             BlobStore
	cache             UserCache
	events            EventPublisher
	log               *zap.Logger
	minPasswordLength int
}

type RegisterInput struct {
	FullName       string
	Email          string
	Username       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

type LoginInput struct {
	Identifier string
	Password   string
}

type LoginResult struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

type UpdateAccountInput struct {
	FullName string
	Email    string
}

// NewAuthService wires the session controller. cache and events may be nil.
// A minPasswordLength of zero only requires the password to be present.
func NewAuthService(
	users UserStore,
	tokens *TokenService,
	blobs BlobStore,
	cache UserCache,
	events EventPublisher,
	log *zap.Logger,
	minPasswordLength int,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:             users,
		tokens:            tokens,
		blobs:             blobs,
		cache:             cache,
		events:            events,
		log:               log,
		minPasswordLength: minPasswordLength,
	}
}

func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

// Register creates a user with an uploaded avatar and optional cover image.
// The local upload files are removed whatever the outcome.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	defer s.removeLocalFiles(input.AvatarPath, input.CoverImagePath)

	fullName := strings.TrimSpace(input.FullName)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.ToLower(strings.TrimSpace(input.Username))

	if err := requireFields(
		"fullName", fullName,
		"email", email,
		"username", username,
		"password", input.Password,
	); err != nil {
		return nil, err
	}
	if err := s.checkPassword(input.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.AvatarPath) == "" {
		return nil, ErrAvatarRequired
	}

	existingByName, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}
	existingByEmail, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	avatarURL, err := s.upload(ctx, input.AvatarPath)
	if err != nil {
		return nil, err
	}
	var coverURL string
	if strings.TrimSpace(input.CoverImagePath) != "" {
		coverURL, err = s.upload(ctx, input.CoverImagePath)
		if err != nil {
			s.removeRemote(ctx, avatarURL)
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		s.removeRemote(ctx, avatarURL, coverURL)
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.removeRemote(ctx, avatarURL, coverURL)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	s.publish(ctx, user.ID, model.AuthEventRegister)
	return publicUser(user), nil
}

// Login verifies credentials and opens a session. An unknown identifier yields
// ErrUserNotFound and a bad password ErrInvalidCredential; callers facing the
// network should report both the same way.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if err := requireFields("username or email", identifier, "password", input.Password); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.log.Info("login rejected: unknown user", zap.String("identifier", identifier))
		return nil, ErrUserNotFound
	}
	if !verifyPassword(user, input.Password) {
		s.log.Info("login rejected: wrong password", zap.Uint("user_id", user.ID))
		return nil, ErrInvalidCredential
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, user.ID, model.AuthEventLogin)
	return &LoginResult{
		User:         publicUser(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Logout revokes the stored refresh token. Logging out twice is fine.
func (s *AuthService) Logout(ctx context.Context, id Identity) error {
	if id.UserID == 0 {
		return ErrNotAuthenticated
	}
	if err := s.users.SetRefreshToken(ctx, id.UserID, nil); err != nil {
		return err
	}
	s.publish(ctx, id.UserID, model.AuthEventLogout)
	return nil
}

// RefreshSession rotates the pair. The presented token must be the one
// currently stored for the user; a superseded token is rejected even if it
// has not expired.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrRefreshTokenInvalid
	}

	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, jwtutil.ErrTokenExpired) {
			return nil, ErrRefreshTokenExpired
		}
		return nil, ErrRefreshTokenInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrRefreshTokenInvalid
	}
	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(refreshToken)) != 1 {
		s.log.Warn("refresh rejected: token superseded", zap.Uint("user_id", user.ID))
		return nil, ErrRefreshTokenRevoked
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, user.ID, model.AuthEventRefresh)
	return pair, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, id Identity, input ChangePasswordInput) error {
	if id.UserID == 0 {
		return ErrNotAuthenticated
	}
	if err := requireFields("oldPassword", input.OldPassword, "newPassword", input.NewPassword); err != nil {
		return err
	}
	if err := s.checkPassword(input.NewPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !verifyPassword(user, input.OldPassword) {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	s.invalidate(ctx, user.ID)
	s.publish(ctx, user.ID, model.AuthEventPasswordChange)
	return nil
}

// CurrentUser returns the caller's public record, served from cache when possible.
func (s *AuthService) CurrentUser(ctx context.Context, id Identity) (*model.User, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, id.UserID)
		if err != nil {
			s.log.Warn("user cache get failed", zap.Uint("user_id", id.UserID), zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	user, err := s.users.GetPublicByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, user); err != nil {
			s.log.Warn("user cache set failed", zap.Uint("user_id", id.UserID), zap.Error(err))
		}
	}
	return user, nil
}

func (s *AuthService) UpdateAvatar(ctx context.Context, id Identity, localFilePath string) (*model.User, error) {
	defer s.removeLocalFiles(localFilePath)
	return s.replaceImage(ctx, id, "avatar", localFilePath, s.users.UpdateAvatar)
}

func (s *AuthService) UpdateCoverImage(ctx context.Context, id Identity, localFilePath string) (*model.User, error) {
	defer s.removeLocalFiles(localFilePath)
	return s.replaceImage(ctx, id, "coverImage", localFilePath, s.users.UpdateCoverImage)
}

func (s *AuthService) UpdateAccountDetails(ctx context.Context, id Identity, input UpdateAccountInput) (*model.User, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	fullName := strings.TrimSpace(input.FullName)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if fullName == "" && email == "" {
		return nil, &ValidationError{Message: "at least one field is required", Fields: []string{"fullName", "email"}}
	}

	if email != "" {
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != id.UserID {
			return nil, ErrEmailExists
		}
	}

	if err := s.users.UpdateAccount(ctx, id.UserID, fullName, email); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailExists
		}
		return nil, err
	}

	s.invalidate(ctx, id.UserID)
	return s.freshPublicUser(ctx, id.UserID)
}

func (s *AuthService) replaceImage(
	ctx context.Context,
	id Identity,
	field string,
	localFilePath string,
	save func(ctx context.Context, id uint, url string) error,
) (*model.User, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(localFilePath) == "" {
		return nil, &ValidationError{Message: field + " file is missing", Fields: []string{field}}
	}

	url, err := s.upload(ctx, localFilePath)
	if err != nil {
		return nil, err
	}
	if err := save(ctx, id.UserID, url); err != nil {
		s.removeRemote(ctx, url)
		return nil, err
	}

	s.invalidate(ctx, id.UserID)
	return s.freshPublicUser(ctx, id.UserID)
}

func (s *AuthService) freshPublicUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.users.GetPublicByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) upload(ctx context.Context, localFilePath string) (string, error) {
	url, err := s.blobs.Upload(ctx, localFilePath)
	if err != nil {
		s.log.Error("blob upload failed", zap.String("path", localFilePath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if url == "" {
		return "", fmt.Errorf("%w: storage returned no url", ErrUpload)
	}
	return url, nil
}

func (s *AuthService) checkPassword(password string) error {
	if len(password) > maxPasswordBytes {
		return &ValidationError{
			Message: fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes),
			Fields:  []string{"password"},
		}
	}
	if s.minPasswordLength > 0 && len(password) < s.minPasswordLength {
		return &ValidationError{
			Message: fmt.Sprintf("password must be at least %d characters", s.minPasswordLength),
			Fields:  []string{"password"},
		}
	}
	return nil
}

// removeRemote deletes objects uploaded for an operation that did not
// complete. Failures are logged and otherwise ignored.
func (s *AuthService) removeRemote(ctx context.Context, urls ...string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, u); err != nil {
			s.log.Warn("remove orphaned upload failed", zap.String("url", u), zap.Error(err))
		}
	}
}

func (s *AuthService) removeLocalFiles(paths ...string) {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("remove temp upload failed", zap.String("path", p), zap.Error(err))
		}
	}
}

func (s *AuthService) invalidate(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("user cache delete failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (s *AuthService) publish(ctx context.Context, userID uint, kind string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, model.AuthEvent{UserID: userID, Kind: kind}); err != nil {
		s.log.Warn("publish auth event failed", zap.Uint("user_id", userID), zap.String("kind", kind), zap.Error(err))
	}
}

// verifyPassword relies on bcrypt's constant-time comparison.
func verifyPassword(user *model.User, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plaintext)) == nil
}

func publicUser(user *model.User) *model.User {
	out := *user
	out.PasswordHash = ""
	out.RefreshToken = nil
	return &out
}
