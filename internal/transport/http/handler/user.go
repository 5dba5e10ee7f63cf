package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"videotube/internal/app"
	"videotube/internal/model"
	"videotube/internal/transport/http/middleware"
	"videotube/internal/transport/http/response"
)

type UserService interface {
	Register(ctx context.Context, input app.RegisterInput) (*model.User, error)
	Login(ctx context.Context, input app.LoginInput) (*app.LoginResult, error)
	Logout(ctx context.Context, id app.Identity) error
	RefreshSession(ctx context.Context, refreshToken string) (*app.TokenPair, error)
	ChangePassword(ctx context.Context, id app.Identity, input app.ChangePasswordInput) error
	CurrentUser(ctx context.Context, id app.Identity) (*model.User, error)
	UpdateAccountDetails(ctx context.Context, id app.Identity, input app.UpdateAccountInput) (*model.User, error)
	UpdateAvatar(ctx context.Context, id app.Identity, localFilePath string) (*model.User, error)
	UpdateCoverImage(ctx context.Context, id app.Identity, localFilePath string) (*model.User, error)
}

type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type UserHandler struct {
	users     UserService
	cookies   CookieConfig
	uploadDir string
	log       *zap.Logger
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type UpdateAccountRequest struct {
	FullName string `json:"fullName" binding:"max=128"`
	Email    string `json:"email" binding:"omitempty,email,max=128"`
}

func NewUserHandler(users UserService, cookies CookieConfig, uploadDir string, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{users: users, cookies: cookies, uploadDir: uploadDir, log: log}
}

func (h *UserHandler) Register(c *gin.Context) {
	avatarPath, err := stageUpload(c, "avatar", h.uploadDir)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	coverPath, err := stageUpload(c, "coverImage", h.uploadDir)
	if err != nil {
		discard(avatarPath)
		writeError(c, h.log, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), app.RegisterInput{
		FullName:       c.PostForm("fullName"),
		Email:          c.PostForm("email"),
		Username:       c.PostForm("username"),
		Password:       c.PostForm("password"),
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response.OK(c, http.StatusCreated, user, "User registered successfully")
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}

	result, err := h.users.Login(c.Request.Context(), app.LoginInput{
		Identifier: identifier,
		Password:   req.Password,
	})
	if err != nil {
		// Unknown users and wrong passwords look the same from outside.
		if errors.Is(err, app.ErrUserNotFound) {
			err = app.ErrInvalidCredential
		}
		writeError(c, h.log, err)
		return
	}

	h.setSessionCookies(c, result.AccessToken, result.RefreshToken)
	response.OK(c, http.StatusOK, gin.H{
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	}, "User logged in successfully")
}

func (h *UserHandler) Logout(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	if err := h.users.Logout(c.Request.Context(), id); err != nil {
		writeError(c, h.log, err)
		return
	}

	h.clearSessionCookies(c)
	response.OK(c, http.StatusOK, gin.H{}, "User logged out")
}

func (h *UserHandler) RefreshToken(c *gin.Context) {
	token, _ := c.Cookie(middleware.RefreshTokenCookie)
	if strings.TrimSpace(token) == "" {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := h.users.RefreshSession(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, app.ErrUnauthorized) {
			h.clearSessionCookies(c)
		}
		writeError(c, h.log, err)
		return
	}

	h.setSessionCookies(c, pair.AccessToken, pair.RefreshToken)
	response.OK(c, http.StatusOK, pair, "Access token refreshed")
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	err := h.users.ChangePassword(c.Request.Context(), id, app.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, gin.H{}, "Password changed successfully")
}

func (h *UserHandler) Me(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	user, err := h.users.CurrentUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, user, "Current user fetched successfully")
}

func (h *UserHandler) UpdateAccount(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	user, err := h.users.UpdateAccountDetails(c.Request.Context(), id, app.UpdateAccountInput{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, user, "Account details updated successfully")
}

func (h *UserHandler) UpdateAvatar(c *gin.Context) {
	h.replaceImage(c, "avatar", h.users.UpdateAvatar, "Avatar image updated successfully")
}

func (h *UserHandler) UpdateCoverImage(c *gin.Context) {
	h.replaceImage(c, "coverImage", h.users.UpdateCoverImage, "Cover image updated successfully")
}

func (h *UserHandler) replaceImage(
	c *gin.Context,
	field string,
	update func(ctx context.Context, id app.Identity, localFilePath string) (*model.User, error),
	okMessage string,
) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	path, err := stageUpload(c, field, h.uploadDir)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	user, err := update(c.Request.Context(), id, path)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, user, okMessage)
}

func (h *UserHandler) identity(c *gin.Context) (app.Identity, bool) {
	id, ok := middleware.Identity(c)
	if !ok {
		writeError(c, h.log, app.ErrNotAuthenticated)
	}
	return id, ok
}

func (h *UserHandler) setSessionCookies(c *gin.Context, accessToken, refreshToken string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, accessToken, int(h.cookies.AccessTTL.Seconds()), "/", "", h.cookies.Secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, refreshToken, int(h.cookies.RefreshTTL.Seconds()), "/", "", h.cookies.Secure, true)
}

func (h *UserHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.cookies.Secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", "", h.cookies.Secure, true)
}
