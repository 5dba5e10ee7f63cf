package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"videotube/internal/app"
	"videotube/internal/model"
	"videotube/internal/transport/http/middleware"
	"videotube/internal/transport/http/response"
)

type ChannelService interface {
	GetChannelProfile(ctx context.Context, username string, viewer *app.Identity) (*model.ChannelProfile, error)
	Subscribe(ctx context.Context, id app.Identity, channelUsername string) error
	Unsubscribe(ctx context.Context, id app.Identity, channelUsername string) error
}

type ChannelHandler struct {
	channels ChannelService
	log      *zap.Logger
}

func NewChannelHandler(channels ChannelService, log *zap.Logger) *ChannelHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChannelHandler{channels: channels, log: log}
}

// Profile serves anonymous and signed-in viewers alike.
func (h *ChannelHandler) Profile(c *gin.Context) {
	var viewer *app.Identity
	if id, ok := middleware.Identity(c); ok {
		viewer = &id
	}

	profile, err := h.channels.GetChannelProfile(c.Request.Context(), c.Param("username"), viewer)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, profile, "User channel fetched successfully")
}

func (h *ChannelHandler) Subscribe(c *gin.Context) {
	id, ok := middleware.Identity(c)
	if !ok {
		writeError(c, h.log, app.ErrNotAuthenticated)
		return
	}
	if err := h.channels.Subscribe(c.Request.Context(), id, c.Param("username")); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, gin.H{}, "Subscribed successfully")
}

func (h *ChannelHandler) Unsubscribe(c *gin.Context) {
	id, ok := middleware.Identity(c)
	if !ok {
		writeError(c, h.log, app.ErrNotAuthenticated)
		return
	}
	if err := h.channels.Unsubscribe(c.Request.Context(), id, c.Param("username")); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, gin.H{}, "Unsubscribed successfully")
}
