package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"videotube/internal/app"
	"videotube/internal/transport/http/response"
)

// writeError maps a service error to its status code and envelope. Causes of
// unexpected errors are logged and never sent to the client.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(c, http.StatusBadRequest, verr.Message, verr.Fields...)
	case errors.Is(err, app.ErrValidation):
		response.Error(c, http.StatusBadRequest, message(err, app.ErrValidation))
	case errors.Is(err, app.ErrConflict):
		response.Error(c, http.StatusConflict, message(err, app.ErrConflict))
	case errors.Is(err, app.ErrNotFound):
		response.Error(c, http.StatusNotFound, message(err, app.ErrNotFound))
	case errors.Is(err, app.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, message(err, app.ErrUnauthorized))
	case errors.Is(err, app.ErrUpload):
		log.Warn("upload failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, http.StatusBadGateway, "failed to upload file")
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "internal server error")
	}
}

// message strips the "<kind>: " prefix the sentinel wrapping adds.
func message(err, kind error) string {
	msg := strings.TrimPrefix(err.Error(), kind.Error()+": ")
	if msg == "" {
		return kind.Error()
	}
	return msg
}
