package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"videotube/internal/app"
	"videotube/internal/pkg/jwtutil"
	"videotube/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"

	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (uint, error)
}

// AuthJWT requires a valid access token from the accessToken cookie or a
// Bearer header and stores the caller's id in the context.
func AuthJWT(verifier AccessTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "unauthorized request")
			return
		}

		userID, err := verifier.VerifyAccessToken(token)
		if err != nil {
			if errors.Is(err, jwtutil.ErrTokenExpired) {
				response.Abort(c, http.StatusUnauthorized, "access token expired")
				return
			}
			response.Abort(c, http.StatusUnauthorized, "invalid access token")
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid access token is present
// and lets anonymous requests through otherwise.
func OptionalAuth(verifier AccessTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := accessToken(c); token != "" {
			if userID, err := verifier.VerifyAccessToken(token); err == nil {
				c.Set(ContextUserIDKey, userID)
			}
		}
		c.Next()
	}
}

// Identity returns the caller set by AuthJWT or OptionalAuth.
func Identity(c *gin.Context) (app.Identity, bool) {
	v, exists := c.Get(ContextUserIDKey)
	if !exists {
		return app.Identity{}, false
	}
	userID, ok := v.(uint)
	if !ok || userID == 0 {
		return app.Identity{}, false
	}
	return app.Identity{UserID: userID}, true
}

func accessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}

	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
}
