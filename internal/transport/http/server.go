package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"videotube/internal/bootstrap"
	"videotube/internal/transport/http/handler"
	"videotube/internal/transport/http/middleware"
)

func NewRouter(a *bootstrap.App) *gin.Engine {
	gin.SetMode(a.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(a.Logger.Named("http")), middleware.Recovery(a.Logger))

	healthHandler := handler.NewHealthHandler(a.Config.App.Name, a.Config.App.Env, a.StartedAt, map[string]handler.Checker{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		},
		"rabbitmq": func(context.Context) error {
			if a.MQConn == nil || a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
		"storage": a.Blob.Ping,
	})
	router.GET("/healthz", healthHandler.Check)

	tokens := a.Auth.Tokens()
	userHandler := handler.NewUserHandler(a.Auth, handler.CookieConfig{
		Secure:     a.Config.Auth.CookieSecure,
		AccessTTL:  tokens.AccessTTL(),
		RefreshTTL: tokens.RefreshTTL(),
	}, a.Config.App.UploadDir, a.Logger.Named("http"))
	channelHandler := handler.NewChannelHandler(a.Channels, a.Logger.Named("http"))

	Register(router, tokens, userHandler, channelHandler)
	return router
}

// Register mounts the API routes. verifier checks access tokens for the
// protected routes.
func Register(router *gin.Engine, verifier middleware.AccessTokenVerifier, users *handler.UserHandler, channels *handler.ChannelHandler) {
	requireAuth := middleware.AuthJWT(verifier)

	v1 := router.Group("/api/v1")
	userGroup := v1.Group("/users")
	userGroup.POST("/register", users.Register)
	userGroup.POST("/login", users.Login)
	userGroup.POST("/refresh-token", users.RefreshToken)
	userGroup.GET("/channel/:username", middleware.OptionalAuth(verifier), channels.Profile)

	secured := userGroup.Group("")
	secured.Use(requireAuth)
	secured.POST("/logout", users.Logout)
	secured.POST("/change-password", users.ChangePassword)
	secured.GET("/me", users.Me)
	secured.PATCH("/update-account", users.UpdateAccount)
	secured.PATCH("/avatar", users.UpdateAvatar)
	secured.PATCH("/cover-image", users.UpdateCoverImage)

	subscriptionGroup := v1.Group("/subscriptions")
	subscriptionGroup.Use(requireAuth)
	subscriptionGroup.POST("/:username", channels.Subscribe)
	subscriptionGroup.DELETE("/:username", channels.Unsubscribe)
}
