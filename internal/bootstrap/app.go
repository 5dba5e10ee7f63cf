package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appsvc "videotube/internal/app"
	"videotube/internal/blob"
	"videotube/internal/cache"
	"videotube/internal/config"
	"videotube/internal/model"
	"videotube/internal/platform/logger"
	mysqlClient "videotube/internal/platform/mysql"
	postgresClient "videotube/internal/platform/postgres"
	rabbitmqClient "videotube/internal/platform/rabbitmq"
	redisClient "videotube/internal/platform/redis"
	"videotube/internal/repository"
	"videotube/internal/worker"
)

type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Blob        *blob.S3Store
	EventWorker *worker.AuthEventWorker

	Auth     *appsvc.AuthService
	Channels *appsvc.ChannelService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("app", cfg.App.Name))

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	userRepo := repository.NewUserRepository(a.DB)
	subscriptionRepo := repository.NewSubscriptionRepository(a.DB)
	eventRepo := repository.NewAuthEventRepository(a.DB)

	a.EventWorker = worker.NewAuthEventWorker(a.MQConn, eventRepo, cfg.RabbitMQ.AuthEventQueue, log.Named("auth-event-worker"))
	if err := a.EventWorker.Start(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("start auth event worker failed: %w", err)
	}

	tokens := appsvc.NewTokenService(userRepo, appsvc.TokenConfig{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL(),
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		RefreshTTL:    cfg.RefreshTokenTTL(),
	})
	a.Auth = appsvc.NewAuthService(
		userRepo,
		tokens,
		a.Blob,
		cache.NewUserCache(a.Redis, cfg.UserCacheTTL()),
		rabbitmqClient.NewEventPublisher(a.MQConn, cfg.RabbitMQ.AuthEventQueue),
		log.Named("auth"),
		cfg.Auth.MinPasswordLength,
	)
	a.Channels = appsvc.NewChannelService(subscriptionRepo, userRepo, log.Named("channel"))

	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	var err error
	switch cfg.Database.Driver {
	case "postgres":
		a.DB, err = postgresClient.New(ctx, cfg.PostgresDSN())
	default:
		a.DB, err = mysqlClient.New(ctx, cfg.MySQLDSN())
	}
	if err != nil {
		return err
	}
	if err := a.DB.AutoMigrate(&model.User{}, &model.Subscription{}, &model.AuthEvent{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if a.Redis, err = redisClient.New(ctx, cfg.Redis); err != nil {
		return err
	}
	if a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL); err != nil {
		return err
	}
	if a.Blob, err = blob.New(ctx, cfg.Storage); err != nil {
		return err
	}

	a.Logger.Info("backing services connected",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("redis", cfg.Redis.Addr),
		zap.String("bucket", cfg.Storage.Bucket),
	)
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
