package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"homecare-ai/internal/app"
	"homecare-ai/internal/audio"
	"homecare-ai/internal/cache"
	"homecare-ai/internal/config"
	"homecare-ai/internal/export"
	"homecare-ai/internal/logger"
	"homecare-ai/internal/notify"
	"homecare-ai/internal/pkg/executor"
	"homecare-ai/internal/platform/database"
	rabbitmqClient "homecare-ai/internal/platform/rabbitmq"
	redisClient "homecare-ai/internal/platform/redis"
	"homecare-ai/internal/repository"
	"homecare-ai/internal/summarize"
	"homecare-ai/internal/transcribe"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	AuthService    *app.AuthService
	CareLogService *app.CareLogService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, logger.New(cfg.Log.Level, cfg.Log.Format))
}

// NewWithConfig connects every backing service named in cfg and wires the
// pipeline. Redis and RabbitMQ are skipped when their address is empty.
func NewWithConfig(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}

	for _, dir := range []string{cfg.Storage.UploadsDir, cfg.Storage.SummariesDir, cfg.Audio.TempDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s failed: %w", dir, err)
		}
	}

	db, err := database.New(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	a.DB = db

	careLogRepo := repository.NewCareLogRepository(db)
	userRepo := repository.NewUserRepository(db)
	if err := careLogRepo.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := userRepo.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}

	authenticator := app.NewUserAuthenticator(userRepo)
	if err := authenticator.Seed(ctx, cfg.Auth.Users); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed users failed: %w", err)
	}

	var sessions cache.SessionStore = cache.NewMemorySessionStore()
	if cfg.Redis.Addr != "" {
		redisCli, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = redisCli
		sessions = cache.NewRedisSessionStore(redisCli)
	} else {
		log.Warn("redis not configured, sessions are kept in memory")
	}

	var publisher app.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.CareLogEventQueue)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.MQConn = mqConn
		publisher = rabbitmqClient.NewCareLogPublisher(mqConn, cfg.RabbitMQ.CareLogEventQueue)
	}

	exec := executor.New()
	transcriber, err := transcribe.New(cfg.Transcriber, exec, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	summarizer, err := summarize.New(cfg.LLM, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.AuthService = app.NewAuthService(
		authenticator,
		sessions,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.CareLogService = app.NewCareLogService(app.CareLogServiceDeps{
		Normalizer:        audio.NewNormalizer(exec, cfg.Audio.FFmpegPath, cfg.Audio.TempDir, log),
		Transcriber:       transcriber,
		Summarizer:        summarizer,
		Exporter:          export.NewExporter(cfg.Storage.SummariesDir, log),
		Store:             careLogRepo,
		Mailer:            notify.NewMailer(cfg.Mail, log),
		Publisher:         publisher,
		UploadsDir:        cfg.Storage.UploadsDir,
		AllowedExtensions: cfg.Audio.AllowedExtensions,
		Logger:            log,
	})

	log.Info("application initialized",
		"database", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider,
		"transcriber", cfg.Transcriber.Provider,
		"redis", a.Redis != nil,
		"rabbitmq", a.MQConn != nil,
	)
	return a, nil
}

func (a *App) Close() error {
	var closeErr error
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
	return closeErr
}
