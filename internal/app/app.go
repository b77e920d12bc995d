// Package app wires configuration into the services shared by the server and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/recbridge/backend/config"
	"github.com/recbridge/backend/internal/eventbrite"
	"github.com/recbridge/backend/internal/history"
	"github.com/recbridge/backend/internal/janitor"
	"github.com/recbridge/backend/internal/matcher"
	"github.com/recbridge/backend/internal/pipeline"
	"github.com/recbridge/backend/internal/progress"
	"github.com/recbridge/backend/internal/videocache"
	"github.com/recbridge/backend/internal/youtube"
	"github.com/recbridge/backend/internal/zoom"
	"github.com/recbridge/backend/pkg/database"
	"github.com/recbridge/backend/pkg/queue"
	"github.com/recbridge/backend/pkg/redis"
	"github.com/recbridge/backend/pkg/storage"
)

// App holds the long-lived clients and services.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client // nil without REDIS_ADDR/REDIS_URL
	Zoom       *zoom.Client
	Eventbrite *eventbrite.Client
	YouTube    *youtube.Client
	Checker    *videocache.Checker
	History    *history.Repository
	Matcher    *matcher.Service
	Pipeline   *pipeline.Orchestrator
	Janitor    *janitor.Janitor
}

// New connects to Postgres, Redis (when configured) and S3 (when configured)
// and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.Pool = pool

	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, redis.Config{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
	}

	if err := os.MkdirAll(cfg.Pipeline.DownloadDir, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("download dir: %w", err)
	}

	loc := cfg.Pipeline.Location()
	a.Zoom = zoom.NewClient(zoom.Config{
		AccountID:     cfg.Zoom.AccountID,
		ClientID:      cfg.Zoom.ClientID,
		ClientSecret:  cfg.Zoom.ClientSecret,
		AuthURL:       cfg.Zoom.AuthURL,
		BaseURL:       cfg.Zoom.BaseURL,
		RatePerSecond: cfg.Zoom.RatePerSecond,
	}, nil, logger.Named("zoom"))
	a.Eventbrite = eventbrite.NewClient(cfg.Eventbrite.Token, cfg.Eventbrite.BaseURL, nil, logger.Named("eventbrite"))
	a.YouTube = youtube.NewClient(youtube.Config{
		CredentialsPath: cfg.YouTube.TokenFile,
		ChannelID:       cfg.YouTube.ChannelID,
	}, logger.Named("youtube"))

	cache := videocache.NewCache(videocache.NewRepository(pool), cfg.YouTube.CacheFreshness, logger.Named("videocache"))
	a.Checker = videocache.NewChecker(cache, a.YouTube, logger.Named("videocache"))
	a.History = history.NewRepository(pool)
	var annotate matcher.DuplicateChecker
	if cfg.YouTube.CheckExisting {
		annotate = a.Checker
	}
	a.Matcher = matcher.NewService(a.Zoom, a.Eventbrite, annotate, a.YouTube, loc, logger.Named("matcher"))

	deps := pipeline.Deps{
		Source:    a.Zoom,
		Publisher: a.YouTube,
		Checker:   a.Checker,
		History:   a.History,
	}
	if a.Redis != nil {
		deps.Queue = queue.NewRedis(a.Redis.Client, logger.Named("queue"))
		deps.Store = progress.NewRedis(a.Redis.Client, cfg.Pipeline.ProgressRetention)
	} else {
		deps.Queue = queue.NewMemory(cfg.Pipeline.QueueSize)
		deps.Store = progress.NewMemory(cfg.Pipeline.ProgressRetention, progress.DefaultMaxFinished)
	}

	s3Cfg := storage.S3Config{
		Region:           cfg.AWS.Region,
		AccessKeyID:      cfg.AWS.AccessKeyID,
		SecretAccessKey:  cfg.AWS.SecretAccessKey,
		RecordingsBucket: cfg.AWS.RecordingsBucket,
		Endpoint:         cfg.AWS.Endpoint,
	}
	if s3Cfg.Enabled() {
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger.Named("s3"))
		if err != nil {
			logger.Warn("s3 archive disabled", zap.Error(err))
		} else {
			deps.Archiver = s3Client
		}
	}

	a.Pipeline = pipeline.New(pipeline.Config{
		Workers:       cfg.Pipeline.Workers,
		DownloadDir:   cfg.Pipeline.DownloadDir,
		CheckExisting: cfg.YouTube.CheckExisting,
		Location:      loc,
	}, deps, logger.Named("pipeline"))
	a.Janitor = janitor.New(cfg.Pipeline.DownloadDir, cfg.Pipeline.DownloadRetention, janitor.DefaultInterval, logger.Named("janitor"))
	return a, nil
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
