// Package main runs the recording bridge HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/recbridge/backend/config"
	"github.com/recbridge/backend/internal/api"
	"github.com/recbridge/backend/internal/app"
	"github.com/recbridge/backend/internal/auth"
	"github.com/recbridge/backend/internal/metrics"
	"github.com/recbridge/backend/internal/middleware"
	"github.com/recbridge/backend/pkg/database"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	for _, problem := range cfg.Validate() {
		logger.Warn("configuration", zap.String("problem", problem))
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	if err := database.Migrate(ctx, a.Pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	verifier := auth.NewGoogleVerifier(cfg.Auth.GoogleClientID, cfg.Auth.AllowedDomain)
	authHandler := auth.NewHandler(auth.NewRepository(a.Pool), verifier, jwtService, logger.Named("auth"))

	apiHandler := api.NewHandler(api.Deps{
		Conference:    a.Zoom,
		Organizations: a.Eventbrite,
		Matcher:       a.Matcher,
		Runs:          a.Pipeline,
		History:       a.History,
		Videos:        a.YouTube,
		Cache:         a.Checker,
	}, a.Matcher.Location(), logger.Named("api"))

	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return a.Pool.Ping(ctx) },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", api.Health(checks))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/session", authHandler.Session)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me)
	}

	protected := router.Group("/api")
	protected.Use(middleware.JWT(jwtService), middleware.RequireDomain(cfg.Auth.AllowedDomain))
	apiHandler.Register(protected)

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// WriteTimeout stays unset: the status websocket outlives any fixed deadline.
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	var bg sync.WaitGroup
	if cfg.Pipeline.ServerWorkers || a.Redis == nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			a.Pipeline.Run(bgCtx)
		}()
	}
	bg.Add(1)
	go func() {
		defer bg.Done()
		a.Janitor.Run(bgCtx)
	}()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	bgCancel()
	bg.Wait()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
