package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	sentinelapi "go.pilab.hu/sentinel/api/echo"
	"go.pilab.hu/sentinel/cache"
	redicache "go.pilab.hu/sentinel/cache/redis"
	"go.pilab.hu/sentinel/config"
	"go.pilab.hu/sentinel/domain"
	"go.pilab.hu/sentinel/internal/auth"
	"go.pilab.hu/sentinel/mongodb"
	"go.pilab.hu/sentinel/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fatalLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		fatalLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(logLevel).With().Timestamp().Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Logger = logger
	if parseErr != nil {
		logger.Warn().Str("configured_log_level", cfg.LogLevel).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}

	ctx := logger.WithContext(context.Background())
	logger.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("cache_backend", cfg.CacheBackend).
		Msg("Starting sentinel server")

	db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Error closing MongoDB connection")
		}
	}()

	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create MongoDB indexes")
	}

	var tokenCache domain.TokenCache
	switch cfg.CacheBackend {
	case "redis":
		redisOpts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		redisClient := goredis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to ping Redis")
		}
		defer redisClient.Close()
		tokenCache = redicache.NewTokenCache(redisClient, "sentinel")
	case "memory":
		memCache := cache.NewMemoryTokenCache()
		defer memCache.Close()
		tokenCache = memCache
	default:
		logger.Fatal().Str("cache_backend", cfg.CacheBackend).
			Msg("Unknown CACHE_BACKEND, expected redis or memory")
	}

	hasher := auth.NewBcryptPasswordHasher(0)
	store := mongodb.NewStorage(db, tokenCache, hasher, time.Duration(cfg.GrantTTLSeconds)*time.Second)
	issuance := services.NewIssuanceService(store, tokenCache)

	e := echo.New()
	e.HideBanner = true
	e.Use(sentinelapi.RequestLogger(logger))
	e.Use(echomw.Recover())

	api := sentinelapi.NewManagementAPI(store, issuance)
	api.RegisterRoutes(e, cfg.AdminUser, cfg.AdminPassword)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
