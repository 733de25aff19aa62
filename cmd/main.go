package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tourze/wechat-fans-service/internal/cache"
	"github.com/tourze/wechat-fans-service/internal/config"
	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/events"
	"github.com/tourze/wechat-fans-service/internal/handler"
	"github.com/tourze/wechat-fans-service/internal/reconciler"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/internal/scheduler"
	"github.com/tourze/wechat-fans-service/internal/service"
	"github.com/tourze/wechat-fans-service/internal/wechat"
	"github.com/tourze/wechat-fans-service/pkg/database"
	pkglog "github.com/tourze/wechat-fans-service/pkg/log"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "wechat-fans-service",
	})
	logger := pkglog.L()

	// 3. Init DB (GORM, auto-migrate the fan mirror tables)
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to get underlying sql.DB")
	}
	defer sqlDB.Close()

	err = database.AutoMigrate(db,
		&domain.AccountModel{},
		&domain.FanModel{},
		&domain.TagModel{},
		&domain.FanTagModel{},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// 4. Init stats cache (redis, or noop when disabled)
	var statsCache cache.StatsCache = cache.NewNoopStatsCache()
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisStatsCache(cache.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Prefix)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to redis, stats cache disabled")
		} else {
			statsCache = redisCache
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		}
	}
	defer statsCache.Close()

	// 5. Init event publisher (kafka, or noop when unconfigured)
	var publisher events.Publisher = events.NewNoopPublisher()
	if cfg.Kafka.Brokers != "" {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, events disabled")
		} else {
			publisher = kafkaPublisher
			logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka event publisher started")
		}
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not configured; event publishing disabled")
	}

	// 6. Create repos, WeChat client, services
	accountRepo := repository.NewGormAccountRepository(db)
	fanRepo := repository.NewGormFanRepository(db)
	tagRepo := repository.NewGormTagRepository(db)
	fanTagRepo := repository.NewGormFanTagRepository(db)

	client := wechat.NewClient(cfg.WeChat.BaseURL, cfg.WeChat.Timeout)

	accountSvc := service.NewAccountService(accountRepo)
	fanSvc := service.NewFanService(fanRepo, tagRepo, fanTagRepo, accountRepo, statsCache)
	tagSvc := service.NewTagService(tagRepo, fanTagRepo)

	// 7. Init sync engine, runner and scheduler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := reconciler.NewEngine(fanRepo, tagRepo, client, reconciler.Options{
		PageDelay:       cfg.Sync.PageDelay,
		DetailDelay:     cfg.Sync.DetailDelay,
		UpsertBatchSize: cfg.Sync.UpsertBatchSize,
		DetailBatchSize: cfg.Sync.DetailBatchSize,
	})
	runner := reconciler.NewRunner(accountRepo, engine, statsCache, publisher)

	sched := scheduler.New(runner, cfg.Schedule)
	sched.Start(ctx)
	logger.Info().Msg("sync scheduler started")

	// 8. Setup Gin router + HTTP server
	httpHandler := handler.NewHandler(accountSvc, fanSvc, tagSvc, runner)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	httpHandler.RegisterRoutes(r)

	// 9. Start server goroutine
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info().Str("addr", addr).Msg("wechat-fans-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 10. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		// 1. cancel() — unblock any in-flight sync job
		cancel()

		// 2. scheduler.Stop() — stop job timers; wait for loops to exit
		sched.Stop()
		<-sched.Done()

		// 3. publisher.Close() — flush pending events
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing event publisher")
		}

		// 4. server.Shutdown(5s) — drain HTTP
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("wechat-fans-service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}
