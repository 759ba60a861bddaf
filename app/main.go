package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/config"
	"github.com/Guyuepp/pretty-like/internal/repository"
	"github.com/Guyuepp/pretty-like/internal/repository/cache"
	mysqlRepo "github.com/Guyuepp/pretty-like/internal/repository/mysql"
	myRedisCache "github.com/Guyuepp/pretty-like/internal/repository/redis"
	"github.com/Guyuepp/pretty-like/internal/rest"
	"github.com/Guyuepp/pretty-like/internal/rest/middleware"
	"github.com/Guyuepp/pretty-like/internal/usecase/like"
	"github.com/Guyuepp/pretty-like/internal/workers"
)

const (
	dbMaxRetry           = 10
	dbRetryInterval      = 2 * time.Second
	reconcileConcurrency = 16
	shutdownTimeout      = 5 * time.Second
)

func openDB(dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := range dbMaxRetry {
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err != nil {
			logrus.Warnf("failed to open connection to database (attempt %d/%d): %v", i+1, dbMaxRetry, err)
		} else {
			sqlDB, err := db.DB()
			if err != nil {
				logrus.Warnf("failed to get sql.DB from gorm.DB (attempt %d/%d): %v", i+1, dbMaxRetry, err)
				continue
			}
			if err = sqlDB.Ping(); err == nil {
				return db, nil
			}
			logrus.Warnf("failed to ping database (attempt %d/%d): %v", i+1, dbMaxRetry, err)
			_ = sqlDB.Close()
		}
		time.Sleep(dbRetryInterval)
	}
	return nil, err
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(config.ParseLevel(cfg.LogLevel))

	// prepare database
	db, err := openDB(cfg.Database.DSN())
	if err != nil {
		logrus.Fatalf("could not connect to database after retries: %v", err)
	}
	defer func() {
		sqlDB, err := db.DB()
		if err != nil {
			logrus.Errorf("got error when getting sql.DB from gorm.DB: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			logrus.Errorf("got error when closing the DB connection: %v", err)
		}
	}()

	// prepare cache
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Cache.Addr,
		Password:     cfg.Cache.Pass,
		DB:           cfg.Cache.DB,
		ReadTimeout:  cfg.Cache.Timeout,
		WriteTimeout: cfg.Cache.Timeout,
	})
	defer func() {
		if err := client.Close(); err != nil {
			logrus.Errorf("got error when closing the cache connection: %v", err)
		}
	}()
	if err := client.Ping(context.Background()).Err(); err != nil {
		logrus.Fatalf("failed to open connection to cache: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prepare Repository
	likeDBRepo := mysqlRepo.NewLikeRepository(db)
	itemRepo := repository.NewItemRepository(mysqlRepo.NewItemRepository(db))
	likeCache := myRedisCache.NewLikeCache(client, cfg.Cache.Timeout)
	bloomRepo := myRedisCache.NewRedisBloomRepo(client, cfg.BloomFilterSize)

	detector := cache.NewHeavyKeeper(cfg.HotKey.TopK, cfg.HotKey.Width, cfg.HotKey.Depth, cfg.HotKey.Decay, cfg.HotKey.MinCount)
	tiered := cache.NewTieredCache(likeCache, detector, cfg.LocalCacheSize, cfg.LocalCacheTTL)

	scheduler := workers.NewScheduler()
	scheduler.FixedRate(cfg.FadeInterval, workers.NewFadeJob(detector).OnFadeTick)

	var (
		executor domain.ToggleExecutor
		sink     domain.IntentSink
		slices   domain.SliceBuffer
		flush    *workers.FlushJob
	)
	switch cfg.Strategy {
	case config.StrategySync:
		syncExecutor := like.NewSyncExecutor(likeDBRepo, likeCache, tiered)
		executor = syncExecutor

		resync := workers.NewResyncJob(likeCache, syncExecutor, reconcileConcurrency)
		if err := scheduler.Cron(cfg.ReconcileCron, resync.OnAuditTick); err != nil {
			logrus.Fatalf("invalid RECONCILE_CRON %q: %v", cfg.ReconcileCron, err)
		}

	case config.StrategySlice:
		slices = myRedisCache.NewSliceBuffer(client, cfg.Cache.Timeout)
		executor = like.NewSliceExecutor(likeCache, tiered, cfg.SliceWidth)
		sink = workers.NewSliceSink(slices, cfg.SliceWidth)

		flush = workers.NewFlushJob(slices, likeDBRepo, cfg.SliceWidth, cfg.FlushOffset)
		scheduler.FixedDelay(cfg.FlushInitialDelay, cfg.SliceWidth, flush.OnFlushTick)
		if err := scheduler.Cron(cfg.CompensateCron, flush.OnCompensateTick); err != nil {
			logrus.Fatalf("invalid COMPENSATE_CRON %q: %v", cfg.CompensateCron, err)
		}
		// slices left behind by the previous run
		go flush.OnCompensateTick(ctx)

	case config.StrategyStream:
		publisher := myRedisCache.NewStreamPublisher(client, cfg.Broker.Stream, cfg.Broker.PublishTimeout)
		executor = like.NewStreamExecutor(likeCache, publisher, tiered)
		sink = workers.NewStreamSink(publisher)

		consumer := myRedisCache.NewStreamConsumer(client, streamOptions(cfg.Broker, cfg.Broker.Stream, cfg.Broker.Group, cfg.Broker.DeadLetterStream))
		dlqConsumer := myRedisCache.NewStreamConsumer(client, streamOptions(cfg.Broker, cfg.Broker.DeadLetterStream, cfg.Broker.Group+"-dlq", ""))
		for _, c := range []interface{ EnsureGroup(context.Context) error }{consumer, dlqConsumer} {
			if err := c.EnsureGroup(ctx); err != nil {
				logrus.Fatalf("failed to create consumer group: %v", err)
			}
		}
		go workers.NewStreamWorker(consumer, likeDBRepo).Start(ctx)
		go workers.NewDeadLetterListener(dlqConsumer).Start(ctx)
	}

	if sink != nil {
		reconcile := workers.NewReconcileJob(likeCache, likeDBRepo, slices, sink, reconcileConcurrency)
		if err := scheduler.Cron(cfg.ReconcileCron, reconcile.OnAuditTick); err != nil {
			logrus.Fatalf("invalid RECONCILE_CRON %q: %v", cfg.ReconcileCron, err)
		}
	}

	// Build service Layer
	likeSvc := like.NewService(executor, itemRepo, bloomRepo, tiered, detector)
	if err := likeSvc.InitItemFilter(ctx); err != nil {
		logrus.Fatalf("failed to init item filter: %v", err)
	}
	scheduler.Start(ctx)

	// prepare gin
	route := gin.New()
	route.Use(gin.Logger(), gin.Recovery())
	route.Use(middleware.CORS())
	route.Use(middleware.SetRequestContextWithTimeout(cfg.ContextTimeout))
	route.GET("/metrics", gin.WrapH(promhttp.Handler()))
	rest.NewLikeHandler(likeSvc).Register(route)

	// Start Server
	srv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: route,
	}
	go func() {
		logrus.Infof("Server is running on %s with %s strategy", cfg.ServerAddress, cfg.Strategy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("listen: %s", err)
		}
	}()

	// shutdown
	<-ctx.Done()
	logrus.Info("Shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Waiting for workers to cleanup...")
	scheduler.Stop()
	if flush != nil {
		flush.Wait()
	}
	logrus.Info("Server exiting")
}

func streamOptions(b config.Broker, stream, group, deadLetter string) myRedisCache.StreamOptions {
	return myRedisCache.StreamOptions{
		Stream:            stream,
		Group:             group,
		Consumer:          b.Consumer,
		DeadLetterStream:  deadLetter,
		BatchSize:         b.BatchSize,
		BatchTimeout:      b.BatchTimeout,
		MaxRedeliver:      b.MaxRedeliver,
		NackBackoff:       myRedisCache.Backoff(b.NackBackoff),
		AckTimeoutBackoff: myRedisCache.Backoff(b.AckTimeoutBackoff),
	}
}
