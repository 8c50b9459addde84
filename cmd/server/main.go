package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/health"
	"tempinbox/backend/internal/hub"
	"tempinbox/backend/internal/logger"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/pool"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/smtp"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/hybrid"
	"tempinbox/backend/internal/storage/memory"
	"tempinbox/backend/internal/storage/postgres"
	"tempinbox/backend/internal/storage/redis"
	sqlstore "tempinbox/backend/internal/storage/sql"
	httptransport "tempinbox/backend/internal/transport/http"
)

// main 启动同时包含 HTTP API 与 SMTP 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting tempinbox server",
		zap.String("domain", cfg.Mailbox.Domain),
		zap.Duration("ttl", cfg.Mailbox.TTL),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	// 初始化存储层
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled || cfg.Events.Backend == "redis" {
		redisClient, err = redis.New(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}
	if cfg.Redis.Enabled {
		// 收件箱查询走 Redis 缓存
		store = hybrid.NewStore(store, redis.NewCache(redisClient), log)
		log.Info("redis cache enabled", zap.String("address", cfg.Redis.Address))
	}

	healthChecker := health.NewHealthChecker(log)
	healthChecker.AddDependency("storage", store)
	if redisClient != nil {
		healthChecker.AddDependency("redis", health.PingFunc(redisClient.Ping))
	}

	// 实时推送
	events := hub.New(cfg.Events.BufferSize, log.Named("hub"), metrics)
	defer events.Close()

	var (
		publisher hub.Publisher   = events
		evictor   service.Evictor = events
		relay     *redis.Relay
	)
	if cfg.Events.Backend == "redis" {
		// 新邮件与订阅关闭都经 Redis 广播到所有实例
		relay = redis.NewRelay(redisClient, events, log.Named("relay"))
		publisher = relay
		evictor = relay
	}

	// 初始化服务层
	inboxService := service.NewInboxService(store, service.NewAddressGenerator(cfg.Mailbox.Domain), cfg.Mailbox.TTL, log.Named("inbox"), metrics)
	messageService := service.NewMessageService(store, store, cfg.Mailbox.OTPTTL, log.Named("message"), metrics)
	inboxService.SetEvictor(evictor)
	if cfg.Mailbox.SeedDemo {
		inboxService.OnCreate(service.SeedDemoMessages(messageService, log))
	}

	// 过期清理
	workers := pool.NewWorkerPool(cfg.Sweeper.Workers, cfg.Sweeper.Workers*4, log.Named("sweeper"))
	workers.OnPanic(func(interface{}) { metrics.RecordPanic() })
	sweeper := service.NewSweeper(store, workers, cfg.Sweeper.Interval, log.Named("sweeper"), metrics)
	sweeper.SetEvictor(evictor)

	// SMTP 接收
	spool := smtp.NewSpool(cfg.SMTP.SpoolSize)
	smtpServer := smtp.NewServer(cfg.SMTP, smtp.NewBackend(cfg.SMTP, spool, log.Named("smtp"), metrics))
	receiver := smtp.NewReceiver(spool, inboxService, messageService, publisher, cfg.SMTP.PollInterval, log.Named("receiver"), metrics)

	// HTTP API
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		InboxService:   inboxService,
		MessageService: messageService,
		Hub:            events,
		Health:         healthChecker,
		Metrics:        metrics,
		Logger:         log.Named("http"),
	})
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	workers.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.Addr()),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			return fmt.Errorf("smtp server: %w", err)
		}
		return nil
	})

	// 投递轮询 goroutine
	group.Go(func() error {
		receiver.Run(groupCtx)
		return nil
	})

	// 过期清理 goroutine
	group.Go(func() error {
		sweeper.Run(groupCtx)
		return nil
	})

	// 跨实例事件转发 goroutine
	if relay != nil {
		group.Go(func() error {
			log.Info("starting redis event relay")
			if err := relay.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event relay: %w", err)
			}
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 先断开推送连接，否则 SSE 长连接会拖住 Shutdown
		events.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server shutdown warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	err = group.Wait()
	workers.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore 根据配置创建主存储
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	db := cfg.Database
	if db.Type == "memory" {
		log.Info("using memory storage")
		return memory.NewStore(), nil
	}

	log.Info("initializing database storage",
		zap.String("type", db.Type),
		zap.String("engine", db.Engine),
	)

	if db.Engine == "sql" {
		store, err := sqlstore.NewStore(ctx, db.SQLDriver(), db.DSN, sqlstore.Options{
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", db.SQLDriver(), err)
		}
		return store, nil
	}

	opts := postgres.DefaultOptions()
	if db.MaxOpenConns > 0 {
		opts.MaxOpenConns = db.MaxOpenConns
	}
	if db.MaxIdleConns > 0 {
		opts.MaxIdleConns = db.MaxIdleConns
	}
	if db.ConnMaxLifetime > 0 {
		opts.ConnMaxLifetime = db.ConnMaxLifetime
	}

	var (
		store *postgres.Store
		err   error
	)
	if db.Type == "mysql" {
		store, err = postgres.NewMySQLStore(db.DSN, opts)
	} else {
		store, err = postgres.NewStore(db.DSN, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", db.Type, err)
	}
	return store, nil
}
