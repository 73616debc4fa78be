package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-core/internal/api/handlers"
	"auction-core/internal/clock"
	"auction-core/internal/config"
	"auction-core/internal/domain"
	"auction-core/internal/infrastructure/leader"
	"auction-core/internal/infrastructure/memory"
	"auction-core/internal/infrastructure/mysql"
	natsinfra "auction-core/internal/infrastructure/nats"
	"auction-core/internal/infrastructure/redis"
	"auction-core/internal/infrastructure/websocket"
	"auction-core/internal/services"
	"auction-core/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type eventBus interface {
	domain.EventPublisher
	domain.EventSubscriber
}

type pubSub struct {
	*redis.RedisEventPublisher
	*redis.RedisEventSubscriber
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	clk := clock.NewSystem()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rdb *redisClient.Client
	if cfg.UsesRedis() {
		rdb = redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		defer rdb.Close()
		log.Info("Connected to Redis", "address", cfg.Redis.Address)
	}

	var (
		store   domain.AuctionStore
		archive domain.AuctionEventRepository = memory.NewEventRepository()
	)
	switch cfg.Store.Backend {
	case config.BackendMySQL:
		db, err := openMySQL(ctx, cfg.MySQL)
		if err != nil {
			log.Fatal("Failed to connect to MySQL", "error", err)
		}
		defer func(db *sql.DB) {
			if err := db.Close(); err != nil {
				log.Error("Failed to close MySQL connection", "error", err)
			}
		}(db)
		store = mysql.NewMySQLAuctionRepository(db)
		archive = mysql.NewMySQLEventRepository(db)
		log.Info("Connected to MySQL")
	case config.BackendRedis:
		store = redis.NewRedisAuctionStore(rdb)
	default:
		store = memory.NewAuctionStore()
	}

	var (
		events   eventBus = memory.NewEventBus(256)
		election domain.LeaderElection
	)
	if rdb != nil {
		events = pubSub{redis.NewRedisEventPublisher(rdb), redis.NewRedisEventSubscriber(rdb, log)}
		election = leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL, log)
	}

	connManager := websocket.NewConnectionManager(log)
	wsNotifier := websocket.NewWebSocketNotifier(connManager)

	sinks := []domain.NotificationSink{services.NewLogSink(log), wsNotifier}
	if cfg.NATS.Enabled {
		nc, err := natsinfra.Connect(cfg.NATS.URL, cfg.Instance.ID)
		if err != nil {
			log.Fatal("Failed to connect to NATS", "error", err)
		}
		defer nc.Drain()
		sinks = append(sinks, natsinfra.NewNotificationSink(nc))
		log.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	dispatcher := services.NewNotificationDispatcher(services.DispatcherConfig{
		Workers:     cfg.Notifier.Workers,
		QueueSize:   cfg.Notifier.QueueSize,
		MaxAttempts: cfg.Notifier.MaxAttempts,
		Timeout:     cfg.Notifier.Timeout,
		Backoff:     cfg.Notifier.Backoff,
	}, clk, log, sinks...)

	auctionManager := services.NewAuctionManager(store, archive, dispatcher, events, clk, log,
		services.WithMinLeadTime(cfg.Lifecycle.MinLeadTime))
	bidProcessor := services.NewBidProcessor(store, dispatcher, events, archive, clk, log)
	resolver := services.NewLifecycleResolver(store, dispatcher, events, archive, clk, log)
	scheduler := services.NewLifecycleScheduler(resolver, election, cfg.Instance.ID, cfg.Lifecycle.Schedule, clk, log)
	eventListener := services.NewEventListener(connManager, wsNotifier, log)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PATCH, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			"X-User-ID",
			"X-User-Admin",
		},
		MaxAge: 86400,
	}))

	handlers.NewAuctionHandler(auctionManager, bidProcessor, resolver, clk, log).Register(e)

	wsHandler := websocket.NewWebSocketHandler(bidProcessor, auctionManager, connManager, clk, log)
	e.GET("/ws/auctions/:auctionID", echo.WrapHandler(wsHandler.Routes()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"store":     cfg.Store.Backend,
			"instance":  cfg.Instance.ID,
			"timestamp": clk.Now().Format(time.RFC3339),
		})
	})

	// Start background services
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	dispatcher.Start(bgCtx)
	if err := scheduler.Start(bgCtx); err != nil {
		log.Fatal("Failed to start scheduler", "error", err)
	}
	go func() {
		if err := eventListener.Start(bgCtx, events); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener stopped", "error", err)
		}
	}()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	dispatcher.Stop()
	stopBackground()

	log.Info("Auction service stopped")
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if err := mysql.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
