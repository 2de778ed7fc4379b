package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/api"
	"github.com/Gopher0727/GroupChat/internal/event"
	"github.com/Gopher0727/GroupChat/internal/handler"
	"github.com/Gopher0727/GroupChat/internal/pkg/gateway"
	"github.com/Gopher0727/GroupChat/internal/pkg/kafka"
	pkgredis "github.com/Gopher0727/GroupChat/internal/pkg/redis"
	objectstore "github.com/Gopher0727/GroupChat/internal/pkg/storage"
	"github.com/Gopher0727/GroupChat/internal/pkg/workerpool"
	"github.com/Gopher0727/GroupChat/internal/realtime"
	"github.com/Gopher0727/GroupChat/internal/repository"
	"github.com/Gopher0727/GroupChat/internal/service"
	"github.com/Gopher0727/GroupChat/internal/storage"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
	"github.com/Gopher0727/GroupChat/utils/ratelimit"
	"github.com/Gopher0727/GroupChat/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLog.Close()

	if err := run(cfg, appLog); err != nil {
		appLog.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, appLog *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 PostgreSQL
	db, err := storage.InitPostgres(&cfg.Postgres)
	if err != nil {
		return err
	}
	defer closeDB(db, appLog)

	// 初始化 Redis
	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	bus := realtime.NewRedisBus(redisClient, realtime.DefaultBufferSize, appLog.Named("realtime"))
	defer bus.Close()

	events, shutdownEvents, err := newEventPublisher(cfg, appLog)
	if err != nil {
		return err
	}
	defer shutdownEvents()

	avatars := objectstore.Disabled()
	if cfg.Cloudinary.Enabled() {
		cld, err := objectstore.NewCloudinary(&cfg.Cloudinary)
		if err != nil {
			return err
		}
		avatars = cld
	} else {
		appLog.Warn("cloudinary is not configured, avatar uploads are disabled")
	}

	ids, err := snowflake.NewGenerator(cfg.Snowflake.WorkerID)
	if err != nil {
		return err
	}

	// 初始化服务层
	store := repository.NewStore(db)
	messageService := service.NewMessageService(store, redisClient, bus, events, ids, cfg.Chat, appLog.WithFields(zap.String("service", "message")))
	membershipService := service.NewMembershipService(store, messageService, avatars, events, cfg.Chat, appLog.WithFields(zap.String("service", "membership")))
	inviteService := service.NewInviteService(store, messageService, events, appLog.WithFields(zap.String("service", "invite")))

	// 初始化 WebSocket 网关
	manager := gateway.NewConnectionManager(ctx, &cfg.Websocket, redisClient, appLog.Named("gateway"))
	defer manager.Shutdown()

	opts := api.Options{
		Tokens:       jwt.NewTokenManager(&cfg.JWT),
		Logger:       appLog,
		AllowOrigins: cfg.Server.AllowOrigins,
		Health: map[string]api.HealthCheck{
			"redis": redisClient.Ping,
			"postgres": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = ratelimit.NewWindowLimiter(redisClient.GetClient(), appLog.Named("ratelimit"), cfg.RateLimit.FailOpen)
		opts.Rules = ratelimit.Rules(cfg.RateLimit)
	}

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(api.Handlers{
		Group:   handler.NewGroupHandler(membershipService),
		Member:  handler.NewMemberHandler(membershipService),
		Invite:  handler.NewInviteHandler(inviteService),
		Message: handler.NewMessageHandler(messageService),
		Gateway: gateway.NewHandler(manager, messageService, &cfg.Websocket, cfg.Server.AllowOrigins, appLog.Named("gateway")),
	}, opts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("node_id", cfg.Websocket.NodeID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	// 先关闭 WebSocket，被劫持的连接不受 srv.Shutdown 管理
	manager.Shutdown()
	return srv.Shutdown(shutdownCtx)
}

// newEventPublisher wires Kafka when enabled. Without it domain events are
// discarded.
func newEventPublisher(cfg *config.Config, appLog *logger.Logger) (event.Publisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return event.Nop(), func() {}, nil
	}

	producer, err := kafka.NewProducer(&cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	pool := workerpool.New(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appLog.Named("workerpool"))
	pool.Start()

	shutdown := func() {
		// 等待队列中的事件发送完成后再关闭 producer
		pool.Stop()
		if err := producer.Close(); err != nil {
			appLog.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	return event.NewKafkaPublisher(producer, pool, &cfg.Kafka, appLog.Named("events")), shutdown, nil
}

func closeDB(db *gorm.DB, appLog *logger.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		appLog.Warn("failed to close postgres", zap.Error(err))
	}
}
