package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"gymdesk/backend/config"
	"gymdesk/backend/internal/api/handler"
	"gymdesk/backend/internal/api/router"
	"gymdesk/backend/internal/notification"
	"gymdesk/backend/internal/repository"
	"gymdesk/backend/internal/scheduler"
	"gymdesk/backend/internal/service"
	"gymdesk/backend/pkg/database"
	"gymdesk/backend/pkg/jwt"
	applogger "gymdesk/backend/pkg/logger"
	"gymdesk/backend/pkg/mail"
	"gymdesk/backend/pkg/redis"
	"gymdesk/backend/pkg/sms"
	"gymdesk/backend/pkg/ws"
)

const appName = "GymDesk"

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("GYM_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, cfg.Notification.PreferenceCacheTTL, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，偏好缓存、Token 黑名单与限流将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 外部投递通道
	var mailer notification.Mailer
	if cfg.Mail.Enabled() {
		mailer, err = mail.NewMailer(&cfg.Mail, appName, logger)
	} else {
		logger.Warn("SMTP 未配置，邮件仅记录日志")
		mailer, err = mail.NewLogMailer(appName, logger)
	}
	if err != nil {
		logger.Fatal("初始化邮件模板失败", zap.Error(err))
	}

	var smsProvider sms.Provider = sms.NewLogProvider(notification.ChannelSMS, logger)
	if cfg.SMS.GatewayURL != "" {
		smsProvider = sms.NewHTTPSMSProvider(&cfg.SMS)
	}
	var waProvider sms.Provider = sms.NewLogProvider(notification.ChannelWhatsApp, logger)
	if cfg.SMS.WhatsAppURL != "" {
		waProvider = sms.NewHTTPWhatsAppProvider(&cfg.SMS)
	}

	// 6. 实时推送与指标
	hub := ws.NewHub(logger)
	publisher := notification.NewHubPublisher(hub)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := notification.NewMetrics(registry)

	// 7. 依赖注入: Repository → Notification → Service → Handler
	repo := repository.NewRepository(db)

	// 注意：不能把 nil 的 *redis.Client 直接赋给接口
	var cache notification.PreferenceCache
	if rdb != nil && cfg.Notification.PreferenceCacheTTL > 0 {
		cache = rdb
	}
	prefs := notification.NewPreferenceStore(repo.NotificationSetting, cache, logger)

	dispatcher := notification.NewDispatcher(logger,
		[]notification.Channel{
			notification.NewEmailChannel(prefs, mailer, logger),
			notification.NewPushChannel(prefs, repo.Notification, publisher, logger),
			notification.NewSMSChannel(prefs, smsProvider, logger),
			notification.NewWhatsAppChannel(prefs, waProvider, logger),
		},
		notification.WithTimeout(cfg.Notification.ChannelTimeout),
		notification.WithMetrics(metrics),
	)

	svc := service.NewService(repo, prefs, dispatcher, publisher, logger)

	jwtMgr := jwt.NewManager(&cfg.Auth)
	h := handler.NewHandler(svc, hub, cfg.Server.CORS.AllowOrigins, logger)

	// 8. 后台任务
	rootCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	var expiryJob *scheduler.ExpiryJob
	if cfg.Scheduler.Enabled {
		expiryJob = scheduler.NewExpiryJob(&cfg.Scheduler, repo.Subscription, svc.Notification, logger)
		expiryJob.Start(rootCtx)
	}

	// 9. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, registry, logger)

	// 10. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	if expiryJob != nil {
		expiryJob.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	sqlDB.Close()

	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
