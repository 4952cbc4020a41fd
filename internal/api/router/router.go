package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gymdesk/backend/config"
	"gymdesk/backend/internal/api/handler"
	"gymdesk/backend/internal/api/middleware"
	"gymdesk/backend/internal/model"
	"gymdesk/backend/pkg/jwt"
	"gymdesk/backend/pkg/redis"
)

const (
	// eventBodyLimit 事件接入请求体上限
	eventBodyLimit = 64 << 10
	// eventRateLimit 每个员工每分钟可提交的事件数
	eventRateLimit = 120
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil，此时黑名单与限流均降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))

	// ── 健康检查 / 指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
		{
			// 通知模块
			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", h.Notification.List)
				notifications.GET("/unread-count", h.Notification.UnreadCount)
				notifications.PUT("/read-all", h.Notification.MarkAllAsRead)
				notifications.PUT("/:id/read", h.Notification.MarkAsRead)
				notifications.DELETE("/:id", h.Notification.Delete)

				notifications.GET("/settings", h.Notification.GetSettings)
				notifications.PUT("/settings", h.Notification.UpdateSettings)
				notifications.GET("/channels", h.Notification.AvailableChannels)
				notifications.POST("/users/:id/provision", middleware.StaffOnly(), h.Notification.ProvisionUser)

				notifications.POST("/events",
					middleware.StaffOnly(),
					middleware.BodyLimit(eventBodyLimit),
					middleware.RateLimit(rdb, eventRateLimit, time.Minute),
					h.Notification.EmitEvent,
				)
				notifications.POST("/broadcast", middleware.RoleAuth(model.RoleAdmin), h.Notification.Broadcast)

				notifications.GET("/ws", h.Realtime.Connect)
			}
		}
	}

	return r
}
