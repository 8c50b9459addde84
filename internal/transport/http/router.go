package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/health"
	"tempinbox/backend/internal/hub"
	"tempinbox/backend/internal/middleware"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	InboxService   *service.InboxService
	MessageService *service.MessageService
	Hub            *hub.Hub
	Health         *health.HealthChecker
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:  deps.Config.CORS.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	// 如果允许所有来源，则需清空凭证支持。
	allowAll := len(corsConfig.AllowOrigins) == 0
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	if allowAll {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowCredentials = true
	}
	router.Use(gincors.New(corsConfig))

	streamer := websocket.NewStreamer(deps.Hub, deps.Config.CORS.AllowedOrigins, deps.Config.Events.KeepAlive, deps.Logger)

	inboxHandler := NewInboxHandler(deps.InboxService, deps.MessageService)
	messageHandler := NewMessageHandler(deps.MessageService)
	streamHandler := NewStreamHandler(deps.InboxService, deps.Hub, streamer, deps.Config.Events.KeepAlive, deps.Logger)

	// 健康检查与监控
	if deps.Health != nil {
		router.GET("/health", func(c *gin.Context) {
			results, ok := deps.Health.CheckHealth(c.Request.Context())
			if !ok {
				ServiceUnavailable(c, MsgServiceUnhealthy, results)
				return
			}
			Success(c, results)
		})
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	api := router.Group("/api")
	{
		inbox := api.Group("/inbox")
		inbox.POST("", inboxHandler.Create)
		inbox.GET("/:id", inboxHandler.Get)
		inbox.DELETE("/:id", inboxHandler.Delete)
		inbox.POST("/:id/change", inboxHandler.Rotate)
		inbox.POST("/:id/refresh", inboxHandler.Refresh)
		inbox.GET("/:id/emails", inboxHandler.ListMessages)
		inbox.DELETE("/:id/emails", inboxHandler.DeleteMessages)
		inbox.GET("/:id/stream", streamHandler.SSE)
		inbox.GET("/:id/ws", streamHandler.WebSocket)

		email := api.Group("/email")
		email.GET("/:id", messageHandler.Get)
		email.DELETE("/:id", messageHandler.Delete)
		email.GET("/:id/otp-status", messageHandler.OTPStatus)
	}

	return router
}
