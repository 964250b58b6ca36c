package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lqCintern/farm-management-sub004/config"
	"github.com/lqCintern/farm-management-sub004/internal/api/handler"
	"github.com/lqCintern/farm-management-sub004/internal/api/middleware"
	"github.com/lqCintern/farm-management-sub004/internal/service"
	"github.com/lqCintern/farm-management-sub004/pkg/jwt"
	"github.com/lqCintern/farm-management-sub004/pkg/redis"
)

const maxBodyBytes = 1 << 20

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时黑名单与限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	var (
		blacklist middleware.Blacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist, limiter = rdb, rdb
	}
	limit := middleware.RateLimit(limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "redis": rdb != nil})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth", limit)
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由；限流在认证之后，按用户计数
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, blacklist), limit)
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.PUT("/users/me/availability", h.Household.SetAvailability)

			// 农户目录
			households := authorized.Group("/households")
			{
				households.POST("", h.Household.CreateHousehold)
				households.GET("/me", h.Household.GetMyHousehold)
				households.GET("/me/workers", h.Household.ListWorkers)
				households.POST("/me/workers", h.Household.AddWorker)
				households.DELETE("/me/workers/:worker_id", h.Household.RemoveWorker)
				households.GET("/:id", h.Household.GetHousehold)
			}

			// 用工请求
			requests := authorized.Group("/labor-requests")
			{
				requests.POST("", h.Request.CreateRequest)
				requests.POST("/mixed", h.Request.CreateMixedRequest)
				requests.GET("", h.Request.ListRequests)
				requests.GET("/:id", h.Request.GetRequest)
				requests.PUT("/:id", h.Request.UpdateRequest)
				requests.POST("/:id/join", h.Request.JoinRequest)
				requests.POST("/:id/accept", h.Request.ProcessRequest(service.ActionAccept))
				requests.POST("/:id/decline", h.Request.ProcessRequest(service.ActionDecline))
				requests.POST("/:id/cancel", h.Request.ProcessRequest(service.ActionCancel))
				requests.POST("/:id/complete", h.Request.ProcessRequest(service.ActionComplete))
				requests.GET("/:id/group", h.Request.GetGroup)
				requests.GET("/:id/suggested-workers", h.Request.SuggestWorkers)

				requests.POST("/:id/assignments", h.Assignment.CreateAssignment)
				requests.POST("/:id/assignments/batch", h.Assignment.BatchAssign)
				requests.GET("/:id/assignments", h.Assignment.ListRequestAssignments)
			}

			// 用工安排
			assignments := authorized.Group("/assignments")
			{
				assignments.GET("/me", h.Assignment.MyAssignments)
				assignments.GET("/me/calendar.ics", h.Export.ExportCalendar)
				assignments.PUT("/:id/status", h.Assignment.UpdateStatus)
				assignments.PUT("/:id/rating", h.Assignment.Rate)
			}

			// 换工账本
			exchanges := authorized.Group("/exchanges")
			{
				exchanges.GET("", h.Exchange.ListExchanges)
				exchanges.POST("/recalculate", h.Exchange.RecalculatePair)
				exchanges.GET("/:id", h.Exchange.GetExchange)
				exchanges.POST("/:id/reset", h.Exchange.ResetBalance)
				exchanges.GET("/:id/export", h.Export.ExportStatement)
			}

			// 运维
			admin := authorized.Group("/admin", middleware.RoleAuth("admin"))
			{
				admin.POST("/exchanges/recalculate-all", h.Exchange.RecalculateAll)
			}
		}
	}

	return r
}
