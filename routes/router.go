package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/controllers"
	"github.com/BerniceZTT/crm_engagement/middleware"
)

// Handlers 路由依赖
type Handlers struct {
	Engagement    *controllers.EngagementController
	Remarks       *controllers.RemarkController
	FollowUps     *controllers.FollowUpController
	Status        controllers.StatusFunc
	OperationLogs middleware.OperationLogSink
	AllowOrigins  []string
}

// NewRouter 创建Gin实例并挂载中间件和全部路由
func NewRouter(h Handlers) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(h.AllowOrigins))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.OperationLoggerMiddleware(h.OperationLogs))

	RegisterRoutes(router, h)
	return router
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine, h Handlers) {
	RegisterJobAssignmentRoutes(router, h.Engagement)
	RegisterCandidateRoutes(router, h.Engagement)
	RegisterRemarkRoutes(router, h.Remarks)
	RegisterFollowUpRoutes(router, h.FollowUps)

	// 健康检查路由
	router.GET("/api/health", controllers.Health)

	// 数据库状态检查路由
	router.GET("/api/db-status", controllers.DatabaseStatus(h.Status))
}
