package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/controllers"
	"github.com/BerniceZTT/crm_engagement/middleware"
)

// RegisterJobAssignmentRoutes 职位对接及其跟进记录
func RegisterJobAssignmentRoutes(router *gin.Engine, ctl *controllers.EngagementController) {
	group := router.Group("/api/job-assignments")
	group.Use(middleware.AuthMiddleware())

	group.POST("", middleware.PermissionMiddleware("jobAssignments", "create"), ctl.CreateJobAssignment)
	group.GET("/:id", middleware.PermissionMiddleware("jobAssignments", "read"), ctl.GetJobAssignment)

	// 跟进记录
	group.GET("/:id/feedback", middleware.PermissionMiddleware("feedback", "read"), ctl.GetAssignmentFeedback)
	group.POST("/:id/feedback", middleware.PermissionMiddleware("feedback", "create"), ctl.RecordFeedback)
}

// RegisterCandidateRoutes 按候选人查询
func RegisterCandidateRoutes(router *gin.Engine, ctl *controllers.EngagementController) {
	group := router.Group("/api/candidates/:candidateId")
	group.Use(middleware.AuthMiddleware())

	group.GET("/job-assignments", middleware.PermissionMiddleware("jobAssignments", "read"), ctl.ListCandidateAssignments)
	group.GET("/engagement", middleware.PermissionMiddleware("feedback", "read"), ctl.GetCandidateEngagement)
	group.GET("/phone", middleware.PermissionMiddleware("jobAssignments", "read"), ctl.GetDisplayPhone)
}
