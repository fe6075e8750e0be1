package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/controllers"
	"github.com/BerniceZTT/crm_engagement/middleware"
)

// RegisterFollowUpRoutes 待跟进列表
func RegisterFollowUpRoutes(router *gin.Engine, ctl *controllers.FollowUpController) {
	group := router.Group("/api/follow-ups")
	group.Use(middleware.AuthMiddleware())

	group.GET("/due", middleware.PermissionMiddleware("followUps", "read"), ctl.GetDueFollowUps)
}
