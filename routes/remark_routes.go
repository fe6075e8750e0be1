package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/controllers"
	"github.com/BerniceZTT/crm_engagement/middleware"
)

// RegisterRemarkRoutes 备注规则
func RegisterRemarkRoutes(router *gin.Engine, ctl *controllers.RemarkController) {
	group := router.Group("/api/remarks")
	group.Use(middleware.AuthMiddleware())

	group.GET("", middleware.PermissionMiddleware("remarks", "read"), ctl.GetCatalogue)
	group.POST("/preview", middleware.PermissionMiddleware("remarks", "read"), ctl.PreviewRemark)
	group.PUT("", middleware.PermissionMiddleware("remarks", "update"), ctl.UpdateRules)
}
