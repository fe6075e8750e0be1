package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/utils"
)

// StatusFunc 返回存储的状态信息
type StatusFunc func(ctx context.Context) (map[string]interface{}, error)

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DatabaseStatus 存储状态检查
func DatabaseStatus(status StatusFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusOK, gin.H{"status": "unknown"})
			return
		}
		result, err := status(c.Request.Context())
		if err != nil {
			utils.ErrorResponse(c, "获取数据库状态失败: "+err.Error(), http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
