package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/service"
)

// FollowUpController 待跟进列表接口
type FollowUpController struct {
	digest *service.FollowUpDigest
}

func NewFollowUpController(digest *service.FollowUpDigest) *FollowUpController {
	return &FollowUpController{digest: digest}
}

// GetDueFollowUps 下次跟进日期为 date（默认今天）的职位对接
func (ctl *FollowUpController) GetDueFollowUps(c *gin.Context) {
	date, err := parseOptionalDate("date", c.Query("date"))
	if err != nil {
		handleError(c, err)
		return
	}
	report, err := ctl.digest.Build(c.Request.Context(), date)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": report.Date, "items": report.Items, "total": len(report.Items)})
}
