package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/service"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// RemarkController 备注规则接口
type RemarkController struct {
	svc *service.RemarkService
}

func NewRemarkController(svc *service.RemarkService) *RemarkController {
	return &RemarkController{svc: svc}
}

// GetCatalogue 当前生效的备注规则
func (ctl *RemarkController) GetCatalogue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"catalogue": ctl.svc.Catalogue()})
}

// PreviewRemark 预览某个备注的跟进日期和预设反馈，不写入任何数据
func (ctl *RemarkController) PreviewRemark(c *gin.Context) {
	var req models.PreviewRemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}
	today, err := parseOptionalDate("today", req.Today)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": ctl.svc.Preview(req.Remark, today)})
}

// UpdateRules 替换整张备注规则表
func (ctl *RemarkController) UpdateRules(c *gin.Context) {
	var req models.UpdateRemarkRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}

	user, err := utils.GetUser(c)
	if err != nil {
		utils.HandleError(c, utils.CreateUnauthorizedError())
		return
	}

	cat, err := ctl.svc.UpdateRules(c.Request.Context(), req, &models.Operator{ID: user.ID, Name: user.Username})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "catalogue": cat})
}
