package controllers

import (
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/service"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// EngagementController 职位对接与跟进记录接口
type EngagementController struct {
	svc *service.EngagementService
}

func NewEngagementController(svc *service.EngagementService) *EngagementController {
	return &EngagementController{svc: svc}
}

// CreateJobAssignment 创建职位对接
func (ctl *EngagementController) CreateJobAssignment(c *gin.Context) {
	var req models.CreateJobAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}

	a, err := ctl.svc.CreateAssignment(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}

	utils.LogInfo(map[string]interface{}{
		"jobAssignmentId": a.ID,
		"candidateId":     a.CandidateID,
	}, "创建职位对接成功")
	c.JSON(http.StatusCreated, gin.H{"success": true, "assignment": a})
}

// GetJobAssignment 获取职位对接详情
func (ctl *EngagementController) GetJobAssignment(c *gin.Context) {
	a, err := ctl.svc.GetAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": a})
}

// ListCandidateAssignments 候选人的全部职位对接
func (ctl *EngagementController) ListCandidateAssignments(c *gin.Context) {
	list, err := ctl.svc.ListAssignments(c.Request.Context(), c.Param("candidateId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": list, "total": len(list)})
}

// RecordFeedback 记录一次沟通结果
func (ctl *EngagementController) RecordFeedback(c *gin.Context) {
	var req models.RecordFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}

	user, err := utils.GetUser(c)
	if err != nil {
		utils.HandleError(c, utils.CreateUnauthorizedError())
		return
	}

	var overrides service.ManualOverrides
	overrides.FeedbackText = req.FeedbackText
	for _, f := range []struct {
		name string
		raw  string
		dst  *civil.Date
	}{
		{"nfd", req.NFD, &overrides.NFD},
		{"ejd", req.EJD, &overrides.EJD},
		{"ifd", req.IFD, &overrides.IFD},
	} {
		d, err := parseOptionalDate(f.name, f.raw)
		if err != nil {
			handleError(c, err)
			return
		}
		*f.dst = d
	}

	result, err := ctl.svc.RecordOutcome(c.Request.Context(), service.RecordOutcomeInput{
		JobAssignmentID: c.Param("id"),
		Remark:          req.Remark,
		CallStatus:      models.ParseCallStatus(req.CallStatus),
		AuthorCode:      user.AuthorCode(),
		Overrides:       overrides,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "result": result})
}

// GetAssignmentFeedback 单个职位对接的跟进记录；建档记录仍按候选人全部职位计算
func (ctl *EngagementController) GetAssignmentFeedback(c *gin.Context) {
	order := models.ParseHistoryOrder(c.Query("order"))
	history, err := ctl.svc.GetEngagementHistory(c.Request.Context(), "", c.Param("id"), order)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// GetCandidateEngagement 候选人全部职位合并后的跟进记录，可用 jobAssignmentId 过滤
func (ctl *EngagementController) GetCandidateEngagement(c *gin.Context) {
	order := models.ParseHistoryOrder(c.Query("order"))
	history, err := ctl.svc.GetEngagementHistory(c.Request.Context(), c.Param("candidateId"), c.Query("jobAssignmentId"), order)
	if err != nil {
		handleError(c, err)
		return
	}

	utils.LogInfo(map[string]interface{}{
		"candidateId": history.CandidateID,
		"recordCount": len(history.Entries),
	}, "获取候选人跟进记录成功")
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// GetDisplayPhone 按打码策略返回号码
func (ctl *EngagementController) GetDisplayPhone(c *gin.Context) {
	phone := c.Query("phone")
	if phone == "" {
		utils.HandleError(c, utils.CreateBadRequestError("号码不能为空"))
		return
	}
	display, err := ctl.svc.GetDisplayPhone(c.Request.Context(), phone, c.Param("candidateId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone": display})
}
