package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/ledger"
	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/schedule"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// ValidationError 可由用户修正的输入错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ManualOverrides 用户手工填写的内容，非零值优先于自动排期
type ManualOverrides struct {
	FeedbackText string     `json:"feedbackText"`
	NFD          civil.Date `json:"nfd"`
	EJD          civil.Date `json:"ejd"`
	IFD          civil.Date `json:"ifd"`
}

// RecordOutcomeInput 记录一次沟通结果
type RecordOutcomeInput struct {
	JobAssignmentID string
	Remark          string
	CallStatus      models.CallStatus
	AuthorCode      string
	Overrides       ManualOverrides
}

// RecordOutcomeResult 追加后的职位对接、写入的记录和排期建议
type RecordOutcomeResult struct {
	Assignment *models.JobAssignment `json:"assignment"`
	Entry      models.FeedbackEntry  `json:"entry"`
	Suggestion schedule.Suggestion   `json:"suggestion"`
}

// EngagementHistory 跟进记录及推导出的"建档"记录
type EngagementHistory struct {
	CandidateID     string               `json:"candidateId"`
	JobAssignmentID string               `json:"jobAssignmentId,omitempty"`
	Order           models.HistoryOrder  `json:"order"`
	Entries         []models.TaggedEntry `json:"entries"`
	ProfileCreated  *models.TaggedEntry  `json:"profileCreated,omitempty"`
}

// DisplayPhone 展示用号码
type DisplayPhone struct {
	Phone       string `json:"phone"`
	Masked      bool   `json:"masked"`
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
}

// EngagementService 跟进记录的业务入口
type EngagementService struct {
	store  repository.LedgerStore
	engine *schedule.Engine
	policy masking.Policy
	phones masking.PhoneHistoryLookup
	now    func() time.Time
}

// EngagementOption 配置项
type EngagementOption func(*EngagementService)

// WithPolicy 替换打码策略
func WithPolicy(p masking.Policy) EngagementOption {
	return func(s *EngagementService) { s.policy = p }
}

// WithPhoneLookup 替换候选人池查询，默认使用存储本身
func WithPhoneLookup(l masking.PhoneHistoryLookup) EngagementOption {
	return func(s *EngagementService) {
		if l != nil {
			s.phones = l
		}
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) EngagementOption {
	return func(s *EngagementService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewEngagementService(store repository.LedgerStore, engine *schedule.Engine, opts ...EngagementOption) *EngagementService {
	if engine == nil {
		engine = schedule.NewEngine(nil)
	}
	s := &EngagementService{
		store:  store,
		engine: engine,
		policy: masking.DefaultPolicy(),
		phones: store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EngagementService) today() civil.Date {
	return civil.DateOf(s.now())
}

// RecordOutcome 计算排期建议，叠加手工输入后追加到账本
func (s *EngagementService) RecordOutcome(ctx context.Context, in RecordOutcomeInput) (*RecordOutcomeResult, error) {
	if strings.TrimSpace(in.JobAssignmentID) == "" {
		return nil, &ValidationError{Field: "jobAssignmentId", Message: "职位对接ID不能为空"}
	}

	suggestion := s.engine.AllocateOn(in.Remark, s.today())
	entry := models.FeedbackEntry{
		FeedbackText: suggestion.Template,
		Remark:       strings.TrimSpace(in.Remark),
		NFD:          suggestion.Date,
		EJD:          in.Overrides.EJD,
		IFD:          in.Overrides.IFD,
		CallStatus:   in.CallStatus,
		AuthorCode:   strings.TrimSpace(in.AuthorCode),
	}
	if text := strings.TrimSpace(in.Overrides.FeedbackText); text != "" {
		entry.FeedbackText = text
	}
	if !in.Overrides.NFD.IsZero() {
		entry.NFD = in.Overrides.NFD
	}
	if entry.CallStatus == "" {
		entry.CallStatus = models.CallStatusNone
	}
	if strings.TrimSpace(entry.FeedbackText) == "" {
		return nil, &ValidationError{Field: "feedbackText", Message: "反馈内容不能为空"}
	}

	updated, err := s.store.Append(ctx, in.JobAssignmentID, entry)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidEntry) {
			return nil, &ValidationError{Field: "feedbackText", Message: "反馈内容不能为空"}
		}
		return nil, err
	}

	committed := entry
	committed.Timestamp = updated.LastUpdateTime
	utils.LogInfo(map[string]interface{}{
		"jobAssignmentId": in.JobAssignmentID,
		"remark":          entry.Remark,
		"nfd":             entry.NFD.String(),
		"matched":         suggestion.Matched,
		"ledgerVersion":   updated.LedgerVersion,
	}, "跟进记录已保存")

	return &RecordOutcomeResult{Assignment: updated, Entry: committed, Suggestion: suggestion}, nil
}

// GetEngagementHistory 返回候选人全部（或指定职位）的跟进记录；
// 建档记录始终取候选人所有职位中最早的一条
func (s *EngagementService) GetEngagementHistory(ctx context.Context, candidateID, jobAssignmentID string, order models.HistoryOrder) (*EngagementHistory, error) {
	candidateID = strings.TrimSpace(candidateID)
	jobAssignmentID = strings.TrimSpace(jobAssignmentID)
	if order != models.OrderRecentFirst {
		order = models.OrderChronological
	}

	if jobAssignmentID != "" {
		a, err := s.store.GetAssignment(ctx, jobAssignmentID)
		if err != nil {
			return nil, err
		}
		if candidateID == "" {
			candidateID = a.CandidateID
		} else if a.CandidateID != candidateID {
			return nil, &ValidationError{Field: "jobAssignmentId", Message: "职位对接不属于该候选人"}
		}
	}
	if candidateID == "" {
		return nil, &ValidationError{Field: "candidateId", Message: "候选人ID不能为空"}
	}

	all, err := s.store.ReadAllForCandidate(ctx, candidateID, order)
	if err != nil {
		return nil, err
	}

	history := &EngagementHistory{
		CandidateID:     candidateID,
		JobAssignmentID: jobAssignmentID,
		Order:           order,
		Entries:         all,
	}
	if created, ok := repository.ProfileCreated(all); ok {
		history.ProfileCreated = &created
	}
	if jobAssignmentID != "" {
		scoped := make([]models.TaggedEntry, 0, len(all))
		for _, e := range all {
			if e.JobAssignmentID == jobAssignmentID {
				scoped = append(scoped, e)
			}
		}
		history.Entries = scoped
	}
	if history.Entries == nil {
		history.Entries = []models.TaggedEntry{}
	}
	return history, nil
}

// GetDisplayPhone 按打码策略返回展示用号码
func (s *EngagementService) GetDisplayPhone(ctx context.Context, phone, candidateID string) (*DisplayPhone, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, &ValidationError{Field: "phone", Message: "号码不能为空"}
	}

	records, err := s.phones.PhoneHistory(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("查询号码记录失败: %w", err)
	}

	viewed := masking.ViewedCandidate{ID: candidateID}
	if candidateID != "" {
		assignments, err := s.store.ListAssignmentsByCandidate(ctx, candidateID)
		if err != nil {
			return nil, fmt.Errorf("查询候选人职位失败: %w", err)
		}
		for _, a := range assignments {
			if !a.JoiningDate.IsZero() {
				viewed.JoiningDates = append(viewed.JoiningDates, a.JoiningDate)
			}
		}
	}

	decision := s.policy.ShouldMask(phone, viewed, records, s.today())
	display := phone
	if decision.Masked {
		// 带国家码或分隔符的号码先规整为 10 位再打码
		if norm := masking.NormalizePhone(phone); len(norm) == 10 {
			display = masking.MaskPhone(norm)
		}
	}
	return &DisplayPhone{
		Phone:       display,
		Masked:      decision.Masked,
		Reason:      decision.Reason,
		Explanation: s.policy.Describe(decision),
	}, nil
}

// CreateAssignment 创建职位对接
func (s *EngagementService) CreateAssignment(ctx context.Context, req models.CreateJobAssignmentRequest) (*models.JobAssignment, error) {
	a := &models.JobAssignment{
		CandidateID:    strings.TrimSpace(req.CandidateID),
		CandidateName:  strings.TrimSpace(req.CandidateName),
		CandidatePhone: strings.TrimSpace(req.CandidatePhone),
		ClientName:     strings.TrimSpace(req.ClientName),
		Designation:    strings.TrimSpace(req.Designation),
		Status:         normalizeStatus(req.Status),
	}
	if a.CandidateID == "" || a.ClientName == "" || a.Designation == "" {
		return nil, &ValidationError{Message: "候选人、客户和职位不能为空"}
	}
	if a.CandidatePhone != "" && !utils.IsValidPhone(masking.NormalizePhone(a.CandidatePhone)) {
		return nil, &ValidationError{Field: "candidatePhone", Message: "手机号格式不正确"}
	}
	if raw := strings.TrimSpace(req.JoiningDate); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return nil, &ValidationError{Field: "joiningDate", Message: "日期格式应为 yyyy-mm-dd"}
		}
		a.JoiningDate = d
	}
	return s.store.CreateAssignment(ctx, a)
}

// GetAssignment 查询单个职位对接
func (s *EngagementService) GetAssignment(ctx context.Context, id string) (*models.JobAssignment, error) {
	return s.store.GetAssignment(ctx, id)
}

// ListAssignments 候选人的全部职位对接
func (s *EngagementService) ListAssignments(ctx context.Context, candidateID string) ([]models.JobAssignment, error) {
	if strings.TrimSpace(candidateID) == "" {
		return nil, &ValidationError{Field: "candidateId", Message: "候选人ID不能为空"}
	}
	list, err := s.store.ListAssignmentsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.JobAssignment{}
	}
	return list, nil
}

// normalizeStatus 已知状态统一大小写，未知状态原样保留
func normalizeStatus(s string) models.AssignmentStatus {
	s = strings.TrimSpace(s)
	for _, known := range []models.AssignmentStatus{
		models.AssignmentStatusJoined,
		models.AssignmentStatusSelected,
		models.AssignmentStatusInProcess,
		models.AssignmentStatusRejected,
		models.AssignmentStatusOfferDenied,
	} {
		if strings.EqualFold(s, string(known)) {
			return known
		}
	}
	return models.AssignmentStatus(s)
}
