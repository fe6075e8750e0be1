package service

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// 每天指定时间执行任务，ctx 取消后退出
func ScheduleDailyTaskAt(ctx context.Context, hour, min, sec int, task func(ctx context.Context)) {
	go func() {
		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, sec, 0, now.Location())
			if !next.After(now) {
				next = next.Add(24 * time.Hour)
			}

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				task(ctx)
			}
		}
	}()
}

// DueFollowUp 待跟进提醒中的一项
type DueFollowUp struct {
	JobAssignmentID string     `json:"jobAssignmentId"`
	CandidateID     string     `json:"candidateId"`
	CandidateName   string     `json:"candidateName"`
	Phone           string     `json:"phone"`
	ClientName      string     `json:"clientName"`
	Designation     string     `json:"designation"`
	LatestRemark    string     `json:"latestRemark"`
	NFD             civil.Date `json:"nfd"`
}

// DigestReport 某天的待跟进列表
type DigestReport struct {
	Date  civil.Date    `json:"date"`
	Items []DueFollowUp `json:"items"`
}

// FollowUpDigest 每日待跟进提醒
type FollowUpDigest struct {
	store repository.LedgerStore
	now   func() time.Time
}

func NewFollowUpDigest(store repository.LedgerStore) *FollowUpDigest {
	return &FollowUpDigest{store: store, now: time.Now}
}

// Build 列出下次跟进日期为 date 的职位对接，号码一律打码
func (d *FollowUpDigest) Build(ctx context.Context, date civil.Date) (*DigestReport, error) {
	if date.IsZero() {
		date = civil.DateOf(d.now())
	}
	due, err := d.store.ListDueFollowUps(ctx, date)
	if err != nil {
		return nil, err
	}

	report := &DigestReport{Date: date, Items: make([]DueFollowUp, 0, len(due))}
	for _, a := range due {
		report.Items = append(report.Items, toDueFollowUp(a))
	}
	return report, nil
}

func toDueFollowUp(a models.JobAssignment) DueFollowUp {
	return DueFollowUp{
		JobAssignmentID: a.ID,
		CandidateID:     a.CandidateID,
		CandidateName:   a.CandidateName,
		Phone:           masking.MaskPhone(masking.NormalizePhone(a.CandidatePhone)),
		ClientName:      a.ClientName,
		Designation:     a.Designation,
		LatestRemark:    a.LatestRemark,
		NFD:             a.NFD,
	}
}

// Run 定时任务入口：生成当天提醒并写日志
func (d *FollowUpDigest) Run(ctx context.Context) {
	now := time.Now()
	utils.Logger.Info().Time("time", now).Msg("开始执行每日待跟进检查任务...")

	report, err := d.Build(ctx, civil.DateOf(d.now()))
	if err != nil {
		utils.LogError2("生成待跟进列表失败", err, nil)
		return
	}

	for _, item := range report.Items {
		utils.Logger.Info().
			Str("jobAssignmentId", item.JobAssignmentID).
			Str("candidate", item.CandidateName).
			Str("phone", item.Phone).
			Str("client", item.ClientName).
			Str("remark", item.LatestRemark).
			Msg("今日待跟进")
	}
	utils.Logger.Info().
		Str("date", report.Date.String()).
		Int("count", len(report.Items)).
		Dur("elapsed", time.Since(now)).
		Msg("每日待跟进检查任务完成")
}
