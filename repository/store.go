package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/BerniceZTT/crm_engagement/models"
)

var (
	// ErrNotFound 职位对接不存在
	ErrNotFound = errors.New("repository: job assignment not found")
	// ErrRetryExhausted 并发追加冲突，重试次数用尽
	ErrRetryExhausted = errors.New("repository: append retries exhausted")

	// errConflict 乐观锁版本不匹配，只在存储实现内部使用
	errConflict = errors.New("repository: ledger version conflict")
)

// DefaultMaxAttempts 追加冲突的默认最大尝试次数
const DefaultMaxAttempts = 5

// LedgerStore 跟进记录存储
//
// 同一个职位对接的追加必须串行化；读取可以无锁进行。
type LedgerStore interface {
	CreateAssignment(ctx context.Context, a *models.JobAssignment) (*models.JobAssignment, error)
	GetAssignment(ctx context.Context, id string) (*models.JobAssignment, error)
	ListAssignmentsByCandidate(ctx context.Context, candidateID string) ([]models.JobAssignment, error)

	// Append 追加一条记录到末尾，返回追加后的职位对接（冗余字段已刷新）
	Append(ctx context.Context, jobAssignmentID string, entry models.FeedbackEntry) (*models.JobAssignment, error)
	// ReadAll 按提交顺序返回全部记录
	ReadAll(ctx context.Context, jobAssignmentID string) ([]models.FeedbackEntry, error)
	ReadAllForCandidate(ctx context.Context, candidateID string, order models.HistoryOrder) ([]models.TaggedEntry, error)

	// ListDueFollowUps 下次跟进日期为 date 的职位对接
	ListDueFollowUps(ctx context.Context, date civil.Date) ([]models.JobAssignment, error)
	// PhoneHistory 号码在所有职位对接中的出现记录
	PhoneHistory(ctx context.Context, phone string) ([]models.PhoneRecord, error)
}

// storeOptions 各存储实现共用的选项
type storeOptions struct {
	now         func() time.Time
	maxAttempts int
}

// Option 存储选项
type Option func(*storeOptions)

// WithClock 替换提交时间来源
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxAttempts 追加冲突的最大尝试次数
func WithMaxAttempts(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AssignmentLedger 单个职位对接及其已解析的记录
type AssignmentLedger struct {
	Assignment models.JobAssignment
	Entries    []models.FeedbackEntry
}

// prepareAssignment 补齐新建职位对接的默认字段
func prepareAssignment(a *models.JobAssignment, now time.Time) *models.JobAssignment {
	out := *a
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Status == "" {
		out.Status = models.AssignmentStatusInProcess
	}
	out.Feedback = ""
	out.LedgerVersion = 0
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out
}

// stampEntry 提交时间由存储层写入，精度截断到秒，与编码格式一致
func stampEntry(entry models.FeedbackEntry, now time.Time) models.FeedbackEntry {
	entry.Timestamp = now.Truncate(time.Second)
	if entry.CallStatus == "" {
		entry.CallStatus = models.CallStatusNone
	}
	return entry
}

// TagEntries 给每条记录打上来源职位信息
func TagEntries(a models.JobAssignment, entries []models.FeedbackEntry) []models.TaggedEntry {
	tagged := make([]models.TaggedEntry, 0, len(entries))
	for i, e := range entries {
		tagged = append(tagged, models.TaggedEntry{
			FeedbackEntry:   e,
			JobAssignmentID: a.ID,
			ClientName:      a.ClientName,
			Designation:     a.Designation,
			Seq:             i + 1,
		})
	}
	return tagged
}

// MergeLedgers 合并多个职位对接的记录
//
// 单个职位内部始终保持提交顺序；不同职位之间按时间戳归并。
// 时间戳缺失或回退的记录沿用同一职位中前一条的时间参与比较。
func MergeLedgers(ledgers []AssignmentLedger, order models.HistoryOrder) []models.TaggedEntry {
	type keyed struct {
		entry models.TaggedEntry
		key   time.Time
	}

	var all []keyed
	for _, l := range ledgers {
		var last time.Time
		for _, e := range TagEntries(l.Assignment, l.Entries) {
			key := e.Timestamp
			if key.Before(last) {
				key = last
			}
			last = key
			all = append(all, keyed{entry: e, key: key})
		}
	}

	// 键相同则先按职位ID，再按序号
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].key.Equal(all[j].key) {
			return all[i].key.Before(all[j].key)
		}
		if all[i].entry.JobAssignmentID != all[j].entry.JobAssignmentID {
			return all[i].entry.JobAssignmentID < all[j].entry.JobAssignmentID
		}
		return all[i].entry.Seq < all[j].entry.Seq
	})

	out := make([]models.TaggedEntry, len(all))
	for i, k := range all {
		out[i] = k.entry
	}
	if order == models.OrderRecentFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// ProfileCreated 候选人所有职位对接中最早的一条记录，与 MergeLedgers 按时间顺序合并后的第一条一致。
//
// 每个职位内最早的是序号最小的那条；职位之间比较时间戳，缺失时间戳视为最早，
// 时间戳相同时职位ID小的优先。
func ProfileCreated(entries []models.TaggedEntry) (models.TaggedEntry, bool) {
	firsts := make(map[string]models.TaggedEntry)
	for _, e := range entries {
		if cur, ok := firsts[e.JobAssignmentID]; !ok || e.Seq < cur.Seq {
			firsts[e.JobAssignmentID] = e
		}
	}

	var oldest models.TaggedEntry
	found := false
	for _, e := range firsts {
		switch {
		case !found,
			e.Timestamp.Before(oldest.Timestamp),
			e.Timestamp.Equal(oldest.Timestamp) && e.JobAssignmentID < oldest.JobAssignmentID:
			oldest = e
			found = true
		}
	}
	return oldest, found
}

// phoneRecordsFrom 从职位对接列表生成号码出现记录
func phoneRecordsFrom(assignments []models.JobAssignment) []models.PhoneRecord {
	records := make([]models.PhoneRecord, 0, len(assignments))
	for _, a := range assignments {
		records = append(records, models.PhoneRecord{
			CandidateID: a.CandidateID,
			Phone:       a.CandidatePhone,
			Status:      a.Status,
			JoiningDate: a.JoiningDate,
		})
	}
	return records
}
