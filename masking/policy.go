// Package masking 决定候选人电话号码是否需要打码展示，避免重复联系已在别处入职的候选人。
//
// ShouldMask 是纯函数：结果只取决于传入的号码、被查看候选人的入职历史、
// 候选人池快照和当天日期，没有隐藏状态，也没有副作用。
package masking

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/models"
)

// DefaultRecencyDays 入职日期距今多少天以内视为"近期"
const DefaultRecencyDays = 100

// Rule 命中的优先级规则
type Rule int

const (
	RuleGlobalAge Rule = iota + 1
	RuleIndividualRecency
	RuleCrossCandidate
	RuleDefault
)

// String 规则标识
func (r Rule) String() string {
	switch r {
	case RuleGlobalAge:
		return "global_age_override"
	case RuleIndividualRecency:
		return "individual_recency"
	case RuleCrossCandidate:
		return "cross_candidate_conflict"
	default:
		return "free_number"
	}
}

// PhoneHistoryLookup 候选人池只读端口：返回某个号码在所有可见职位对接中的出现记录
type PhoneHistoryLookup interface {
	PhoneHistory(ctx context.Context, phone string) ([]models.PhoneRecord, error)
}

// ViewedCandidate 当前被查看的候选人
type ViewedCandidate struct {
	ID           string
	JoiningDates []civil.Date
}

// Decision 判定结果
type Decision struct {
	Masked   bool      `json:"masked"`
	Reason   string    `json:"reason"`
	Rule     Rule      `json:"-"`
	Evidence *Evidence `json:"evidence,omitempty"`
}

// Evidence 触发规则的依据
type Evidence struct {
	CandidateID string                  `json:"candidateId,omitempty"`
	Status      models.AssignmentStatus `json:"status,omitempty"`
	JoiningDate civil.Date              `json:"joiningDate"`
	AgeDays     int                     `json:"ageDays"`
}

// Policy 打码策略
type Policy struct {
	RecencyDays int
}

// DefaultPolicy 使用 100 天阈值
func DefaultPolicy() Policy {
	return Policy{RecencyDays: DefaultRecencyDays}
}

// ShouldMask 使用默认阈值判定
func ShouldMask(phone string, viewed ViewedCandidate, records []models.PhoneRecord, today civil.Date) Decision {
	return DefaultPolicy().ShouldMask(phone, viewed, records, today)
}

// ShouldMask 按优先级依次判定，先命中者生效：
//  1. 号码的任一入职日期已超过阈值天数 -> 不打码（覆盖其余所有规则）
//  2. 被查看候选人最近一次入职不足阈值天数 -> 打码
//  3. 号码在其他候选人名下为 Joined/Selected（不论是否有入职日期） -> 打码
//  4. 其余情况 -> 不打码
func (p Policy) ShouldMask(phone string, viewed ViewedCandidate, records []models.PhoneRecord, today civil.Date) Decision {
	threshold := p.RecencyDays
	if threshold <= 0 {
		threshold = DefaultRecencyDays
	}
	target := NormalizePhone(phone)
	matching := filterByPhone(records, target)

	for _, r := range matching {
		if r.JoiningDate.IsZero() {
			continue
		}
		if age := today.DaysSince(r.JoiningDate); age >= threshold {
			return Decision{
				Masked: false,
				Rule:   RuleGlobalAge,
				Reason: RuleGlobalAge.String(),
				Evidence: &Evidence{
					CandidateID: r.CandidateID,
					Status:      r.Status,
					JoiningDate: r.JoiningDate,
					AgeDays:     age,
				},
			}
		}
	}

	if latest, ok := latestDate(viewed.JoiningDates); ok {
		if age := today.DaysSince(latest); age < threshold {
			return Decision{
				Masked: true,
				Rule:   RuleIndividualRecency,
				Reason: RuleIndividualRecency.String(),
				Evidence: &Evidence{
					CandidateID: viewed.ID,
					JoiningDate: latest,
					AgeDays:     age,
				},
			}
		}
	}

	for _, r := range matching {
		if r.CandidateID == viewed.ID || !r.Status.IsPlaced() {
			continue
		}
		ev := &Evidence{CandidateID: r.CandidateID, Status: r.Status, JoiningDate: r.JoiningDate}
		if !r.JoiningDate.IsZero() {
			ev.AgeDays = today.DaysSince(r.JoiningDate)
		}
		return Decision{
			Masked:   true,
			Rule:     RuleCrossCandidate,
			Reason:   RuleCrossCandidate.String(),
			Evidence: ev,
		}
	}

	return Decision{Masked: false, Rule: RuleDefault, Reason: RuleDefault.String()}
}

// Explain 用与 ShouldMask 相同的判定过程生成说明文字
func (p Policy) Explain(phone string, viewed ViewedCandidate, records []models.PhoneRecord, today civil.Date) string {
	return p.Describe(p.ShouldMask(phone, viewed, records, today))
}

// Explain 使用默认阈值生成说明
func Explain(phone string, viewed ViewedCandidate, records []models.PhoneRecord, today civil.Date) string {
	return DefaultPolicy().Explain(phone, viewed, records, today)
}

// Describe 把判定结果转为说明文字
func (p Policy) Describe(d Decision) string {
	threshold := p.RecencyDays
	if threshold <= 0 {
		threshold = DefaultRecencyDays
	}
	ev := d.Evidence
	if ev == nil {
		ev = &Evidence{}
	}

	switch d.Rule {
	case RuleGlobalAge:
		return fmt.Sprintf("Number shown: a joining on %s is %d days old (at least %d days), which releases the number.",
			ev.JoiningDate, ev.AgeDays, threshold)
	case RuleIndividualRecency:
		return fmt.Sprintf("Number masked: this candidate joined on %s, only %d days ago (under %d days).",
			ev.JoiningDate, ev.AgeDays, threshold)
	case RuleCrossCandidate:
		return fmt.Sprintf("Number masked: the same number is marked %s for another candidate.", ev.Status)
	default:
		return "Number shown: no active placement is recorded against this number."
	}
}

// NormalizePhone 只保留数字，去掉 91 国家码或 0 前缀后得到 10 位号码
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		return digits[1:]
	default:
		return digits
	}
}

func filterByPhone(records []models.PhoneRecord, target string) []models.PhoneRecord {
	if target == "" {
		return nil
	}
	out := make([]models.PhoneRecord, 0, len(records))
	for _, r := range records {
		if NormalizePhone(r.Phone) == target {
			out = append(out, r)
		}
	}
	return out
}

func latestDate(dates []civil.Date) (civil.Date, bool) {
	var latest civil.Date
	found := false
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		if !found || d.After(latest) {
			latest = d
			found = true
		}
	}
	return latest, found
}

// Snapshot 静态候选人池快照，实现 PhoneHistoryLookup
type Snapshot []models.PhoneRecord

// PhoneHistory 返回快照中该号码的全部记录
func (s Snapshot) PhoneHistory(_ context.Context, phone string) ([]models.PhoneRecord, error) {
	return filterByPhone(s, NormalizePhone(phone)), nil
}
