package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BerniceZTT/crm_engagement/models"
)

// defaultOffsets 备注 -> 跟进天数
var defaultOffsets = map[int][]string{
	1:  {"call later", "nnr/nso", "attend & fb", "attend & fp", "no show", "next round"},
	2:  {"interview fixed", "interested", "no show & reschedule", "noshow & rescheduled", "in process"},
	3:  {"offer denied", "profile validation", "profile duplicate", "think and get back"},
	15: {"selected", "golden egg", "position freeze", "hold"},
	90: {"joined", "not looking for job change"},
}

// defaultTemplates 备注 -> 预设反馈
var defaultTemplates = map[string]string{
	"call later":                 "Candidate asked to call back later.",
	"nnr/nso":                    "Number not reachable or switched off.",
	"attend & fb":                "Candidate attended the interview, feedback awaited.",
	"attend & fp":                "Candidate attended the interview, feedback pending from client.",
	"no show":                    "Candidate did not show up for the interview.",
	"next round":                 "Candidate cleared the round, next round to be scheduled.",
	"interview fixed":            "Interview has been scheduled with the client.",
	"interested":                 "Candidate is interested in the position.",
	"no show & reschedule":       "Candidate missed the interview and asked to reschedule.",
	"noshow & rescheduled":       "Candidate missed the interview, interview rescheduled.",
	"in process":                 "Profile is in process with the client.",
	"offer denied":               "Candidate declined the offer.",
	"profile validation":         "Profile shared with the client for validation.",
	"profile duplicate":          "Client reported the profile as a duplicate.",
	"think and get back":         "Candidate will think it over and get back.",
	"selected":                   "Candidate has been selected by the client.",
	"golden egg":                 "Strong profile, marked as golden egg.",
	"position freeze":            "Client has frozen the position.",
	"hold":                       "Position is on hold with the client.",
	"joined":                     "Candidate has joined the client.",
	"not looking for job change": "Candidate is not looking for a job change.",
}

// DefaultRules 内置备注规则表
func DefaultRules() []models.RemarkRule {
	rules := make([]models.RemarkRule, 0, len(defaultTemplates))
	for offset, keys := range defaultOffsets {
		for _, key := range keys {
			rules = append(rules, models.RemarkRule{
				Key:        key,
				OffsetDays: offset,
				Template:   defaultTemplates[key],
			})
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].OffsetDays != rules[j].OffsetDays {
			return rules[i].OffsetDays < rules[j].OffsetDays
		}
		return rules[i].Key < rules[j].Key
	})
	return rules
}

// NormalizeRemark 去除首尾空白并转为小写
func NormalizeRemark(remark string) string {
	return strings.ToLower(strings.TrimSpace(remark))
}

// Table 不可变的规则快照
type Table struct {
	version int64
	rules   []models.RemarkRule
	byKey   map[string]models.RemarkRule
}

// NewTable 校验并构建规则表：键不能为空，忽略大小写后不能重复，偏移不能为负
func NewTable(rules []models.RemarkRule) (*Table, error) {
	t := &Table{
		rules: make([]models.RemarkRule, 0, len(rules)),
		byKey: make(map[string]models.RemarkRule, len(rules)),
	}
	for i, rule := range rules {
		key := NormalizeRemark(rule.Key)
		if key == "" {
			return nil, fmt.Errorf("rule %d: key is required", i)
		}
		if _, exists := t.byKey[key]; exists {
			return nil, fmt.Errorf("rule %d: duplicate remark key %q", i, key)
		}
		if rule.OffsetDays < 0 {
			return nil, fmt.Errorf("rule %q: offset must not be negative", key)
		}
		rule.Key = key
		rule.Template = strings.TrimSpace(rule.Template)
		t.byKey[key] = rule
		t.rules = append(t.rules, rule)
	}
	return t, nil
}

// MustDefaultTable 内置规则表，内置数据非法时 panic
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup 按规范化后的备注查找规则
func (t *Table) Lookup(remark string) (models.RemarkRule, bool) {
	if t == nil {
		return models.RemarkRule{}, false
	}
	rule, ok := t.byKey[NormalizeRemark(remark)]
	return rule, ok
}

// Rules 返回规则副本
func (t *Table) Rules() []models.RemarkRule {
	if t == nil {
		return nil
	}
	out := make([]models.RemarkRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Version 快照版本号，由 Engine 发布时分配
func (t *Table) Version() int64 {
	if t == nil {
		return 0
	}
	return t.version
}

// Len 规则数量
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}
