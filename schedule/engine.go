// Package schedule 根据备注自动计算下次跟进日期和预设反馈内容。
package schedule

import (
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/models"
)

// Suggestion 自动排期结果。Matched 为 false 表示该备注没有自动化规则，这是正常结果而不是错误。
type Suggestion struct {
	Date     civil.Date `json:"date"`
	Template string     `json:"template"`
	Matched  bool       `json:"matched"`
	Remark   string     `json:"remark"`
}

// HasDate 是否给出了跟进日期
func (s Suggestion) HasDate() bool {
	return s.Matched && !s.Date.IsZero()
}

// Engine 持有当前规则快照，读取无锁；替换快照时分配新的版本号
type Engine struct {
	table atomic.Pointer[Table]
	mu    sync.Mutex
	now   func() time.Time
}

// Option Engine 配置项
type Option func(*Engine)

// WithClock 替换时钟，便于测试
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine 创建排期引擎，table 为 nil 时使用内置规则
func NewEngine(table *Table, opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if table == nil {
		table = MustDefaultTable()
	}
	e.Replace(table)
	return e
}

// Replace 发布新的规则快照，返回其版本号
func (e *Engine) Replace(table *Table) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if table == nil {
		return e.table.Load().Version()
	}
	next := &Table{
		version: e.table.Load().Version() + 1,
		rules:   table.rules,
		byKey:   table.byKey,
	}
	e.table.Store(next)
	return next.version
}

// Snapshot 当前规则快照
func (e *Engine) Snapshot() *Table {
	return e.table.Load()
}

// Today 当前本地日期
func (e *Engine) Today() civil.Date {
	return civil.DateOf(e.now())
}

// Allocate 以今天为基准计算排期
func (e *Engine) Allocate(remark string) Suggestion {
	return e.AllocateOn(remark, e.Today())
}

// AllocateOn 以指定日期为基准计算排期
func (e *Engine) AllocateOn(remark string, today civil.Date) Suggestion {
	rule, ok := e.Snapshot().Lookup(remark)
	if !ok {
		return Suggestion{Remark: NormalizeRemark(remark)}
	}
	return Suggestion{
		Date:     AdjustWeekend(today.AddDays(rule.OffsetDays)),
		Template: rule.Template,
		Matched:  true,
		Remark:   rule.Key,
	}
}

// AdjustWeekend 落在周六顺延两天，落在周日顺延一天，工作日不变；从不往前调整
func AdjustWeekend(d civil.Date) civil.Date {
	switch d.In(time.UTC).Weekday() {
	case time.Saturday:
		return d.AddDays(2)
	case time.Sunday:
		return d.AddDays(1)
	default:
		return d
	}
}

// RuleFor 查找规则，供展示使用
func (e *Engine) RuleFor(remark string) (models.RemarkRule, bool) {
	return e.Snapshot().Lookup(remark)
}
