package repository

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/BerniceZTT/crm_engagement/ledger"
	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/models"
)

// MemoryStore 进程内存储，账本同样以编码后的文本保存。
// 每个职位对接一把锁，保证追加串行。
type MemoryStore struct {
	opts storeOptions

	mu          sync.RWMutex
	assignments map[string]*models.JobAssignment
	order       []string

	locks sync.Map // id -> *sync.Mutex

	cfgMu  sync.Mutex
	rules  []models.RemarkRule
	opLogs []models.OperationLog
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:        buildOptions(opts),
		assignments: make(map[string]*models.JobAssignment),
	}
}

func (s *MemoryStore) lockFor(id string) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (s *MemoryStore) CreateAssignment(ctx context.Context, a *models.JobAssignment) (*models.JobAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created := prepareAssignment(a, s.opts.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assignments[created.ID]; exists {
		return nil, fmt.Errorf("职位对接已存在: %s", created.ID)
	}
	s.assignments[created.ID] = created
	s.order = append(s.order, created.ID)

	out := *created
	return &out, nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, id string) (*models.JobAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) ListAssignmentsByCandidate(ctx context.Context, candidateID string) ([]models.JobAssignment, error) {
	return s.filter(ctx, func(a *models.JobAssignment) bool {
		return a.CandidateID == candidateID
	})
}

// Append 在该职位的锁内完成 读取-追加-写回
func (s *MemoryStore) Append(ctx context.Context, jobAssignmentID string, entry models.FeedbackEntry) (*models.JobAssignment, error) {
	lock := s.lockFor(jobAssignmentID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.GetAssignment(ctx, jobAssignmentID)
	if err != nil {
		return nil, err
	}

	stamped := stampEntry(entry, s.opts.now())
	blob, err := ledger.Append(current.Feedback, stamped)
	if err != nil {
		return nil, err
	}

	// 写回之前最后一次检查，之后不再中断
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current.Feedback = blob
	current.LedgerVersion++
	current.ApplyTail(stamped)

	s.mu.Lock()
	stored := *current
	s.assignments[jobAssignmentID] = &stored
	s.mu.Unlock()

	return current, nil
}

func (s *MemoryStore) ReadAll(ctx context.Context, jobAssignmentID string) ([]models.FeedbackEntry, error) {
	a, err := s.GetAssignment(ctx, jobAssignmentID)
	if err != nil {
		return nil, err
	}
	return ledger.Decode(a.Feedback), nil
}

func (s *MemoryStore) ReadAllForCandidate(ctx context.Context, candidateID string, order models.HistoryOrder) ([]models.TaggedEntry, error) {
	assignments, err := s.ListAssignmentsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	ledgers := make([]AssignmentLedger, 0, len(assignments))
	for _, a := range assignments {
		ledgers = append(ledgers, AssignmentLedger{Assignment: a, Entries: ledger.Decode(a.Feedback)})
	}
	return MergeLedgers(ledgers, order), nil
}

func (s *MemoryStore) ListDueFollowUps(ctx context.Context, date civil.Date) ([]models.JobAssignment, error) {
	return s.filter(ctx, func(a *models.JobAssignment) bool {
		return a.NFD == date
	})
}

func (s *MemoryStore) PhoneHistory(ctx context.Context, phone string) ([]models.PhoneRecord, error) {
	target := masking.NormalizePhone(phone)
	if target == "" {
		return nil, nil
	}
	matched, err := s.filter(ctx, func(a *models.JobAssignment) bool {
		return masking.NormalizePhone(a.CandidatePhone) == target
	})
	if err != nil {
		return nil, err
	}
	return phoneRecordsFrom(matched), nil
}

// filter 按创建顺序返回满足条件的职位对接副本
func (s *MemoryStore) filter(ctx context.Context, keep func(*models.JobAssignment) bool) ([]models.JobAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.JobAssignment
	for _, id := range s.order {
		a := s.assignments[id]
		if keep(a) {
			out = append(out, *a)
		}
	}
	return out, nil
}

// LoadRemarkRules 返回已保存的备注规则
func (s *MemoryStore) LoadRemarkRules(ctx context.Context) (interface{}, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if s.rules == nil {
		return nil, false, nil
	}
	value := make([]interface{}, 0, len(s.rules))
	for _, r := range s.rules {
		value = append(value, map[string]interface{}{"key": r.Key, "offset": r.OffsetDays, "template": r.Template})
	}
	return value, true, nil
}

// SaveRemarkRules 覆盖保存备注规则
func (s *MemoryStore) SaveRemarkRules(ctx context.Context, rules []models.RemarkRule, _ string, _ *models.Operator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.rules = append([]models.RemarkRule(nil), rules...)
	return nil
}

// SaveOperationLog 保存操作日志
func (s *MemoryStore) SaveOperationLog(ctx context.Context, log *models.OperationLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.opLogs = append(s.opLogs, *log)
	return nil
}

// OperationLogs 已保存的操作日志副本
func (s *MemoryStore) OperationLogs() []models.OperationLog {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return append([]models.OperationLog(nil), s.opLogs...)
}

// Status 内存存储概况
func (s *MemoryStore) Status(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	assignments := len(s.assignments)
	s.mu.RUnlock()
	s.cfgMu.Lock()
	logs := len(s.opLogs)
	s.cfgMu.Unlock()
	return map[string]interface{}{
		"driver":         "memory",
		"jobAssignments": assignments,
		"operationLogs":  logs,
	}, nil
}
