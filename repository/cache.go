package repository

import (
	"context"
	"sync"
	"time"

	"github.com/BerniceZTT/crm_engagement/models"
)

// DefaultCacheTTL 读缓存默认有效期
const DefaultCacheTTL = 5 * time.Second

type cacheItem[T any] struct {
	value   T
	expires time.Time
}

// ttlCache 简单的过期缓存。过期条目在读到时删除，
// 写入时每隔一个 ttl 顺带清扫一次，不再被读取的键也会被清掉
type ttlCache[T any] struct {
	mu        sync.RWMutex
	items     map[string]cacheItem[T]
	lastSweep time.Time
}

func newTTLCache[T any]() *ttlCache[T] {
	return &ttlCache[T]{items: make(map[string]cacheItem[T])}
}

func (c *ttlCache[T]) get(key string, now time.Time) (T, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if ok && !now.After(item.expires) {
		return item.value, true
	}
	if ok {
		c.mu.Lock()
		// 加写锁期间可能已被重新写入
		if cur, still := c.items[key]; still && now.After(cur.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
	}
	var zero T
	return zero, false
}

func (c *ttlCache[T]) set(key string, value T, now time.Time, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem[T]{value: value, expires: now.Add(ttl)}
	if now.Sub(c.lastSweep) < ttl {
		return
	}
	for k, item := range c.items {
		if now.After(item.expires) {
			delete(c.items, k)
		}
	}
	c.lastSweep = now
}

func (c *ttlCache[T]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[T]) delete(keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
}

// CachedLedgerStore 对读取做秒级缓存，追加后立即失效相关条目
type CachedLedgerStore struct {
	LedgerStore
	ttl time.Duration
	now func() time.Time

	entries   *ttlCache[[]models.FeedbackEntry]
	candidate *ttlCache[[]models.TaggedEntry]
}

// NewCachedLedgerStore ttl 不大于0时使用 DefaultCacheTTL
func NewCachedLedgerStore(inner LedgerStore, ttl time.Duration) *CachedLedgerStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedLedgerStore{
		LedgerStore: inner,
		ttl:         ttl,
		now:         time.Now,
		entries:     newTTLCache[[]models.FeedbackEntry](),
		candidate:   newTTLCache[[]models.TaggedEntry](),
	}
}

func (c *CachedLedgerStore) ReadAll(ctx context.Context, jobAssignmentID string) ([]models.FeedbackEntry, error) {
	if cached, ok := c.entries.get(jobAssignmentID, c.now()); ok {
		return cloneEntries(cached), nil
	}
	entries, err := c.LedgerStore.ReadAll(ctx, jobAssignmentID)
	if err != nil {
		return nil, err
	}
	c.entries.set(jobAssignmentID, cloneEntries(entries), c.now(), c.ttl)
	return entries, nil
}

func (c *CachedLedgerStore) ReadAllForCandidate(ctx context.Context, candidateID string, order models.HistoryOrder) ([]models.TaggedEntry, error) {
	if order != models.OrderRecentFirst {
		order = models.OrderChronological
	}
	key := candidateID + "|" + string(order)
	if cached, ok := c.candidate.get(key, c.now()); ok {
		return cloneTagged(cached), nil
	}
	entries, err := c.LedgerStore.ReadAllForCandidate(ctx, candidateID, order)
	if err != nil {
		return nil, err
	}
	c.candidate.set(key, cloneTagged(entries), c.now(), c.ttl)
	return entries, nil
}

// Append 追加成功或失败都会清掉该职位及其候选人的缓存
func (c *CachedLedgerStore) Append(ctx context.Context, jobAssignmentID string, entry models.FeedbackEntry) (*models.JobAssignment, error) {
	updated, err := c.LedgerStore.Append(ctx, jobAssignmentID, entry)
	c.entries.delete(jobAssignmentID)
	if updated != nil {
		c.invalidateCandidate(updated.CandidateID)
	} else if a, getErr := c.LedgerStore.GetAssignment(context.WithoutCancel(ctx), jobAssignmentID); getErr == nil {
		c.invalidateCandidate(a.CandidateID)
	}
	return updated, err
}

func (c *CachedLedgerStore) CreateAssignment(ctx context.Context, a *models.JobAssignment) (*models.JobAssignment, error) {
	created, err := c.LedgerStore.CreateAssignment(ctx, a)
	if err == nil {
		c.invalidateCandidate(created.CandidateID)
	}
	return created, err
}

func (c *CachedLedgerStore) invalidateCandidate(candidateID string) {
	c.candidate.delete(
		candidateID+"|"+string(models.OrderChronological),
		candidateID+"|"+string(models.OrderRecentFirst),
	)
}

func cloneEntries(in []models.FeedbackEntry) []models.FeedbackEntry {
	if in == nil {
		return nil
	}
	out := make([]models.FeedbackEntry, len(in))
	copy(out, in)
	return out
}

func cloneTagged(in []models.TaggedEntry) []models.TaggedEntry {
	if in == nil {
		return nil
	}
	out := make([]models.TaggedEntry, len(in))
	copy(out, in)
	return out
}
