package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/crm_engagement/models"
)

// countingStore 统计底层读取次数
type countingStore struct {
	LedgerStore
	mu    sync.Mutex
	reads int
}

func (c *countingStore) ReadAll(ctx context.Context, id string) ([]models.FeedbackEntry, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.LedgerStore.ReadAll(ctx, id)
}

func (c *countingStore) ReadAllForCandidate(ctx context.Context, candidateID string, order models.HistoryOrder) ([]models.TaggedEntry, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.LedgerStore.ReadAllForCandidate(ctx, candidateID, order)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func TestCachedLedgerStoreServesFromCacheUntilAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &countingStore{LedgerStore: NewMemoryStore()}
	cached := NewCachedLedgerStore(inner, time.Minute)

	a, err := cached.CreateAssignment(ctx, newAssignment("k1", "Acme", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cached.Append(ctx, a.ID, entry("one")); err != nil {
		t.Fatalf("append: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := cached.ReadAll(ctx, a.ID)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("entries = %d, want 1", len(got))
		}
	}
	if inner.count() != 1 {
		t.Fatalf("inner reads = %d, want 1", inner.count())
	}

	if _, err := cached.ReadAllForCandidate(ctx, "k1", models.OrderChronological); err != nil {
		t.Fatalf("read candidate: %v", err)
	}
	if _, err := cached.Append(ctx, a.ID, entry("two")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := cached.ReadAll(ctx, a.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries after append = %d, want 2", len(got))
	}
	tagged, err := cached.ReadAllForCandidate(ctx, "k1", models.OrderChronological)
	if err != nil {
		t.Fatalf("read candidate: %v", err)
	}
	if len(tagged) != 2 {
		t.Fatalf("candidate entries after append = %d, want 2", len(tagged))
	}
}

func TestCachedLedgerStoreExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &countingStore{LedgerStore: NewMemoryStore()}
	cached := NewCachedLedgerStore(inner, time.Second)
	now := time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	a, err := cached.CreateAssignment(ctx, newAssignment("k2", "Acme", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cached.ReadAll(ctx, a.ID); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := cached.ReadAll(ctx, a.ID); err != nil {
		t.Fatalf("read: %v", err)
	}
	if inner.count() != 1 {
		t.Fatalf("inner reads = %d, want 1", inner.count())
	}

	now = now.Add(2 * time.Second)
	if _, err := cached.ReadAll(ctx, a.ID); err != nil {
		t.Fatalf("read: %v", err)
	}
	if inner.count() != 2 {
		t.Fatalf("inner reads = %d, want 2 after expiry", inner.count())
	}
}

func TestCachedLedgerStoreDropsExpiredKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cached := NewCachedLedgerStore(NewMemoryStore(), time.Second)
	now := time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	var ids []string
	for _, candidate := range []string{"k3", "k4", "k5"} {
		a, err := cached.CreateAssignment(ctx, newAssignment(candidate, "Acme", ""))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := cached.ReadAll(ctx, a.ID); err != nil {
			t.Fatalf("read: %v", err)
		}
		ids = append(ids, a.ID)
	}
	if got := cached.entries.size(); got != 3 {
		t.Fatalf("cached keys = %d, want 3", got)
	}

	now = now.Add(2 * time.Second)
	// 过期键在读到时删除
	if _, ok := cached.entries.get(ids[1], now); ok {
		t.Fatalf("expired key served")
	}
	if got := cached.entries.size(); got != 2 {
		t.Fatalf("cached keys after expired get = %d, want 2", got)
	}

	// 重新写入时顺带清扫其余过期键
	if _, err := cached.ReadAll(ctx, ids[0]); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := cached.entries.size(); got != 1 {
		t.Fatalf("cached keys after sweep = %d, want 1", got)
	}
	if _, ok := cached.entries.get(ids[0], now); !ok {
		t.Fatalf("fresh key missing")
	}
}
