package repository

import (
	"context"
	"strings"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	runLedgerStoreSuite(t, func(t *testing.T, opts ...Option) LedgerStore {
		return NewMemoryStore(opts...)
	})
}

func TestMemoryStoreKeepsEncodedBlob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(WithClock(steppingClock(clockStart)))
	a, err := store.CreateAssignment(ctx, newAssignment("m1", "Acme", ""))
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	for _, text := range []string{"first", "second"} {
		if _, err := store.Append(ctx, a.ID, entry(text)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stored, err := store.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if got := strings.Count(stored.Feedback, "#~~~#"); got != 1 {
		t.Fatalf("delimiters = %d, want 1 in %q", got, stored.Feedback)
	}
	if !strings.HasPrefix(stored.Feedback, "Feedback: first | Remark: ") {
		t.Fatalf("blob = %q", stored.Feedback)
	}
}

func TestMemoryStoreCancelledAppendLeavesLedgerUntouched(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	a, err := store.CreateAssignment(context.Background(), newAssignment("m2", "Acme", ""))
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Append(ctx, a.ID, entry("never stored")); err == nil {
		t.Fatal("expected cancellation error")
	}

	got, err := store.ReadAll(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("entries = %d, want 0", len(got))
	}
}
