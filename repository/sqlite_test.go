package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BerniceZTT/crm_engagement/ledger"
	"github.com/BerniceZTT/crm_engagement/models"
)

func openTempSQLite(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), opts...)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close sqlite store: %v", err)
		}
	})
	return store
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(context.Background(), "  "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	runLedgerStoreSuite(t, func(t *testing.T, opts ...Option) LedgerStore {
		return openTempSQLite(t, opts...)
	})
}

func TestSQLiteSeqIsPerAssignment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempSQLite(t)
	a, err := store.CreateAssignment(ctx, newAssignment("s1", "Acme", ""))
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := store.CreateAssignment(ctx, newAssignment("s1", "Globex", ""))
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	for _, id := range []string{a.ID, b.ID, a.ID} {
		if _, err := store.Append(ctx, id, entry("note")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if got.LedgerVersion != 2 {
		t.Fatalf("a version = %d, want 2", got.LedgerVersion)
	}
	got, err = store.GetAssignment(ctx, b.ID)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got.LedgerVersion != 1 {
		t.Fatalf("b version = %d, want 1", got.LedgerVersion)
	}
}

func TestSQLiteImportExportLegacy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempSQLite(t, WithClock(steppingClock(clockStart)))

	legacy := "#~~~#Comment - spoke to candidate; Remarks - Interested; NFD - 20/10/2026" +
		ledger.Delimiter +
		"Feedback: Interview fixed. Venue: HQ | Remark: Interview fixed | NFD: 2026-10-21 | EJD:  | IFD: 2026-10-21 | Call: Answered | By: R07 | At: 2026-10-18 11:30:00"

	a := newAssignment("legacy-1", "Acme", "9876544444")
	a.ID = "job-legacy-1"
	a.Feedback = legacy

	n, err := store.ImportLegacy(ctx, a)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}

	entries, err := store.ReadAll(ctx, a.ID)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].FeedbackText != "spoke to candidate" || entries[0].Remark != "Interested" {
		t.Fatalf("legacy entry = %+v", entries[0])
	}
	if entries[1].FeedbackText != "Interview fixed. Venue: HQ" || entries[1].AuthorCode != "R07" {
		t.Fatalf("current entry = %+v", entries[1])
	}

	stored, err := store.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if stored.LatestRemark != "Interview fixed" || stored.LedgerVersion != 2 {
		t.Fatalf("mirror = %+v", stored)
	}

	if _, err := store.Append(ctx, a.ID, entry("Post import note")); err != nil {
		t.Fatalf("append after import: %v", err)
	}

	blob, err := store.ExportLegacy(ctx, a.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	fragments := ledger.Fragments(blob)
	if len(fragments) != 3 {
		t.Fatalf("fragments = %d, want 3", len(fragments))
	}
	if fragments[0] != "Comment - spoke to candidate; Remarks - Interested; NFD - 20/10/2026" {
		t.Fatalf("legacy fragment rewritten: %q", fragments[0])
	}
	if got := ledger.DecodeFragment(fragments[2]).FeedbackText; got != "Post import note" {
		t.Fatalf("appended fragment = %q", got)
	}
}

func TestSQLiteRemarkRulesAndOperationLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempSQLite(t)

	if _, found, err := store.LoadRemarkRules(ctx); err != nil || found {
		t.Fatalf("empty load = found %v err %v", found, err)
	}

	rules := []models.RemarkRule{
		{Key: "call later", OffsetDays: 1, Template: "Asked to call later."},
		{Key: "joined", OffsetDays: 90, Template: "Candidate joined."},
	}
	if err := store.SaveRemarkRules(ctx, rules, "test", &models.Operator{ID: "u1", Name: "admin"}); err != nil {
		t.Fatalf("save rules: %v", err)
	}
	raw, found, err := store.LoadRemarkRules(ctx)
	if err != nil || !found {
		t.Fatalf("load = found %v err %v", found, err)
	}
	list, ok := raw.([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("raw rules = %#v", raw)
	}

	log := &models.OperationLog{Method: "POST", Path: "/api/feedback", StatusCode: 201, Success: true}
	if err := store.SaveOperationLog(ctx, log); err != nil {
		t.Fatalf("save operation log: %v", err)
	}
	if log.ID == "" {
		t.Fatal("operation log id not assigned")
	}
}
