package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/schedule"
)

func TestRemarkServicePreview(t *testing.T) {
	t.Parallel()

	svc := NewRemarkService(schedule.NewEngine(nil, schedule.WithClock(fixedClock)), nil)

	tests := []struct {
		name    string
		remark  string
		today   civil.Date
		want    civil.Date
		matched bool
	}{
		{name: "engine clock", remark: "call later", want: civil.Date{Year: 2026, Month: time.October, Day: 19}, matched: true},
		{name: "explicit date", remark: "Interested", today: civil.Date{Year: 2026, Month: time.October, Day: 14}, want: civil.Date{Year: 2026, Month: time.October, Day: 16}, matched: true},
		{name: "unknown", remark: "asked about salary"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := svc.Preview(tc.remark, tc.today)
			if got.Matched != tc.matched || got.Date != tc.want {
				t.Fatalf("Preview(%q) = %+v", tc.remark, got)
			}
		})
	}
}

func TestRemarkServiceUpdateRejectsBadTable(t *testing.T) {
	t.Parallel()

	svc := NewRemarkService(schedule.NewEngine(nil), nil)
	before := svc.Catalogue()

	for _, req := range []models.UpdateRemarkRulesRequest{
		{},
		{Rules: []models.RemarkRule{{Key: "Hold", OffsetDays: 1}, {Key: "hold", OffsetDays: 2}}},
		{Rules: []models.RemarkRule{{Key: "late", OffsetDays: -1}}},
	} {
		_, err := svc.UpdateRules(context.Background(), req, nil)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("UpdateRules(%+v) err = %v, want ValidationError", req.Rules, err)
		}
	}

	after := svc.Catalogue()
	if after.Version != before.Version || len(after.Rules) != len(before.Rules) {
		t.Fatalf("catalogue changed: before v%d/%d, after v%d/%d",
			before.Version, len(before.Rules), after.Version, len(after.Rules))
	}
}

func TestRemarkServicePersistsAndSyncs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	writer := NewRemarkService(schedule.NewEngine(nil, schedule.WithClock(fixedClock)), store)
	cat, err := writer.UpdateRules(ctx, models.UpdateRemarkRulesRequest{
		Rules:       []models.RemarkRule{{Key: "Callback Tomorrow", OffsetDays: 1, Template: "Call back tomorrow."}},
		Description: "trimmed table",
	}, &models.Operator{ID: "u1", Name: "lead"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(cat.Rules) != 1 || cat.Version < 2 {
		t.Fatalf("catalogue = %+v", cat)
	}

	reader := NewRemarkService(schedule.NewEngine(nil, schedule.WithClock(fixedClock)), store)
	if got := reader.Preview("call later", civil.Date{}); !got.Matched {
		t.Fatalf("built-in rule missing before sync: %+v", got)
	}
	found, err := reader.SyncFromStore(ctx)
	if err != nil || !found {
		t.Fatalf("sync = %v, %v", found, err)
	}
	if got := reader.Preview("call later", civil.Date{}); got.Matched {
		t.Fatalf("built-in rule still active after sync: %+v", got)
	}
	got := reader.Preview("callback tomorrow", civil.Date{})
	if !got.Matched || got.Date != (civil.Date{Year: 2026, Month: time.October, Day: 19}) || got.Template != "Call back tomorrow." {
		t.Fatalf("synced rule = %+v", got)
	}
}

func TestRemarkServiceSyncWithoutStoredRules(t *testing.T) {
	t.Parallel()

	svc := NewRemarkService(schedule.NewEngine(nil), repository.NewMemoryStore())
	found, err := svc.SyncFromStore(context.Background())
	if err != nil || found {
		t.Fatalf("sync = %v, %v; want false, nil", found, err)
	}
}
