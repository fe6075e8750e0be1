package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/schedule"
)

// 2026-10-16 是周五
var fixedNow = time.Date(2026, time.October, 16, 10, 0, 0, 0, time.Local)

func fixedClock() time.Time { return fixedNow }

// steppingClock 每次调用前进 step
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(step)
		return cur
	}
}

func newTestService(t *testing.T, opts ...EngagementOption) (*EngagementService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore(repository.WithClock(fixedClock))
	engine := schedule.NewEngine(nil, schedule.WithClock(fixedClock))
	opts = append([]EngagementOption{WithClock(fixedClock)}, opts...)
	return NewEngagementService(store, engine, opts...), store
}

func mustCreate(t *testing.T, svc *EngagementService, req models.CreateJobAssignmentRequest) *models.JobAssignment {
	t.Helper()
	a, err := svc.CreateAssignment(context.Background(), req)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return a
}

func TestRecordOutcomeUsesScheduleSuggestion(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	a := mustCreate(t, svc, models.CreateJobAssignmentRequest{
		CandidateID: "cand-1", ClientName: "Acme", Designation: "QA", CandidatePhone: "9876563127",
	})

	res, err := svc.RecordOutcome(context.Background(), RecordOutcomeInput{
		JobAssignmentID: a.ID,
		Remark:          "  Selected ",
		CallStatus:      models.CallStatusAnswered,
		AuthorCode:      "R01",
	})
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	// 10-16 + 15 = 10-31（周六）-> 11-02
	wantNFD := civil.Date{Year: 2026, Month: time.November, Day: 2}
	if res.Entry.NFD != wantNFD {
		t.Fatalf("nfd = %s, want %s", res.Entry.NFD, wantNFD)
	}
	if !res.Suggestion.Matched || res.Entry.FeedbackText != res.Suggestion.Template || res.Entry.FeedbackText == "" {
		t.Fatalf("entry = %+v, suggestion = %+v", res.Entry, res.Suggestion)
	}
	if res.Assignment.NFD != wantNFD || res.Assignment.LatestRemark != "Selected" {
		t.Fatalf("mirror = %+v", res.Assignment)
	}
	if res.Entry.Timestamp.IsZero() {
		t.Fatal("committed timestamp missing")
	}
}

func TestRecordOutcomeManualInputWins(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	a := mustCreate(t, svc, models.CreateJobAssignmentRequest{CandidateID: "cand-2", ClientName: "Acme", Designation: "QA"})

	manualNFD := civil.Date{Year: 2026, Month: time.October, Day: 28}
	ejd := civil.Date{Year: 2026, Month: time.December, Day: 1}
	res, err := svc.RecordOutcome(context.Background(), RecordOutcomeInput{
		JobAssignmentID: a.ID,
		Remark:          "Joined",
		Overrides: ManualOverrides{
			FeedbackText: "Joined on site, badge issued",
			NFD:          manualNFD,
			EJD:          ejd,
		},
	})
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if res.Entry.NFD != manualNFD || res.Entry.FeedbackText != "Joined on site, badge issued" || res.Entry.EJD != ejd {
		t.Fatalf("entry = %+v", res.Entry)
	}
	if res.Entry.CallStatus != models.CallStatusNone {
		t.Fatalf("call status = %q, want none", res.Entry.CallStatus)
	}

	entries, err := store.ReadAll(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(entries) != 1 || entries[0].NFD != manualNFD {
		t.Fatalf("stored = %+v", entries)
	}
}

func TestRecordOutcomeRejectsEmptyFeedback(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	a := mustCreate(t, svc, models.CreateJobAssignmentRequest{CandidateID: "cand-3", ClientName: "Acme", Designation: "QA"})

	_, err := svc.RecordOutcome(context.Background(), RecordOutcomeInput{JobAssignmentID: a.ID, Remark: "something unusual"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if vErr.Field != "feedbackText" {
		t.Fatalf("field = %q", vErr.Field)
	}

	entries, err := store.ReadAll(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(entries))
	}
}

func TestRecordOutcomeUnknownAssignment(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.RecordOutcome(context.Background(), RecordOutcomeInput{JobAssignmentID: "nope", Remark: "call later"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetEngagementHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repository.NewMemoryStore(repository.WithClock(steppingClock(fixedNow, time.Minute)))
	engine := schedule.NewEngine(nil, schedule.WithClock(fixedClock))
	svc := NewEngagementService(store, engine, WithClock(fixedClock))

	first := mustCreate(t, svc, models.CreateJobAssignmentRequest{CandidateID: "cand-4", ClientName: "Acme", Designation: "QA"})
	second := mustCreate(t, svc, models.CreateJobAssignmentRequest{CandidateID: "cand-4", ClientName: "Globex", Designation: "Dev"})

	// 第二个职位先有记录，建档记录应来自它
	for _, step := range []struct {
		id, text string
	}{
		{second.ID, "Sourced for Globex"},
		{first.ID, "Sourced for Acme"},
		{first.ID, "Acme interview done"},
	} {
		if _, err := svc.RecordOutcome(ctx, RecordOutcomeInput{
			JobAssignmentID: step.id,
			Overrides:       ManualOverrides{FeedbackText: step.text},
		}); err != nil {
			t.Fatalf("record %q: %v", step.text, err)
		}
	}

	all, err := svc.GetEngagementHistory(ctx, "cand-4", "", models.OrderRecentFirst)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all.Entries) != 3 || all.Entries[0].FeedbackText != "Acme interview done" {
		t.Fatalf("entries = %+v", all.Entries)
	}
	if all.ProfileCreated == nil || all.ProfileCreated.FeedbackText != "Sourced for Globex" {
		t.Fatalf("profile created = %+v", all.ProfileCreated)
	}

	scoped, err := svc.GetEngagementHistory(ctx, "", first.ID, models.OrderChronological)
	if err != nil {
		t.Fatalf("scoped history: %v", err)
	}
	if scoped.CandidateID != "cand-4" || len(scoped.Entries) != 2 {
		t.Fatalf("scoped = %+v", scoped)
	}
	if scoped.ProfileCreated == nil || scoped.ProfileCreated.FeedbackText != "Sourced for Globex" {
		t.Fatalf("scoped profile created = %+v, want candidate-wide oldest", scoped.ProfileCreated)
	}

	if _, err := svc.GetEngagementHistory(ctx, "someone-else", first.ID, models.OrderChronological); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestGetDisplayPhone(t *testing.T) {
	t.Parallel()

	today := civil.DateOf(fixedNow)
	tests := []struct {
		name       string
		records    masking.Snapshot
		candidate  string
		wantMasked bool
		wantReason string
		wantPhone  string
	}{
		{
			name: "old joining elsewhere releases number",
			records: masking.Snapshot{
				{CandidateID: "A", Phone: "9876563127", Status: models.AssignmentStatusJoined, JoiningDate: today.AddDays(-150)},
			},
			candidate:  "B",
			wantMasked: false,
			wantReason: "global_age_override",
			wantPhone:  "9876563127",
		},
		{
			name: "selected elsewhere masks",
			records: masking.Snapshot{
				{CandidateID: "C", Phone: "9876563127", Status: models.AssignmentStatusSelected},
			},
			candidate:  "B",
			wantMasked: true,
			wantReason: "cross_candidate_conflict",
			wantPhone:  "9xxx6x3xx7",
		},
		{
			name:       "fresh number",
			candidate:  "B",
			wantMasked: false,
			wantReason: "free_number",
			wantPhone:  "9876563127",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newTestService(t, WithPhoneLookup(tc.records))
			got, err := svc.GetDisplayPhone(context.Background(), "9876563127", tc.candidate)
			if err != nil {
				t.Fatalf("display phone: %v", err)
			}
			if got.Masked != tc.wantMasked || got.Reason != tc.wantReason || got.Phone != tc.wantPhone {
				t.Fatalf("got %+v", got)
			}
			if got.Explanation == "" {
				t.Fatal("explanation missing")
			}
		})
	}
}

func TestGetDisplayPhoneUsesViewedCandidateJoining(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	recent := civil.DateOf(fixedNow).AddDays(-20)
	mustCreate(t, svc, models.CreateJobAssignmentRequest{
		CandidateID: "cand-5", ClientName: "Acme", Designation: "QA",
		CandidatePhone: "9876500001", Status: "joined", JoiningDate: recent.String(),
	})

	got, err := svc.GetDisplayPhone(context.Background(), "+91 98765 00001", "cand-5")
	if err != nil {
		t.Fatalf("display phone: %v", err)
	}
	if !got.Masked || got.Reason != "individual_recency" {
		t.Fatalf("got %+v", got)
	}
	if got.Phone != "9xxx0x0xx1" {
		t.Fatalf("phone = %q", got.Phone)
	}
}

func TestCreateAssignmentValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	tests := []struct {
		name string
		req  models.CreateJobAssignmentRequest
	}{
		{name: "missing client", req: models.CreateJobAssignmentRequest{CandidateID: "c", Designation: "QA"}},
		{name: "bad phone", req: models.CreateJobAssignmentRequest{CandidateID: "c", ClientName: "A", Designation: "QA", CandidatePhone: "12345"}},
		{name: "bad joining date", req: models.CreateJobAssignmentRequest{CandidateID: "c", ClientName: "A", Designation: "QA", JoiningDate: "16/10/2026"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.CreateAssignment(context.Background(), tc.req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}

	a, err := svc.CreateAssignment(context.Background(), models.CreateJobAssignmentRequest{
		CandidateID: "c", ClientName: "A", Designation: "QA", Status: "SELECTED",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Status != models.AssignmentStatusSelected {
		t.Fatalf("status = %q", a.Status)
	}
}
