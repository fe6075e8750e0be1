package masking

import (
	"context"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/models"
)

var today = civil.Date{Year: 2026, Month: time.October, Day: 16}

func daysAgo(n int) civil.Date {
	return today.AddDays(-n)
}

const phone = "9876563127"

func TestMaskPhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "9876563127", want: "9xxx6x3xx7"},
		{in: "0123456789", want: "0xxx5x6xx9"},
		{in: "987656312", want: "987656312"},
		{in: "98765631270", want: "98765631270"},
		{in: "98765-6312", want: "98765-6312"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := MaskPhone(tt.in); got != tt.want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShouldMaskPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		viewed  ViewedCandidate
		records []models.PhoneRecord
		masked  bool
		rule    Rule
	}{
		{
			name:   "old joining elsewhere unmasks for unrelated candidate",
			viewed: ViewedCandidate{ID: "B"},
			records: []models.PhoneRecord{
				{CandidateID: "A", Phone: phone, Status: models.AssignmentStatusJoined, JoiningDate: daysAgo(150)},
			},
			masked: false,
			rule:   RuleGlobalAge,
		},
		{
			name:   "selected elsewhere without old joining masks",
			viewed: ViewedCandidate{ID: "B"},
			records: []models.PhoneRecord{
				{CandidateID: "C", Phone: phone, Status: models.AssignmentStatusSelected},
			},
			masked: true,
			rule:   RuleCrossCandidate,
		},
		{
			name:    "fresh unused number is free",
			viewed:  ViewedCandidate{ID: "B"},
			records: nil,
			masked:  false,
			rule:    RuleDefault,
		},
		{
			name:   "global age overrides active selection elsewhere",
			viewed: ViewedCandidate{ID: "B"},
			records: []models.PhoneRecord{
				{CandidateID: "C", Phone: phone, Status: models.AssignmentStatusSelected},
				{CandidateID: "D", Phone: phone, Status: "Rejected", JoiningDate: daysAgo(100)},
			},
			masked: false,
			rule:   RuleGlobalAge,
		},
		{
			name:   "global age overrides individual recency",
			viewed: ViewedCandidate{ID: "B", JoiningDates: []civil.Date{daysAgo(10)}},
			records: []models.PhoneRecord{
				{CandidateID: "A", Phone: phone, Status: models.AssignmentStatusJoined, JoiningDate: daysAgo(365)},
			},
			masked: false,
			rule:   RuleGlobalAge,
		},
		{
			name:    "recent own joining masks",
			viewed:  ViewedCandidate{ID: "B", JoiningDates: []civil.Date{daysAgo(300), daysAgo(30)}},
			records: nil,
			masked:  true,
			rule:    RuleIndividualRecency,
		},
		{
			name:    "99 days is still recent",
			viewed:  ViewedCandidate{ID: "B", JoiningDates: []civil.Date{daysAgo(99)}},
			records: nil,
			masked:  true,
			rule:    RuleIndividualRecency,
		},
		{
			name:    "future joining counts as recent",
			viewed:  ViewedCandidate{ID: "B", JoiningDates: []civil.Date{daysAgo(-5)}},
			records: nil,
			masked:  true,
			rule:    RuleIndividualRecency,
		},
		{
			name:   "own placement does not count as conflict",
			viewed: ViewedCandidate{ID: "B"},
			records: []models.PhoneRecord{
				{CandidateID: "B", Phone: phone, Status: models.AssignmentStatusJoined},
			},
			masked: false,
			rule:   RuleDefault,
		},
		{
			name:   "other statuses elsewhere do not mask",
			viewed: ViewedCandidate{ID: "B"},
			records: []models.PhoneRecord{
				{CandidateID: "E", Phone: phone, Status: models.AssignmentStatusInProcess, JoiningDate: daysAgo(20)},
			},
			masked: false,
			rule:   RuleDefault,
		},
		{
			name:   "status compare ignores case",
			viewed: ViewedCandidate{ID: "B"},
			records: []models.PhoneRecord{
				{CandidateID: "E", Phone: "+91 98765 63127", Status: "joined", JoiningDate: daysAgo(20)},
			},
			masked: true,
			rule:   RuleCrossCandidate,
		},
		{
			name:   "records for other numbers are ignored",
			viewed: ViewedCandidate{ID: "B"},
			records: []models.PhoneRecord{
				{CandidateID: "A", Phone: "9000000000", Status: models.AssignmentStatusJoined, JoiningDate: daysAgo(400)},
				{CandidateID: "C", Phone: phone, Status: models.AssignmentStatusSelected},
			},
			masked: true,
			rule:   RuleCrossCandidate,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ShouldMask(phone, tt.viewed, tt.records, today)
			if got.Masked != tt.masked {
				t.Fatalf("masked = %v, want %v (reason %s)", got.Masked, tt.masked, got.Reason)
			}
			if got.Rule != tt.rule {
				t.Fatalf("rule = %s, want %s", got.Rule, tt.rule)
			}
			if got.Reason != tt.rule.String() {
				t.Fatalf("reason = %q, want %q", got.Reason, tt.rule.String())
			}

			explanation := Explain(phone, tt.viewed, tt.records, today)
			if tt.masked && !strings.HasPrefix(explanation, "Number masked") {
				t.Fatalf("explanation contradicts decision: %q", explanation)
			}
			if !tt.masked && !strings.HasPrefix(explanation, "Number shown") {
				t.Fatalf("explanation contradicts decision: %q", explanation)
			}
		})
	}
}

func TestShouldMaskIsPure(t *testing.T) {
	t.Parallel()

	records := []models.PhoneRecord{
		{CandidateID: "C", Phone: phone, Status: models.AssignmentStatusSelected},
	}
	viewed := ViewedCandidate{ID: "B", JoiningDates: []civil.Date{daysAgo(200)}}

	first := ShouldMask(phone, viewed, records, today)
	for i := 0; i < 5; i++ {
		got := ShouldMask(phone, viewed, records, today)
		if got.Masked != first.Masked || got.Rule != first.Rule {
			t.Fatalf("result changed between calls: %+v vs %+v", got, first)
		}
	}
	if records[0].CandidateID != "C" || len(viewed.JoiningDates) != 1 {
		t.Fatal("inputs were modified")
	}
}

func TestCustomThreshold(t *testing.T) {
	t.Parallel()

	policy := Policy{RecencyDays: 30}
	records := []models.PhoneRecord{
		{CandidateID: "A", Phone: phone, Status: models.AssignmentStatusJoined, JoiningDate: daysAgo(45)},
	}
	got := policy.ShouldMask(phone, ViewedCandidate{ID: "B"}, records, today)
	if got.Masked || got.Rule != RuleGlobalAge {
		t.Fatalf("expected global age unmask with 30 day threshold, got %+v", got)
	}

	got = DefaultPolicy().ShouldMask(phone, ViewedCandidate{ID: "B"}, records, today)
	if !got.Masked || got.Rule != RuleCrossCandidate {
		t.Fatalf("expected cross candidate mask with default threshold, got %+v", got)
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"9876563127":      "9876563127",
		"+91 98765 63127": "9876563127",
		"09876563127":     "9876563127",
		"(987) 656-3127":  "9876563127",
		"12345":           "12345",
	} {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSnapshotLookup(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		{CandidateID: "A", Phone: "+91-9876563127"},
		{CandidateID: "B", Phone: "9000000000"},
	}
	got, err := snap.PhoneHistory(context.Background(), phone)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 1 || got[0].CandidateID != "A" {
		t.Fatalf("unexpected records %+v", got)
	}
}
