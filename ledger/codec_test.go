package ledger

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/models"
)

func sampleEntries() []models.FeedbackEntry {
	return []models.FeedbackEntry{
		{
			FeedbackText: "Candidate is interested. Asked for JD: will revert by 5 p.m.",
			Remark:       "Interested",
			NFD:          civil.Date{Year: 2026, Month: time.March, Day: 4},
			CallStatus:   models.CallStatusAnswered,
			AuthorCode:   "RK01",
			Timestamp:    time.Date(2026, time.March, 2, 10, 15, 0, 0, time.Local),
		},
		{
			FeedbackText: "No response | tried twice",
			CallStatus:   models.CallStatusNotAnswered,
			AuthorCode:   "RK01",
			Timestamp:    time.Date(2026, time.March, 3, 9, 0, 5, 0, time.Local),
		},
		{
			FeedbackText: "Offer released: joining 1.4.2026",
			Remark:       "Selected",
			NFD:          civil.Date{Year: 2026, Month: time.March, Day: 18},
			EJD:          civil.Date{Year: 2026, Month: time.April, Day: 1},
			IFD:          civil.Date{Year: 2026, Month: time.February, Day: 27},
			CallStatus:   models.CallStatusNone,
			AuthorCode:   "",
			Timestamp:    time.Date(2026, time.March, 3, 18, 40, 59, 0, time.Local),
		},
	}
}

func assertEntryEqual(t *testing.T, got, want models.FeedbackEntry) {
	t.Helper()
	if got.FeedbackText != want.FeedbackText {
		t.Fatalf("feedback = %q, want %q", got.FeedbackText, want.FeedbackText)
	}
	if got.Remark != want.Remark {
		t.Fatalf("remark = %q, want %q", got.Remark, want.Remark)
	}
	if got.NFD != want.NFD || got.EJD != want.EJD || got.IFD != want.IFD {
		t.Fatalf("dates = %v/%v/%v, want %v/%v/%v", got.NFD, got.EJD, got.IFD, want.NFD, want.EJD, want.IFD)
	}
	if got.CallStatus != want.CallStatus {
		t.Fatalf("call status = %q, want %q", got.CallStatus, want.CallStatus)
	}
	if got.AuthorCode != want.AuthorCode {
		t.Fatalf("author = %q, want %q", got.AuthorCode, want.AuthorCode)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	entries := sampleEntries()
	blob, err := Encode(entries)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := strings.Count(blob, Delimiter); got != len(entries)-1 {
		t.Fatalf("expected %d delimiters, got %d", len(entries)-1, got)
	}

	decoded := Decode(blob)
	if len(decoded) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(decoded))
	}
	for i := range entries {
		assertEntryEqual(t, decoded[i], entries[i])
	}
}

func TestEncodeRejectsEmptyFeedback(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := EncodeEntry(models.FeedbackEntry{FeedbackText: text}); !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("text %q: expected ErrInvalidEntry, got %v", text, err)
		}
	}

	entries := sampleEntries()
	entries[1].FeedbackText = ""
	if _, err := Encode(entries); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry from Encode, got %v", err)
	}
}

func TestAppendKeepsExistingFragments(t *testing.T) {
	t.Parallel()

	legacy := Delimiter + "Comment - spoke to candidate, Remark - call later"
	entry := sampleEntries()[0]

	blob, err := Append(legacy, entry)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.HasPrefix(blob, legacy) {
		t.Fatalf("expected legacy prefix to be preserved, got %q", blob)
	}

	decoded := Decode(blob)
	if len(decoded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(decoded))
	}
	if decoded[0].FeedbackText != "spoke to candidate" {
		t.Fatalf("legacy feedback = %q", decoded[0].FeedbackText)
	}
	if decoded[0].Remark != "call later" {
		t.Fatalf("legacy remark = %q", decoded[0].Remark)
	}
	assertEntryEqual(t, decoded[1], entry)

	first, err := Append("", entry)
	if err != nil {
		t.Fatalf("append to empty: %v", err)
	}
	if strings.Contains(first, Delimiter) {
		t.Fatalf("first fragment should not carry a delimiter: %q", first)
	}
}

func TestDecodeIsTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "empty", input: "", want: 0},
		{name: "only delimiters", input: Delimiter + Delimiter + "  " + Delimiter, want: 0},
		{name: "garbage", input: "???:::...", want: 1},
		{name: "stray leading delimiter", input: Delimiter + "Feedback: ok", want: 1},
		{name: "two unlabeled fragments", input: "hello" + Delimiter + "world", want: 2},
		{name: "partial labels", input: "Feedback: half written | Remark:", want: 1},
		{name: "broken delimiter", input: "Feedback: a #~~# Feedback: b", want: 1},
		{name: "binary noise", input: "\x00\x01" + Delimiter + "\xff", want: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decode(tt.input)
			if len(got) != tt.want {
				t.Fatalf("expected %d entries, got %d", tt.want, len(got))
			}
			if len(got) != len(Fragments(tt.input)) {
				t.Fatalf("entries %d != fragments %d", len(got), len(Fragments(tt.input)))
			}
		})
	}
}

func TestDecodeUnmatchedFieldsAreEmpty(t *testing.T) {
	t.Parallel()

	entry := DecodeFragment("completely unlabeled note")
	if entry.FeedbackText != "" || entry.Remark != "" || entry.AuthorCode != "" {
		t.Fatalf("expected empty fields, got %+v", entry)
	}
	if !entry.NFD.IsZero() || !entry.Timestamp.IsZero() {
		t.Fatalf("expected zero dates, got %+v", entry)
	}
	if entry.CallStatus != models.CallStatusNone {
		t.Fatalf("expected none call status, got %q", entry.CallStatus)
	}
}

func TestDecodeLegacyGeneration(t *testing.T) {
	t.Parallel()

	fragment := "Comments: Candidate will attend. Venue: Pune; Remarks - Interview Fixed; NFD - 05-03-2026; " +
		"Call Status: Answered; Updated By = AB12; Time: 03-03-2026 11:20"
	entry := DecodeFragment(fragment)

	if entry.FeedbackText != "Candidate will attend. Venue: Pune" {
		t.Fatalf("feedback = %q", entry.FeedbackText)
	}
	if entry.Remark != "Interview Fixed" {
		t.Fatalf("remark = %q", entry.Remark)
	}
	if want := (civil.Date{Year: 2026, Month: time.March, Day: 5}); entry.NFD != want {
		t.Fatalf("nfd = %v, want %v", entry.NFD, want)
	}
	if entry.CallStatus != models.CallStatusAnswered {
		t.Fatalf("call = %q", entry.CallStatus)
	}
	if entry.AuthorCode != "AB12" {
		t.Fatalf("author = %q", entry.AuthorCode)
	}
	want := time.Date(2026, time.March, 3, 11, 20, 0, 0, time.Local)
	if !entry.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", entry.Timestamp, want)
	}
}

func TestEncodeEscapesFreeText(t *testing.T) {
	t.Parallel()

	nfd := civil.Date{Year: 2026, Month: time.October, Day: 19}
	tests := []struct {
		name  string
		entry models.FeedbackEntry
	}{
		{name: "delimiter", entry: models.FeedbackEntry{FeedbackText: "odd " + Delimiter + " text"}},
		{name: "overlapping delimiters", entry: models.FeedbackEntry{FeedbackText: "copied #~~~#~~~# from chat"}},
		{name: "doubled hashes", entry: models.FeedbackEntry{FeedbackText: "##~~~#~~~##"}},
		{name: "trailing hash run", entry: models.FeedbackEntry{FeedbackText: "#~~~", Remark: "#~~~#"}},
		{name: "label anchor in remark", entry: models.FeedbackEntry{FeedbackText: "ok", Remark: "x | NFD: y", NFD: nfd}},
		{name: "label anchor in feedback", entry: models.FeedbackEntry{FeedbackText: "a | Remark: b | At: c", Remark: "Interested", NFD: nfd}},
		{name: "backslashes", entry: models.FeedbackEntry{FeedbackText: `C:\cv\#1 \| end \`, AuthorCode: `R\07|x`}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			blob, err := Encode([]models.FeedbackEntry{tc.entry, tc.entry})
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got := Decode(blob)
			if len(got) != 2 {
				t.Fatalf("expected 2 entries, got %d (%q)", len(got), blob)
			}
			for i, e := range got {
				if e.FeedbackText != tc.entry.FeedbackText || e.Remark != tc.entry.Remark ||
					e.AuthorCode != tc.entry.AuthorCode || e.NFD != tc.entry.NFD {
					t.Fatalf("entry %d = %+v, want %+v", i, e, tc.entry)
				}
			}
		})
	}
}

func TestAppendCountMatchesDecodedEntries(t *testing.T) {
	t.Parallel()

	var blob string
	texts := []string{"first", "copied #~~~#~~~# from chat", "third"}
	for _, text := range texts {
		var err error
		blob, err = Append(blob, models.FeedbackEntry{FeedbackText: text})
		if err != nil {
			t.Fatalf("append %q: %v", text, err)
		}
	}

	got := Decode(blob)
	if len(got) != len(texts) {
		t.Fatalf("decoded %d entries after %d appends", len(got), len(texts))
	}
	for i, text := range texts {
		if got[i].FeedbackText != text {
			t.Fatalf("entry %d = %q, want %q", i, got[i].FeedbackText, text)
		}
	}
}
