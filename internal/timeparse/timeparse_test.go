package timeparse

import (
	"errors"
	"testing"
	"time"
)

var testDefault = time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC)

func mustParse(t *testing.T, text string) Window {
	t.Helper()
	w, err := Parse(text, testDefault, 0)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return w
}

func TestParseAroundClockTime(t *testing.T) {
	w := mustParse(t, "what happened around 12:50?")
	wantStart := time.Date(2025, 7, 25, 12, 20, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 7, 25, 13, 20, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("start: got %s, want %s", w.Start, wantStart)
	}
	if !w.End.Equal(wantEnd) {
		t.Errorf("end: got %s, want %s", w.End, wantEnd)
	}
	if w.Pattern != "clock" {
		t.Errorf("pattern: got %q, want clock", w.Pattern)
	}
	if w.DateFromText {
		t.Error("no date in text, DateFromText should be false")
	}
}

func TestParseMeridiemForms(t *testing.T) {
	cases := []struct {
		text   string
		hour   int
		minute int
	}{
		{"the crash at 7pm", 19, 0},
		{"7 AM standup", 7, 0},
		{"lunch at 12pm", 12, 0},
		{"12am rollover", 0, 0},
		{"9:05 p.m. spike", 21, 5},
		{"9:05pm spike", 21, 5},
		{"backup at 23:15", 23, 15},
	}
	for _, tc := range cases {
		w := mustParse(t, tc.text)
		if w.Center.Hour() != tc.hour || w.Center.Minute() != tc.minute {
			t.Errorf("%q: got %02d:%02d, want %02d:%02d",
				tc.text, w.Center.Hour(), w.Center.Minute(), tc.hour, tc.minute)
		}
	}
}

func TestParseVocabulary(t *testing.T) {
	cases := []struct {
		text string
		hour int
	}{
		{"around midnight", 0},
		{"at noon", 12},
		{"sometime in the morning", 9},
		{"this afternoon", 15},
		{"in the evening", 19},
		{"at night", 22},
		{"early morning batch job", 6},
		{"the late night deploy", 23},
	}
	for _, tc := range cases {
		w := mustParse(t, tc.text)
		if w.Center.Hour() != tc.hour || w.Center.Minute() != 0 {
			t.Errorf("%q: got %02d:%02d, want %02d:00",
				tc.text, w.Center.Hour(), w.Center.Minute(), tc.hour)
		}
		if w.Pattern != "vocabulary" {
			t.Errorf("%q: pattern %q, want vocabulary", tc.text, w.Pattern)
		}
	}
}

func TestParseMidnightWindowSpansDays(t *testing.T) {
	w := mustParse(t, "around midnight")
	if w.Center.Hour() != 0 || w.Center.Minute() != 0 {
		t.Fatalf("midnight center: got %s", w.Center)
	}
	if w.Start.Day() != 24 {
		t.Errorf("window should reach back into the previous day, start %s", w.Start)
	}
}

func TestParseSpecificityOrder(t *testing.T) {
	// The explicit clock time outranks the vocabulary word in the same
	// sentence even though "morning" appears first.
	w := mustParse(t, "that morning, specifically at 9:30")
	if w.Center.Hour() != 9 || w.Center.Minute() != 30 {
		t.Fatalf("expected 09:30, got %02d:%02d", w.Center.Hour(), w.Center.Minute())
	}
	if w.Pattern != "clock" {
		t.Errorf("pattern: got %q, want clock", w.Pattern)
	}
}

func TestParseLeadInBareHour(t *testing.T) {
	w := mustParse(t, "users dropped around 14")
	if w.Center.Hour() != 14 || w.Center.Minute() != 0 {
		t.Fatalf("expected 14:00, got %02d:%02d", w.Center.Hour(), w.Center.Minute())
	}
	if w.Pattern != "leadin_hour" {
		t.Errorf("pattern: got %q, want leadin_hour", w.Pattern)
	}

	// Without a lead-in a bare integer stays a number.
	if _, err := Parse("we lost 14 users", testDefault, 0); !errors.Is(err, ErrNoTimeMention) {
		t.Fatalf("bare integer resolved as a time: %v", err)
	}
}

func TestParseSkipsInvalidCandidates(t *testing.T) {
	w := mustParse(t, "ignore 99:99, the drop was at 7pm")
	if w.Center.Hour() != 19 {
		t.Fatalf("expected 19:00 after skipping 99:99, got %02d:%02d", w.Center.Hour(), w.Center.Minute())
	}
}

func TestParseNoMention(t *testing.T) {
	for _, text := range []string{
		"no temporal language at all",
		"we shipped 3 amazing features",
		"build 12:503 failed",
		"",
	} {
		_, err := Parse(text, testDefault, 0)
		if !errors.Is(err, ErrNoTimeMention) {
			t.Errorf("%q: expected ErrNoTimeMention, got %v", text, err)
		}
	}
}

func TestParseDateFromText(t *testing.T) {
	cases := []struct {
		text  string
		year  int
		month time.Month
		day   int
	}{
		{"on 2025-08-01 around 6pm", 2025, time.August, 1},
		{"07/04/2025 parade at noon", 2025, time.July, 4},
		{"the 25th July incident at 14:00", 2025, time.July, 25},
		{"August 1st, 2026 at 9am", 2026, time.August, 1},
		{"3 March at midnight", 2025, time.March, 3},
	}
	for _, tc := range cases {
		w := mustParse(t, tc.text)
		if !w.DateFromText {
			t.Errorf("%q: expected DateFromText", tc.text)
			continue
		}
		if w.Center.Year() != tc.year || w.Center.Month() != tc.month || w.Center.Day() != tc.day {
			t.Errorf("%q: resolved to %s", tc.text, w.Center.Format("2006-01-02"))
		}
	}
}

func TestParseInvalidDateFallsBack(t *testing.T) {
	// 31 February never existed; the default date should hold.
	w := mustParse(t, "31 February at 10:00")
	if w.DateFromText {
		t.Fatal("impossible date accepted")
	}
	if w.Center.Day() != testDefault.Day() || w.Center.Month() != testDefault.Month() {
		t.Errorf("expected the default date, got %s", w.Center.Format("2006-01-02"))
	}
}

func TestParseCustomHalfWidth(t *testing.T) {
	w, err := Parse("around 12:50", testDefault, 15*time.Minute)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.Start.Minute() != 35 || w.End.Minute() != 5 {
		t.Errorf("15m window: got [%s, %s]", w.Start.Format("15:04"), w.End.Format("15:04"))
	}
	if w.HalfWidth != 15*time.Minute {
		t.Errorf("half width: got %s", w.HalfWidth)
	}
}

func TestWindowContainsInclusiveEdges(t *testing.T) {
	w := mustParse(t, "around 12:50")
	if !w.Contains(w.Start) {
		t.Error("start edge should be inside")
	}
	if !w.Contains(w.End) {
		t.Error("end edge should be inside")
	}
	if w.Contains(w.Start.Add(-time.Second)) {
		t.Error("one second before the start should be outside")
	}
	if w.Contains(w.End.Add(time.Second)) {
		t.Error("one second after the end should be outside")
	}
}

func TestParseHonorsDefaultDateLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	def := time.Date(2025, 7, 25, 0, 0, 0, 0, loc)
	w, err := Parse("at 9am", def, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.Center.Location() != loc {
		t.Errorf("center location: got %s, want %s", w.Center.Location(), loc)
	}
}
