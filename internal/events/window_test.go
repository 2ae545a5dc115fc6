package events

import (
	"testing"
	"time"

	"github.com/patternpandits/funnelscope/internal/timeparse"
)

func testWindow(t *testing.T) timeparse.Window {
	t.Helper()
	w, err := timeparse.Parse("around 12:50", time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatalf("window fixture: %v", err)
	}
	return w
}

func TestFilterByWindowInclusiveBoundaries(t *testing.T) {
	w := testWindow(t) // [12:20:00, 13:20:00] on 2025-07-25
	evs := []RawEvent{
		{Name: "at_start", RawTime: float64(w.Start.Unix())},
		{Name: "second_before", RawTime: float64(w.Start.Add(-time.Second).Unix())},
		{Name: "at_end", RawTime: float64(w.End.Unix())},
		{Name: "second_after", RawTime: float64(w.End.Add(time.Second).Unix())},
	}
	matched, unresolved := FilterByWindow(evs, w)
	if len(unresolved) != 0 {
		t.Fatalf("all timestamps resolve, got %d unresolved", len(unresolved))
	}
	if len(matched) != 2 {
		t.Fatalf("expected the two boundary events, got %d", len(matched))
	}
	if matched[0].Name != "at_start" || matched[1].Name != "at_end" {
		t.Errorf("got %q, %q", matched[0].Name, matched[1].Name)
	}
}

func TestFilterByWindowSortsAcrossEncodings(t *testing.T) {
	w := testWindow(t)
	center := w.Center
	evs := []RawEvent{
		{Name: "late", RawTime: float64(center.Add(10 * time.Minute).Unix())},
		{Name: "b_tie", RawTime: float64(center.UnixMilli())},
		{Name: "a_tie", RawTime: center.UTC().Format(time.RFC3339)},
		{Name: "early", RawTime: float64(center.Add(-10 * time.Minute).UnixMicro())},
	}
	matched, _ := FilterByWindow(evs, w)
	if len(matched) != 4 {
		t.Fatalf("expected 4 matches, got %d", len(matched))
	}
	want := []string{"early", "a_tie", "b_tie", "late"}
	for i, name := range want {
		if matched[i].Name != name {
			t.Fatalf("position %d: got %q, want %q (full order %v)", i, matched[i].Name, name, names(matched))
		}
	}
	// The tied pair came from different encodings of the same instant.
	if !matched[1].At.Equal(matched[2].At) {
		t.Errorf("tie instants differ: %s vs %s", matched[1].At, matched[2].At)
	}
}

func TestFilterByWindowReportsUnresolvedSeparately(t *testing.T) {
	w := testWindow(t)
	evs := []RawEvent{
		{Name: "good", RawTime: float64(w.Center.Unix())},
		{Name: "broken", RawTime: "yesterday-ish"},
		{Name: "sourceless", Properties: map[string]any{"user": "u1"}},
	}
	matched, unresolved := FilterByWindow(evs, w)
	if len(matched) != 1 || matched[0].Name != "good" {
		t.Fatalf("matched: %v", names(matched))
	}
	if len(unresolved) != 2 {
		t.Fatalf("expected 2 unresolved, got %d", len(unresolved))
	}
	if unresolved[0].Name != "broken" || unresolved[1].Name != "sourceless" {
		t.Errorf("unresolved kept out of order: %q, %q", unresolved[0].Name, unresolved[1].Name)
	}
}

func TestFilterByWindowFuzzyPropertyOnly(t *testing.T) {
	w := testWindow(t)
	evs := []RawEvent{
		{Name: "fuzzy", Properties: map[string]any{"server_time": float64(w.Center.Unix())}},
	}
	matched, unresolved := FilterByWindow(evs, w)
	if len(matched) != 1 {
		t.Fatalf("fuzzy-keyed event should match, unresolved=%d", len(unresolved))
	}
	if !matched[0].At.Equal(w.Center) {
		t.Errorf("resolved instant: got %s, want %s", matched[0].At, w.Center)
	}
}

func TestFilterByWindowEmptyInput(t *testing.T) {
	matched, unresolved := FilterByWindow(nil, testWindow(t))
	if len(matched) != 0 || len(unresolved) != 0 {
		t.Fatalf("empty input: got %d matched, %d unresolved", len(matched), len(unresolved))
	}
}

func names(matched []Matched) []string {
	out := make([]string, len(matched))
	for i, m := range matched {
		out[i] = m.Name
	}
	return out
}
