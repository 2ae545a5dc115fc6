package report

import (
	"strings"
	"testing"
	"time"

	"github.com/patternpandits/funnelscope/internal/events"
	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

func testAnalysis(t *testing.T) *funnel.Analysis {
	t.Helper()
	payload := map[string]any{
		"2025-07-01": map[string]any{
			"ios": []any{
				map[string]any{"goal": "App Open", "count": float64(1000)},
				map[string]any{"goal": "Signup", "count": float64(400)},
				map[string]any{"goal": "Purchase", "count": float64(100)},
			},
		},
	}
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	a, err := funnel.Analyze(payload, funnel.AnalyzeOptions{
		Start: start,
		End:   start.AddDate(0, 0, 1),
		TopN:  3,
	})
	if err != nil {
		t.Fatalf("fixture analysis: %v", err)
	}
	return a
}

func TestRenderSections(t *testing.T) {
	out := Render(testAnalysis(t))
	for _, want := range []string{
		"# Funnel Drop-off Report",
		"Span: 2025-07-01 .. 2025-07-02 (2 days)",
		"Payload shape: date_keyed",
		"Users lost across all transitions: 900",
		"## Worst drop-offs",
		"1. App Open -> Signup: 600 users lost",
		"60.0% drop-off",
		"## Daily coverage",
		"## Warnings",
		"2025-07-02",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSingleStepFunnel(t *testing.T) {
	payload := []any{float64(500)}
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	a, err := funnel.Analyze(payload, funnel.AnalyzeOptions{Start: start, End: start})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	out := Render(a)
	if !strings.Contains(out, "fewer than two steps") {
		t.Errorf("single-step note missing:\n%s", out)
	}
}

func TestRenderWindowReport(t *testing.T) {
	def := time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC)
	w, err := timeparse.Parse("around 12:50", def, 0)
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}
	matched := []events.Matched{
		{RawEvent: events.RawEvent{Name: "app_open"}, At: w.Center},
	}
	unresolved := []events.RawEvent{{Name: "broken"}}

	out := RenderWindow(w, matched, unresolved)
	for _, want := range []string{
		"# Event Window Report",
		`"around 12:50"`,
		"12:20:00",
		"13:20:00",
		"1 event in window, 1 unresolved",
		"12:50:00  app_open",
		"Unresolved (no usable timestamp):",
		"- broken",
		"from the default date",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("window report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderParse(t *testing.T) {
	def := time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC)
	w, err := timeparse.Parse("on 2025-08-01 around 6pm", def, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := RenderParse(w)
	for _, want := range []string{
		"2025-08-01 18:00:00",
		"named in the expression",
		"via hour_meridiem",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("parse report missing %q:\n%s", want, out)
		}
	}
}
