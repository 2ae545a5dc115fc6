// Package report renders analysis results as plain text for the CLI
// and for storage alongside saved analyses.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/patternpandits/funnelscope/internal/events"
	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

// Render produces the drop-off report for one analysis: span header,
// ranked transitions with per-platform figures, daily coverage, and
// collected warnings.
func Render(a *funnel.Analysis) string {
	var b strings.Builder
	days := len(a.Snapshots)

	b.WriteString("# Funnel Drop-off Report\n\n")
	fmt.Fprintf(&b, "Span: %s .. %s (%d day%s)\n",
		a.SpanStart.Format("2006-01-02"), a.SpanEnd.Format("2006-01-02"), days, plural(days))
	fmt.Fprintf(&b, "Payload shape: %s\n", a.Variant)
	fmt.Fprintf(&b, "Users lost across all transitions: %d\n\n", a.UsersLostTotal)

	b.WriteString("## Worst drop-offs\n\n")
	if len(a.Ranked) == 0 {
		b.WriteString("No step transitions: the funnel has fewer than two steps.\n")
	}
	for i, tr := range a.Ranked {
		fmt.Fprintf(&b, "%d. %s -> %s: %d users lost\n", i+1, tr.FromLabel, tr.ToLabel, tr.UsersLostTotal)
		for _, name := range platformOrder(tr.PerPlatform) {
			m := tr.PerPlatform[name]
			fmt.Fprintf(&b, "   %-10s %7d lost  %5.1f%% drop-off  step conv %.2f  overall conv %.2f\n",
				name, m.DropOffCount, m.DropOffPercentage, m.StepConversionRatio, m.OverallConversionRatio)
		}
	}

	b.WriteString("\n## Daily coverage\n\n")
	for _, s := range a.Snapshots {
		status := "ok"
		switch {
		case s.ParseFailed:
			status = "failed"
		case len(s.Platforms) == 0:
			status = "empty"
		}
		day := s.DayOfWeek
		if s.Weekend {
			day += " (weekend)"
		}
		fmt.Fprintf(&b, "%s  %-20s  %-6s  %d platform%s\n",
			s.Date.Format("2006-01-02"), day, status, len(s.Platforms), plural(len(s.Platforms)))
	}

	if len(a.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range a.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

// RenderWindow produces the event-window report: the resolved window,
// the matched events in order, and the events whose timestamps could
// not be placed.
func RenderWindow(w timeparse.Window, matched []events.Matched, unresolved []events.RawEvent) string {
	var b strings.Builder

	b.WriteString("# Event Window Report\n\n")
	fmt.Fprintf(&b, "Expression: %q (matched %q via %s)\n", w.SourceText, w.Matched, w.Pattern)
	fmt.Fprintf(&b, "Window: %s .. %s (half-width %s)\n",
		w.Start.Format("2006-01-02 15:04:05"), w.End.Format("2006-01-02 15:04:05"), w.HalfWidth)
	if w.DateFromText {
		fmt.Fprintf(&b, "Date: %s, named in the expression\n", w.ResolvedDate.Format("2006-01-02"))
	} else {
		fmt.Fprintf(&b, "Date: %s, from the default date\n", w.ResolvedDate.Format("2006-01-02"))
	}

	fmt.Fprintf(&b, "\n%d event%s in window, %d unresolved\n",
		len(matched), plural(len(matched)), len(unresolved))

	if len(matched) > 0 {
		b.WriteString("\n")
		for _, m := range matched {
			fmt.Fprintf(&b, "  %s  %s\n", m.At.Format("15:04:05"), m.Name)
		}
	}
	if len(unresolved) > 0 {
		b.WriteString("\nUnresolved (no usable timestamp):\n")
		for _, e := range unresolved {
			fmt.Fprintf(&b, "  - %s\n", e.Name)
		}
	}
	return b.String()
}

// RenderParse produces the short report for a bare time-expression
// parse, without any events.
func RenderParse(w timeparse.Window) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expression: %q\n", w.SourceText)
	fmt.Fprintf(&b, "Matched:    %q via %s\n", w.Matched, w.Pattern)
	fmt.Fprintf(&b, "Center:     %s\n", w.Center.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Window:     %s .. %s\n",
		w.Start.Format("2006-01-02 15:04:05"), w.End.Format("2006-01-02 15:04:05"))
	if w.DateFromText {
		b.WriteString("Date:       named in the expression\n")
	} else {
		b.WriteString("Date:       from the default date\n")
	}
	return b.String()
}

// platformOrder lists platform names with the overall rollup first and
// named platforms alphabetical after it.
func platformOrder(perPlatform map[string]funnel.StepMetric) []string {
	names := make([]string, 0, len(perPlatform))
	hasOverall := false
	for name := range perPlatform {
		if name == funnel.PlatformOverall {
			hasOverall = true
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if hasOverall {
		names = append([]string{funnel.PlatformOverall}, names...)
	}
	return names
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
