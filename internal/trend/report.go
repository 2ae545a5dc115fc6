// Package trend summarizes saved analysis runs and checks them
// against operational guardrails, for the reports trend subcommand.
package trend

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/store"
)

type VariantReport struct {
	Variant      string
	Runs         int
	P50Lost      int64
	P95Lost      int64
	TotalLost    int64
	SnapshotDays int
	LostPerDay   float64
	SpanMix      map[string]int
}

type Report struct {
	TotalRuns      int
	P50Lost        int64
	P95Lost        int64
	VariantReports []VariantReport
	OverallSpanMix map[string]int
	NewestRun      time.Time
}

type GuardrailConfig struct {
	P95UsersLostWarn int64
	StaleDaysWarn    int
	WarnOnly         bool
}

type Options struct {
	Limit      int
	Guardrails GuardrailConfig
}

type Result struct {
	Output   string
	Report   Report
	Warnings []string
	ExitCode int
	Options  Options
}

func ParseArgs(args []string) (Options, error) {
	fs := flag.NewFlagSet("reports trend", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	limit := fs.Int("limit", 200, "how many recent saved runs to inspect")
	p95Warn := fs.Int64("p95-users-lost-warn", 10_000, "warn when p95 users lost across runs exceeds this count (0 disables)")
	staleDaysWarn := fs.Int("stale-days-warn", 7, "warn when the newest saved run is older than this many days (0 disables)")
	warnOnly := fs.Bool("warn-only", true, "when true, emit warnings but always exit 0; set false for CI/cron non-zero exit on warnings")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	if *limit <= 0 {
		return Options{}, fmt.Errorf("--limit must be > 0")
	}
	if *p95Warn < 0 {
		return Options{}, fmt.Errorf("--p95-users-lost-warn must be >= 0")
	}
	if *staleDaysWarn < 0 {
		return Options{}, fmt.Errorf("--stale-days-warn must be >= 0")
	}

	return Options{
		Limit: *limit,
		Guardrails: GuardrailConfig{
			P95UsersLostWarn: *p95Warn,
			StaleDaysWarn:    *staleDaysWarn,
			WarnOnly:         *warnOnly,
		},
	}, nil
}

func Execute(ctx context.Context, st store.Store, source string, args []string) (*Result, error) {
	opts, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}
	return ExecuteWithOptions(ctx, st, source, opts)
}

func ExecuteWithOptions(ctx context.Context, st store.Store, source string, opts Options) (*Result, error) {
	rows, err := st.ListAnalyses(ctx, store.ListOpts{Limit: opts.Limit})
	if err != nil {
		return nil, fmt.Errorf("loading saved runs: %w", err)
	}
	runs := make([]store.Analysis, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, *row)
	}

	r := BuildReport(runs)
	warnings := EvaluateGuardrails(r, opts.Guardrails, time.Now().UTC())
	output := RenderReport(source, r, warnings, opts.Guardrails)

	exitCode := 0
	if len(warnings) > 0 && !opts.Guardrails.WarnOnly {
		exitCode = 2
	}

	return &Result{
		Output:   output,
		Report:   r,
		Warnings: warnings,
		ExitCode: exitCode,
		Options:  opts,
	}, nil
}

// canonicalVariants orders the known payload shapes in report output.
var canonicalVariants = []string{
	string(funnel.VariantDateKeyed),
	string(funnel.VariantPlatformKeyed),
	string(funnel.VariantFlatAggregate),
}

func BuildReport(runs []store.Analysis) Report {
	byVariant := map[string][]store.Analysis{}
	for _, v := range canonicalVariants {
		byVariant[v] = []store.Analysis{}
	}
	overallMix := map[string]int{}
	allLost := make([]int64, 0, len(runs))
	var newest time.Time

	for _, run := range runs {
		v := run.Variant
		if v == "" {
			v = "unknown"
		}
		byVariant[v] = append(byVariant[v], run)
		overallMix[spanKey(run)]++
		allLost = append(allLost, run.UsersLostTotal)
		if run.CreatedAt.After(newest) {
			newest = run.CreatedAt
		}
	}

	variants := make([]string, 0, len(byVariant))
	variants = append(variants, canonicalVariants...)
	for v := range byVariant {
		if !isCanonicalVariant(v) {
			variants = append(variants, v)
		}
	}
	sort.Strings(variants[len(canonicalVariants):])

	variantReports := make([]VariantReport, 0, len(variants))
	for _, v := range variants {
		vruns := byVariant[v]
		if len(vruns) == 0 {
			variantReports = append(variantReports, VariantReport{Variant: v, SpanMix: map[string]int{}})
			continue
		}

		lost := make([]int64, 0, len(vruns))
		var totalLost int64
		days := 0
		mix := map[string]int{}
		for _, run := range vruns {
			lost = append(lost, run.UsersLostTotal)
			totalLost += run.UsersLostTotal
			days += run.SnapshotCount
			mix[spanKey(run)]++
		}
		sort.Slice(lost, func(i, j int) bool { return lost[i] < lost[j] })

		perDay := 0.0
		if days > 0 {
			perDay = float64(totalLost) / float64(days)
		}
		variantReports = append(variantReports, VariantReport{
			Variant:      v,
			Runs:         len(vruns),
			P50Lost:      percentileInt64(lost, 0.50),
			P95Lost:      percentileInt64(lost, 0.95),
			TotalLost:    totalLost,
			SnapshotDays: days,
			LostPerDay:   perDay,
			SpanMix:      mix,
		})
	}

	sort.Slice(allLost, func(i, j int) bool { return allLost[i] < allLost[j] })
	return Report{
		TotalRuns:      len(runs),
		P50Lost:        percentileInt64(allLost, 0.50),
		P95Lost:        percentileInt64(allLost, 0.95),
		VariantReports: variantReports,
		OverallSpanMix: overallMix,
		NewestRun:      newest,
	}
}

func spanKey(a store.Analysis) string {
	return fmt.Sprintf("%dd", a.SnapshotCount)
}

func isCanonicalVariant(v string) bool {
	for _, c := range canonicalVariants {
		if v == c {
			return true
		}
	}
	return false
}

func percentileInt64(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func EvaluateGuardrails(r Report, cfg GuardrailConfig, now time.Time) []string {
	warnings := []string{}

	if r.TotalRuns > 0 && cfg.P95UsersLostWarn > 0 && r.P95Lost > cfg.P95UsersLostWarn {
		warnings = append(warnings, fmt.Sprintf("p95 users lost %d exceeds threshold %d", r.P95Lost, cfg.P95UsersLostWarn))
	}

	if r.TotalRuns > 0 && cfg.StaleDaysWarn > 0 {
		age := int(now.Sub(r.NewestRun).Hours() / 24)
		if age > cfg.StaleDaysWarn {
			warnings = append(warnings, fmt.Sprintf("newest saved run is %d days old, exceeds staleness threshold of %d days", age, cfg.StaleDaysWarn))
		}
	}

	return warnings
}

func RenderReport(source string, r Report, warnings []string, cfg GuardrailConfig) string {
	var b strings.Builder
	b.WriteString("Funnelscope saved-run trend report\n")
	b.WriteString(fmt.Sprintf("Store: %s\n", source))
	b.WriteString(fmt.Sprintf("Runs inspected: %d\n", r.TotalRuns))
	b.WriteString(fmt.Sprintf("Guardrails: p95 users lost <= %d, newest run <= %dd old\n", cfg.P95UsersLostWarn, cfg.StaleDaysWarn))
	if cfg.WarnOnly {
		b.WriteString("Exit mode: warn-only (always 0)\n")
	} else {
		b.WriteString("Exit mode: strict (non-zero on guardrail warnings)\n")
	}
	b.WriteString("\n")

	b.WriteString("By payload shape\n")
	b.WriteString("shape            runs  p50_lost  p95_lost  total_lost  lost_per_day\n")
	for _, vr := range r.VariantReports {
		b.WriteString(fmt.Sprintf("%-16s %-5d %-9d %-9d %-11d %-12.1f\n",
			vr.Variant,
			vr.Runs,
			vr.P50Lost,
			vr.P95Lost,
			vr.TotalLost,
			vr.LostPerDay,
		))
	}

	b.WriteString("\nGuardrail status\n")
	if len(warnings) == 0 {
		b.WriteString("- OK: all configured guardrails passed\n")
	} else {
		for _, w := range warnings {
			b.WriteString("- WARN: " + w + "\n")
		}
	}

	b.WriteString("\nSpan length mix (overall)\n")
	for _, line := range formatSortedMix(r.OverallSpanMix) {
		b.WriteString(line + "\n")
	}

	for _, vr := range r.VariantReports {
		b.WriteString(fmt.Sprintf("\nSpan length mix (%s)\n", vr.Variant))
		for _, line := range formatSortedMix(vr.SpanMix) {
			b.WriteString(line + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatSortedMix(m map[string]int) []string {
	if len(m) == 0 {
		return []string{"(none)"}
	}
	type kv struct {
		k string
		v int
	}
	items := make([]kv, 0, len(m))
	total := 0
	for k, v := range m {
		items = append(items, kv{k: k, v: v})
		total += v
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].v == items[j].v {
			return items[i].k < items[j].k
		}
		return items[i].v > items[j].v
	})
	out := make([]string, 0, len(items))
	for _, it := range items {
		pct := 0.0
		if total > 0 {
			pct = (float64(it.v) / float64(total)) * 100
		}
		out = append(out, fmt.Sprintf("- %s: %d (%.1f%%)", it.k, it.v, pct))
	}
	return out
}
