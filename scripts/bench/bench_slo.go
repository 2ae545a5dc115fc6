// bench_slo.go — SLO benchmark for the analyze pipeline and store operations.
// Run: go run scripts/bench/bench_slo.go [--db path] [--iterations N]
//
// Generates a JSON report with p50/p95/p99 latencies for each operation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/report"
	"github.com/patternpandits/funnelscope/internal/store"
)

type BenchResult struct {
	Operation  string  `json:"operation"`
	Iterations int     `json:"iterations"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	P99Ms      float64 `json:"p99_ms"`
	MinMs      float64 `json:"min_ms"`
	MaxMs      float64 `json:"max_ms"`
	MeanMs     float64 `json:"mean_ms"`
	Pass       bool    `json:"pass"`
	SLOMs      float64 `json:"slo_ms"`
}

type BenchReport struct {
	GeneratedAt   string        `json:"generated_at"`
	DBPath        string        `json:"db_path"`
	SeededRuns    int           `json:"seeded_runs"`
	AnalysisCount int           `json:"analysis_count"`
	Results       []BenchResult `json:"results"`
	AllPass       bool          `json:"all_pass"`
}

func main() {
	dbPath := flag.String("db", "", "Path to funnelscope.db (default: temp file, removed on exit)")
	iterations := flag.Int("iterations", 50, "Number of iterations per benchmark")
	seed := flag.Int("seed", 200, "Saved analyses to seed before benchmarking")
	outFile := flag.String("out", "", "Output JSON file (default: stdout)")
	flag.Parse()

	if *dbPath == "" {
		dir, err := os.MkdirTemp("", "funnelscope-bench")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)
		*dbPath = filepath.Join(dir, "funnelscope.db")
	}

	s, err := store.NewStore(store.StoreConfig{DBPath: *dbPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	ctx := context.Background()
	norm := funnel.NewNormalizer()

	fmt.Fprintf(os.Stderr, "Funnelscope SLO Benchmark\n")
	fmt.Fprintf(os.Stderr, "  DB: %s\n", *dbPath)
	fmt.Fprintf(os.Stderr, "  Seeding %d saved runs...\n", *seed)

	lookupHash, err := seedRuns(ctx, s, norm, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error seeding runs: %v\n", err)
		os.Exit(1)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting stats: %v\n", err)
		os.Exit(1)
	}

	rep := BenchReport{
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		DBPath:        *dbPath,
		SeededRuns:    *seed,
		AnalysisCount: int(stats.AnalysisCount),
		AllPass:       true,
	}

	fmt.Fprintf(os.Stderr, "  Saved analyses: %d\n", stats.AnalysisCount)
	fmt.Fprintf(os.Stderr, "  Iterations: %d\n\n", *iterations)

	// 1. Analyze pipeline (parse + normalize + rank) on a 30-day payload
	analyzeTimes := benchmarkAnalyze(norm, *iterations)
	analyzeResult := computeResult("analyze_pipeline", analyzeTimes, 50)
	rep.Results = append(rep.Results, analyzeResult)
	if !analyzeResult.Pass {
		rep.AllPass = false
	}

	// 2. Save analysis benchmark
	saveTimes, err := benchmarkSave(ctx, s, norm, *iterations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error benchmarking save: %v\n", err)
		os.Exit(1)
	}
	saveResult := computeResult("save_analysis", saveTimes, 250)
	rep.Results = append(rep.Results, saveResult)
	if !saveResult.Pass {
		rep.AllPass = false
	}

	// 3. List analyses benchmark
	listTimes := benchmarkList(ctx, s, *iterations)
	listResult := computeResult("list_analyses", listTimes, 250)
	rep.Results = append(rep.Results, listResult)
	if !listResult.Pass {
		rep.AllPass = false
	}

	// 4. Payload hash lookup benchmark
	lookupTimes := benchmarkLookup(ctx, s, lookupHash, *iterations)
	lookupResult := computeResult("payload_lookup", lookupTimes, 100)
	rep.Results = append(rep.Results, lookupResult)
	if !lookupResult.Pass {
		rep.AllPass = false
	}

	// Print results
	for _, r := range rep.Results {
		status := "✅ PASS"
		if !r.Pass {
			status = "❌ FAIL"
		}
		fmt.Fprintf(os.Stderr, "  %s: p50=%.1fms p95=%.1fms p99=%.1fms (SLO: %.0fms) %s\n",
			r.Operation, r.P50Ms, r.P95Ms, r.P99Ms, r.SLOMs, status)
	}

	if rep.AllPass {
		fmt.Fprintf(os.Stderr, "\n✅ All SLOs met\n")
	} else {
		fmt.Fprintf(os.Stderr, "\n❌ Some SLOs missed\n")
	}

	// Output JSON
	jsonBytes, _ := json.MarshalIndent(rep, "", "  ")
	if *outFile != "" {
		os.WriteFile(*outFile, jsonBytes, 0644)
		fmt.Fprintf(os.Stderr, "\nReport written to %s\n", *outFile)
	} else {
		fmt.Println(string(jsonBytes))
	}
}

// syntheticPayload builds a date-keyed export covering days snapshots with a
// five-step funnel on three platforms. salt perturbs the counts so repeated
// calls hash differently.
func syntheticPayload(days, salt int) []byte {
	steps := []string{"signup", "onboarding_complete", "first_action", "checkout", "purchase"}
	platforms := []string{"ios", "android", "web"}
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	payload := make(map[string]map[string]map[string]int64, days)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d).Format("2006-01-02")
		byPlatform := make(map[string]map[string]int64, len(platforms))
		for pi, platform := range platforms {
			counts := make(map[string]int64, len(steps))
			top := int64(5000 + 137*d + 911*pi + salt)
			for si, step := range steps {
				counts[step] = top >> si
			}
			byPlatform[platform] = counts
		}
		payload[day] = byPlatform
	}

	raw, _ := json.Marshal(payload)
	return raw
}

// seedRuns analyzes and saves n distinct payloads. Returns the payload hash
// of the last seeded run for the lookup benchmark.
func seedRuns(ctx context.Context, s store.Store, norm *funnel.Normalizer, n int) (string, error) {
	var lastHash string
	for i := 0; i < n; i++ {
		raw := syntheticPayload(7, i)
		row, err := analyzeToRow(norm, raw)
		if err != nil {
			return "", err
		}
		if err := s.SaveAnalysis(ctx, row); err != nil {
			return "", err
		}
		lastHash = row.PayloadHash
	}
	return lastHash, nil
}

// analyzeToRow runs the full pipeline on raw and packages the result the way
// analyze -save does.
func analyzeToRow(norm *funnel.Normalizer, raw []byte) (*store.Analysis, error) {
	payload, err := funnel.ParsePayload(raw)
	if err != nil {
		return nil, err
	}
	analysis, err := norm.Analyze(payload, funnel.AnalyzeOptions{TopN: funnel.DefaultTopN})
	if err != nil {
		return nil, err
	}
	resultJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, err
	}
	return &store.Analysis{
		SpanStart:       analysis.SpanStart,
		SpanEnd:         analysis.SpanEnd,
		PayloadHash:     funnel.HashPayload(raw),
		Variant:         string(analysis.Variant),
		SnapshotCount:   len(analysis.Snapshots),
		TransitionCount: len(analysis.Transitions),
		UsersLostTotal:  analysis.UsersLostTotal,
		Report:          report.Render(analysis),
		ResultJSON:      string(resultJSON),
	}, nil
}

func benchmarkAnalyze(norm *funnel.Normalizer, iterations int) []float64 {
	raw := syntheticPayload(30, 0)
	var times []float64
	for i := 0; i < iterations; i++ {
		start := time.Now()
		payload, err := funnel.ParsePayload(raw)
		if err == nil {
			_, _ = norm.Analyze(payload, funnel.AnalyzeOptions{TopN: funnel.DefaultTopN})
		}
		times = append(times, float64(time.Since(start).Microseconds())/1000.0)
	}
	return times
}

func benchmarkSave(ctx context.Context, s store.Store, norm *funnel.Normalizer, iterations int) ([]float64, error) {
	var times []float64
	for i := 0; i < iterations; i++ {
		row, err := analyzeToRow(norm, syntheticPayload(7, 100_000+i))
		if err != nil {
			return nil, err
		}
		start := time.Now()
		if err := s.SaveAnalysis(ctx, row); err != nil {
			return nil, err
		}
		times = append(times, float64(time.Since(start).Microseconds())/1000.0)
	}
	return times, nil
}

func benchmarkList(ctx context.Context, s store.Store, iterations int) []float64 {
	var times []float64
	for i := 0; i < iterations; i++ {
		start := time.Now()
		_, _ = s.ListAnalyses(ctx, store.ListOpts{Limit: 50})
		times = append(times, float64(time.Since(start).Microseconds())/1000.0)
	}
	return times
}

func benchmarkLookup(ctx context.Context, s store.Store, hash string, iterations int) []float64 {
	var times []float64
	for i := 0; i < iterations; i++ {
		start := time.Now()
		_, _ = s.FindByPayloadHash(ctx, hash)
		times = append(times, float64(time.Since(start).Microseconds())/1000.0)
	}
	return times
}

func computeResult(name string, times []float64, sloMs float64) BenchResult {
	sort.Float64s(times)
	n := len(times)
	if n == 0 {
		return BenchResult{Operation: name, SLOMs: sloMs}
	}

	sum := 0.0
	for _, t := range times {
		sum += t
	}

	p95 := times[min(int(float64(n)*0.95), n-1)]
	result := BenchResult{
		Operation:  name,
		Iterations: n,
		P50Ms:      times[n/2],
		P95Ms:      p95,
		P99Ms:      times[min(int(float64(n)*0.99), n-1)],
		MinMs:      times[0],
		MaxMs:      times[n-1],
		MeanMs:     sum / float64(n),
		SLOMs:      sloMs,
		Pass:       p95 <= sloMs,
	}

	return result
}
