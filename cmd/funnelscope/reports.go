package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/patternpandits/funnelscope/internal/config"
	"github.com/patternpandits/funnelscope/internal/store"
	"github.com/patternpandits/funnelscope/internal/trend"
)

func runReports(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: funnelscope reports <list|show|rm|stats|trend|vacuum> [arguments]")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list", "show", "rm", "stats", "trend", "vacuum":
	default:
		return fmt.Errorf("unknown reports subcommand: %s (want list, show, rm, stats, trend, or vacuum)", sub)
	}

	resolved, err := resolveSettings(config.ResolveOptions{})
	if err != nil {
		return err
	}
	st, dbPath, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		return reportsList(ctx, st, rest)
	case "show":
		return reportsShow(ctx, st, rest)
	case "rm":
		return reportsRemove(ctx, st, rest)
	case "stats":
		return reportsStats(ctx, st, rest)
	case "trend":
		return reportsTrend(ctx, st, dbPath, rest)
	default: // vacuum, the only name left after validation
		return reportsVacuum(ctx, st)
	}
}

// analysisListing is the JSON form of one saved run in list output.
type analysisListing struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	SpanStart      string `json:"span_start"`
	SpanEnd        string `json:"span_end"`
	Variant        string `json:"variant"`
	Days           int    `json:"days"`
	UsersLostTotal int64  `json:"users_lost_total"`
}

func listing(a *store.Analysis) analysisListing {
	return analysisListing{
		ID:             a.ID,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		SpanStart:      a.SpanStart.Format("2006-01-02"),
		SpanEnd:        a.SpanEnd.Format("2006-01-02"),
		Variant:        a.Variant,
		Days:           a.SnapshotCount,
		UsersLostTotal: a.UsersLostTotal,
	}
}

func reportsList(ctx context.Context, st store.Store, args []string) error {
	fs := flag.NewFlagSet("reports list", flag.ContinueOnError)
	limit := fs.Int("limit", store.DefaultListLimit, "how many runs to list")
	offset := fs.Int("offset", 0, "how many runs to skip")
	asJSON := fs.Bool("json", false, "emit rows as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rows, err := st.ListAnalyses(ctx, store.ListOpts{Limit: *limit, Offset: *offset})
	if err != nil {
		return fmt.Errorf("listing analyses: %w", err)
	}

	if *asJSON {
		out := make([]analysisListing, 0, len(rows))
		for _, a := range rows {
			out = append(out, listing(a))
		}
		return printJSON(out)
	}
	if len(rows) == 0 {
		fmt.Println("No saved analyses yet. Run funnelscope analyze -save first.")
		return nil
	}
	fmt.Printf("%-36s  %-16s  %-24s  %-14s  %4s  %10s\n", "ID", "CREATED", "SPAN", "SHAPE", "DAYS", "LOST")
	for _, a := range rows {
		span := a.SpanStart.Format("2006-01-02") + " .. " + a.SpanEnd.Format("2006-01-02")
		fmt.Printf("%-36s  %-16s  %-24s  %-14s  %4d  %10d\n",
			a.ID, a.CreatedAt.UTC().Format("2006-01-02 15:04"), span,
			a.Variant, a.SnapshotCount, a.UsersLostTotal)
	}
	return nil
}

func reportsShow(ctx context.Context, st store.Store, args []string) error {
	fs := flag.NewFlagSet("reports show", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit the stored run as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return fmt.Errorf("usage: funnelscope reports show <id> [-json]")
	}

	a, err := st.GetAnalysis(ctx, fs.Args()[0])
	if err != nil {
		return err
	}

	if *asJSON {
		out := struct {
			analysisListing
			PayloadHash string          `json:"payload_hash"`
			Report      string          `json:"report"`
			Result      json.RawMessage `json:"result"`
		}{
			analysisListing: listing(a),
			PayloadHash:     a.PayloadHash,
			Report:          a.Report,
			Result:          json.RawMessage(a.ResultJSON),
		}
		return printJSON(out)
	}
	fmt.Printf("Analysis %s (saved %s)\n\n", a.ID, a.CreatedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Print(a.Report)
	return nil
}

func reportsRemove(ctx context.Context, st store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: funnelscope reports rm <id>")
	}
	if err := st.DeleteAnalysis(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted analysis %s\n", args[0])
	return nil
}

func reportsStats(ctx context.Context, st store.Store, args []string) error {
	fs := flag.NewFlagSet("reports stats", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit stats as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	if *asJSON {
		return printJSON(map[string]int64{
			"analysis_count":   stats.AnalysisCount,
			"users_lost_total": stats.UsersLostTotal,
			"db_size_bytes":    stats.DBSizeBytes,
		})
	}
	fmt.Printf("Saved analyses:   %d\n", stats.AnalysisCount)
	fmt.Printf("Users lost total: %d\n", stats.UsersLostTotal)
	fmt.Printf("Database size:    %d bytes\n", stats.DBSizeBytes)
	return nil
}

func reportsTrend(ctx context.Context, st store.Store, dbPath string, args []string) error {
	res, err := trend.Execute(ctx, st, dbPath, args)
	if err != nil {
		return err
	}
	fmt.Println(res.Output)
	if res.ExitCode != 0 {
		os.Exit(res.ExitCode)
	}
	return nil
}

func reportsVacuum(ctx context.Context, st store.Store) error {
	if err := st.Vacuum(ctx); err != nil {
		return fmt.Errorf("vacuuming store: %w", err)
	}
	fmt.Println("Vacuum complete.")
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
