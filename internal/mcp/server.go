// Package mcp provides a Model Context Protocol server for funnelscope.
//
// It exposes the analysis pipeline (funnel analyze, drop-off ranking,
// time expression parsing, event window filtering) as MCP tools, and
// store statistics plus recent analyses as MCP resources. Supports
// stdio transport for agent hosts such as Claude Desktop and Cursor.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/report"
	"github.com/patternpandits/funnelscope/internal/store"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store     store.Store
	DBPath    string
	Version   string        // version string for MCP server info
	TopN      int           // default ranking size, funnel.DefaultTopN when zero
	HalfWidth time.Duration // default window half-width
	Platforms []string      // extra platform vocabulary
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and concurrent
// reads during writes can return stale results. A global mutex ensures
// correct ordering: saves complete before listings see their data.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all funnelscope tools
// and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.TopN <= 0 {
		cfg.TopN = funnel.DefaultTopN
	}
	if cfg.HalfWidth <= 0 {
		cfg.HalfWidth = timeparse.DefaultHalfWidth
	}

	s := server.NewMCPServer(
		"Funnelscope",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	norm := funnel.NewNormalizer(cfg.Platforms...)

	// Register tools
	registerAnalyzeTool(s, norm, cfg)
	registerTopDropoffsTool(s, norm, cfg)
	registerParseTimeTool(s, cfg)
	registerWindowEventsTool(s, cfg)
	registerAnalysesTool(s, cfg.Store)
	registerAnalysisGetTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)

	// Register resources
	registerStatsResource(s, cfg.Store)
	registerRecentResource(s, cfg.Store)

	return s
}

// Serve runs the server over stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- Tools ---

func registerAnalyzeTool(s *server.MCPServer, norm *funnel.Normalizer, cfg ServerConfig) {
	tool := mcp.NewTool("funnelscope_analyze",
		mcp.WithDescription("Analyze a funnel export over a date span. Normalizes the payload into daily per-platform snapshots, computes step transition metrics, and ranks the worst drop-offs. Optionally saves the run for later retrieval."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description("Funnel export as a JSON string (date-keyed, platform-keyed, or flat aggregate shape)"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Span start date, YYYY-MM-DD"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("Span end date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithNumber("top",
			mcp.Description("How many worst transitions to rank (default: 3)"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Persist the run so funnelscope_analysis_get can fetch it later (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		payloadStr, err := req.RequireString("payload")
		if err != nil {
			return mcp.NewToolResultError("payload is required"), nil
		}

		analysis, result := runAnalysis(norm, cfg, req, payloadStr)
		if result != nil {
			return result, nil
		}

		rendered := report.Render(analysis)
		out := analysisSummary(analysis)
		out["report"] = rendered

		if sv, err := req.RequireString("save"); err == nil && sv == "true" {
			resultJSON, _ := json.Marshal(analysis)
			row := &store.Analysis{
				SpanStart:       analysis.SpanStart,
				SpanEnd:         analysis.SpanEnd,
				PayloadHash:     funnel.HashPayload([]byte(payloadStr)),
				Variant:         string(analysis.Variant),
				SnapshotCount:   len(analysis.Snapshots),
				TransitionCount: len(analysis.Transitions),
				UsersLostTotal:  analysis.UsersLostTotal,
				Report:          rendered,
				ResultJSON:      string(resultJSON),
			}
			if err := cfg.Store.SaveAnalysis(ctx, row); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("save error: %v", err)), nil
			}
			out["analysis_id"] = row.ID
		}

		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerTopDropoffsTool(s *server.MCPServer, norm *funnel.Normalizer, cfg ServerConfig) {
	tool := mcp.NewTool("funnelscope_top_dropoffs",
		mcp.WithDescription("Rank the worst step transitions of a funnel export by absolute users lost. Returns only the ranked transitions, not the full daily breakdown."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description("Funnel export as a JSON string"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Span start date, YYYY-MM-DD"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("Span end date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithNumber("top",
			mcp.Description("How many transitions to return (default: 3)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payloadStr, err := req.RequireString("payload")
		if err != nil {
			return mcp.NewToolResultError("payload is required"), nil
		}

		analysis, result := runAnalysis(norm, cfg, req, payloadStr)
		if result != nil {
			return result, nil
		}

		type rankedEntry struct {
			Rank        int                          `json:"rank"`
			FromLabel   string                       `json:"from_label"`
			ToLabel     string                       `json:"to_label"`
			UsersLost   int64                        `json:"users_lost"`
			PerPlatform map[string]funnel.StepMetric `json:"per_platform"`
		}

		entries := make([]rankedEntry, 0, len(analysis.Ranked))
		for i, tr := range analysis.Ranked {
			entries = append(entries, rankedEntry{
				Rank:        i + 1,
				FromLabel:   tr.FromLabel,
				ToLabel:     tr.ToLabel,
				UsersLost:   tr.UsersLostTotal,
				PerPlatform: tr.PerPlatform,
			})
		}

		data, _ := json.MarshalIndent(entries, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAnalysesTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("funnelscope_analyses",
		mcp.WithDescription("List saved analysis runs, newest first. Returns compact rows; use funnelscope_analysis_get for the full result."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return (default: 20, max: 100)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Rows to skip for pagination (default: 0)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		opts := store.ListOpts{}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit := int(limitVal)
			if limit > 100 {
				limit = 100
			}
			if limit > 0 {
				opts.Limit = limit
			}
		}
		if offsetVal, err := req.RequireFloat("offset"); err == nil && offsetVal > 0 {
			opts.Offset = int(offsetVal)
		}

		analyses, err := st.ListAnalyses(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list error: %v", err)), nil
		}
		if len(analyses) == 0 {
			return mcp.NewToolResultText("No saved analyses. Run funnelscope_analyze with save=true first."), nil
		}

		data, _ := json.MarshalIndent(compactRows(analyses), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAnalysisGetTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("funnelscope_analysis_get",
		mcp.WithDescription("Fetch one saved analysis run by ID, including its rendered report and full result JSON."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Analysis run ID (as returned by funnelscope_analyze or funnelscope_analyses)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		a, err := st.GetAnalysis(ctx, strings.TrimSpace(id))
		if err != nil {
			if errors.Is(err, store.ErrAnalysisNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("analysis %q not found", id)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("get error: %v", err)), nil
		}

		out := map[string]interface{}{
			"id":               a.ID,
			"created_at":       a.CreatedAt.Format(time.RFC3339),
			"span_start":       a.SpanStart.Format("2006-01-02"),
			"span_end":         a.SpanEnd.Format("2006-01-02"),
			"payload_hash":     a.PayloadHash,
			"variant":          a.Variant,
			"snapshot_count":   a.SnapshotCount,
			"transition_count": a.TransitionCount,
			"users_lost_total": a.UsersLostTotal,
			"report":           a.Report,
			"result":           json.RawMessage(a.ResultJSON),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("funnelscope_stats",
		mcp.WithDescription("Get analysis store statistics: saved run count, cumulative users lost across runs, and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		out := map[string]interface{}{
			"analyses":         stats.AnalysisCount,
			"users_lost_total": stats.UsersLostTotal,
			"db_size_bytes":    stats.DBSizeBytes,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Helpers ---

// runAnalysis parses the shared payload/start/end/top arguments and
// runs the pipeline. A non-nil CallToolResult is ready to return
// as-is and means the run failed.
func runAnalysis(norm *funnel.Normalizer, cfg ServerConfig, req mcp.CallToolRequest, payloadStr string) (*funnel.Analysis, *mcp.CallToolResult) {
	doc, err := funnel.ParsePayload([]byte(payloadStr))
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("payload error: %v", err))
	}

	startStr, err := req.RequireString("start")
	if err != nil {
		return nil, mcp.NewToolResultError("start is required")
	}
	start, err := parseDayArg(startStr)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid start: %v", err))
	}

	endStr, err := req.RequireString("end")
	if err != nil {
		return nil, mcp.NewToolResultError("end is required")
	}
	end, err := parseDayArg(endStr)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid end: %v", err))
	}

	topN := cfg.TopN
	if t, err := req.RequireFloat("top"); err == nil && t > 0 {
		topN = int(t)
	}

	analysis, err := norm.Analyze(doc, funnel.AnalyzeOptions{Start: start, End: end, TopN: topN})
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("analyze error: %v", err))
	}
	return analysis, nil
}

func analysisSummary(a *funnel.Analysis) map[string]interface{} {
	return map[string]interface{}{
		"variant":          a.Variant,
		"span_start":       a.SpanStart.Format("2006-01-02"),
		"span_end":         a.SpanEnd.Format("2006-01-02"),
		"days":             len(a.Snapshots),
		"users_lost_total": a.UsersLostTotal,
		"ranked":           a.Ranked,
		"warnings":         a.Warnings,
	}
}

// compactRow is the listing representation of a saved run.
type compactRow struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	SpanStart      string `json:"span_start"`
	SpanEnd        string `json:"span_end"`
	Variant        string `json:"variant"`
	Days           int    `json:"days"`
	UsersLostTotal int64  `json:"users_lost_total"`
}

func compactRows(analyses []*store.Analysis) []compactRow {
	rows := make([]compactRow, 0, len(analyses))
	for _, a := range analyses {
		rows = append(rows, compactRow{
			ID:             a.ID,
			CreatedAt:      a.CreatedAt.Format(time.RFC3339),
			SpanStart:      a.SpanStart.Format("2006-01-02"),
			SpanEnd:        a.SpanEnd.Format("2006-01-02"),
			Variant:        a.Variant,
			Days:           a.SnapshotCount,
			UsersLostTotal: a.UsersLostTotal,
		})
	}
	return rows
}

func parseDayArg(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), nil
}
