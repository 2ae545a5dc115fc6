package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/patternpandits/funnelscope/internal/events"
	"github.com/patternpandits/funnelscope/internal/report"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

func registerParseTimeTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("funnelscope_parse_time",
		mcp.WithDescription("Parse a natural-language time mention (\"around 6pm\", \"late night\", \"12:50\") from free text into a concrete time window. Text with no time mention is a valid negative, not an error."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Free text to scan for a time mention"),
		),
		mcp.WithString("date",
			mcp.Description("Anchor date YYYY-MM-DD when the text names no date (default: today, UTC)"),
		),
		mcp.WithNumber("half_width_minutes",
			mcp.Description("Window half-width in minutes around the parsed instant (default: 30)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}

		def, halfWidth, errResult := windowArgs(req, cfg)
		if errResult != nil {
			return errResult, nil
		}

		win, err := timeparse.Parse(text, def, halfWidth)
		if errors.Is(err, timeparse.ErrNoTimeMention) {
			out := map[string]interface{}{
				"matched": false,
				"reason":  "no time mention found",
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			return mcp.NewToolResultText(string(data)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("parse error: %v", err)), nil
		}

		out := map[string]interface{}{
			"matched": true,
			"window":  win,
			"report":  report.RenderParse(win),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerWindowEventsTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("funnelscope_window_events",
		mcp.WithDescription("Filter an event export down to the events inside the time window described by a natural-language expression. Events whose timestamps cannot be resolved are reported separately, never silently defaulted."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("events",
			mcp.Required(),
			mcp.Description("Event export as a JSON string (bare list, {\"events\": [...]} wrapper, or user-keyed {\"results\": {...}})"),
		),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("Natural-language time expression, e.g. \"around 12:50\" or \"on 2025-08-01 at noon\""),
		),
		mcp.WithString("date",
			mcp.Description("Anchor date YYYY-MM-DD when the expression names no date (default: today, UTC)"),
		),
		mcp.WithNumber("half_width_minutes",
			mcp.Description("Window half-width in minutes (default: 30)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		eventsStr, err := req.RequireString("events")
		if err != nil {
			return mcp.NewToolResultError("events is required"), nil
		}
		expression, err := req.RequireString("expression")
		if err != nil || strings.TrimSpace(expression) == "" {
			return mcp.NewToolResultError("expression is required"), nil
		}

		evs, err := events.ParseEvents([]byte(eventsStr))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("events error: %v", err)), nil
		}

		def, halfWidth, errResult := windowArgs(req, cfg)
		if errResult != nil {
			return errResult, nil
		}

		win, err := timeparse.Parse(expression, def, halfWidth)
		if errors.Is(err, timeparse.ErrNoTimeMention) {
			return mcp.NewToolResultError(fmt.Sprintf("no time mention found in %q", expression)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("parse error: %v", err)), nil
		}

		matched, unresolved := events.FilterByWindow(evs, win)

		out := map[string]interface{}{
			"window":           win,
			"matched_count":    len(matched),
			"matched":          matched,
			"unresolved_count": len(unresolved),
			"unresolved":       unresolved,
			"report":           report.RenderWindow(win, matched, unresolved),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// windowArgs reads the shared date / half_width_minutes arguments. A
// non-nil CallToolResult means a malformed date and is ready to return.
func windowArgs(req mcp.CallToolRequest, cfg ServerConfig) (time.Time, time.Duration, *mcp.CallToolResult) {
	def := time.Now().UTC()
	if d, err := req.RequireString("date"); err == nil && strings.TrimSpace(d) != "" {
		parsed, err := parseDayArg(d)
		if err != nil {
			return time.Time{}, 0, mcp.NewToolResultError(fmt.Sprintf("invalid date: %v", err))
		}
		def = parsed
	}

	halfWidth := cfg.HalfWidth
	if hw, err := req.RequireFloat("half_width_minutes"); err == nil && hw > 0 {
		halfWidth = time.Duration(hw) * time.Minute
	}

	return def, halfWidth, nil
}
