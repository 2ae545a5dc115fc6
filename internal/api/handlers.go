package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"

	"github.com/patternpandits/funnelscope/internal/events"
	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/report"
	"github.com/patternpandits/funnelscope/internal/store"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

// Health reports liveness and the running version.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"version": h.version,
	})
}

// AnalyzeFunnel runs the full pipeline over a posted payload. The
// response for a given payload and span is cached; save requests
// still write a fresh row even on a cache hit.
func (h *Handler) AnalyzeFunnel(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	if len(req.Payload) == 0 {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Error:   "payload_required",
			Message: "payload must be a JSON funnel export",
		})
	}
	start, err := parseDay(req.Start)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_date", Message: "start: " + err.Error()})
	}
	end, err := parseDay(req.End)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_date", Message: "end: " + err.Error()})
	}
	topN := h.topN
	if req.Top > 0 {
		topN = req.Top
	}

	key := analyzeCacheKey(req.Payload, start, end, topN)
	if v, found := h.cache.Get(key); found {
		resp := *(v.(*AnalyzeResponse))
		resp.Cached = true
		if req.Save {
			if err := h.saveRun(c, &resp, req.Payload); err != nil {
				h.logger.Error("saving analysis", "error", err)
				return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
			}
		}
		h.logger.Info("funnel analyzed",
			"variant", resp.Variant, "days", len(resp.Snapshots),
			"users_lost", resp.UsersLostTotal, "cached", true)
		return c.Status(http.StatusOK).JSON(resp)
	}

	doc, err := funnel.ParsePayload(req.Payload)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_json", Message: err.Error()})
	}
	analysis, err := h.norm.Analyze(doc, funnel.AnalyzeOptions{Start: start, End: end, TopN: topN})
	if err != nil {
		switch {
		case errors.Is(err, funnel.ErrUnrecognizedShape):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "unrecognized_shape", Message: err.Error()})
		case errors.Is(err, funnel.ErrInvalidSpan):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_span", Message: err.Error()})
		default:
			h.logger.Error("analyzing funnel", "error", err)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	cached := &AnalyzeResponse{Analysis: analysis, Report: report.Render(analysis)}
	h.cache.Set(key, cached, cache.DefaultExpiration)

	resp := *cached
	if req.Save {
		if err := h.saveRun(c, &resp, req.Payload); err != nil {
			h.logger.Error("saving analysis", "error", err)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}
	h.logger.Info("funnel analyzed",
		"variant", resp.Variant, "days", len(resp.Snapshots),
		"users_lost", resp.UsersLostTotal, "cached", false)
	return c.Status(http.StatusOK).JSON(resp)
}

// ParseTime resolves a free-text time expression into a window.
// Text without any time mention is a valid negative, not an error.
func (h *Handler) ParseTime(c *fiber.Ctx) error {
	var req ParseTimeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "text_required"})
	}
	day, halfWidth, errResp := h.windowDefaults(req.Date, req.HalfWidthMinutes)
	if errResp != nil {
		return c.Status(http.StatusBadRequest).JSON(errResp)
	}

	win, err := timeparse.Parse(req.Text, day, halfWidth)
	if errors.Is(err, timeparse.ErrNoTimeMention) {
		return c.Status(http.StatusOK).JSON(ParseTimeResponse{Matched: false})
	}
	if err != nil {
		h.logger.Error("parsing time expression", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.Status(http.StatusOK).JSON(ParseTimeResponse{Matched: true, Window: &win})
}

// WindowEvents filters a posted event export by a time expression.
// Unlike ParseTime, an expression with no time mention is an error
// here since no window can be built to filter against.
func (h *Handler) WindowEvents(c *fiber.Ctx) error {
	var req WindowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	if len(req.Events) == 0 {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Error:   "events_required",
			Message: "events must be a JSON list of event objects",
		})
	}
	if strings.TrimSpace(req.Expression) == "" {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "expression_required"})
	}
	evs, err := events.ParseEvents(req.Events)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_events", Message: err.Error()})
	}
	day, halfWidth, errResp := h.windowDefaults(req.Date, req.HalfWidthMinutes)
	if errResp != nil {
		return c.Status(http.StatusBadRequest).JSON(errResp)
	}

	win, err := timeparse.Parse(req.Expression, day, halfWidth)
	if errors.Is(err, timeparse.ErrNoTimeMention) {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Error:   "no_time_mention",
			Message: fmt.Sprintf("no time mention found in %q", req.Expression),
		})
	}
	if err != nil {
		h.logger.Error("parsing window expression", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	matched, unresolved := events.FilterByWindow(evs, win)
	h.logger.Info("events windowed",
		"expression", req.Expression, "matched", len(matched), "unresolved", len(unresolved))
	return c.Status(http.StatusOK).JSON(WindowResponse{
		Window:          win,
		MatchedCount:    len(matched),
		Matched:         matched,
		UnresolvedCount: len(unresolved),
		Unresolved:      unresolved,
	})
}

// ListAnalyses returns saved runs, newest first.
func (h *Handler) ListAnalyses(c *fiber.Ctx) error {
	opts := store.ListOpts{
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}
	rows, err := h.store.ListAnalyses(c.UserContext(), opts)
	if err != nil {
		h.logger.Error("listing analyses", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	out := make([]AnalysisRow, 0, len(rows))
	for _, a := range rows {
		out = append(out, analysisRow(*a))
	}
	return c.Status(http.StatusOK).JSON(ListAnalysesResponse{Analyses: out, Count: len(out)})
}

// GetAnalysis returns one saved run with its report and result JSON.
func (h *Handler) GetAnalysis(c *fiber.Ctx) error {
	id := c.Params("id")
	a, err := h.store.GetAnalysis(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, store.ErrAnalysisNotFound) {
			return c.Status(http.StatusNotFound).JSON(ErrorResponse{Error: "not_found", Message: err.Error()})
		}
		h.logger.Error("loading analysis", "id", id, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.Status(http.StatusOK).JSON(AnalysisDetail{
		AnalysisRow: analysisRow(*a),
		PayloadHash: a.PayloadHash,
		Report:      a.Report,
		Result:      json.RawMessage(a.ResultJSON),
	})
}

// DeleteAnalysis removes one saved run.
func (h *Handler) DeleteAnalysis(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.DeleteAnalysis(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrAnalysisNotFound) {
			return c.Status(http.StatusNotFound).JSON(ErrorResponse{Error: "not_found", Message: err.Error()})
		}
		h.logger.Error("deleting analysis", "id", id, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "deleted", "id": id})
}

// --- Helpers ---

// saveRun persists the analysis and stamps its row ID on the response.
func (h *Handler) saveRun(c *fiber.Ctx, resp *AnalyzeResponse, payload []byte) error {
	resultJSON, err := json.Marshal(resp.Analysis)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	row := &store.Analysis{
		SpanStart:       resp.SpanStart,
		SpanEnd:         resp.SpanEnd,
		PayloadHash:     funnel.HashPayload(payload),
		Variant:         string(resp.Variant),
		SnapshotCount:   len(resp.Snapshots),
		TransitionCount: len(resp.Transitions),
		UsersLostTotal:  resp.UsersLostTotal,
		Report:          resp.Report,
		ResultJSON:      string(resultJSON),
	}
	if err := h.store.SaveAnalysis(c.UserContext(), row); err != nil {
		return err
	}
	resp.AnalysisID = row.ID
	return nil
}

// windowDefaults resolves the optional date and half-width fields
// shared by the time parsing routes.
func (h *Handler) windowDefaults(date string, halfWidthMinutes int) (time.Time, time.Duration, *ErrorResponse) {
	day := time.Now().UTC()
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDay(date)
		if err != nil {
			return time.Time{}, 0, &ErrorResponse{Error: "invalid_date", Message: "date: " + err.Error()}
		}
		day = parsed
	}
	halfWidth := h.halfWidth
	if halfWidthMinutes > 0 {
		halfWidth = time.Duration(halfWidthMinutes) * time.Minute
	}
	return day, halfWidth, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func analyzeCacheKey(payload []byte, start, end time.Time, topN int) string {
	return fmt.Sprintf("%s|%s|%s|%d",
		funnel.HashPayload(payload),
		start.Format("2006-01-02"), end.Format("2006-01-02"), topN)
}

func analysisRow(a store.Analysis) AnalysisRow {
	return AnalysisRow{
		ID:             a.ID,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		SpanStart:      a.SpanStart.Format("2006-01-02"),
		SpanEnd:        a.SpanEnd.Format("2006-01-02"),
		Variant:        a.Variant,
		Days:           a.SnapshotCount,
		UsersLostTotal: a.UsersLostTotal,
	}
}
