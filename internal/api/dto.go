package api

import (
	"encoding/json"

	"github.com/patternpandits/funnelscope/internal/events"
	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

// AnalyzeRequest is the funnel analysis payload.
type AnalyzeRequest struct {
	Payload json.RawMessage `json:"payload"`
	Start   string          `json:"start"`
	End     string          `json:"end"`
	Top     int             `json:"top,omitempty"`
	Save    bool            `json:"save,omitempty"`
}

// AnalyzeResponse inlines the full pipeline output plus the rendered
// report. Cached reports whether the run was served from the
// in-process cache; AnalysisID is set when the run was saved.
type AnalyzeResponse struct {
	*funnel.Analysis
	Report     string `json:"report"`
	AnalysisID string `json:"analysis_id,omitempty"`
	Cached     bool   `json:"cached"`
}

// ParseTimeRequest asks for a time window parsed from free text.
type ParseTimeRequest struct {
	Text             string `json:"text"`
	Date             string `json:"date,omitempty"`
	HalfWidthMinutes int    `json:"half_width_minutes,omitempty"`
}

// ParseTimeResponse reports the parsed window. Matched=false with no
// window means the text carried no time mention, which is a valid
// outcome rather than an error.
type ParseTimeResponse struct {
	Matched bool              `json:"matched"`
	Window  *timeparse.Window `json:"window,omitempty"`
}

// WindowRequest filters an event export by a time expression.
type WindowRequest struct {
	Events           json.RawMessage `json:"events"`
	Expression       string          `json:"expression"`
	Date             string          `json:"date,omitempty"`
	HalfWidthMinutes int             `json:"half_width_minutes,omitempty"`
}

type WindowResponse struct {
	Window          timeparse.Window  `json:"window"`
	MatchedCount    int               `json:"matched_count"`
	Matched         []events.Matched  `json:"matched"`
	UnresolvedCount int               `json:"unresolved_count"`
	Unresolved      []events.RawEvent `json:"unresolved"`
}

// AnalysisRow is the compact listing form of a saved run.
type AnalysisRow struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	SpanStart      string `json:"span_start"`
	SpanEnd        string `json:"span_end"`
	Variant        string `json:"variant"`
	Days           int    `json:"days"`
	UsersLostTotal int64  `json:"users_lost_total"`
}

type ListAnalysesResponse struct {
	Analyses []AnalysisRow `json:"analyses"`
	Count    int           `json:"count"`
}

// AnalysisDetail is the full stored run, including the rendered
// report and the result JSON exactly as computed at save time.
type AnalysisDetail struct {
	AnalysisRow
	PayloadHash string          `json:"payload_hash"`
	Report      string          `json:"report"`
	Result      json.RawMessage `json:"result"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
