// Package funnel normalizes heterogeneous funnel payloads into dense
// per-day snapshots and derives step-to-step conversion metrics from
// them. The package is pure: nothing here touches the network, the
// clock, or storage, which keeps the pipeline deterministic and easy
// to test.
//
// The pipeline runs in three stages. Normalize flattens one of three
// export shapes (date-keyed, platform-keyed, flat aggregate) into one
// snapshot per calendar day of the requested span. ComputeTransitions
// derives per-platform drop-off and conversion figures between
// adjacent steps. RankDropoffs orders the aggregated transitions by
// severity so callers can surface the worst leaks first.
package funnel

import (
	"errors"
	"time"
)

var (
	// ErrUnrecognizedShape is returned when a payload matches none of the
	// known export shapes. It is terminal for the whole payload, unlike a
	// malformed day inside a date-keyed payload, which is recovered
	// locally as a zero-valued snapshot.
	ErrUnrecognizedShape = errors.New("unrecognized payload shape")

	// ErrInvalidSpan is returned when the requested end date precedes the
	// start date.
	ErrInvalidSpan = errors.New("analysis span end precedes start")
)

// Variant identifies which export shape a payload was recognized as.
type Variant string

const (
	// VariantDateKeyed covers payloads whose top-level keys are calendar
	// days, each holding that day's funnel data.
	VariantDateKeyed Variant = "date_keyed"
	// VariantPlatformKeyed covers payloads keyed directly by platform,
	// describing a single day of data.
	VariantPlatformKeyed Variant = "platform_keyed"
	// VariantFlatAggregate covers payloads that are a bare step sequence
	// with no date or platform dimension.
	VariantFlatAggregate Variant = "flat_aggregate"
)

// PlatformOverall names the synthetic cross-platform rollup some
// exports include alongside real platforms. Aggregation skips it when
// real platforms are present so its losses are not counted twice.
const PlatformOverall = "overall"

// StepRecord is a single funnel stage as reported for one platform on
// one day. UserCount is the absolute number of users entering the
// stage. Ratios carried by the payload are never trusted; metrics are
// always recomputed from counts.
type StepRecord struct {
	StepIndex   int    `json:"step_index"`
	Label       string `json:"label"`
	SourceEvent string `json:"source_event"`
	UserCount   int64  `json:"user_count"`
}

// PlatformFunnel is the ordered step sequence one platform reported
// for a single day.
type PlatformFunnel struct {
	Platform string       `json:"platform"`
	Steps    []StepRecord `json:"steps"`
}

// DailySnapshot is the normalized view of one calendar day inside the
// requested span. Days the payload does not cover are still emitted,
// zero-valued, so consumers can index snapshots by offset from the
// span start. ParseFailed marks days whose payload section existed but
// could not be decoded at all; Warnings records partial problems such
// as a single bad platform or a non-monotonic step sequence.
type DailySnapshot struct {
	Date        time.Time                 `json:"date"`
	DayOfWeek   string                    `json:"day_of_week"`
	Weekend     bool                      `json:"weekend"`
	Platforms   map[string]PlatformFunnel `json:"platforms"`
	ParseFailed bool                      `json:"parse_failed,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
}

// StepMetric captures the transition between two adjacent steps for a
// single platform. DropOffCount may be negative when the payload
// reports more users at the later step; normalization flags such
// sequences with a warning but the arithmetic is preserved as-is.
type StepMetric struct {
	Platform               string  `json:"platform"`
	FromStep               int     `json:"from_step"`
	ToStep                 int     `json:"to_step"`
	FromLabel              string  `json:"from_label"`
	ToLabel                string  `json:"to_label"`
	FromCount              int64   `json:"from_count"`
	ToCount                int64   `json:"to_count"`
	DropOffCount           int64   `json:"drop_off_count"`
	DropOffPercentage      float64 `json:"drop_off_percentage"`
	StepConversionRatio    float64 `json:"step_conversion_ratio"`
	OverallConversionRatio float64 `json:"overall_conversion_ratio"`
}

// StepTransition aggregates one step pair across every platform that
// reported it.
type StepTransition struct {
	FromStep       int                   `json:"from_step"`
	ToStep         int                   `json:"to_step"`
	FromLabel      string                `json:"from_label"`
	ToLabel        string                `json:"to_label"`
	PerPlatform    map[string]StepMetric `json:"per_platform"`
	UsersLostTotal int64                 `json:"users_lost_total"`
}
