package funnel

import (
	"fmt"
	"time"
)

// AnalyzeOptions control one analysis run. Start and End bound the
// span inclusively. TopN bounds the ranked output and falls back to
// DefaultTopN when zero or negative.
type AnalyzeOptions struct {
	Start time.Time
	End   time.Time
	TopN  int
}

// Analysis is the full output of one pipeline run.
type Analysis struct {
	Variant        Variant          `json:"variant"`
	SpanStart      time.Time        `json:"span_start"`
	SpanEnd        time.Time        `json:"span_end"`
	Snapshots      []DailySnapshot  `json:"snapshots"`
	Transitions    []StepTransition `json:"transitions"`
	Ranked         []StepTransition `json:"ranked"`
	UsersLostTotal int64            `json:"users_lost_total"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// Analyze runs the whole pipeline over a decoded payload: detect the
// shape, normalize the span, aggregate transitions across it, rank
// the worst drop-offs. Day-level warnings are collected here with a
// date prefix so callers can render them without walking snapshots.
func (n *Normalizer) Analyze(payload any, opts AnalyzeOptions) (*Analysis, error) {
	variant, err := n.DetectVariant(payload)
	if err != nil {
		return nil, err
	}
	snapshots, err := n.Normalize(payload, opts.Start, opts.End)
	if err != nil {
		return nil, err
	}
	transitions := AggregateSpan(snapshots)
	a := &Analysis{
		Variant:        variant,
		SpanStart:      dayUTC(opts.Start),
		SpanEnd:        dayUTC(opts.End),
		Snapshots:      snapshots,
		Transitions:    transitions,
		Ranked:         RankDropoffs(transitions, opts.TopN),
		UsersLostTotal: UsersLost(transitions),
	}
	for _, s := range snapshots {
		for _, w := range s.Warnings {
			a.Warnings = append(a.Warnings, fmt.Sprintf("%s: %s", s.Date.Format("2006-01-02"), w))
		}
	}
	return a, nil
}

// Analyze runs the pipeline with the default platform vocabulary.
func Analyze(payload any, opts AnalyzeOptions) (*Analysis, error) {
	return defaultNormalizer.Analyze(payload, opts)
}
