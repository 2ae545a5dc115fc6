// Package timeparse resolves conversational time expressions such as
// "around 12:50", "at noon yesterday's export", or "early morning" into
// concrete inclusive windows on a caller-supplied date. Patterns are
// tried strictly in specificity order, so an explicit clock time always
// beats a vocabulary word appearing in the same sentence. Text with no
// recognizable time mention is a valid negative answer reported through
// ErrNoTimeMention, never a guess anchored to the current clock.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHalfWidth pads the window on each side of the resolved center
// when the caller does not supply a width.
const DefaultHalfWidth = 30 * time.Minute

// ErrNoTimeMention reports that the text contains nothing resolvable
// as a time of day. Callers distinguish it from real failures with
// errors.Is.
var ErrNoTimeMention = errors.New("no time mention found")

// Window is a resolved time range. Both edges are inclusive. Matched
// and Pattern carry the substring and the pattern tier that produced
// the center, for diagnostics.
type Window struct {
	Center       time.Time     `json:"center"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	HalfWidth    time.Duration `json:"half_width"`
	SourceText   string        `json:"source_text"`
	Matched      string        `json:"matched"`
	Pattern      string        `json:"pattern"`
	ResolvedDate time.Time     `json:"resolved_date"`
	DateFromText bool          `json:"date_from_text"`
}

// Contains reports whether t falls inside the window, edges included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

type timePattern struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string) (hour, minute int, ok bool)
}

// timePatterns is ordered by specificity: an explicit HH:MM beats an
// hour with a meridiem, which beats the named vocabulary, which beats
// a bare hour. The bare-hour tier only fires behind "around" or "at"
// because a lone small integer is almost never a time of day. A match
// whose numbers fall outside the clock is rejected and resolution
// moves on, so "99:99 ... 7pm" still lands on 19:00.
var timePatterns = []timePattern{
	{
		name:    "clock",
		re:      regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})(\d*)\s*(?:([ap])\.?m\.?([a-z]*))?`),
		resolve: resolveClock,
	},
	{
		name:    "hour_meridiem",
		re:      regexp.MustCompile(`(?i)\b(\d{1,2})\s*([ap])\.?m\.?([a-z]*)`),
		resolve: resolveHourMeridiem,
	},
	{
		name:    "vocabulary",
		re:      regexp.MustCompile(`(?i)\b(early\s+morning|late\s+night|midnight|afternoon|noon|morning|evening|night)\b`),
		resolve: resolveVocabulary,
	},
	{
		name:    "leadin_hour",
		re:      regexp.MustCompile(`(?i)\b(?:around|at)\s+(\d{1,2})([0-9a-z:]*)`),
		resolve: resolveLeadInHour,
	},
}

// vocabularyMinutes maps the fixed vocabulary to minutes after
// midnight. Compound forms sit in the regexp alternation ahead of
// their suffixes so "late night" never half-matches as "night".
var vocabularyMinutes = map[string]int{
	"midnight":      0,
	"noon":          12 * 60,
	"morning":       9 * 60,
	"afternoon":     15 * 60,
	"evening":       19 * 60,
	"night":         22 * 60,
	"early morning": 6 * 60,
	"late night":    23 * 60,
}

// Parse resolves the first time mention in text into a window centered
// on the mentioned clock time. The date comes from the text when it
// names one, otherwise from defaultDate; the current clock is never
// consulted. halfWidth values of zero or less fall back to
// DefaultHalfWidth.
func Parse(text string, defaultDate time.Time, halfWidth time.Duration) (Window, error) {
	if halfWidth <= 0 {
		halfWidth = DefaultHalfWidth
	}
	hour, minute, pattern, matched, ok := matchTime(text)
	if !ok {
		return Window{}, fmt.Errorf("%w in %q", ErrNoTimeMention, text)
	}
	day, _, dateFromText := matchDate(text, defaultDate)
	center := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, defaultDate.Location())
	return Window{
		Center:       center,
		Start:        center.Add(-halfWidth),
		End:          center.Add(halfWidth),
		HalfWidth:    halfWidth,
		SourceText:   text,
		Matched:      matched,
		Pattern:      pattern,
		ResolvedDate: day,
		DateFromText: dateFromText,
	}, nil
}

func matchTime(text string) (hour, minute int, pattern, matched string, ok bool) {
	for _, p := range timePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			h, min, valid := p.resolve(m)
			if !valid {
				continue
			}
			return h, min, p.name, strings.TrimSpace(m[0]), true
		}
	}
	return 0, 0, "", "", false
}

// resolveClock handles "12:50", "9:05pm", "12:50 AM". Group 3 catches
// digit run-ons like "12:503" and group 5 catches word run-ons like
// "12:50 amazing", where the phantom meridiem is dropped rather than
// trusted.
func resolveClock(m []string) (int, int, bool) {
	if m[3] != "" {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil || minute > 59 {
		return 0, 0, false
	}
	meridiem := strings.ToLower(m[4])
	if m[5] != "" {
		meridiem = ""
	}
	if meridiem == "" {
		if hour > 23 {
			return 0, 0, false
		}
		return hour, minute, true
	}
	if hour < 1 || hour > 12 {
		return 0, 0, false
	}
	return applyMeridiem(hour, meridiem), minute, true
}

// resolveHourMeridiem handles "7pm", "12 AM". A word running straight
// on from the meridiem ("3 amazing ideas") disqualifies the match.
func resolveHourMeridiem(m []string) (int, int, bool) {
	if m[3] != "" {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return 0, 0, false
	}
	return applyMeridiem(hour, strings.ToLower(m[2])), 0, true
}

func resolveVocabulary(m []string) (int, int, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
	mins, ok := vocabularyMinutes[key]
	if !ok {
		return 0, 0, false
	}
	return mins / 60, mins % 60, true
}

// resolveLeadInHour handles "around 7" and "at 14". Trailing digits,
// colons, or letters mean the number was part of something bigger (a
// date, an ID) and disqualify the match.
func resolveLeadInHour(m []string) (int, int, bool) {
	if m[2] != "" {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return 0, 0, false
	}
	return hour, 0, true
}

// applyMeridiem folds a 12-hour clock onto 24 hours: 12am is midnight,
// 12pm is noon.
func applyMeridiem(hour int, meridiem string) int {
	switch meridiem {
	case "p":
		if hour == 12 {
			return 12
		}
		return hour + 12
	default:
		if hour == 12 {
			return 0
		}
		return hour
	}
}
