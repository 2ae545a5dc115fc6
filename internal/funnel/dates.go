package funnel

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Plausibility bounds for anything claiming to be a calendar day.
// Epoch-shaped strings outside this range are assumed to be counts or
// IDs that merely look like timestamps.
const (
	minPlausibleYear = 2000
	maxPlausibleYear = 2100
)

// epochMillisFloor splits epoch values: anything above it is read as
// milliseconds, anything at or below as seconds.
const epochMillisFloor = int64(1_000_000_000_000)

type dateKeyFormat struct {
	name  string
	parse func(string) (time.Time, bool)
}

// dateKeyFormats is tried in order; the first format producing a
// plausible calendar day wins. Epoch forms sit last so that compact
// YYYYMMDD keys are not swallowed by the seconds branch.
var dateKeyFormats = []dateKeyFormat{
	{name: "iso", parse: layoutDay("2006-1-2")},
	{name: "compact", parse: layoutDay("20060102")},
	{name: "iso_datetime", parse: parseDateTimeKey},
	{name: "us_slash", parse: layoutDay("1/2/2006")},
	{name: "eu_dot", parse: layoutDay("2.1.2006")},
	{name: "epoch_millis", parse: parseEpochMillisKey},
	{name: "epoch_seconds", parse: parseEpochSecondsKey},
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-1-2T15:04:05",
	"2006-1-2 15:04:05",
}

func layoutDay(layout string) func(string) (time.Time, bool) {
	return func(s string) (time.Time, bool) {
		t, err := time.Parse(layout, s)
		if err != nil || !plausibleDay(t) {
			return time.Time{}, false
		}
		return dayUTC(t), true
	}
}

func parseDateTimeKey(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil || !plausibleDay(t) {
			continue
		}
		return dayUTC(t), true
	}
	return time.Time{}, false
}

func parseEpochMillisKey(s string) (time.Time, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= epochMillisFloor {
		return time.Time{}, false
	}
	t := time.UnixMilli(v).UTC()
	if !plausibleDay(t) {
		return time.Time{}, false
	}
	return dayUTC(t), true
}

func parseEpochSecondsKey(s string) (time.Time, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 || v > epochMillisFloor {
		return time.Time{}, false
	}
	t := time.Unix(v, 0).UTC()
	if !plausibleDay(t) {
		return time.Time{}, false
	}
	return dayUTC(t), true
}

// parseDateKey resolves a payload key to the calendar day it names.
// The returned format name feeds diagnostics.
func parseDateKey(key string) (time.Time, string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, "", false
	}
	for _, f := range dateKeyFormats {
		if day, ok := f.parse(key); ok {
			return day, f.name, true
		}
	}
	return time.Time{}, "", false
}

func dayUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func plausibleDay(t time.Time) bool {
	return t.Year() >= minPlausibleYear && t.Year() <= maxPlausibleYear
}

// indexDateKeys maps every recognizable day to the payload key
// carrying it. Keys are visited in sorted order so two spellings of
// the same day resolve deterministically.
func indexDateKeys(payload map[string]any) map[time.Time]string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	idx := make(map[time.Time]string, len(keys))
	for _, k := range keys {
		day, _, ok := parseDateKey(k)
		if !ok {
			continue
		}
		if _, seen := idx[day]; !seen {
			idx[day] = k
		}
	}
	return idx
}
