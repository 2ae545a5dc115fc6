package events

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Magnitude floors splitting epoch encodings. Mixed fleets routinely
// ship seconds, milliseconds, and microseconds in the same export.
const (
	epochMicrosFloor = 1e15
	epochMillisFloor = 1e12
)

// Years outside this range mean the number was a count or an ID, not a
// timestamp.
const (
	minPlausibleYear = 2000
	maxPlausibleYear = 2100
)

var stringLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// ResolveTime locates and decodes an event's timestamp. Location runs
// raw_time first, then properties["time"], then the first property in
// sorted key order whose name contains "time". The fuzzy key scan
// stays last: names like "lifetime_value" make it the least
// trustworthy source. Values resolve by epoch magnitude when numeric,
// by layout parsing when strings, and by numeric coercion when a
// string is secretly an epoch. Instants outside the plausible year
// range are rejected, so the second return is false both for garbage
// and for numbers that merely look like timestamps.
func ResolveTime(e RawEvent) (time.Time, bool) {
	v, ok := locateRaw(e)
	if !ok {
		return time.Time{}, false
	}
	return resolveValue(v)
}

func locateRaw(e RawEvent) (any, bool) {
	if e.RawTime != nil {
		return e.RawTime, true
	}
	if v, ok := e.Properties["time"]; ok {
		return v, true
	}
	for _, k := range sortedKeys(e.Properties) {
		if strings.Contains(strings.ToLower(k), "time") {
			return e.Properties[k], true
		}
	}
	return nil, false
}

func resolveValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range stringLayouts {
			parsed, err := time.Parse(layout, s)
			if err != nil || !plausible(parsed) {
				continue
			}
			return parsed.UTC(), true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false
		}
		return epochToTime(f)
	case nil, bool:
		return time.Time{}, false
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return time.Time{}, false
		}
		return epochToTime(f)
	}
}

func epochToTime(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	var t time.Time
	switch {
	case f > epochMicrosFloor:
		t = time.UnixMicro(int64(f))
	case f > epochMillisFloor:
		t = time.UnixMilli(int64(f))
	default:
		sec, frac := math.Modf(f)
		t = time.Unix(int64(sec), int64(frac*1e9))
	}
	t = t.UTC()
	if !plausible(t) {
		return time.Time{}, false
	}
	return t, true
}

func plausible(t time.Time) bool {
	y := t.Year()
	return y >= minPlausibleYear && y <= maxPlausibleYear
}
