package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthAlt = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

type datePattern struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string, def time.Time) (time.Time, bool)
}

// datePatterns recognizes dates independently of the time-of-day
// patterns, so "on 2025-08-01 around 6pm" anchors to August 1st while
// "around 6pm" alone anchors to the caller's default date. Slash dates
// read month-first.
var datePatterns = []datePattern{
	{
		name:    "iso_date",
		re:      regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`),
		resolve: resolveISODate,
	},
	{
		name:    "slash_date",
		re:      regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		resolve: resolveSlashDate,
	},
	{
		name:    "day_month",
		re:      regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthAlt + `(?:,?\s+(\d{4}))?\b`),
		resolve: resolveDayMonth,
	},
	{
		name:    "month_day",
		re:      regexp.MustCompile(`(?i)\b` + monthAlt + `\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`),
		resolve: resolveMonthDay,
	},
}

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// matchDate finds the first valid date mention in text. Without one it
// falls back to the caller's default date, reported as fromText=false.
func matchDate(text string, def time.Time) (day time.Time, pattern string, fromText bool) {
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if d, ok := p.resolve(m, def); ok {
				return d, p.name, true
			}
		}
	}
	return time.Date(def.Year(), def.Month(), def.Day(), 0, 0, 0, 0, def.Location()), "", false
}

func resolveISODate(m []string, def time.Time) (time.Time, bool) {
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return makeDate(y, time.Month(mo), d, def)
}

func resolveSlashDate(m []string, def time.Time) (time.Time, bool) {
	mo, _ := strconv.Atoi(m[1])
	d, _ := strconv.Atoi(m[2])
	y, _ := strconv.Atoi(m[3])
	return makeDate(y, time.Month(mo), d, def)
}

func resolveDayMonth(m []string, def time.Time) (time.Time, bool) {
	d, _ := strconv.Atoi(m[1])
	mo, ok := monthFromName(m[2])
	if !ok {
		return time.Time{}, false
	}
	y := def.Year()
	if m[3] != "" {
		y, _ = strconv.Atoi(m[3])
	}
	return makeDate(y, mo, d, def)
}

func resolveMonthDay(m []string, def time.Time) (time.Time, bool) {
	mo, ok := monthFromName(m[1])
	if !ok {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(m[2])
	y := def.Year()
	if m[3] != "" {
		y, _ = strconv.Atoi(m[3])
	}
	return makeDate(y, mo, d, def)
}

func monthFromName(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0, false
	}
	m, ok := monthsByPrefix[name[:3]]
	return m, ok
}

// makeDate validates and builds a calendar day in the default date's
// location. Normalization drift (Feb 31 becoming Mar 3) rejects the
// candidate instead of silently shifting it.
func makeDate(y int, mo time.Month, d int, def time.Time) (time.Time, bool) {
	if y < 2000 || y > 2100 || mo < time.January || mo > time.December || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, mo, d, 0, 0, 0, 0, def.Location())
	if t.Month() != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
