package funnel

import (
	"fmt"
	"strings"
	"time"
)

// Normalizer drives payload-shape detection and snapshot construction.
// The zero value is not usable; NewNormalizer installs the default
// platform vocabulary.
type Normalizer struct {
	platforms map[string]struct{}
}

var defaultPlatforms = []string{PlatformOverall, "ios", "android", "web"}

var defaultNormalizer = NewNormalizer()

// NewNormalizer returns a Normalizer whose platform vocabulary is the
// built-in set plus any extras. Platform matching is case-insensitive
// and tolerates a leading "$", so "$Overall" and "overall" name the
// same platform.
func NewNormalizer(extraPlatforms ...string) *Normalizer {
	n := &Normalizer{platforms: make(map[string]struct{}, len(defaultPlatforms)+len(extraPlatforms))}
	for _, p := range defaultPlatforms {
		n.platforms[p] = struct{}{}
	}
	for _, p := range extraPlatforms {
		if canon := canonicalPlatform(p); canon != "" {
			n.platforms[canon] = struct{}{}
		}
	}
	return n
}

// DetectVariant classifies a decoded payload without normalizing it.
// Detection is ordered: any date-looking top-level key makes the
// payload date-keyed, otherwise a known platform key makes it
// platform-keyed, and otherwise anything a step sequence can be
// pulled out of counts as a flat aggregate.
func (n *Normalizer) DetectVariant(payload any) (Variant, error) {
	switch obj := payload.(type) {
	case map[string]any:
		for k := range obj {
			if _, _, ok := parseDateKey(k); ok {
				return VariantDateKeyed, nil
			}
		}
		for k := range obj {
			if _, known := n.platforms[canonicalPlatform(k)]; known {
				return VariantPlatformKeyed, nil
			}
		}
		if _, err := extractSteps(obj); err == nil {
			return VariantFlatAggregate, nil
		}
		return "", fmt.Errorf("%w: object keys match no date, platform, or step layout", ErrUnrecognizedShape)
	case []any:
		if _, err := extractSteps(obj); err == nil {
			return VariantFlatAggregate, nil
		}
		return "", fmt.Errorf("%w: list elements do not form a step sequence", ErrUnrecognizedShape)
	default:
		return "", fmt.Errorf("%w: %T is neither object nor list", ErrUnrecognizedShape, payload)
	}
}

// DetectVariant classifies payload using the default vocabulary.
func DetectVariant(payload any) (Variant, error) {
	return defaultNormalizer.DetectVariant(payload)
}

// Normalize flattens payload into one snapshot per calendar day from
// start through end inclusive. The result always holds exactly that
// many entries: days the payload cannot fill come back zero-valued,
// and date-keyed days that were present but undecodable additionally
// carry ParseFailed. Platform-keyed and flat payloads describe the
// first day of the span only.
func (n *Normalizer) Normalize(payload any, start, end time.Time) ([]DailySnapshot, error) {
	startDay, endDay := dayUTC(start), dayUTC(end)
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("%w: %s before %s",
			ErrInvalidSpan, endDay.Format("2006-01-02"), startDay.Format("2006-01-02"))
	}

	variant, err := n.DetectVariant(payload)
	if err != nil {
		return nil, err
	}

	days := int(endDay.Sub(startDay).Hours()/24) + 1
	snapshots := make([]DailySnapshot, 0, days)

	switch variant {
	case VariantDateKeyed:
		obj := payload.(map[string]any)
		idx := indexDateKeys(obj)
		for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
			key, ok := idx[day]
			if !ok {
				snapshots = append(snapshots, failedSnapshot(day, "no payload entry matched this day"))
				continue
			}
			platforms, warnings, derr := n.extractDay(obj[key])
			if derr != nil {
				snapshots = append(snapshots, failedSnapshot(day, fmt.Sprintf("entry %q: %v", key, derr)))
				continue
			}
			snapshots = append(snapshots, newSnapshot(day, platforms, warnings))
		}
	default:
		platforms, warnings, derr := n.extractDay(payload)
		if derr != nil {
			snapshots = append(snapshots, failedSnapshot(startDay, derr.Error()))
		} else {
			snapshots = append(snapshots, newSnapshot(startDay, platforms, warnings))
		}
		for day := startDay.AddDate(0, 0, 1); !day.After(endDay); day = day.AddDate(0, 0, 1) {
			snapshots = append(snapshots, emptySnapshot(day))
		}
	}
	return snapshots, nil
}

// Normalize flattens payload using the default vocabulary.
func Normalize(payload any, start, end time.Time) ([]DailySnapshot, error) {
	return defaultNormalizer.Normalize(payload, start, end)
}

// extractDay decodes one day's worth of funnel data. The value may be
// keyed by platform, wrap a bare step sequence, or be the sequence
// itself; bare sequences are attributed to the overall platform.
// Platform keys outside the vocabulary and platforms that fail to
// decode are dropped with a warning; the day as a whole fails only
// when nothing usable remains.
func (n *Normalizer) extractDay(v any) (map[string]PlatformFunnel, []string, error) {
	switch day := v.(type) {
	case []any:
		return overallDay(day)
	case map[string]any:
		if looksLikeSteps(day) {
			return overallDay(day)
		}
		platforms := make(map[string]PlatformFunnel)
		var warnings []string
		for _, k := range sortedKeys(day) {
			name := canonicalPlatform(k)
			if _, known := n.platforms[name]; !known {
				warnings = append(warnings, fmt.Sprintf("unknown platform key %q ignored", k))
				continue
			}
			steps, err := extractSteps(day[k])
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("platform %q dropped: %v", k, err))
				continue
			}
			platforms[name] = PlatformFunnel{Platform: name, Steps: steps}
			warnings = append(warnings, checkMonotonic(name, steps)...)
		}
		if len(platforms) == 0 {
			if len(warnings) > 0 {
				return nil, nil, fmt.Errorf("no usable platform data (%s)", strings.Join(warnings, "; "))
			}
			return nil, nil, fmt.Errorf("no usable platform data")
		}
		return platforms, warnings, nil
	default:
		return nil, nil, fmt.Errorf("day value is %T, want object or list", v)
	}
}

func overallDay(v any) (map[string]PlatformFunnel, []string, error) {
	steps, err := extractSteps(v)
	if err != nil {
		return nil, nil, err
	}
	platforms := map[string]PlatformFunnel{
		PlatformOverall: {Platform: PlatformOverall, Steps: steps},
	}
	return platforms, checkMonotonic(PlatformOverall, steps), nil
}

func newSnapshot(day time.Time, platforms map[string]PlatformFunnel, warnings []string) DailySnapshot {
	wd := day.Weekday()
	return DailySnapshot{
		Date:      day,
		DayOfWeek: wd.String(),
		Weekend:   wd == time.Saturday || wd == time.Sunday,
		Platforms: platforms,
		Warnings:  warnings,
	}
}

func emptySnapshot(day time.Time) DailySnapshot {
	return newSnapshot(day, map[string]PlatformFunnel{}, nil)
}

func failedSnapshot(day time.Time, note string) DailySnapshot {
	s := emptySnapshot(day)
	s.ParseFailed = true
	if note != "" {
		s.Warnings = []string{note}
	}
	return s
}

func canonicalPlatform(key string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "$"))
}
