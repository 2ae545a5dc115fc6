package funnel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Field names producers use for the three step attributes. Each list
// is tried in order; the first present field wins.
var (
	stepCountKeys  = []string{"count", "user_count", "users", "value"}
	stepLabelKeys  = []string{"step_label", "label", "name", "goal"}
	stepSourceKeys = []string{"source_event", "event", "event_name"}
)

var trailingIntRe = regexp.MustCompile(`(\d+)\s*$`)

// extractSteps pulls an ordered step sequence out of whatever shape a
// producer chose: a list of step objects, a bare list of counts, an
// object wrapping a "steps" list, or a flat label-to-count map.
func extractSteps(v any) ([]StepRecord, error) {
	switch seq := v.(type) {
	case []any:
		if len(seq) == 0 {
			return nil, fmt.Errorf("empty step list")
		}
		steps := make([]StepRecord, 0, len(seq))
		for i, elem := range seq {
			idx := i + 1
			entry, ok := elem.(map[string]any)
			if !ok {
				if !isNumericValue(elem) {
					return nil, fmt.Errorf("step %d: %T is neither object nor count", idx, elem)
				}
				count, err := cast.ToInt64E(elem)
				if err != nil {
					return nil, fmt.Errorf("step %d: %v", idx, err)
				}
				steps = append(steps, StepRecord{
					StepIndex:   idx,
					Label:       fmt.Sprintf("Step %d", idx),
					SourceEvent: "unknown",
					UserCount:   count,
				})
				continue
			}
			count, err := stepCount(entry)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", idx, err)
			}
			steps = append(steps, StepRecord{
				StepIndex:   idx,
				Label:       stepLabel(entry, idx),
				SourceEvent: stepSource(entry),
				UserCount:   count,
			})
		}
		return steps, nil
	case map[string]any:
		if inner, ok := seq["steps"]; ok {
			list, ok := inner.([]any)
			if !ok {
				return nil, fmt.Errorf(`"steps" is %T, want list`, inner)
			}
			return extractSteps(list)
		}
		if len(seq) == 0 {
			return nil, fmt.Errorf("empty step map")
		}
		keys := flatStepOrder(sortedKeys(seq))
		steps := make([]StepRecord, 0, len(keys))
		for i, k := range keys {
			if !isNumericValue(seq[k]) {
				return nil, fmt.Errorf("value for %q is not a count", k)
			}
			count, err := cast.ToInt64E(seq[k])
			if err != nil {
				return nil, fmt.Errorf("value for %q is not a count: %v", k, err)
			}
			steps = append(steps, StepRecord{
				StepIndex:   i + 1,
				Label:       k,
				SourceEvent: "unknown",
				UserCount:   count,
			})
		}
		return steps, nil
	default:
		return nil, fmt.Errorf("step container is %T, want list or object", v)
	}
}

func stepCount(entry map[string]any) (int64, error) {
	for _, k := range stepCountKeys {
		v, ok := entry[k]
		if !ok {
			continue
		}
		if !isNumericValue(v) {
			return 0, fmt.Errorf("field %q is not a count", k)
		}
		count, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("field %q is not a count: %v", k, err)
		}
		return count, nil
	}
	return 0, fmt.Errorf("no user count field (tried %s)", strings.Join(stepCountKeys, ", "))
}

func stepLabel(entry map[string]any, index int) string {
	for _, k := range stepLabelKeys {
		if v, ok := entry[k]; ok {
			if s := strings.TrimSpace(cast.ToString(v)); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("Step %d", index)
}

func stepSource(entry map[string]any) string {
	for _, k := range stepSourceKeys {
		if v, ok := entry[k]; ok {
			if s := strings.TrimSpace(cast.ToString(v)); s != "" {
				return s
			}
		}
	}
	return "unknown"
}

// looksLikeSteps reports whether a day-level object is itself a step
// container rather than a platform map: either it wraps an explicit
// "steps" list or every value is a bare count.
func looksLikeSteps(m map[string]any) bool {
	if _, ok := m["steps"]; ok {
		return true
	}
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		if !isNumericValue(v) {
			return false
		}
	}
	return true
}

// flatStepOrder orders label-to-count keys. When every label carries a
// trailing integer ("step_1", "step_2", ... "step_10") the integers
// win, which keeps step_10 after step_9; otherwise the incoming
// lexicographic order stands.
func flatStepOrder(keys []string) []string {
	nums := make(map[string]int, len(keys))
	for _, k := range keys {
		m := trailingIntRe.FindStringSubmatch(k)
		if m == nil {
			return keys
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return keys
		}
		nums[k] = n
	}
	sort.SliceStable(keys, func(i, j int) bool { return nums[keys[i]] < nums[keys[j]] })
	return keys
}

// checkMonotonic flags step sequences whose counts rise. The numbers
// are kept as reported; downstream metrics simply go negative, and the
// warning is the only trace of the inconsistency.
func checkMonotonic(platform string, steps []StepRecord) []string {
	var warnings []string
	for i := 1; i < len(steps); i++ {
		if steps[i].UserCount > steps[i-1].UserCount {
			warnings = append(warnings, fmt.Sprintf(
				"platform %q: step %d (%d users) exceeds step %d (%d users)",
				platform, steps[i].StepIndex, steps[i].UserCount,
				steps[i-1].StepIndex, steps[i-1].UserCount))
		}
	}
	return warnings
}

func isNumericValue(v any) bool {
	switch t := v.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return err == nil
	default:
		return false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
