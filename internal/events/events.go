// Package events filters raw product events against resolved time
// windows. Events arrive with timestamps in whatever shape a producer
// chose: epoch seconds, millis, or micros, ISO strings, numeric
// strings, or buried under an arbitrarily named property. Resolution
// tries the documented strategies in a fixed order and reports events
// it cannot place instead of defaulting them to the current clock.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// RawEvent is one event as decoded from an export. RawTime holds the
// top-level timestamp value verbatim when the export carried one;
// Properties keeps the event's property bag untouched so the location
// cascade can search it.
type RawEvent struct {
	Name       string         `json:"event_name"`
	RawTime    any            `json:"raw_time,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

var (
	eventNameKeys = []string{"event_name", "event", "name"}
	eventTimeKeys = []string{"raw_time", "time", "timestamp"}
)

// ParseEvents decodes an events export. Three container shapes are
// accepted: a bare list of event objects, an object wrapping an
// "events" list, and a user-activity export keyed by user under
// "results", which is flattened in sorted user order.
func ParseEvents(raw []byte) ([]RawEvent, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return eventsFromAny(decoded)
}

// LoadEvents reads and decodes an events file.
func LoadEvents(path string) ([]RawEvent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return ParseEvents(raw)
}

func eventsFromAny(v any) ([]RawEvent, error) {
	switch container := v.(type) {
	case []any:
		events := make([]RawEvent, 0, len(container))
		for i, elem := range container {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("event %d: %T is not an object", i, elem)
			}
			events = append(events, eventFromObject(obj))
		}
		return events, nil
	case map[string]any:
		if inner, ok := container["events"]; ok {
			return eventsFromAny(inner)
		}
		if results, ok := container["results"].(map[string]any); ok {
			var events []RawEvent
			for _, user := range sortedKeys(results) {
				list, ok := results[user].([]any)
				if !ok {
					continue
				}
				userEvents, err := eventsFromAny(list)
				if err != nil {
					return nil, fmt.Errorf("user %s: %w", user, err)
				}
				events = append(events, userEvents...)
			}
			return events, nil
		}
		return nil, fmt.Errorf(`events object carries neither "events" nor "results"`)
	default:
		return nil, fmt.Errorf("events payload is %T, want list or object", v)
	}
}

func eventFromObject(obj map[string]any) RawEvent {
	ev := RawEvent{Name: "unknown"}
	for _, k := range eventNameKeys {
		if s := strings.TrimSpace(cast.ToString(obj[k])); s != "" {
			ev.Name = s
			break
		}
	}
	for _, k := range eventTimeKeys {
		if v, ok := obj[k]; ok {
			ev.RawTime = v
			break
		}
	}
	if props, ok := obj["properties"].(map[string]any); ok {
		ev.Properties = props
	}
	return ev
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
