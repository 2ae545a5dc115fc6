package events

import (
	"sort"
	"time"

	"github.com/patternpandits/funnelscope/internal/timeparse"
)

// Matched pairs an event with the instant its timestamp resolved to.
type Matched struct {
	RawEvent
	At time.Time `json:"resolved_at"`
}

// FilterByWindow splits events into those inside the window and those
// whose timestamps could not be resolved at all. Matched events come
// back ordered by instant, then name; both window edges are
// inclusive. Events that resolve cleanly but fall outside the window
// are dropped silently — that is the filter doing its job — while
// unresolvable ones are handed back so callers can report them
// instead of losing them.
func FilterByWindow(evs []RawEvent, w timeparse.Window) (matched []Matched, unresolved []RawEvent) {
	matched = make([]Matched, 0, len(evs))
	unresolved = make([]RawEvent, 0)
	for _, e := range evs {
		at, ok := ResolveTime(e)
		if !ok {
			unresolved = append(unresolved, e)
			continue
		}
		if !w.Contains(at) {
			continue
		}
		matched = append(matched, Matched{RawEvent: e, At: at})
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].At.Equal(matched[j].At) {
			return matched[i].At.Before(matched[j].At)
		}
		return matched[i].Name < matched[j].Name
	})
	return matched, unresolved
}
