package funnel

import (
	"math"
	"sort"
)

// DefaultTopN bounds ranked drop-off output when the caller does not
// say otherwise.
const DefaultTopN = 3

// RankDropoffs orders transitions by severity and keeps the worst
// topN. Severity is absolute users lost first, platform-averaged
// drop-off percentage second (so small cohorts with brutal leak rates
// still surface), and earlier step index last as the deterministic
// tie-break. A topN of zero or less falls back to DefaultTopN. The
// input slice is never reordered.
func RankDropoffs(transitions []StepTransition, topN int) []StepTransition {
	if topN <= 0 {
		topN = DefaultTopN
	}
	ranked := make([]StepTransition, len(transitions))
	copy(ranked, transitions)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.UsersLostTotal != b.UsersLostTotal {
			return a.UsersLostTotal > b.UsersLostTotal
		}
		pa, pb := avgDropOffPercentage(a), avgDropOffPercentage(b)
		if math.Abs(pa-pb) > 1e-12 {
			return pa > pb
		}
		return a.FromStep < b.FromStep
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// avgDropOffPercentage averages the drop-off percentage across the
// platforms reporting a transition. The overall rollup is skipped
// whenever named platforms exist, mirroring how UsersLostTotal is
// summed.
func avgDropOffPercentage(tr StepTransition) float64 {
	var sum float64
	var n int
	for name, m := range tr.PerPlatform {
		if name == PlatformOverall && len(tr.PerPlatform) > 1 {
			continue
		}
		sum += m.DropOffPercentage
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
