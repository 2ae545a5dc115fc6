package funnel

import "sort"

// ComputeTransitions derives the metric set for each adjacent step
// pair of one platform's funnel. A funnel with fewer than two steps
// has no transitions and yields an empty result, which is valid.
// Every division is guarded: a zero denominator produces 0, never an
// error or NaN.
func ComputeTransitions(f PlatformFunnel) []StepMetric {
	if len(f.Steps) < 2 {
		return nil
	}
	first := f.Steps[0].UserCount
	metrics := make([]StepMetric, 0, len(f.Steps)-1)
	for i := 1; i < len(f.Steps); i++ {
		prev, cur := f.Steps[i-1], f.Steps[i]
		lost := prev.UserCount - cur.UserCount
		metrics = append(metrics, StepMetric{
			Platform:               f.Platform,
			FromStep:               prev.StepIndex,
			ToStep:                 cur.StepIndex,
			FromLabel:              prev.Label,
			ToLabel:                cur.Label,
			FromCount:              prev.UserCount,
			ToCount:                cur.UserCount,
			DropOffCount:           lost,
			DropOffPercentage:      percentage(lost, prev.UserCount),
			StepConversionRatio:    ratio(cur.UserCount, prev.UserCount),
			OverallConversionRatio: ratio(cur.UserCount, first),
		})
	}
	return metrics
}

// AggregateTransitions merges per-platform metrics into one transition
// per step pair, ordered by step index. UsersLostTotal counts real
// platforms only: when the overall rollup rides alongside named
// platforms its losses would double-count theirs, so it contributes
// only when it is the sole platform reporting the pair. Labels prefer
// the overall rollup's spelling when it is present.
func AggregateTransitions(funnels []PlatformFunnel) []StepTransition {
	byPair := make(map[[2]int]*StepTransition)
	for _, f := range funnels {
		for _, m := range ComputeTransitions(f) {
			pair := [2]int{m.FromStep, m.ToStep}
			tr, ok := byPair[pair]
			if !ok {
				tr = &StepTransition{
					FromStep:    m.FromStep,
					ToStep:      m.ToStep,
					FromLabel:   m.FromLabel,
					ToLabel:     m.ToLabel,
					PerPlatform: make(map[string]StepMetric),
				}
				byPair[pair] = tr
			}
			tr.PerPlatform[m.Platform] = m
		}
	}

	pairs := make([][2]int, 0, len(byPair))
	for p := range byPair {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	out := make([]StepTransition, 0, len(pairs))
	for _, p := range pairs {
		tr := byPair[p]
		var total int64
		named := false
		for name, m := range tr.PerPlatform {
			if name == PlatformOverall {
				continue
			}
			named = true
			total += m.DropOffCount
		}
		overall, hasOverall := tr.PerPlatform[PlatformOverall]
		if !named && hasOverall {
			total = overall.DropOffCount
		}
		if hasOverall {
			tr.FromLabel, tr.ToLabel = overall.FromLabel, overall.ToLabel
		}
		tr.UsersLostTotal = total
		out = append(out, *tr)
	}
	return out
}

// AggregateSnapshot derives transitions for a single day.
func AggregateSnapshot(s DailySnapshot) []StepTransition {
	return AggregateTransitions(funnelList(s.Platforms))
}

// AggregateSpan sums step counts across every day of the span, then
// derives transitions from the summed funnels. Summing before
// dividing keeps the period ratios exact instead of averaging daily
// percentages.
func AggregateSpan(snapshots []DailySnapshot) []StepTransition {
	return AggregateTransitions(MergeSpan(snapshots))
}

// MergeSpan folds every snapshot's platform funnels into one summed
// funnel per platform. Counts add up by step index; labels and source
// events come from the first day that supplied the step. Zero-valued
// and failed days contribute nothing.
func MergeSpan(snapshots []DailySnapshot) []PlatformFunnel {
	merged := make(map[string]map[int]*StepRecord)
	for _, snap := range snapshots {
		for name, pf := range snap.Platforms {
			byIdx, ok := merged[name]
			if !ok {
				byIdx = make(map[int]*StepRecord)
				merged[name] = byIdx
			}
			for _, s := range pf.Steps {
				rec, ok := byIdx[s.StepIndex]
				if !ok {
					clone := s
					byIdx[s.StepIndex] = &clone
					continue
				}
				rec.UserCount += s.UserCount
			}
		}
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	funnels := make([]PlatformFunnel, 0, len(names))
	for _, name := range names {
		byIdx := merged[name]
		idxs := make([]int, 0, len(byIdx))
		for i := range byIdx {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		steps := make([]StepRecord, 0, len(idxs))
		for _, i := range idxs {
			steps = append(steps, *byIdx[i])
		}
		funnels = append(funnels, PlatformFunnel{Platform: name, Steps: steps})
	}
	return funnels
}

// UsersLost sums UsersLostTotal across transitions.
func UsersLost(transitions []StepTransition) int64 {
	var total int64
	for _, tr := range transitions {
		total += tr.UsersLostTotal
	}
	return total
}

func funnelList(platforms map[string]PlatformFunnel) []PlatformFunnel {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	funnels := make([]PlatformFunnel, 0, len(names))
	for _, name := range names {
		funnels = append(funnels, platforms[name])
	}
	return funnels
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func percentage(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}
