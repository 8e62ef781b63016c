package sim

import (
	"sort"

	"tracks-and-trains/server/internal/rail"
)

// OverlapPair names two trains whose footprints overlap on a segment.
type OverlapPair struct {
	Segment rail.SegmentID `json:"segment"`
	TrainA  string         `json:"trainA"`
	TrainB  string         `json:"trainB"`
}

// CollisionOracle answers the per-tick overlap query. It is diagnostic only:
// the simulation never receives position corrections from it, and the
// braking contract is what actually prevents overlap.
type CollisionOracle interface {
	Overlaps([]Footprint) []OverlapPair
}

// IntervalOracle is the default oracle: a pairwise interval intersection per
// segment. Deterministic output order by segment then train ids.
type IntervalOracle struct{}

func (IntervalOracle) Overlaps(prints []Footprint) []OverlapPair {
	bySegment := make(map[rail.SegmentID][]Footprint)
	for _, fp := range prints {
		bySegment[fp.Segment] = append(bySegment[fp.Segment], fp)
	}

	var pairs []OverlapPair
	for seg, group := range bySegment {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, k int) bool { return group[i].Train < group[k].Train })
		for i := 0; i < len(group); i++ {
			for k := i + 1; k < len(group); k++ {
				if group[i].Train == group[k].Train {
					continue
				}
				if overlaps(group[i], group[k]) {
					pairs = append(pairs, OverlapPair{Segment: seg, TrainA: group[i].Train, TrainB: group[k].Train})
				}
			}
		}
	}
	sort.Slice(pairs, func(i, k int) bool {
		if pairs[i].Segment != pairs[k].Segment {
			return pairs[i].Segment < pairs[k].Segment
		}
		if pairs[i].TrainA != pairs[k].TrainA {
			return pairs[i].TrainA < pairs[k].TrainA
		}
		return pairs[i].TrainB < pairs[k].TrainB
	})
	return pairs
}
