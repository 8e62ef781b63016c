package sim

import (
	"tracks-and-trains/server/internal/rail"
)

// TrainState tags the motion state machine.
type TrainState string

const (
	// TrainIdle means no route and zero speed.
	TrainIdle TrainState = "idle"
	// TrainMoving means the train is accelerating toward or holding cruise.
	TrainMoving TrainState = "moving"
	// TrainBraking means a stop constraint inside the lookahead is ramping
	// speed down.
	TrainBraking TrainState = "braking"
	// TrainBlocked means speed is zero because the track ahead is occupied
	// or unroutable.
	TrainBlocked TrainState = "stoppedBlocked"
	// TrainCrashed means the collision oracle confirmed a footprint overlap.
	// Cleared only by a fresh dispatch.
	TrainCrashed TrainState = "crashed"
)

// trainState is the authoritative per-train record. Progress is measured in
// the segment's canonical frame (0 at endpoint A) regardless of travel
// direction; Dir carries the sign.
type trainState struct {
	ID          string
	Segment     rail.SegmentID
	Progress    float64
	Dir         rail.TravelDir
	Speed       float64
	Throttle    float64
	Route       []rail.SegmentID
	State       TrainState
	Destination rail.JunctionID

	// prevSegment holds the segment the tail may still spill onto after a
	// boundary crossing. Zero when the whole footprint fits.
	prevSegment rail.SegmentID
	prevDir     rail.TravelDir
}

// Train is the read-only broadcast view of a train.
type Train struct {
	ID       string           `json:"id"`
	Segment  rail.SegmentID   `json:"segment"`
	Progress float64          `json:"progress"`
	Dir      rail.TravelDir   `json:"dir"`
	Speed    float64          `json:"speed"`
	State    TrainState       `json:"state"`
	Route    []rail.SegmentID `json:"route,omitempty"`
	X        float64          `json:"x"`
	Y        float64          `json:"y"`
	Heading  float64          `json:"heading"`
}

// Footprint is one progress interval a train occupies on a segment, in the
// segment's canonical frame.
type Footprint struct {
	Train   string         `json:"train"`
	Segment rail.SegmentID `json:"segment"`
	Lo      float64        `json:"lo"`
	Hi      float64        `json:"hi"`
}

// footprintOf derives the intervals a train spans: the window behind its head
// on the current segment, plus any tail spill onto the previous segment right
// after a boundary crossing.
func (w *World) footprintOf(t *trainState) []Footprint {
	seg, err := w.graph.Segment(t.Segment)
	if err != nil {
		return nil
	}
	length := seg.Length
	if length <= 0 {
		return nil
	}
	span := w.cfg.TrainLength / length

	var lo, hi, over float64
	if t.Dir == rail.Forward {
		hi = t.Progress
		lo = t.Progress - span
		if lo < 0 {
			over = -lo * length
			lo = 0
		}
	} else {
		lo = t.Progress
		hi = t.Progress + span
		if hi > 1 {
			over = (hi - 1) * length
			hi = 1
		}
	}
	prints := []Footprint{{Train: t.ID, Segment: t.Segment, Lo: lo, Hi: hi}}

	if over > 0 && t.prevSegment != 0 {
		prev, err := w.graph.Segment(t.prevSegment)
		if err == nil && prev.Length > 0 {
			spill := over / prev.Length
			if spill > 1 {
				spill = 1
			}
			// The train exited prev at the boundary its travel direction
			// points to, so the spill hugs that end.
			if t.prevDir == rail.Forward {
				prints = append(prints, Footprint{Train: t.ID, Segment: t.prevSegment, Lo: 1 - spill, Hi: 1})
			} else {
				prints = append(prints, Footprint{Train: t.ID, Segment: t.prevSegment, Lo: 0, Hi: spill})
			}
		}
	}
	return prints
}

type occupancy map[rail.SegmentID][]Footprint

// occupancySnapshot recomputes segment occupancy from every train footprint.
// Occupancy is always derived, never stored.
func (w *World) occupancySnapshot() occupancy {
	occ := make(occupancy)
	for _, t := range w.trains {
		for _, fp := range w.footprintOf(t) {
			occ[fp.Segment] = append(occ[fp.Segment], fp)
		}
	}
	return occ
}
