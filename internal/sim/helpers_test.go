package sim

import (
	"testing"

	"tracks-and-trains/server/internal/hexgrid"
	"tracks-and-trains/server/internal/rail"
)

func newTestWorld(cfg Config) *World {
	return NewWorld(cfg, Deps{})
}

// placeAdjacent lays track between a cell and its neighbor in direction d,
// failing the test on rejection.
func placeAdjacent(t *testing.T, w *World, coord hexgrid.Coord, d hexgrid.Direction) rail.SegmentID {
	t.Helper()
	results := w.Apply([]Command{{
		Type: CommandPlaceSegment,
		PlaceSegment: &PlaceSegmentCommand{
			CoordA: coord,
			PortA:  d,
			CoordB: coord.Neighbor(d),
			PortB:  d.Opposite(),
		},
	}})
	if !results[0].OK {
		t.Fatalf("place from %v toward %s rejected: %s", coord, d, results[0].Reason)
	}
	return results[0].Segment
}

// placeLine lays n straight segments eastward from origin and returns their
// ids in order.
func placeLine(t *testing.T, w *World, origin hexgrid.Coord, n int) []rail.SegmentID {
	t.Helper()
	ids := make([]rail.SegmentID, 0, n)
	coord := origin
	for i := 0; i < n; i++ {
		ids = append(ids, placeAdjacent(t, w, coord, hexgrid.East))
		coord = coord.Neighbor(hexgrid.East)
	}
	return ids
}

func spawnAt(t *testing.T, w *World, seg rail.SegmentID, progress float64, dir rail.TravelDir) string {
	t.Helper()
	results := w.Apply([]Command{{
		Type:       CommandSpawnTrain,
		SpawnTrain: &SpawnTrainCommand{Segment: seg, Progress: progress, Dir: dir},
	}})
	if !results[0].OK {
		t.Fatalf("spawn on segment %d rejected: %s", seg, results[0].Reason)
	}
	return results[0].Train
}

func dispatchTo(t *testing.T, w *World, train string, dest rail.JunctionID) {
	t.Helper()
	results := w.Apply([]Command{{
		Type:     CommandDispatch,
		Dispatch: &DispatchCommand{Train: train, Destination: dest},
	}})
	if !results[0].OK {
		t.Fatalf("dispatch of %s to junction %d rejected: %s", train, dest, results[0].Reason)
	}
}

func trainView(t *testing.T, w *World, id string) Train {
	t.Helper()
	for _, view := range w.TrainViews() {
		if view.ID == id {
			return view
		}
	}
	t.Fatalf("train %s not found", id)
	return Train{}
}

func junctionAt(t *testing.T, w *World, coord hexgrid.Coord) rail.JunctionID {
	t.Helper()
	id, ok := w.graph.JunctionAt(coord)
	if !ok {
		t.Fatalf("no junction at %v", coord)
	}
	return id
}
