package sim

import (
	"math"
	"testing"

	"tracks-and-trains/server/internal/hexgrid"
	"tracks-and-trains/server/internal/rail"
)

func TestPlaceSegmentCreatesJunctionsImplicitly(t *testing.T) {
	w := newTestWorld(Config{})
	seg := placeAdjacent(t, w, hexgrid.Coord{}, hexgrid.East)

	snap := w.TrackSnapshot()
	if len(snap.Junctions) != 2 {
		t.Fatalf("expected 2 junctions, got %d", len(snap.Junctions))
	}
	if len(snap.Segments) != 1 || snap.Segments[0].ID != seg {
		t.Fatalf("unexpected segments: %+v", snap.Segments)
	}
}

func TestPlaceSegmentRejectionLeavesNoTrace(t *testing.T) {
	w := newTestWorld(Config{})
	placeAdjacent(t, w, hexgrid.Coord{}, hexgrid.East)

	// Same port pair again: rejected, and no junction may appear elsewhere.
	results := w.Apply([]Command{{
		Type: CommandPlaceSegment,
		PlaceSegment: &PlaceSegmentCommand{
			CoordA: hexgrid.Coord{},
			PortA:  hexgrid.East,
			CoordB: hexgrid.Coord{Q: 1, R: 0},
			PortB:  hexgrid.West,
		},
	}})
	if results[0].OK || results[0].Reason != "portOccupied" {
		t.Fatalf("expected portOccupied rejection, got %+v", results[0])
	}
	if got := len(w.TrackSnapshot().Junctions); got != 2 {
		t.Fatalf("expected 2 junctions after rejection, got %d", got)
	}
}

func TestPlaceSegmentRejectsSameCell(t *testing.T) {
	w := newTestWorld(Config{})
	results := w.Apply([]Command{{
		Type: CommandPlaceSegment,
		PlaceSegment: &PlaceSegmentCommand{
			CoordA: hexgrid.Coord{},
			PortA:  hexgrid.East,
			CoordB: hexgrid.Coord{},
			PortB:  hexgrid.West,
		},
	}})
	if results[0].OK || results[0].Reason != "invalidGeometry" {
		t.Fatalf("expected invalidGeometry rejection, got %+v", results[0])
	}
	if got := len(w.TrackSnapshot().Junctions); got != 0 {
		t.Fatalf("expected no junctions after rejection, got %d", got)
	}
}

func TestTrainViewHeadingFollowsTravelDirection(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 2)
	forward := spawnAt(t, w, segs[0], 0.5, rail.Forward)
	reverse := spawnAt(t, w, segs[1], 0.5, rail.Reverse)

	// Both segments run straight east; the broadcast heading points where the
	// train would travel, not where the curve is parameterized.
	if h := trainView(t, w, forward).Heading; math.Abs(h) > 1e-9 {
		t.Errorf("forward heading = %f, want 0", h)
	}
	if h := trainView(t, w, reverse).Heading; math.Abs(h-math.Pi) > 1e-9 {
		t.Errorf("reverse heading = %f, want pi", h)
	}
}

func TestRemoveOccupiedSegmentFails(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 2)
	spawnAt(t, w, segs[0], 0.5, rail.Forward)

	before := w.TrackSnapshot()
	results := w.Apply([]Command{{
		Type:          CommandRemoveSegment,
		RemoveSegment: &RemoveSegmentCommand{Segment: segs[0]},
	}})
	if results[0].OK || results[0].Reason != "segmentOccupied" {
		t.Fatalf("expected segmentOccupied rejection, got %+v", results[0])
	}
	after := w.TrackSnapshot()
	if len(after.Segments) != len(before.Segments) || len(after.Junctions) != len(before.Junctions) {
		t.Fatalf("graph changed by failed removal: before %d/%d, after %d/%d",
			len(before.Junctions), len(before.Segments), len(after.Junctions), len(after.Segments))
	}
}

func TestRemoveSegmentFreesPortsAndJunctions(t *testing.T) {
	w := newTestWorld(Config{})
	seg := placeAdjacent(t, w, hexgrid.Coord{}, hexgrid.East)

	results := w.Apply([]Command{{
		Type:          CommandRemoveSegment,
		RemoveSegment: &RemoveSegmentCommand{Segment: seg},
	}})
	if !results[0].OK {
		t.Fatalf("remove rejected: %s", results[0].Reason)
	}
	snap := w.TrackSnapshot()
	if len(snap.Segments) != 0 || len(snap.Junctions) != 0 {
		t.Fatalf("expected empty graph, got %d junctions %d segments", len(snap.Junctions), len(snap.Segments))
	}
}

func TestSpawnOnOccupiedTrackFails(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 1)
	spawnAt(t, w, segs[0], 0.5, rail.Forward)

	results := w.Apply([]Command{{
		Type:       CommandSpawnTrain,
		SpawnTrain: &SpawnTrainCommand{Segment: segs[0], Progress: 0.5, Dir: rail.Forward},
	}})
	if results[0].OK || results[0].Reason != "segmentOccupied" {
		t.Fatalf("expected segmentOccupied rejection, got %+v", results[0])
	}
	if got := len(w.TrainViews()); got != 1 {
		t.Fatalf("expected 1 train, got %d", got)
	}
}

func TestDispatchToCurrentLocationGoesIdleWithoutMovement(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 1)
	train := spawnAt(t, w, segs[0], 1.0, rail.Forward)
	dest := junctionAt(t, w, hexgrid.Coord{Q: 1, R: 0})

	dispatchTo(t, w, train, dest)
	w.Step()

	view := trainView(t, w, train)
	if view.State != TrainIdle {
		t.Fatalf("expected idle, got %s", view.State)
	}
	if view.Progress != 1.0 || view.Segment != segs[0] {
		t.Fatalf("train moved: segment %d progress %f", view.Segment, view.Progress)
	}
	if view.Speed != 0 {
		t.Fatalf("expected zero speed, got %f", view.Speed)
	}
	if len(view.Route) != 0 {
		t.Fatalf("expected empty route, got %v", view.Route)
	}
}

func TestReverseRequiresStandstill(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 6)
	train := spawnAt(t, w, segs[2], 0.5, rail.Forward)

	w.Apply([]Command{{
		Type:        CommandSetThrottle,
		SetThrottle: &SetThrottleCommand{Train: train, Throttle: 1},
	}})
	w.Step()
	if view := trainView(t, w, train); view.Speed == 0 {
		t.Fatalf("expected train to pick up speed")
	}

	results := w.Apply([]Command{{
		Type:    CommandReverse,
		Reverse: &ReverseCommand{Train: train},
	}})
	if results[0].OK || results[0].Reason != "trainMoving" {
		t.Fatalf("expected trainMoving rejection, got %+v", results[0])
	}

	w.Apply([]Command{{
		Type:        CommandSetThrottle,
		SetThrottle: &SetThrottleCommand{Train: train, Throttle: 0},
	}})
	for i := 0; i < 50; i++ {
		w.Step()
		if trainView(t, w, train).Speed == 0 {
			break
		}
	}
	if view := trainView(t, w, train); view.Speed != 0 {
		t.Fatalf("train never stopped, speed %f", view.Speed)
	}

	results = w.Apply([]Command{{
		Type:    CommandReverse,
		Reverse: &ReverseCommand{Train: train},
	}})
	if !results[0].OK {
		t.Fatalf("reverse at standstill rejected: %s", results[0].Reason)
	}
	if view := trainView(t, w, train); view.Dir != rail.Reverse {
		t.Fatalf("expected reverse direction, got %d", view.Dir)
	}
}

func TestDespawnUnknownTrain(t *testing.T) {
	w := newTestWorld(Config{})
	results := w.Apply([]Command{{
		Type:         CommandDespawnTrain,
		DespawnTrain: &DespawnTrainCommand{Train: "train-404"},
	}})
	if results[0].OK || results[0].Reason != "unknownTrain" {
		t.Fatalf("expected unknownTrain rejection, got %+v", results[0])
	}
}

func TestSetSwitchCommand(t *testing.T) {
	w := newTestWorld(Config{})
	hub := hexgrid.Coord{Q: 1, R: 0}
	placeAdjacent(t, w, hexgrid.Coord{}, hexgrid.East)
	placeAdjacent(t, w, hub, hexgrid.East)
	placeAdjacent(t, w, hub, hexgrid.NorthEast)

	j := junctionAt(t, w, hub)
	results := w.Apply([]Command{{
		Type:      CommandSetSwitch,
		SetSwitch: &SetSwitchCommand{Junction: j, Arrival: hexgrid.West, Exit: hexgrid.NorthEast},
	}})
	if !results[0].OK {
		t.Fatalf("set switch rejected: %s", results[0].Reason)
	}
	exit, err := w.graph.SelectedExit(j, hexgrid.West)
	if err != nil {
		t.Fatal(err)
	}
	if exit != hexgrid.NorthEast {
		t.Fatalf("selected exit = %s, want NE", exit)
	}
}
