package sim

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tracks-and-trains/server/internal/hexgrid"
	"tracks-and-trains/server/internal/rail"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	w := newTestWorld(Config{})
	s1, _, _, hub, dest := buildHubTrack(t, w)
	w.Apply([]Command{{
		Type:      CommandSetSwitch,
		SetSwitch: &SetSwitchCommand{Junction: hub, Arrival: hexgrid.West, Exit: hexgrid.NorthEast},
	}})
	train := spawnAt(t, w, s1, 0.4, rail.Forward)
	dispatchTo(t, w, train, dest)
	for i := 0; i < 5; i++ {
		w.Step()
	}

	snap := w.Snapshot()
	if snap.ID == "" {
		t.Fatalf("snapshot missing identifier")
	}

	restored := newTestWorld(Config{})
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	ignoreID := cmpopts.IgnoreFields(Snapshot{}, "ID")
	if diff := cmp.Diff(snap, restored.Snapshot(), ignoreID); diff != "" {
		t.Fatalf("restored snapshot differs (-want +got):\n%s", diff)
	}

	// Both worlds must evolve identically from the restore point.
	for i := 0; i < 30; i++ {
		w.Step()
		restored.Step()
	}
	if diff := cmp.Diff(w.TrainViews(), restored.TrainViews()); diff != "" {
		t.Fatalf("simulation diverged after restore (-want +got):\n%s", diff)
	}
}

func TestRestoreRejectsDanglingTrainSegment(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 2)
	spawnAt(t, w, segs[0], 0.5, rail.Forward)

	snap := w.Snapshot()
	snap.Trains[0].Segment = 99

	target := newTestWorld(Config{})
	placeLine(t, target, hexgrid.Coord{Q: 5, R: 5}, 1)
	before := target.Snapshot()

	err := target.Restore(snap)
	if !errors.Is(err, rail.ErrInconsistentSnapshot) {
		t.Fatalf("expected ErrInconsistentSnapshot, got %v", err)
	}
	ignoreID := cmpopts.IgnoreFields(Snapshot{}, "ID")
	if diff := cmp.Diff(before, target.Snapshot(), ignoreID); diff != "" {
		t.Fatalf("failed restore mutated the world (-want +got):\n%s", diff)
	}
}

func TestRestoreRejectsRouteNotStartingAtSegment(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 3)
	train := spawnAt(t, w, segs[0], 0.5, rail.Forward)
	dispatchTo(t, w, train, junctionAt(t, w, hexgrid.Coord{Q: 3, R: 0}))

	snap := w.Snapshot()
	snap.Trains[0].Route = snap.Trains[0].Route[1:]

	target := newTestWorld(Config{})
	if err := target.Restore(snap); !errors.Is(err, rail.ErrInconsistentSnapshot) {
		t.Fatalf("expected ErrInconsistentSnapshot, got %v", err)
	}
}

func TestRestoreRejectsZeroLengthSegment(t *testing.T) {
	w := newTestWorld(Config{})
	placeLine(t, w, hexgrid.Coord{}, 1)

	snap := w.Snapshot()
	center := snap.Graph.Junctions[0].Coord.WorldPos()
	snap.Graph.Segments[0].Curve = rail.NewStraightCurve(center, center)
	snap.Graph.Segments[0].Length = 0

	target := newTestWorld(Config{})
	if err := target.Restore(snap); !errors.Is(err, rail.ErrInconsistentSnapshot) {
		t.Fatalf("expected ErrInconsistentSnapshot, got %v", err)
	}
}

func TestRestoreKeepsTrainIDCounterFresh(t *testing.T) {
	w := newTestWorld(Config{})
	segs := placeLine(t, w, hexgrid.Coord{}, 3)
	spawnAt(t, w, segs[0], 0.5, rail.Forward)
	spawnAt(t, w, segs[1], 0.5, rail.Forward)
	snap := w.Snapshot()

	restored := newTestWorld(Config{})
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	fresh := spawnAt(t, restored, segs[2], 0.5, rail.Forward)
	if fresh != "train-3" {
		t.Fatalf("expected fresh id train-3, got %s", fresh)
	}
}

func TestSnapshotSchemaIsValidJSON(t *testing.T) {
	data, err := SnapshotSchema()
	if err != nil {
		t.Fatalf("schema generation failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("empty schema")
	}
}
