package rail

import (
	"errors"
	"testing"

	"tracks-and-trains/server/internal/hexgrid"
)

// forkGraph builds a junction at the origin with ports E, W, and NE bound.
func forkGraph(t *testing.T) (*Graph, JunctionID) {
	t.Helper()
	g := NewGraph()
	center := hexgrid.Coord{Q: 0, R: 0}
	place(t, g, center, hexgrid.East, hexgrid.Coord{Q: 1, R: 0}, hexgrid.West)
	place(t, g, center, hexgrid.West, hexgrid.Coord{Q: -1, R: 0}, hexgrid.East)
	place(t, g, center, hexgrid.NorthEast, hexgrid.Coord{Q: 0, R: 1}, hexgrid.SouthWest)
	id, _ := g.JunctionAt(center)
	return g, id
}

func TestTwoPortPassThrough(t *testing.T) {
	g := NewGraph()
	center := hexgrid.Coord{Q: 0, R: 0}
	place(t, g, center, hexgrid.East, hexgrid.Coord{Q: 1, R: 0}, hexgrid.West)
	place(t, g, center, hexgrid.West, hexgrid.Coord{Q: -1, R: 0}, hexgrid.East)
	jc, _ := g.JunctionAt(center)

	for i := 0; i < 3; i++ {
		exit, err := g.SelectedExit(jc, hexgrid.East)
		if err != nil {
			t.Fatalf("SelectedExit failed: %v", err)
		}
		if exit != hexgrid.West {
			t.Fatalf("pass-through exit = %s, want W", exit)
		}
	}
	if len(g.SwitchSelections()) != 0 {
		t.Error("two-port junction must not persist switch state")
	}
	// Selecting the only possible exit is a no-op; toggling back onto the
	// arrival fails.
	if err := g.SetSwitch(jc, hexgrid.East, hexgrid.West); err != nil {
		t.Errorf("selecting the pass-through exit should succeed, got %v", err)
	}
	if err := g.SetSwitch(jc, hexgrid.East, hexgrid.East); !errors.Is(err, ErrSameDirection) {
		t.Errorf("expected ErrSameDirection, got %v", err)
	}
	if len(g.SwitchSelections()) != 0 {
		t.Error("SetSwitch on a two-port junction must not persist state")
	}
}

func TestDefaultExitIsDeterministic(t *testing.T) {
	g, fork := forkGraph(t)

	// Arriving from W, the default exit is the first occupied port other
	// than the arrival in direction-index order: E.
	exit, err := g.SelectedExit(fork, hexgrid.West)
	if err != nil {
		t.Fatal(err)
	}
	if exit != hexgrid.East {
		t.Errorf("default exit from W = %s, want E", exit)
	}
	// Arriving from E skips the arrival itself: NE.
	exit, err = g.SelectedExit(fork, hexgrid.East)
	if err != nil {
		t.Fatal(err)
	}
	if exit != hexgrid.NorthEast {
		t.Errorf("default exit from E = %s, want NE", exit)
	}
}

func TestSetSwitchValidation(t *testing.T) {
	g, fork := forkGraph(t)

	if err := g.SetSwitch(fork, hexgrid.West, hexgrid.West); !errors.Is(err, ErrSameDirection) {
		t.Errorf("expected ErrSameDirection, got %v", err)
	}
	if err := g.SetSwitch(fork, hexgrid.West, hexgrid.SouthEast); !errors.Is(err, ErrPortNotOccupied) {
		t.Errorf("expected ErrPortNotOccupied, got %v", err)
	}
	if err := g.SetSwitch(fork, hexgrid.SouthEast, hexgrid.East); !errors.Is(err, ErrInvalidArrival) {
		t.Errorf("expected ErrInvalidArrival, got %v", err)
	}

	if err := g.SetSwitch(fork, hexgrid.West, hexgrid.NorthEast); err != nil {
		t.Fatalf("SetSwitch failed: %v", err)
	}
	exit, err := g.SelectedExit(fork, hexgrid.West)
	if err != nil {
		t.Fatal(err)
	}
	if exit != hexgrid.NorthEast {
		t.Errorf("exit after SetSwitch = %s, want NE", exit)
	}
}

func TestSelectedExitErrors(t *testing.T) {
	g := NewGraph()
	a := hexgrid.Coord{Q: 0, R: 0}
	place(t, g, a, hexgrid.East, hexgrid.Coord{Q: 1, R: 0}, hexgrid.West)
	ja, _ := g.JunctionAt(a)

	if _, err := g.SelectedExit(ja, hexgrid.West); !errors.Is(err, ErrInvalidArrival) {
		t.Errorf("expected ErrInvalidArrival for unoccupied arrival, got %v", err)
	}
	if _, err := g.SelectedExit(ja, hexgrid.East); !errors.Is(err, ErrNoRoute) {
		t.Errorf("expected ErrNoRoute on a dead end, got %v", err)
	}
	if _, err := g.SelectedExit(999, hexgrid.East); !errors.Is(err, ErrUnknownJunction) {
		t.Errorf("expected ErrUnknownJunction, got %v", err)
	}
}

func TestSwitchRepairAfterRemoval(t *testing.T) {
	g, fork := forkGraph(t)
	j, _ := g.Junction(fork)
	neSegment := j.Ports[hexgrid.NorthEast]

	if err := g.SetSwitch(fork, hexgrid.West, hexgrid.NorthEast); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveSegment(neSegment); err != nil {
		t.Fatal(err)
	}

	// Down to two ports: state cleared, pass-through takes over.
	if len(g.SwitchSelections()) != 0 {
		t.Error("switch state must be cleared when the junction drops below three ports")
	}
	exit, err := g.SelectedExit(fork, hexgrid.West)
	if err != nil {
		t.Fatal(err)
	}
	if exit != hexgrid.East {
		t.Errorf("exit after repair = %s, want E", exit)
	}
}

func TestSwitchRepairResetsInvalidSelection(t *testing.T) {
	g, fork := forkGraph(t)
	// Grow to four ports so removal keeps the junction switched.
	place(t, g, hexgrid.Coord{Q: 0, R: 0}, hexgrid.SouthWest, hexgrid.Coord{Q: 0, R: -1}, hexgrid.NorthEast)

	j, _ := g.Junction(fork)
	neSegment := j.Ports[hexgrid.NorthEast]
	if err := g.SetSwitch(fork, hexgrid.West, hexgrid.NorthEast); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveSegment(neSegment); err != nil {
		t.Fatal(err)
	}

	// The stored selection pointed at the removed port and must fall back
	// to the deterministic default (E, the first occupied non-arrival).
	exit, err := g.SelectedExit(fork, hexgrid.West)
	if err != nil {
		t.Fatal(err)
	}
	if exit != hexgrid.East {
		t.Errorf("repaired exit = %s, want E", exit)
	}
}
