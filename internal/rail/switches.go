package rail

import (
	"fmt"
	"sort"

	"tracks-and-trains/server/internal/hexgrid"
)

// Switch state selects which occupied port is through-connected for traffic
// arriving from each direction.
//
// Junctions with exactly two occupied ports are mechanical pass-throughs and
// store no state: the exit is always the other port. Junctions with three or
// more occupied ports store an explicit arrival-direction to exit-direction
// map. The default for a fresh arrival direction is the first occupied port
// other than the arrival, in direction-index order, so fresh junctions behave
// deterministically.

// SelectedExit returns the departing direction for traffic arriving at the
// junction from the given direction.
func (g *Graph) SelectedExit(id JunctionID, arrival hexgrid.Direction) (hexgrid.Direction, error) {
	j, err := g.Junction(id)
	if err != nil {
		return 0, err
	}
	if !arrival.Valid() || j.Ports[arrival] == 0 {
		return 0, fmt.Errorf("junction %d arrival %s: %w", id, arrival, ErrInvalidArrival)
	}
	occupied := j.OccupiedPorts()
	if len(occupied) < 2 {
		return 0, fmt.Errorf("junction %d: %w", id, ErrNoRoute)
	}
	if len(occupied) == 2 {
		// Pass-through: the other occupied port, no state consulted.
		if occupied[0] == arrival {
			return occupied[1], nil
		}
		return occupied[0], nil
	}
	if exit, ok := g.switches[id][arrival]; ok {
		return exit, nil
	}
	return defaultExit(j, arrival), nil
}

// SetSwitch selects the exit direction for traffic arriving from the given
// direction. On two-port junctions selecting the only possible exit is a
// no-op; anything else fails.
func (g *Graph) SetSwitch(id JunctionID, arrival, exit hexgrid.Direction) error {
	j, err := g.Junction(id)
	if err != nil {
		return err
	}
	if arrival == exit {
		return fmt.Errorf("junction %d direction %s: %w", id, arrival, ErrSameDirection)
	}
	if !arrival.Valid() || j.Ports[arrival] == 0 {
		return fmt.Errorf("junction %d arrival %s: %w", id, arrival, ErrInvalidArrival)
	}
	if !exit.Valid() || j.Ports[exit] == 0 {
		return fmt.Errorf("junction %d exit %s: %w", id, exit, ErrPortNotOccupied)
	}
	if j.PortCount() == 2 {
		// Pass-through already routes to the only other port.
		return nil
	}
	state, ok := g.switches[id]
	if !ok {
		state = make(map[hexgrid.Direction]hexgrid.Direction)
		g.switches[id] = state
	}
	state[arrival] = exit
	return nil
}

// repairSwitches restores the switch-state invariant after the junction's
// occupied-port set changed: selections must point at occupied ports, and
// junctions below three ports carry no state at all.
func (g *Graph) repairSwitches(id JunctionID) {
	j, ok := g.junctions[id]
	if !ok {
		delete(g.switches, id)
		return
	}
	if j.PortCount() < 3 {
		delete(g.switches, id)
		return
	}
	state, ok := g.switches[id]
	if !ok {
		return
	}
	for arrival, exit := range state {
		if j.Ports[arrival] == 0 {
			delete(state, arrival)
			continue
		}
		if j.Ports[exit] == 0 || exit == arrival {
			state[arrival] = defaultExit(j, arrival)
		}
	}
	if len(state) == 0 {
		delete(g.switches, id)
	}
}

// defaultExit picks the first occupied port other than arrival in
// direction-index order. Callers guarantee at least two occupied ports.
func defaultExit(j *Junction, arrival hexgrid.Direction) hexgrid.Direction {
	for d := hexgrid.Direction(0); d < hexgrid.DirectionCount; d++ {
		if d != arrival && j.Ports[d] != 0 {
			return d
		}
	}
	return arrival
}

// SwitchSelection records one stored switch entry for snapshots.
type SwitchSelection struct {
	Junction JunctionID        `json:"junction"`
	Arrival  hexgrid.Direction `json:"arrival"`
	Exit     hexgrid.Direction `json:"exit"`
}

// SwitchSelections returns every stored selection ordered by junction id and
// arrival direction.
func (g *Graph) SwitchSelections() []SwitchSelection {
	out := make([]SwitchSelection, 0, len(g.switches))
	for id, state := range g.switches {
		for arrival, exit := range state {
			out = append(out, SwitchSelection{Junction: id, Arrival: arrival, Exit: exit})
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Junction != out[k].Junction {
			return out[i].Junction < out[k].Junction
		}
		return out[i].Arrival < out[k].Arrival
	})
	return out
}
