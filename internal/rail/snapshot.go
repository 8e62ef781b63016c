package rail

import (
	"fmt"

	"tracks-and-trains/server/internal/hexgrid"
)

// GraphSnapshot is the lossless serializable form of the track network.
type GraphSnapshot struct {
	Junctions []Junction        `json:"junctions"`
	Segments  []Segment         `json:"segments"`
	Switches  []SwitchSelection `json:"switches"`
}

// Snapshot captures the full network state in id order.
func (g *Graph) Snapshot() GraphSnapshot {
	return GraphSnapshot{
		Junctions: g.AllJunctions(),
		Segments:  g.AllSegments(),
		Switches:  g.SwitchSelections(),
	}
}

// RestoreGraph rebuilds a graph from a snapshot. Every cross-reference is
// validated before anything is constructed; a snapshot whose ports and
// endpoints disagree fails with ErrInconsistentSnapshot and no graph.
func RestoreGraph(snap GraphSnapshot) (*Graph, error) {
	g := NewGraph()

	junctions := make(map[JunctionID]*Junction, len(snap.Junctions))
	for i := range snap.Junctions {
		j := snap.Junctions[i]
		if _, dup := junctions[j.ID]; dup {
			return nil, fmt.Errorf("duplicate junction %d: %w", j.ID, ErrInconsistentSnapshot)
		}
		if _, dup := g.byCoord[j.Coord]; dup {
			return nil, fmt.Errorf("junctions share coordinate %v: %w", j.Coord, ErrInconsistentSnapshot)
		}
		copied := j
		junctions[j.ID] = &copied
		g.byCoord[j.Coord] = j.ID
		if uint64(j.ID) > g.nextJunction {
			g.nextJunction = uint64(j.ID)
		}
	}

	segments := make(map[SegmentID]*Segment, len(snap.Segments))
	for i := range snap.Segments {
		s := snap.Segments[i]
		if _, dup := segments[s.ID]; dup {
			return nil, fmt.Errorf("duplicate segment %d: %w", s.ID, ErrInconsistentSnapshot)
		}
		for _, end := range []Endpoint{s.A, s.B} {
			j, ok := junctions[end.Junction]
			if !ok {
				return nil, fmt.Errorf("segment %d references junction %d: %w", s.ID, end.Junction, ErrInconsistentSnapshot)
			}
			if !end.Port.Valid() {
				return nil, fmt.Errorf("segment %d port %d out of range: %w", s.ID, end.Port, ErrInconsistentSnapshot)
			}
			if j.Ports[end.Port] != s.ID {
				return nil, fmt.Errorf("junction %d port %s does not bind segment %d: %w",
					end.Junction, end.Port, s.ID, ErrInconsistentSnapshot)
			}
		}
		copied := s
		if copied.Length <= 0 {
			copied.Length = copied.Curve.Length()
		}
		if copied.Length <= 0 {
			return nil, fmt.Errorf("segment %d has no length: %w", s.ID, ErrInconsistentSnapshot)
		}
		segments[s.ID] = &copied
		if uint64(s.ID) > g.nextSegment {
			g.nextSegment = uint64(s.ID)
		}
	}

	// Every bound port must resolve to a segment that binds it back.
	for id, j := range junctions {
		for d := hexgrid.Direction(0); d < hexgrid.DirectionCount; d++ {
			sid := j.Ports[d]
			if sid == 0 {
				continue
			}
			seg, ok := segments[sid]
			if !ok {
				return nil, fmt.Errorf("junction %d port %s references segment %d: %w", id, d, sid, ErrInconsistentSnapshot)
			}
			here := Endpoint{Junction: id, Port: d}
			if seg.A != here && seg.B != here {
				return nil, fmt.Errorf("segment %d does not terminate at junction %d port %s: %w", sid, id, d, ErrInconsistentSnapshot)
			}
		}
	}

	g.junctions = junctions
	g.segments = segments

	for _, sel := range snap.Switches {
		j, ok := junctions[sel.Junction]
		if !ok {
			return nil, fmt.Errorf("switch selection references junction %d: %w", sel.Junction, ErrInconsistentSnapshot)
		}
		if j.PortCount() < 3 {
			return nil, fmt.Errorf("junction %d stores switch state with %d ports: %w", sel.Junction, j.PortCount(), ErrInconsistentSnapshot)
		}
		if !sel.Arrival.Valid() || j.Ports[sel.Arrival] == 0 || !sel.Exit.Valid() || j.Ports[sel.Exit] == 0 || sel.Arrival == sel.Exit {
			return nil, fmt.Errorf("junction %d switch %s to %s is invalid: %w", sel.Junction, sel.Arrival, sel.Exit, ErrInconsistentSnapshot)
		}
		state, ok := g.switches[sel.Junction]
		if !ok {
			state = make(map[hexgrid.Direction]hexgrid.Direction)
			g.switches[sel.Junction] = state
		}
		state[sel.Arrival] = sel.Exit
	}

	return g, nil
}
