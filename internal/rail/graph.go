// Package rail owns the track network topology: junctions with directional
// ports, track segments with curve geometry, per-junction switch state, and
// shortest-route computation.
//
// Junctions and segments live in an arena keyed by stable integer ids. Ports
// store segment ids and segments store junction ids, so the cyclic
// junction/segment references never become pointer cycles.
package rail

import (
	"fmt"
	"sort"

	"tracks-and-trains/server/internal/hexgrid"
)

// JunctionID identifies a junction. Ids are never reused.
type JunctionID uint64

// SegmentID identifies a track segment. Ids are never reused; zero means "no
// segment" in port slots.
type SegmentID uint64

// geometryEpsilon is the tolerated distance between a curve endpoint and its
// junction's world position, relative to the hex size. Placement commands
// round-trip through float math, so exact equality is too strict.
const geometryEpsilon = 0.05 * hexgrid.TileSize

// Junction is a hex-cell connection point with up to six directional ports.
type Junction struct {
	ID    JunctionID                        `json:"id"`
	Coord hexgrid.Coord                     `json:"coord"`
	Ports [hexgrid.DirectionCount]SegmentID `json:"ports"`
}

// OccupiedPorts returns the bound directions in direction-index order.
func (j *Junction) OccupiedPorts() []hexgrid.Direction {
	dirs := make([]hexgrid.Direction, 0, hexgrid.DirectionCount)
	for d := hexgrid.Direction(0); d < hexgrid.DirectionCount; d++ {
		if j.Ports[d] != 0 {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// PortCount returns the number of bound ports.
func (j *Junction) PortCount() int {
	count := 0
	for _, seg := range j.Ports {
		if seg != 0 {
			count++
		}
	}
	return count
}

// Endpoint names one end of a segment: a junction and the port it binds.
type Endpoint struct {
	Junction JunctionID        `json:"junction"`
	Port     hexgrid.Direction `json:"port"`
}

// Segment is a piece of track between two junction ports. A and B are stored
// in canonical order: lower junction id first (lower port first on a loop
// back to the same junction). Forward traversal runs A to B.
type Segment struct {
	ID     SegmentID `json:"id"`
	A      Endpoint  `json:"a"`
	B      Endpoint  `json:"b"`
	Curve  Curve     `json:"curve"`
	Length float64   `json:"length"`
}

// Other returns the endpoint opposite the given junction.
func (s *Segment) Other(j JunctionID) Endpoint {
	if s.A.Junction == j {
		return s.B
	}
	return s.A
}

// PortLink pairs an occupied direction with the segment bound to it.
type PortLink struct {
	Direction hexgrid.Direction `json:"direction"`
	Segment   SegmentID         `json:"segment"`
}

// Graph is the track network. It tolerates disconnected components;
// connectivity is only consulted when routing.
type Graph struct {
	junctions map[JunctionID]*Junction
	byCoord   map[hexgrid.Coord]JunctionID
	segments  map[SegmentID]*Segment
	switches  map[JunctionID]map[hexgrid.Direction]hexgrid.Direction

	nextJunction uint64
	nextSegment  uint64
}

// NewGraph returns an empty track network.
func NewGraph() *Graph {
	return &Graph{
		junctions: make(map[JunctionID]*Junction),
		byCoord:   make(map[hexgrid.Coord]JunctionID),
		segments:  make(map[SegmentID]*Segment),
		switches:  make(map[JunctionID]map[hexgrid.Direction]hexgrid.Direction),
	}
}

// EnsureJunction returns the junction at coord, creating it if needed.
// Junctions with no bound ports are garbage-collected on segment removal, so
// creation here is not observable until a placement succeeds.
func (g *Graph) EnsureJunction(coord hexgrid.Coord) JunctionID {
	if id, ok := g.byCoord[coord]; ok {
		return id
	}
	g.nextJunction++
	id := JunctionID(g.nextJunction)
	g.junctions[id] = &Junction{ID: id, Coord: coord}
	g.byCoord[coord] = id
	return id
}

// JunctionAt looks up the junction occupying coord.
func (g *Graph) JunctionAt(coord hexgrid.Coord) (JunctionID, bool) {
	id, ok := g.byCoord[coord]
	return id, ok
}

// Junction returns the junction with the given id.
func (g *Graph) Junction(id JunctionID) (*Junction, error) {
	j, ok := g.junctions[id]
	if !ok {
		return nil, fmt.Errorf("junction %d: %w", id, ErrUnknownJunction)
	}
	return j, nil
}

// Segment returns the segment with the given id.
func (g *Graph) Segment(id SegmentID) (*Segment, error) {
	s, ok := g.segments[id]
	if !ok {
		return nil, fmt.Errorf("segment %d: %w", id, ErrUnknownSegment)
	}
	return s, nil
}

// PlaceSegment binds a new segment between two junction ports. The curve's
// endpoints must coincide with the junctions' world positions within the
// geometry tolerance; either curve orientation is accepted and the stored
// curve is canonicalized to run A to B.
func (g *Graph) PlaceSegment(ja JunctionID, portA hexgrid.Direction, jb JunctionID, portB hexgrid.Direction, curve Curve) (SegmentID, error) {
	if !portA.Valid() || !portB.Valid() {
		return 0, fmt.Errorf("port out of range: %w", ErrInvalidGeometry)
	}
	a, err := g.Junction(ja)
	if err != nil {
		return 0, err
	}
	b, err := g.Junction(jb)
	if err != nil {
		return 0, err
	}
	if ja == jb && portA == portB {
		return 0, fmt.Errorf("junction %d port %s: %w", ja, portA, ErrSelfLoop)
	}
	if a.Ports[portA] != 0 {
		return 0, fmt.Errorf("junction %d port %s: %w", ja, portA, ErrPortOccupied)
	}
	if b.Ports[portB] != 0 {
		return 0, fmt.Errorf("junction %d port %s: %w", jb, portB, ErrPortOccupied)
	}

	endA := Endpoint{Junction: ja, Port: portA}
	endB := Endpoint{Junction: jb, Port: portB}
	if endB.less(endA) {
		endA, endB = endB, endA
	}
	canonical, err := canonicalizeCurve(curve, g.junctions[endA.Junction].Coord, g.junctions[endB.Junction].Coord)
	if err != nil {
		return 0, err
	}
	length := canonical.Length()
	if length <= 0 {
		// A zero-length segment has no traversal direction and no footprint;
		// the motion integrator cannot make progress across it.
		return 0, fmt.Errorf("segment between %d and %d has no length: %w", ja, jb, ErrInvalidGeometry)
	}

	g.nextSegment++
	id := SegmentID(g.nextSegment)
	g.segments[id] = &Segment{
		ID:     id,
		A:      endA,
		B:      endB,
		Curve:  canonical,
		Length: length,
	}
	g.junctions[endA.Junction].Ports[endA.Port] = id
	g.junctions[endB.Junction].Ports[endB.Port] = id
	g.repairSwitches(endA.Junction)
	g.repairSwitches(endB.Junction)
	return id, nil
}

// PlaceSegmentAt places track between the junctions at two hex coordinates,
// creating junctions as needed and building the natural curve between them.
// Track only runs between adjacent cells; the same-cell and skip-a-cell cases
// are rejected before any junction is created. Junctions created for a
// placement that then fails are discarded, so a rejected command leaves no
// trace.
func (g *Graph) PlaceSegmentAt(coordA hexgrid.Coord, portA hexgrid.Direction, coordB hexgrid.Coord, portB hexgrid.Direction) (SegmentID, error) {
	if !portA.Valid() || !portB.Valid() {
		return 0, fmt.Errorf("port out of range: %w", ErrInvalidGeometry)
	}
	if hexgrid.Distance(coordA, coordB) != 1 {
		return 0, fmt.Errorf("cells %v and %v are not adjacent: %w", coordA, coordB, ErrInvalidGeometry)
	}
	_, hadA := g.byCoord[coordA]
	_, hadB := g.byCoord[coordB]
	ja := g.EnsureJunction(coordA)
	jb := g.EnsureJunction(coordB)
	id, err := g.PlaceSegment(ja, portA, jb, portB, CurveBetween(coordA, portA, coordB, portB))
	if err != nil {
		if !hadA {
			g.dropIsolated(ja)
		}
		if !hadB && jb != ja {
			g.dropIsolated(jb)
		}
		return 0, err
	}
	return id, nil
}

func (g *Graph) dropIsolated(id JunctionID) {
	j, ok := g.junctions[id]
	if !ok || j.PortCount() != 0 {
		return
	}
	delete(g.byCoord, j.Coord)
	delete(g.junctions, id)
	delete(g.switches, id)
}

// RemoveSegment unbinds a segment, frees both ports, repairs switch state on
// both junctions, and drops junctions left with no ports. Occupancy checks
// belong to the simulation layer, which owns the trains.
func (g *Graph) RemoveSegment(id SegmentID) error {
	seg, err := g.Segment(id)
	if err != nil {
		return err
	}
	delete(g.segments, id)
	for _, end := range []Endpoint{seg.A, seg.B} {
		j := g.junctions[end.Junction]
		j.Ports[end.Port] = 0
		g.repairSwitches(end.Junction)
		if j.PortCount() == 0 {
			delete(g.byCoord, j.Coord)
			delete(g.junctions, end.Junction)
			delete(g.switches, end.Junction)
		}
	}
	return nil
}

// NeighborsOf returns the occupied (direction, segment) pairs of a junction
// in direction-index order.
func (g *Graph) NeighborsOf(id JunctionID) ([]PortLink, error) {
	j, err := g.Junction(id)
	if err != nil {
		return nil, err
	}
	links := make([]PortLink, 0, hexgrid.DirectionCount)
	for d := hexgrid.Direction(0); d < hexgrid.DirectionCount; d++ {
		if j.Ports[d] != 0 {
			links = append(links, PortLink{Direction: d, Segment: j.Ports[d]})
		}
	}
	return links, nil
}

// SegmentEndpoints returns both endpoints in canonical order.
func (g *Graph) SegmentEndpoints(id SegmentID) (Endpoint, Endpoint, error) {
	seg, err := g.Segment(id)
	if err != nil {
		return Endpoint{}, Endpoint{}, err
	}
	return seg.A, seg.B, nil
}

// AllJunctions returns every junction ordered by id, for rendering reads and
// snapshots.
func (g *Graph) AllJunctions() []Junction {
	out := make([]Junction, 0, len(g.junctions))
	for _, j := range g.junctions {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// AllSegments returns every segment ordered by id.
func (g *Graph) AllSegments() []Segment {
	out := make([]Segment, 0, len(g.segments))
	for _, s := range g.segments {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (e Endpoint) less(other Endpoint) bool {
	if e.Junction != other.Junction {
		return e.Junction < other.Junction
	}
	return e.Port < other.Port
}

// canonicalizeCurve validates that the curve's endpoints sit on the two
// junction centers and reorients it to run from coordA to coordB.
func canonicalizeCurve(curve Curve, coordA, coordB hexgrid.Coord) (Curve, error) {
	posA := coordA.WorldPos()
	posB := coordB.WorldPos()
	forward := curve.A.Sub(posA).Norm() <= geometryEpsilon && curve.B.Sub(posB).Norm() <= geometryEpsilon
	backward := curve.A.Sub(posB).Norm() <= geometryEpsilon && curve.B.Sub(posA).Norm() <= geometryEpsilon
	switch {
	case forward:
		return curve, nil
	case backward:
		return curve.Reversed(), nil
	default:
		return Curve{}, fmt.Errorf("curve endpoints (%v, %v) do not reach junctions at %v and %v: %w",
			curve.A, curve.B, posA, posB, ErrInvalidGeometry)
	}
}
