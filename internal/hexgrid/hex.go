// Package hexgrid provides the axial coordinate math for the hexagonal tile
// grid: neighbor enumeration, direction arithmetic, and conversion between
// grid coordinates and world positions.
//
// Tiles are pointy-top hexagons. The first axial coordinate points east, the
// second north-east. Directions are sixths of a counterclockwise turn
// starting at east.
package hexgrid

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// TileSize is the height of a hexagon, point to point, in world units.
const TileSize = 1.0

const sqrt3Half = 0.8660254037844386

// TileWidth is the width of a hexagon, edge to edge, in world units.
const TileWidth = sqrt3Half * TileSize

// Coord is an axial hex coordinate. Immutable value type.
type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// Direction identifies one of the six hex edges, counterclockwise from east.
type Direction int

const (
	East Direction = iota
	NorthEast
	NorthWest
	West
	SouthWest
	SouthEast
	// DirectionCount is the number of hex directions.
	DirectionCount
)

var directionNames = [DirectionCount]string{"E", "NE", "NW", "W", "SW", "SE"}

func (d Direction) String() string {
	if d < 0 || d >= DirectionCount {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// Valid reports whether d is one of the six hex directions.
func (d Direction) Valid() bool {
	return d >= 0 && d < DirectionCount
}

// Opposite returns the direction pointing the other way.
func (d Direction) Opposite() Direction {
	return (d + 3) % DirectionCount
}

// neighborOffsets holds the axial deltas for the six directions, indexed by
// Direction.
var neighborOffsets = [DirectionCount]Coord{
	{Q: 1, R: 0},  // E
	{Q: 0, R: 1},  // NE
	{Q: -1, R: 1}, // NW
	{Q: -1, R: 0}, // W
	{Q: 0, R: -1}, // SW
	{Q: 1, R: -1}, // SE
}

// Neighbor returns the adjacent coordinate in direction d.
func (c Coord) Neighbor(d Direction) Coord {
	offset := neighborOffsets[d]
	return Coord{Q: c.Q + offset.Q, R: c.R + offset.R}
}

// Neighbors returns the six adjacent coordinates, indexed by Direction.
func (c Coord) Neighbors() [DirectionCount]Coord {
	var result [DirectionCount]Coord
	for d := Direction(0); d < DirectionCount; d++ {
		result[d] = c.Neighbor(d)
	}
	return result
}

// S returns the implicit third cube coordinate.
func (c Coord) S() int {
	return -c.Q - c.R
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b Coord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	return max(dq, max(dr, ds))
}

// WorldPos returns the center of the tile in world units.
func (c Coord) WorldPos() r2.Point {
	q, r := float64(c.Q), float64(c.R)
	return r2.Point{
		X: TileSize * (q*sqrt3Half + r*sqrt3Half/2),
		Y: TileSize * r * 0.75,
	}
}

// FromWorldPos returns the coordinate of the tile containing the given world
// position.
func FromWorldPos(pos r2.Point) Coord {
	yy := pos.Y / (0.75 * TileSize)
	xx := (pos.X - sqrt3Half/2*TileSize*yy) / (TileSize * sqrt3Half)

	// After inverting the linear transform only four tiles are candidates:
	// the floor/ceil corners and the two mixed corners.
	southWest := Coord{Q: int(math.Floor(xx)), R: int(math.Floor(yy))}
	northEast := Coord{Q: int(math.Ceil(xx)), R: int(math.Ceil(yy))}
	south := Coord{Q: int(math.Ceil(xx)), R: int(math.Floor(yy))}
	north := Coord{Q: int(math.Floor(xx)), R: int(math.Ceil(yy))}

	far := nearerTile(southWest, northEast, pos)
	near := nearerTile(south, north, pos)
	return nearerTile(far, near, pos)
}

// UnitVector returns the normalized world-space vector pointing from a tile
// center toward its neighbor in direction d.
func (d Direction) UnitVector() r2.Point {
	from := Coord{}.WorldPos()
	to := Coord{}.Neighbor(d).WorldPos()
	delta := to.Sub(from)
	return delta.Normalize()
}

func nearerTile(a, b Coord, pos r2.Point) Coord {
	da := a.WorldPos().Sub(pos)
	db := b.WorldPos().Sub(pos)
	if da.Dot(da) < db.Dot(db) {
		return a
	}
	return b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
