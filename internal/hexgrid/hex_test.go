package hexgrid

import (
	"math"
	"testing"
)

func TestOppositeDirections(t *testing.T) {
	cases := []struct {
		dir  Direction
		want Direction
	}{
		{East, West},
		{NorthEast, SouthWest},
		{NorthWest, SouthEast},
		{West, East},
		{SouthWest, NorthEast},
		{SouthEast, NorthWest},
	}
	for _, tc := range cases {
		if got := tc.dir.Opposite(); got != tc.want {
			t.Errorf("Opposite(%s) = %s, want %s", tc.dir, got, tc.want)
		}
		if got := tc.dir.Opposite().Opposite(); got != tc.dir {
			t.Errorf("double opposite of %s = %s", tc.dir, got)
		}
	}
}

func TestNeighborRoundTrip(t *testing.T) {
	origin := Coord{Q: 3, R: -2}
	for d := Direction(0); d < DirectionCount; d++ {
		neighbor := origin.Neighbor(d)
		if Distance(origin, neighbor) != 1 {
			t.Errorf("neighbor %s of %v is not adjacent", d, origin)
		}
		back := neighbor.Neighbor(d.Opposite())
		if back != origin {
			t.Errorf("neighbor %s then %s of %v = %v, want origin", d, d.Opposite(), origin, back)
		}
	}
}

func TestNeighborsAreDistinct(t *testing.T) {
	seen := make(map[Coord]Direction)
	for d, n := range (Coord{}).Neighbors() {
		if prev, ok := seen[n]; ok {
			t.Fatalf("directions %v and %d map to the same neighbor %v", prev, d, n)
		}
		seen[n] = Direction(d)
	}
}

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b Coord
		want int
	}{
		{Coord{0, 0}, Coord{0, 0}, 0},
		{Coord{0, 0}, Coord{1, 0}, 1},
		{Coord{0, 0}, Coord{2, -1}, 2},
		{Coord{-1, 2}, Coord{3, -1}, 4},
	}
	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Errorf("Distance(%v, %v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestWorldPosRoundTrip(t *testing.T) {
	for q := -4; q <= 4; q++ {
		for r := -4; r <= 4; r++ {
			coord := Coord{Q: q, R: r}
			if got := FromWorldPos(coord.WorldPos()); got != coord {
				t.Errorf("FromWorldPos(WorldPos(%v)) = %v", coord, got)
			}
		}
	}
}

func TestFromWorldPosSnapsToNearestCenter(t *testing.T) {
	for q := -2; q <= 2; q++ {
		for r := -2; r <= 2; r++ {
			coord := Coord{Q: q, R: r}
			for d := Direction(0); d < DirectionCount; d++ {
				pos := coord.WorldPos().Add(d.UnitVector().Mul(0.3 * TileWidth))
				if got := FromWorldPos(pos); got != coord {
					t.Errorf("FromWorldPos off-center toward %s of %v = %v", d, coord, got)
				}
			}
		}
	}
}

func TestNeighborWorldDistance(t *testing.T) {
	origin := Coord{}.WorldPos()
	for d := Direction(0); d < DirectionCount; d++ {
		pos := Coord{}.Neighbor(d).WorldPos()
		dist := pos.Sub(origin).Norm()
		if math.Abs(dist-TileWidth) > 1e-9 {
			t.Errorf("center distance to %s neighbor = %f, want %f", d, dist, TileWidth)
		}
	}
}

func TestUnitVectorIsUnit(t *testing.T) {
	for d := Direction(0); d < DirectionCount; d++ {
		v := d.UnitVector()
		if math.Abs(v.Norm()-1) > 1e-9 {
			t.Errorf("UnitVector(%s) has norm %f", d, v.Norm())
		}
	}
}
