package rail

import (
	"math"

	"github.com/golang/geo/r2"

	"tracks-and-trains/server/internal/hexgrid"
)

// CurveKind discriminates the supported track shapes.
type CurveKind string

const (
	// CurveStraight is a straight line between the two endpoints.
	CurveStraight CurveKind = "straight"
	// CurveArc is a quadratic bend through a control point, used when a
	// track changes direction between its endpoints.
	CurveArc CurveKind = "arc"
)

// Curve describes the geometry of a track segment in world units. A is the
// canonical start of the segment, so PointAt(0) == A and PointAt(1) == B.
type Curve struct {
	Kind    CurveKind `json:"kind"`
	A       r2.Point  `json:"a"`
	B       r2.Point  `json:"b"`
	Control r2.Point  `json:"control,omitempty"`
}

// curveSamples is the resolution used for arc length integration.
const curveSamples = 32

// NewStraightCurve returns a straight curve from a to b.
func NewStraightCurve(a, b r2.Point) Curve {
	return Curve{Kind: CurveStraight, A: a, B: b}
}

// NewArcCurve returns a quadratic bend from a to b through the control point.
func NewArcCurve(a, control, b r2.Point) Curve {
	return Curve{Kind: CurveArc, A: a, B: b, Control: control}
}

// CurveBetween builds the natural track geometry between two junction
// coordinates: straight when the track keeps its heading across the segment,
// an arc bending toward the departure direction otherwise.
func CurveBetween(a hexgrid.Coord, portA hexgrid.Direction, b hexgrid.Coord, portB hexgrid.Direction) Curve {
	start := a.WorldPos()
	end := b.WorldPos()
	if portB == portA.Opposite() {
		return NewStraightCurve(start, end)
	}
	// Bend out of a along portA and into b against portB.
	chord := end.Sub(start).Norm()
	control := start.Add(portA.UnitVector().Mul(chord / 2))
	return NewArcCurve(start, control, end)
}

// PointAt interpolates the world position for progress t in [0, 1].
func (c Curve) PointAt(t float64) r2.Point {
	t = clamp01(t)
	switch c.Kind {
	case CurveArc:
		// Quadratic Bezier: (1-t)^2 A + 2t(1-t) C + t^2 B.
		u := 1 - t
		p := c.A.Mul(u * u)
		p = p.Add(c.Control.Mul(2 * t * u))
		return p.Add(c.B.Mul(t * t))
	default:
		return c.A.Add(c.B.Sub(c.A).Mul(t))
	}
}

// HeadingAt returns the travel heading in radians at progress t, pointing
// from A toward B. Reverse travellers add pi.
func (c Curve) HeadingAt(t float64) float64 {
	t = clamp01(t)
	var d r2.Point
	switch c.Kind {
	case CurveArc:
		// Derivative of the quadratic Bezier.
		u := 1 - t
		d = c.Control.Sub(c.A).Mul(2 * u).Add(c.B.Sub(c.Control).Mul(2 * t))
	default:
		d = c.B.Sub(c.A)
	}
	return math.Atan2(d.Y, d.X)
}

// Length returns the arc length of the curve in world units.
func (c Curve) Length() float64 {
	if c.Kind == CurveStraight {
		return c.B.Sub(c.A).Norm()
	}
	length := 0.0
	prev := c.PointAt(0)
	for i := 1; i <= curveSamples; i++ {
		next := c.PointAt(float64(i) / curveSamples)
		length += next.Sub(prev).Norm()
		prev = next
	}
	return length
}

// Reversed returns the same geometry traversed B to A.
func (c Curve) Reversed() Curve {
	return Curve{Kind: c.Kind, A: c.B, B: c.A, Control: c.Control}
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
