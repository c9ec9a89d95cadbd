// Package numeric holds the small math primitives the thermal model and
// calibration pipeline are built from: piecewise-linear lookup, simple
// linear regression, steady-state detection, and bounded minimum search.
package numeric

import "sort"

// Point is a single (x, y) control point of a PiecewiseLinear function.
type Point struct {
	X, Y float64
}

// PiecewiseLinear is an ordered set of (x, y) points interpolated linearly
// between neighbors. Outside the range of recorded points it extrapolates
// using the nearest segment's slope, unless Clamp is set, in which case it
// holds the nearest endpoint's value.
type PiecewiseLinear struct {
	points []Point
	// Clamp holds the boundary value outside the first/last point instead
	// of extrapolating the edge segment's slope. Profile interpolation
	// (spec §4.4) wants Clamp=true; the RTD and predictor tables want
	// Clamp=false (linear extrapolation per spec §4.1/§4.2).
	Clamp bool
}

// NewPiecewiseLinear builds a table from points, sorting them by X.
func NewPiecewiseLinear(points ...Point) *PiecewiseLinear {
	pl := &PiecewiseLinear{points: append([]Point(nil), points...)}
	pl.sort()
	return pl
}

func (pl *PiecewiseLinear) sort() {
	sort.Slice(pl.points, func(i, j int) bool { return pl.points[i].X < pl.points[j].X })
}

// Add inserts a point, keeping the table sorted by X.
func (pl *PiecewiseLinear) Add(x, y float64) {
	pl.points = append(pl.points, Point{X: x, Y: y})
	pl.sort()
}

// Len returns the number of recorded points.
func (pl *PiecewiseLinear) Len() int { return len(pl.points) }

// Points returns a defensive copy of the recorded points.
func (pl *PiecewiseLinear) Points() []Point {
	out := make([]Point, len(pl.points))
	copy(out, pl.points)
	return out
}

// Reset discards all recorded points.
func (pl *PiecewiseLinear) Reset() {
	pl.points = nil
}

// At evaluates the table at x. With zero points it returns 0, false. With
// one point it returns that point's Y for any x. With two or more it
// interpolates or extrapolates linearly between/around the bracketing
// segment.
func (pl *PiecewiseLinear) At(x float64) (float64, bool) {
	switch len(pl.points) {
	case 0:
		return 0, false
	case 1:
		return pl.points[0].Y, true
	}

	if x <= pl.points[0].X {
		if pl.Clamp {
			return pl.points[0].Y, true
		}
		return interpolate(pl.points[0], pl.points[1], x), true
	}
	last := len(pl.points) - 1
	if x >= pl.points[last].X {
		if pl.Clamp {
			return pl.points[last].Y, true
		}
		return interpolate(pl.points[last-1], pl.points[last], x), true
	}

	for i := 0; i < last; i++ {
		if x >= pl.points[i].X && x <= pl.points[i+1].X {
			return interpolate(pl.points[i], pl.points[i+1], x), true
		}
	}
	// Unreachable given the bounds checks above.
	return pl.points[last].Y, true
}

func interpolate(a, b Point, x float64) float64 {
	if b.X == a.X {
		return a.Y
	}
	t := (x - a.X) / (b.X - a.X)
	return a.Y + t*(b.Y-a.Y)
}

// Invert solves for x given y on a strictly monotonic table, by inverting
// the bracketing segment. Used by calibration/property tests to construct
// round-trip fixtures; it assumes (and does not itself enforce) monotonicity.
func (pl *PiecewiseLinear) Invert(y float64) (float64, bool) {
	switch len(pl.points) {
	case 0:
		return 0, false
	case 1:
		return pl.points[0].X, true
	}

	last := len(pl.points) - 1
	increasing := pl.points[last].Y >= pl.points[0].Y

	for i := 0; i < last; i++ {
		a, b := pl.points[i], pl.points[i+1]
		if (increasing && y >= a.Y && y <= b.Y) || (!increasing && y <= a.Y && y >= b.Y) {
			if b.Y == a.Y {
				return a.X, true
			}
			t := (y - a.Y) / (b.Y - a.Y)
			return a.X + t*(b.X-a.X), true
		}
	}

	// Extrapolate from the nearest edge segment.
	if (increasing && y < pl.points[0].Y) || (!increasing && y > pl.points[0].Y) {
		a, b := pl.points[0], pl.points[1]
		t := (y - a.Y) / (b.Y - a.Y)
		return a.X + t*(b.X-a.X), true
	}
	a, b := pl.points[last-1], pl.points[last]
	t := (y - a.Y) / (b.Y - a.Y)
	return a.X + t*(b.X-a.X), true
}
