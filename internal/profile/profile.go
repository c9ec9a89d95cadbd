// Package profile implements the piecewise-linear reflow target trajectory
// (spec §4.4).
package profile

import "github.com/kbuckham/reflowctl/internal/numeric"

// Profile is an ordered time/temperature target curve with linear
// interpolation between control points. Before the first point and after
// the last, the target clamps to the nearest endpoint (spec §4.4, and the
// Open Question in §9 resolved as "clamp to the first control point" for
// negative/out-of-range times).
type Profile struct {
	curve *numeric.PiecewiseLinear
}

// Point is one (time in seconds, temperature in C) control point.
type Point struct {
	Time        float64
	Temperature float64
}

// New builds a Profile from control points, sorted by time.
func New(points ...Point) *Profile {
	pts := make([]numeric.Point, len(points))
	for i, p := range points {
		pts[i] = numeric.Point{X: p.Time, Y: p.Temperature}
	}
	curve := numeric.NewPiecewiseLinear(pts...)
	curve.Clamp = true
	return &Profile{curve: curve}
}

// TargetAt returns the target temperature at time t seconds, clamped to
// the first/last control point outside the profile's range.
func (p *Profile) TargetAt(t float64) float64 {
	v, ok := p.curve.At(t)
	if !ok {
		return 0
	}
	return v
}

// Duration returns the time of the final control point, i.e. the nominal
// length of the profile. Returns 0 for an empty profile.
func (p *Profile) Duration() float64 {
	pts := p.curve.Points()
	if len(pts) == 0 {
		return 0
	}
	return pts[len(pts)-1].X
}

// Points returns a defensive copy of the recorded control points.
func (p *Profile) Points() []Point {
	pts := p.curve.Points()
	out := make([]Point, len(pts))
	for i, pt := range pts {
		out[i] = Point{Time: pt.X, Temperature: pt.Y}
	}
	return out
}
