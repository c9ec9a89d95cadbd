package numeric

import "testing"

func TestMinimumSearchQuadratic(t *testing.T) {
	// f(x) = (x-3)^2 + 4, analytical minimum at x=3.
	objective := func(x float64) float64 {
		d := x - 3
		return d*d + 4
	}

	got := Minimize1D(-10, 10, SearchOptions{Steps: 8, Depth: 12, Threshold: 1e-4}, objective)

	if diff := got - 3; diff > 1e-2 || diff < -1e-2 {
		t.Errorf("Minimize1D = %v, want close to 3 (diff %v)", got, diff)
	}
}

func TestMinimumSearch2D(t *testing.T) {
	// f(x,y) = (x-2)^2 + (y+5)^2, minimum at (2,-5).
	objective := func(p []float64) float64 {
		dx := p[0] - 2
		dy := p[1] + 5
		return dx*dx + dy*dy
	}

	box := SearchBox{Lower: []float64{-20, -20}, Upper: []float64{20, 20}}
	got := MinimumSearch(box, SearchOptions{Steps: 6, Depth: 14, Threshold: 1e-4}, objective)

	if len(got) != 2 {
		t.Fatalf("expected 2 dims, got %d", len(got))
	}
	if diff := got[0] - 2; diff > 1e-2 || diff < -1e-2 {
		t.Errorf("x = %v, want close to 2", got[0])
	}
	if diff := got[1] + 5; diff > 1e-2 || diff < -1e-2 {
		t.Errorf("y = %v, want close to -5", got[1])
	}
}

func TestBiasedSquaredErrorUnweightedIsPlainSSE(t *testing.T) {
	actual := []float64{1, 2, 3}
	expected := []float64{0, 0, 0}
	got := BiasedSquaredError(actual, expected, 25, false)
	want := 1.0 + 4.0 + 9.0
	if got != want {
		t.Errorf("BiasedSquaredError(unweighted) = %v, want %v", got, want)
	}
}

func TestBiasedSquaredErrorWeightsFartherFromAmbientMore(t *testing.T) {
	// Two single-sample cases with identical diff=2, one expected far
	// above ambient and one right at it; the biased term should be
	// strictly larger for the far-above-ambient case.
	near := BiasedSquaredError([]float64{27}, []float64{25}, 25, true)
	far := BiasedSquaredError([]float64{202}, []float64{200}, 25, true)
	if far <= near {
		t.Errorf("biased SSE far-from-ambient (%v) should exceed near-ambient (%v)", far, near)
	}
}

func TestMinimumSearchFloorConstraint(t *testing.T) {
	// Minimum wants to sit at x=-5, but dimension 0 has a hard floor at 0.
	objective := func(p []float64) float64 {
		d := p[0] + 5
		return d * d
	}
	box := SearchBox{
		Lower:     []float64{0},
		Upper:     []float64{50},
		FloorOnly: []bool{true},
	}
	got := MinimumSearch(box, SearchOptions{Steps: 5, Depth: 10, Threshold: 1e-3}, objective)
	if got[0] < 0 {
		t.Errorf("floor-constrained search returned %v, want >= 0", got[0])
	}
}
