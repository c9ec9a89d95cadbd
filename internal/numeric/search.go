package numeric

// Objective scores a candidate parameter vector; lower is better.
type Objective func(params []float64) float64

// SearchBox bounds an N-dimensional minimum search.
type SearchBox struct {
	Lower []float64
	Upper []float64
	// FloorOnly marks dimensions that have a hard lower constraint that
	// must never be violated even while the box shrinks (spec §4.6:
	// "optional per-dimension lower constraints").
	FloorOnly []bool
}

// SearchOptions configures MinimumSearch.
type SearchOptions struct {
	// Steps is the number of grid samples evaluated per dimension on each
	// recursion level.
	Steps int
	// Depth is the maximum number of shrink-and-recurse rounds.
	Depth int
	// Threshold stops recursion early once the box half-width in every
	// dimension is at or below this value.
	Threshold float64
	// Bias enables error biasing by (T_expected - T_ambient) in objectives
	// built with BiasedSquaredError (spec §4.6 "optional error biasing").
	// MinimumSearch itself is bias-agnostic: it just minimizes whatever
	// Objective it is given. Bias is carried here so a single
	// SearchOptions value can flow from a CLI flag down into the
	// objective a caller builds.
	Bias bool
}

// BiasedSquaredError sums squared error between paired actual/expected
// values. When weighted is true each term is scaled by
// max(1, expected-ambient) - spec §4.6's "optional error biasing by
// (T_expected - T_ambient)" - so that error accrued far above ambient
// counts for more than the same absolute error near ambient, where a
// fixed-tau fit is less sensitive to begin with. len(actual) must equal
// len(expected).
func BiasedSquaredError(actual, expected []float64, ambient float64, weighted bool) float64 {
	var sse float64
	for i := range actual {
		diff := actual[i] - expected[i]
		term := diff * diff
		if weighted {
			weight := expected[i] - ambient
			if weight < 1 {
				weight = 1
			}
			term *= weight
		}
		sse += term
	}
	return sse
}

// MinimumSearch performs a bounded grid-shrink minimum search (spec §4.6):
// evaluate the objective on a Steps-per-dimension grid within box, pick the
// minimum, shrink the box around it, and recurse up to Depth times or until
// the box has shrunk below Threshold in every dimension. This is the search
// used both for delay time-constant fitting and for predictor/controller
// parameter tuning.
func MinimumSearch(box SearchBox, opts SearchOptions, objective Objective) []float64 {
	dims := len(box.Lower)
	if dims == 0 {
		return nil
	}
	if opts.Steps < 2 {
		opts.Steps = 2
	}
	if opts.Depth < 1 {
		opts.Depth = 1
	}

	lower := append([]float64(nil), box.Lower...)
	upper := append([]float64(nil), box.Upper...)
	best := make([]float64, dims)
	for i := range best {
		best[i] = (lower[i] + upper[i]) / 2
	}

	for depth := 0; depth < opts.Depth; depth++ {
		best = gridMinimum(lower, upper, opts.Steps, objective)

		converged := true
		for i := 0; i < dims; i++ {
			width := upper[i] - lower[i]
			half := width / 2
			if half > opts.Threshold {
				converged = false
			}

			newLower := best[i] - width/float64(opts.Steps)
			newUpper := best[i] + width/float64(opts.Steps)
			if box.FloorOnly != nil && i < len(box.FloorOnly) && box.FloorOnly[i] {
				if newLower < box.Lower[i] {
					newLower = box.Lower[i]
				}
			}
			lower[i], upper[i] = newLower, newUpper
		}
		if converged {
			break
		}
	}

	return best
}

// gridMinimum evaluates objective on the full cartesian grid of Steps
// samples per dimension within [lower, upper] and returns the argmin.
func gridMinimum(lower, upper []float64, steps int, objective Objective) []float64 {
	dims := len(lower)
	idx := make([]int, dims)
	best := make([]float64, dims)
	bestScore := 0.0
	first := true

	candidate := make([]float64, dims)
	for {
		for d := 0; d < dims; d++ {
			if steps == 1 {
				candidate[d] = (lower[d] + upper[d]) / 2
				continue
			}
			step := (upper[d] - lower[d]) / float64(steps-1)
			candidate[d] = lower[d] + float64(idx[d])*step
		}

		score := objective(candidate)
		if first || score < bestScore {
			bestScore = score
			copy(best, candidate)
			first = false
		}

		// odometer increment over idx[]
		pos := dims - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < steps {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}

	return best
}

// Minimize1D is a convenience wrapper over MinimumSearch for the common
// scalar case (e.g. fitting a single delay time-constant). opts.Bias does
// nothing here by itself; a caller wanting biased error (spec §4.6) builds
// its objective with BiasedSquaredError and passes opts.Bias through to it,
// as calibration.delaySquaredError and the tuning objectives do.
func Minimize1D(lower, upper float64, opts SearchOptions, objective func(x float64) float64) float64 {
	box := SearchBox{Lower: []float64{lower}, Upper: []float64{upper}}
	result := MinimumSearch(box, opts, func(params []float64) float64 {
		return objective(params[0])
	})
	if len(result) == 0 {
		return (lower + upper) / 2
	}
	return result[0]
}
