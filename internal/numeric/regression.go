package numeric

// SimpleLinearRegression fits y = slope*x + intercept by ordinary least
// squares over a streamed set of (x, y) samples. Used by the calibration
// pipeline's log-linear heat-capacity fit.
type SimpleLinearRegression struct {
	n              int
	sumX, sumY     float64
	sumXY, sumXX   float64
}

// Add folds one (x, y) sample into the running sums.
func (r *SimpleLinearRegression) Add(x, y float64) {
	r.n++
	r.sumX += x
	r.sumY += y
	r.sumXY += x * y
	r.sumXX += x * x
}

// N returns the number of samples folded in so far.
func (r *SimpleLinearRegression) N() int { return r.n }

// Coefficients returns (slope, intercept). With one sample it returns
// (0, y, true); with no samples, (0, 0, false); with zero variance in X,
// (0, mean(Y), false).
func (r *SimpleLinearRegression) Coefficients() (slope, intercept float64, ok bool) {
	if r.n < 2 {
		if r.n == 1 {
			return 0, r.sumY, true
		}
		return 0, 0, false
	}
	nf := float64(r.n)
	denom := nf*r.sumXX - r.sumX*r.sumX
	if denom == 0 {
		return 0, r.sumY / nf, false
	}
	slope = (nf*r.sumXY - r.sumX*r.sumY) / denom
	intercept = (r.sumY - slope*r.sumX) / nf
	return slope, intercept, true
}

// At evaluates the fitted line at x.
func (r *SimpleLinearRegression) At(x float64) float64 {
	slope, intercept, _ := r.Coefficients()
	return slope*x + intercept
}

// Mean returns the unweighted mean of the Y values folded in so far.
func (r *SimpleLinearRegression) Mean() float64 {
	if r.n == 0 {
		return 0
	}
	return r.sumY / float64(r.n)
}
