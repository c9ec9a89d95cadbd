// Package thermal implements the RTD resistance→temperature estimator and
// the two-stage banded low-pass surface-temperature predictor (spec §4.1,
// §4.2).
package thermal

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kbuckham/reflowctl/internal/numeric"
)

// CopperAlpha is the temperature coefficient of resistance for copper,
// R(T) = R0 * (1 + alpha*(T-T0)), used to synthesize a second calibration
// point when the estimator has fewer than two on record (spec §4.1).
const CopperAlpha = 0.00393

// ErrTemperatureUnavailable is returned when the measured current is below
// the power supply's minimum measurable current; the caller should treat
// temperature as absent for this tick, not as a fatal error.
var ErrTemperatureUnavailable = errors.New("thermal: temperature unavailable (current below measurable minimum)")

// ErrRunaway is returned when the rate of temperature change between two
// ticks exceeds MaxTemperatureRate; this is fatal (spec §4.1, §7).
var ErrRunaway = errors.New("thermal: runaway detected (temperature rate of change exceeded limit)")

// DefaultMaxTemperatureRate is the default fatal-shutdown threshold in
// degrees C per second (spec §3).
const DefaultMaxTemperatureRate = 30.0

// RTDEstimator maps measured element resistance to temperature using
// recorded calibration points, auto-seeding from the copper temperature
// coefficient when fewer than two points are on record.
type RTDEstimator struct {
	table  *numeric.PiecewiseLinear
	reset  bool // true disables auto-seeding (spec §4.1 "reset" flag)
	seeded bool

	// MaxTemperatureRate bounds |deltaT|/period; exceeding it is fatal.
	MaxTemperatureRate float64

	lastTemp   float64
	lastValid  bool
}

// NewRTDEstimator creates an estimator with auto-seeding enabled and the
// default runaway-rate threshold.
func NewRTDEstimator() *RTDEstimator {
	return &RTDEstimator{
		table:              numeric.NewPiecewiseLinear(),
		MaxTemperatureRate: DefaultMaxTemperatureRate,
	}
}

// AddPoint records a calibration point (resistance in ohms, temperature in
// degrees C).
func (e *RTDEstimator) AddPoint(resistance, temperature float64) {
	e.table.Add(resistance, temperature)
	e.seeded = true
}

// Reset clears recorded points. When disableAutoseed is true, future calls
// to TemperatureOf with zero points will not synthesize a seed pair from
// ambient; it is the caller's responsibility to AddPoint before use.
func (e *RTDEstimator) Reset(disableAutoseed bool) {
	e.table.Reset()
	e.reset = disableAutoseed
	e.seeded = false
	e.lastValid = false
}

// Points returns a defensive copy of the recorded calibration points.
func (e *RTDEstimator) Points() []numeric.Point {
	return e.table.Points()
}

// TemperatureOf estimates temperature from a measured resistance. ambient
// is used only to auto-seed the table when it is empty and auto-seeding is
// enabled; currentMeasured/minimumMeasurable let the caller report
// ErrTemperatureUnavailable without needing to pre-filter. period is the
// tick duration in seconds, used for the runaway check; pass period<=0 to
// skip the runaway check (e.g. for a first sample or an out-of-loop query).
func (e *RTDEstimator) TemperatureOf(resistance, ambient, currentMeasured, minimumMeasurable, period float64) (float64, error) {
	if currentMeasured < minimumMeasurable {
		return 0, ErrTemperatureUnavailable
	}

	if e.table.Len() == 0 {
		if e.reset {
			return 0, fmt.Errorf("thermal: RTD estimator has no calibration points and auto-seed is disabled")
		}
		e.seedFromAmbient(resistance, ambient)
	} else if e.table.Len() == 1 {
		e.synthesizeSecondPoint()
	}

	temp, ok := e.table.At(resistance)
	if !ok {
		return 0, fmt.Errorf("thermal: RTD table produced no estimate for resistance %.4f", resistance)
	}

	if period > 0 && e.lastValid {
		rate := (temp - e.lastTemp) / period
		if rate > e.MaxTemperatureRate || rate < -e.MaxTemperatureRate {
			return temp, fmt.Errorf("%w: %.2f C/s over %.3fs (limit %.2f)", ErrRunaway, rate, period, e.MaxTemperatureRate)
		}
	}

	e.lastTemp = temp
	e.lastValid = true
	return temp, nil
}

// seedFromAmbient plants (resistance, ambient) as the first point, then
// synthesizes a second via the copper coefficient, and also back-calculates
// a 20C reference point (spec §4.1: "Back-calculate a 20 °C point from the
// seeded point").
func (e *RTDEstimator) seedFromAmbient(resistance, ambient float64) {
	slog.Debug("RTD auto-seed", "resistance", resistance, "ambient", ambient)
	e.table.Add(resistance, ambient)
	e.synthesizeSecondPoint()

	r20 := resistanceAt(resistance, ambient, 20)
	e.table.Add(r20, 20)
	e.seeded = true
}

// synthesizeSecondPoint adds a second point 50C above the sole recorded
// point using the copper temperature coefficient, so a line exists.
func (e *RTDEstimator) synthesizeSecondPoint() {
	pts := e.table.Points()
	if len(pts) != 1 {
		return
	}
	r0, t0 := pts[0].X, pts[0].Y
	t1 := t0 + 50
	r1 := resistanceAt(r0, t0, t1)
	e.table.Add(r1, t1)
}

// resistanceAt computes R(T) given a reference point (r0 at t0) via the
// copper coefficient: R(T) = R0 * (1 + alpha*(T-T0)).
func resistanceAt(r0, t0, t float64) float64 {
	return r0 * (1 + CopperAlpha*(t-t0))
}
