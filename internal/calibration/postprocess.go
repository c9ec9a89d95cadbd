// Package calibration implements the automated step-response experiment
// and curve fitting spec §4.6 describes: a power-stepping controller that
// drives the real EventLoop, plus the postprocessing that turns the
// recorded samples into RTD points, thermal resistance, heat capacity, and
// predictor band parameters.
package calibration

import (
	"fmt"
	"math"

	"github.com/kbuckham/reflowctl/internal/numeric"
	"github.com/kbuckham/reflowctl/internal/sample"
)

// PartitionByStage groups samples into contiguous runs sharing the same
// Stage label, discarding the first discard samples of each run before
// concatenating it onto that label's accumulated segment (spec §4.6
// "discard the first discard-samples ... of each segment").
func PartitionByStage(samples []sample.Sample, discard int) map[string][]sample.Sample {
	out := make(map[string][]sample.Sample)
	if len(samples) == 0 {
		return out
	}

	runStart := 0
	label := samples[0].Stage
	flush := func(end int) {
		start := runStart + discard
		if start >= end {
			return
		}
		out[label] = append(out[label], samples[start:end]...)
	}

	for i := 1; i < len(samples); i++ {
		if samples[i].Stage != label {
			flush(i)
			runStart = i
			label = samples[i].Stage
		}
	}
	flush(len(samples))

	return out
}

// EquilibriumBlend range-weight-blends the last n samples of a segment
// (spec §4.6 "equilibrium R, T, P via range-weighted blend of the last N
// samples"): later samples within the window carry linearly greater
// weight, on the premise that they are closer to true equilibrium.
func EquilibriumBlend(segment []sample.Sample, n int) (resistance, temperature, power float64, ok bool) {
	if n <= 0 || len(segment) == 0 {
		return 0, 0, 0, false
	}
	if n > len(segment) {
		n = len(segment)
	}
	window := segment[len(segment)-n:]

	var weightSum, rSum, tSum, pSum float64
	usable := 0
	for i, s := range window {
		if s.Resistance == nil || s.Temperature == nil {
			continue
		}
		weight := float64(i + 1)
		weightSum += weight
		rSum += weight * *s.Resistance
		tSum += weight * *s.Temperature
		pSum += weight * s.Power
		usable++
	}
	if usable == 0 || weightSum == 0 {
		return 0, 0, 0, false
	}
	return rSum / weightSum, tSum / weightSum, pSum / weightSum, true
}

// ThermalResistance computes R_theta = (T_eq - ambient) / P_eq (spec §4.6).
func ThermalResistance(tEq, ambient, pEq float64) float64 {
	if pEq == 0 {
		return 0
	}
	return (tEq - ambient) / pEq
}

// FitHeatCapacity fits the thermal time constant tau and derives heat
// capacity C = tau / thermalResistance from one step-response leg, via the
// iterative alternating fit spec §4.6 names: regress ln(T_final - T) vs
// time for a fixed T_final guess, then re-derive T_final from the fitted
// tau and the leg's last sample, repeating until T_final converges within
// epsilon or the deltas grow instead of shrinking.
func FitHeatCapacity(segment []sample.Sample, ambient, power, thermalResistance, epsilon float64, maxIterations int) (heatCapacity, tau float64, iterations int, converged bool, err error) {
	first, last, ok := firstLastTemperature(segment)
	if !ok {
		return 0, 0, 0, false, ErrNoSamples
	}
	t0 := first.Now
	baseTemp := *first.Temperature
	lastElapsed := last.Now - t0
	lastTemp := *last.Temperature

	tFinal := ambient + power*thermalResistance
	prevDelta := math.Inf(1)

	for iter := 1; iter <= maxIterations; iter++ {
		var reg numeric.SimpleLinearRegression
		for _, s := range segment {
			if s.Temperature == nil {
				continue
			}
			diff := tFinal - *s.Temperature
			if diff <= 0 {
				continue
			}
			reg.Add(s.Now-t0, math.Log(diff))
		}
		slope, _, regOK := reg.Coefficients()
		if !regOK || slope >= 0 {
			return 0, 0, iter, false, fmt.Errorf("calibration: heat capacity fit: could not find a decaying exponential")
		}
		tau = -1 / slope

		denominator := 1 - math.Exp(-lastElapsed/tau)
		if denominator == 0 {
			return 0, 0, iter, false, fmt.Errorf("calibration: heat capacity fit: degenerate leg (no elapsed decay)")
		}
		newFinal := baseTemp + (lastTemp-baseTemp)/denominator

		delta := math.Abs(newFinal - tFinal)
		if delta < epsilon {
			tFinal = newFinal
			iterations = iter
			converged = true
			break
		}
		if iter > 1 && delta > prevDelta {
			return 0, 0, iter, false, fmt.Errorf("%w: T_final delta grew from %.4f to %.4f", ErrDiverged, prevDelta, delta)
		}
		prevDelta = delta
		tFinal = newFinal
		iterations = iter
	}

	if !converged {
		return 0, 0, iterations, false, fmt.Errorf("calibration: heat capacity fit: did not converge within %d iterations", maxIterations)
	}

	heatCapacity = tau / thermalResistance
	return heatCapacity, tau, iterations, true, nil
}

func firstLastTemperature(segment []sample.Sample) (first, last sample.Sample, ok bool) {
	found := false
	for _, s := range segment {
		if s.Temperature == nil {
			continue
		}
		if !found {
			first = s
			found = true
		}
		last = s
	}
	return first, last, found
}

// FitDelayTau fits a low-pass delay time constant separately above and
// below threshold device-temperature (spec §4.6 "delay time-constant tau
// by 1-D minimum-search on squared-error between a low-pass-filtered
// element-T trace and reference-surface-T, separately above and below a
// profile threshold"). Samples lacking either Temperature or
// DeviceTemperature are ignored. ambient feeds opts.Bias's error weighting
// (spec §4.6 "optional error biasing by (T_expected - T_ambient)").
func FitDelayTau(samples []sample.Sample, threshold, ambient float64, bounds [2]float64, opts numeric.SearchOptions) (tauBelow, tauAbove float64, err error) {
	below, above := partitionByDeviceTemperature(samples, threshold)

	tauBelow, errBelow := fitDelayTauSegment(below, ambient, bounds, opts)
	if errBelow != nil {
		return 0, 0, fmt.Errorf("calibration: delay fit below threshold: %w", errBelow)
	}
	tauAbove, errAbove := fitDelayTauSegment(above, ambient, bounds, opts)
	if errAbove != nil {
		return 0, 0, fmt.Errorf("calibration: delay fit above threshold: %w", errAbove)
	}
	return tauBelow, tauAbove, nil
}

func partitionByDeviceTemperature(samples []sample.Sample, threshold float64) (below, above []sample.Sample) {
	for _, s := range samples {
		if s.Temperature == nil || s.DeviceTemperature == nil {
			continue
		}
		if *s.DeviceTemperature < threshold {
			below = append(below, s)
		} else {
			above = append(above, s)
		}
	}
	return below, above
}

func fitDelayTauSegment(segment []sample.Sample, ambient float64, bounds [2]float64, opts numeric.SearchOptions) (float64, error) {
	if len(segment) < 2 {
		return 0, ErrNoSamples
	}
	tau := numeric.Minimize1D(bounds[0], bounds[1], opts, func(candidate float64) float64 {
		return delaySquaredError(segment, candidate, ambient, opts.Bias)
	})
	return tau, nil
}

// delaySquaredError low-pass-filters the element temperature trace at the
// candidate tau, starting the filter at the segment's first reference
// reading, and scores it against the recorded reference surface
// temperature via BiasedSquaredError, weighted by ambient when biased.
func delaySquaredError(segment []sample.Sample, tau, ambient float64, biased bool) float64 {
	prev := *segment[0].DeviceTemperature
	filtered := make([]float64, len(segment))
	expected := make([]float64, len(segment))
	for i, s := range segment {
		if i > 0 {
			alpha := s.Period / (s.Period + tau)
			prev += (*s.Temperature - prev) * alpha
		}
		filtered[i] = prev
		expected[i] = *s.DeviceTemperature
	}
	return numeric.BiasedSquaredError(filtered, expected, ambient, biased)
}
