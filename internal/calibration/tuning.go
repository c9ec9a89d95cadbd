package calibration

import (
	"math"
	"sort"

	"github.com/kbuckham/reflowctl/internal/numeric"
	"github.com/kbuckham/reflowctl/internal/sample"
	"github.com/kbuckham/reflowctl/internal/thermal"
)

// BandBounds bounds the four-dimensional search space TuneBand runs over
// for one temperature band.
type BandBounds struct {
	InnerTau  [2]float64
	OuterTau  [2]float64
	PowerTau  [2]float64
	PowerGain [2]float64
}

// DefaultBandTemperatures returns the representative temperatures spec
// §4.6 names for predictor tuning: a flat 25C band plus 4 bands evenly
// spanning 100-250C.
func DefaultBandTemperatures() []float64 {
	return []float64{25, 100, 150, 200, 250}
}

// PartitionByTemperatureBand assigns each sample to the nearest entry in
// bandTemperatures by its Temperature (the RTD element estimate) (spec §4.6
// "partition samples into temperature bands"). Samples without a
// Temperature reading are dropped.
func PartitionByTemperatureBand(samples []sample.Sample, bandTemperatures []float64) map[float64][]sample.Sample {
	out := make(map[float64][]sample.Sample)
	for _, s := range samples {
		if s.Temperature == nil {
			continue
		}
		nearest := bandTemperatures[0]
		best := math.Abs(*s.Temperature - nearest)
		for _, bt := range bandTemperatures[1:] {
			if d := math.Abs(*s.Temperature - bt); d < best {
				best, nearest = d, bt
			}
		}
		out[nearest] = append(out[nearest], s)
	}
	return out
}

// TuneBands partitions samples into temperature bands and fits each
// non-empty band's predictor parameters with TuneBand, returning one row
// per band in ascending temperature order (spec §4.6 "Record one row per
// band into the new parameter table"). Bands with no samples are skipped
// rather than fit from an empty segment.
func TuneBands(samples []sample.Sample, ambient float64, bandTemperatures []float64, bounds BandBounds, opts numeric.SearchOptions) []thermal.TemperatureBand {
	byBand := PartitionByTemperatureBand(samples, bandTemperatures)

	bands := make([]thermal.TemperatureBand, 0, len(bandTemperatures))
	for _, bt := range bandTemperatures {
		segment := byBand[bt]
		if len(segment) == 0 {
			continue
		}
		bands = append(bands, TuneBand(segment, ambient, bt, bounds, opts))
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].Temperature < bands[j].Temperature })
	return bands
}

// TuneBand fits one band's predictor parameters against a recorded
// segment of samples (spec §4.6 "for each band run two 2-D minimum
// searches — (inner_tau, outer_tau) for surface prediction and
// (power_tau, power_gain) for element-from-power prediction").
// bandTemperature is the representative temperature recorded on the
// resulting TemperatureBand.
func TuneBand(segment []sample.Sample, ambient, bandTemperature float64, bounds BandBounds, opts numeric.SearchOptions) thermal.TemperatureBand {
	innerTau, outerTau := tuneSurfaceParams(segment, ambient, bounds, opts)
	powerTau, powerGain := tunePowerParams(segment, ambient, bounds, opts)

	return thermal.TemperatureBand{
		Temperature: bandTemperature,
		InnerTau:    innerTau,
		OuterTau:    outerTau,
		PowerTau:    &powerTau,
		PowerGain:   &powerGain,
	}
}

func tuneSurfaceParams(segment []sample.Sample, ambient float64, bounds BandBounds, opts numeric.SearchOptions) (innerTau, outerTau float64) {
	if len(segment) == 0 {
		return bounds.InnerTau[0], bounds.OuterTau[0]
	}
	box := numeric.SearchBox{
		Lower: []float64{bounds.InnerTau[0], bounds.OuterTau[0]},
		Upper: []float64{bounds.InnerTau[1], bounds.OuterTau[1]},
	}
	result := numeric.MinimumSearch(box, opts, func(params []float64) float64 {
		predictor := thermal.NewPredictor([]thermal.TemperatureBand{
			thermal.LegacyBand(params[0], params[1], nil, nil),
		})
		predictor.Init(*segment[0].Temperature)

		var predicted, expected []float64
		for _, s := range segment {
			if s.Temperature == nil || s.DeviceTemperature == nil {
				continue
			}
			predicted = append(predicted, predictor.PredictSurface(*s.Temperature, ambient, s.Period))
			expected = append(expected, *s.DeviceTemperature)
		}
		return numeric.BiasedSquaredError(predicted, expected, ambient, opts.Bias)
	})
	return result[0], result[1]
}

func tunePowerParams(segment []sample.Sample, ambient float64, bounds BandBounds, opts numeric.SearchOptions) (powerTau, powerGain float64) {
	if len(segment) == 0 {
		return bounds.PowerTau[0], bounds.PowerGain[0]
	}
	box := numeric.SearchBox{
		Lower: []float64{bounds.PowerTau[0], bounds.PowerGain[0]},
		Upper: []float64{bounds.PowerTau[1], bounds.PowerGain[1]},
	}
	result := numeric.MinimumSearch(box, opts, func(params []float64) float64 {
		tau, gain := params[0], params[1]
		predictor := thermal.NewPredictor([]thermal.TemperatureBand{
			thermal.LegacyBand(1, 1, &tau, &gain),
		})
		predictor.Init(*segment[0].Temperature)

		var predicted, expected []float64
		for _, s := range segment {
			if s.Temperature == nil {
				continue
			}
			p, err := predictor.PredictElement(s.SetPower, ambient, s.Period)
			if err != nil {
				return 1e18
			}
			predicted = append(predicted, p)
			expected = append(expected, *s.Temperature)
		}
		return numeric.BiasedSquaredError(predicted, expected, ambient, opts.Bias)
	})
	return result[0], result[1]
}
