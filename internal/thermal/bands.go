package thermal

import "github.com/kbuckham/reflowctl/internal/numeric"

// TemperatureBand holds the predictor's temperature-indexed parameters
// (spec §3). PowerTau/PowerGain are pointers so a band can omit
// feed-forward capability entirely; a predictor with no band supplying
// them is not power-capable (spec §4.2/§4.3.2).
type TemperatureBand struct {
	Temperature float64
	InnerTau    float64
	OuterTau    float64
	PowerTau    *float64
	PowerGain   *float64
}

// bandTables are the four piecewise-linear lookups the predictor evaluates
// by temperature (spec §4.2).
type bandTables struct {
	innerTau  *numeric.PiecewiseLinear
	outerTau  *numeric.PiecewiseLinear
	powerTau  *numeric.PiecewiseLinear
	powerGain *numeric.PiecewiseLinear
}

// defaultLegacyTemperature is where a scalar (legacy) parameter is promoted
// to a single-point table, per spec §4.2 "Initialization".
const defaultLegacyTemperature = 25.0

func newBandTables(bands []TemperatureBand) *bandTables {
	bt := &bandTables{
		innerTau:  numeric.NewPiecewiseLinear(),
		outerTau:  numeric.NewPiecewiseLinear(),
		powerTau:  numeric.NewPiecewiseLinear(),
		powerGain: numeric.NewPiecewiseLinear(),
	}
	for _, b := range bands {
		bt.innerTau.Add(b.Temperature, b.InnerTau)
		bt.outerTau.Add(b.Temperature, b.OuterTau)
		if b.PowerTau != nil {
			bt.powerTau.Add(b.Temperature, *b.PowerTau)
		}
		if b.PowerGain != nil {
			bt.powerGain.Add(b.Temperature, *b.PowerGain)
		}
	}
	return bt
}

// LegacyBand builds a single TemperatureBand from scalar parameters,
// promoted to a single-point table at defaultLegacyTemperature.
func LegacyBand(innerTau, outerTau float64, powerTau, powerGain *float64) TemperatureBand {
	return TemperatureBand{
		Temperature: defaultLegacyTemperature,
		InnerTau:    innerTau,
		OuterTau:    outerTau,
		PowerTau:    powerTau,
		PowerGain:   powerGain,
	}
}

func (bt *bandTables) capable() bool {
	return bt.powerTau.Len() > 0 && bt.powerGain.Len() > 0
}
