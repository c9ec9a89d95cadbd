package thermal

import "fmt"

// Predictor implements the two-stage temperature-banded low-pass filter
// (spec §4.2): an inner stage pulls the surface toward the heating element,
// an outer stage bleeds surface heat to ambient, and a separate power model
// predicts the heating element's own temperature from applied power for
// feed-forward search.
type Predictor struct {
	bands *bandTables

	lastSurface float64
	lastElement float64
	primed      bool

	// MinSearchStep is the bracket width (in watts) at which the
	// required-power binary search terminates (spec §4.2: "terminate when
	// interval <= 1 W").
	MinSearchStep float64
}

// NewPredictor builds a predictor from a set of temperature bands. Use
// LegacyBand to promote a single scalar parameter set.
func NewPredictor(bands []TemperatureBand) *Predictor {
	return &Predictor{
		bands:         newBandTables(bands),
		MinSearchStep: 1.0,
	}
}

// Capable reports whether this predictor was configured with power tables,
// i.e. whether PredictRequiredPower / PredictElement can be used (spec
// §4.3.2 fail mode).
func (p *Predictor) Capable() bool {
	return p.bands.capable()
}

// Init clears the last-prediction state (spec §4.2 "Initialization").
func (p *Predictor) Init(initialTemperature float64) {
	p.lastSurface = initialTemperature
	p.lastElement = initialTemperature
	p.primed = true
}

// LastSurface returns the most recently predicted surface temperature.
func (p *Predictor) LastSurface() float64 { return p.lastSurface }

// LastElement returns the most recently predicted element temperature.
func (p *Predictor) LastElement() float64 { return p.lastElement }

// PredictSurface updates and returns the predicted hotplate-surface
// temperature given the measured element temperature, ambient, and the
// tick period (spec §4.2 "Prediction of surface T_s").
func (p *Predictor) PredictSurface(elementTemp, ambient, period float64) float64 {
	if !p.primed {
		p.lastSurface = elementTemp
		p.lastElement = elementTemp
		p.primed = true
	}

	innerTau, _ := p.bands.innerTau.At(p.lastSurface)
	alphaInner := period / (period + innerTau)
	mid := elementTemp*alphaInner + (1-alphaInner)*p.lastSurface

	outerTau, _ := p.bands.outerTau.At(mid)
	alphaOuter := period / (period + outerTau)
	surface := ambient*alphaOuter + (1-alphaOuter)*mid

	p.lastSurface = surface
	return surface
}

// PredictElement updates and returns the predicted heating-element
// temperature from applied power (spec §4.2 "Prediction of heating-element
// T_e from applied power"). Requires Capable().
func (p *Predictor) PredictElement(power, ambient, period float64) (float64, error) {
	if !p.bands.capable() {
		return 0, fmt.Errorf("thermal: predictor has no power tables, cannot predict element temperature from power")
	}
	if !p.primed {
		p.lastElement = ambient
		p.primed = true
	}

	powerGain, _ := p.bands.powerGain.At(p.lastElement)
	steadyState := ambient + power*powerGain

	powerTau, _ := p.bands.powerTau.At(p.lastElement)
	alpha := period / (period + powerTau)
	element := p.lastElement*(1-alpha) + alpha*steadyState

	p.lastElement = element
	return element, nil
}

// simulateStep runs one step of both stages for a candidate power, without
// mutating the predictor's persistent state, returning the resulting
// predicted surface temperature. Used by the required-power binary search.
func (p *Predictor) simulateStep(power, ambient, period float64) (float64, error) {
	if !p.bands.capable() {
		return 0, fmt.Errorf("thermal: predictor has no power tables, cannot simulate power")
	}

	powerGain, _ := p.bands.powerGain.At(p.lastElement)
	steadyState := ambient + power*powerGain
	powerTau, _ := p.bands.powerTau.At(p.lastElement)
	alphaPower := period / (period + powerTau)
	element := p.lastElement*(1-alphaPower) + alphaPower*steadyState

	innerTau, _ := p.bands.innerTau.At(p.lastSurface)
	alphaInner := period / (period + innerTau)
	mid := element*alphaInner + (1-alphaInner)*p.lastSurface

	outerTau, _ := p.bands.outerTau.At(mid)
	alphaOuter := period / (period + outerTau)
	surface := ambient*alphaOuter + (1-alphaOuter)*mid

	return surface, nil
}

// PredictRequiredPower binary-searches, then linearly refines, the power
// level in [pMin, pMax] whose simulated one-step surface temperature comes
// closest to target (spec §4.2 "Required-power search"). horizonPeriod is
// the simulated step length — typically anticipation-periods * tick period,
// so the search looks the requested number of ticks ahead.
func (p *Predictor) PredictRequiredPower(target, ambient, horizonPeriod, pMin, pMax float64) (float64, error) {
	if !p.bands.capable() {
		return 0, fmt.Errorf("thermal: predictor has no power tables, cannot search for required power")
	}

	lowResult, err := p.simulateStep(pMin, ambient, horizonPeriod)
	if err != nil {
		return 0, err
	}
	highResult, err := p.simulateStep(pMax, ambient, horizonPeriod)
	if err != nil {
		return 0, err
	}

	// Monotonic in P (spec §8 property 3): if even Pmax undershoots,
	// return Pmax; if even Pmin overshoots, return Pmin.
	if highResult <= target {
		return pMax, nil
	}
	if lowResult >= target {
		return pMin, nil
	}

	lo, hi := pMin, pMax
	loResult, hiResult := lowResult, highResult
	for hi-lo > p.MinSearchStep {
		mid := (lo + hi) / 2
		midResult, err := p.simulateStep(mid, ambient, horizonPeriod)
		if err != nil {
			return 0, err
		}
		if midResult < target {
			lo, loResult = mid, midResult
		} else {
			hi, hiResult = mid, midResult
		}
	}

	if hiResult == loResult {
		return lo, nil
	}
	t := (target - loResult) / (hiResult - loResult)
	return lo + t*(hi-lo), nil
}
