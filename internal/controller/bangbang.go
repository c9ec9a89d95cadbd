package controller

// Hysteresis bounds BangBang's on/off transition (spec §4.3.2).
type Hysteresis struct {
	Low  float64
	High float64
}

// BangBangConfig configures a BangBang controller.
type BangBangConfig struct {
	Hysteresis Hysteresis
	// OnPower, if non-nil, gives power as a function of predicted
	// temperature while on (spec: "on_power curve (piecewise-linear
	// P(T))"). If nil, FixedMaxPower is used whenever on.
	OnPower       OnPowerCurve
	FixedMaxPower float64
	Limits        Limits
	Predictor     SurfacePredictor
	Target        TargetSource
}

// OnPowerCurve evaluates the on-state power curve at a temperature; it is
// satisfied directly by *numeric.PiecewiseLinear.
type OnPowerCurve interface {
	At(temperature float64) (float64, bool)
}

// BangBang implements the hysteresis-based on/off controller (spec §4.3.2).
type BangBang struct {
	cfg           BangBangConfig
	on            bool
	lastPredicted float64
}

// NewBangBang constructs a BangBang controller, initially off.
func NewBangBang(cfg BangBangConfig) *BangBang {
	return &BangBang{cfg: cfg}
}

// Compute implements Controller.
func (b *BangBang) Compute(now, period, elementTemperature, ambient float64) (float64, error) {
	predicted := b.cfg.Predictor.PredictSurface(elementTemperature, ambient, period)
	b.lastPredicted = predicted
	target := b.cfg.Target.TargetAt(now)
	err := target - predicted

	// err = target - predicted: turn on once predicted falls more than Low
	// below target, off once it reaches High above target.
	if b.on {
		if err <= -b.cfg.Hysteresis.High {
			b.on = false
		}
	} else {
		if err > b.cfg.Hysteresis.Low {
			b.on = true
		}
	}

	if !b.on {
		return b.cfg.Limits.Min, nil
	}

	if b.cfg.OnPower != nil {
		if p, ok := b.cfg.OnPower.At(predicted); ok {
			return clamp(p, b.cfg.Limits.Min, b.cfg.Limits.Max), nil
		}
	}
	return clamp(b.cfg.FixedMaxPower, b.cfg.Limits.Min, b.cfg.Limits.Max), nil
}

// IsOn reports the controller's current on/off state.
func (b *BangBang) IsOn() bool { return b.on }

// LastPredictedSurface implements Controller.
func (b *BangBang) LastPredictedSurface() float64 { return b.lastPredicted }
