package controller

import "fmt"

// SurfacePredictor is the subset of thermal.Predictor a controller needs to
// turn element temperature into a predicted surface temperature.
type SurfacePredictor interface {
	PredictSurface(elementTemperature, ambient, period float64) float64
}

// PowerPredictor additionally supports the feed-forward required-power
// search (spec §4.2 "Required-power search").
type PowerPredictor interface {
	SurfacePredictor
	Capable() bool
	PredictRequiredPower(target, ambient, horizonPeriod, pMin, pMax float64) (float64, error)
}

// TargetSource supplies the current (and anticipated) profile target; it is
// satisfied by *profile.Profile.
type TargetSource interface {
	TargetAt(t float64) float64
}

// AntiWindupMode selects between the two source-divergent back-calculation
// behaviors named as an unresolved Open Question in spec §9. Both are
// implemented rather than guessed away.
type AntiWindupMode int

const (
	// AntiWindupBackCalculate undoes the last integral increment whenever
	// saturation clips the output against the error's sign, in addition
	// to the kaw/clamp mechanisms. This is the default (spec §4.3.1 step 7).
	AntiWindupBackCalculate AntiWindupMode = iota
	// AntiWindupClampOnly relies solely on the kaw gain and the
	// percentage clamp, without undoing the last integral increment.
	AntiWindupClampOnly
)

// HybridPIConfig configures a HybridPI controller (spec §4.3.1).
type HybridPIConfig struct {
	Kp, Ki, Kaw float64
	// FeedForwardGain (g_ff) in [0,1]; 0 disables feed-forward entirely.
	FeedForwardGain float64
	// AntiWindupClampPercent bounds |integral| <= (percent/100)*Pmax.
	AntiWindupClampPercent float64
	// AnticipationSamples (N) is how many periods ahead feed-forward
	// looks when searching for required power.
	AnticipationSamples int
	// SettlingSamples suppresses the integral term for this many initial
	// ticks, during which targets may be below ambient (spec §4.3.1 step 4).
	SettlingSamples int
	Mode            AntiWindupMode
	Limits          Limits

	Predictor PowerPredictor
	Target    TargetSource
}

// HybridPI implements the feed-forward + PI controller with anti-windup.
type HybridPI struct {
	cfg HybridPIConfig

	integral     float64
	tickCount    int
	lastPredicted float64
}

// NewHybridPI constructs a HybridPI controller. Construction fails if
// FeedForwardGain > 0 but the predictor lacks power tables (spec §4.3.2
// fail mode).
func NewHybridPI(cfg HybridPIConfig) (*HybridPI, error) {
	if cfg.FeedForwardGain > 0 {
		if cfg.Predictor == nil || !cfg.Predictor.Capable() {
			return nil, fmt.Errorf("controller: feed-forward requires power-capable predictor")
		}
	}
	if cfg.SettlingSamples < 0 {
		cfg.SettlingSamples = 0
	}
	if cfg.AnticipationSamples < 0 {
		cfg.AnticipationSamples = 0
	}
	return &HybridPI{cfg: cfg}, nil
}

// Compute implements Controller (spec §4.3.1 steps 1-8).
func (h *HybridPI) Compute(now, period, elementTemperature, ambient float64) (float64, error) {
	predicted := h.cfg.Predictor.PredictSurface(elementTemperature, ambient, period)
	h.lastPredicted = predicted

	var feedForward float64
	if h.cfg.FeedForwardGain > 0 {
		horizon := float64(h.cfg.AnticipationSamples) * period
		futureTarget := h.cfg.Target.TargetAt(now + horizon)
		required, err := h.cfg.Predictor.PredictRequiredPower(futureTarget, ambient, horizon, h.cfg.Limits.Min, h.cfg.Limits.Max)
		if err != nil {
			return 0, fmt.Errorf("controller: feed-forward power search: %w", err)
		}
		feedForward = h.cfg.FeedForwardGain * required
	}

	target := h.cfg.Target.TargetAt(now)
	err := target - predicted

	suppressIntegral := h.tickCount < h.cfg.SettlingSamples
	h.tickCount++

	previousIntegral := h.integral
	if !suppressIntegral {
		h.integral += err * h.cfg.Ki * period
	}

	unsaturated := feedForward + h.cfg.Kp*err + h.integral

	saturated := clamp(unsaturated, h.cfg.Limits.Min, h.cfg.Limits.Max)

	if saturated != unsaturated {
		// Saturated against the error's sign: undo the back-calculation
		// increment (when in that mode) in addition to the kaw-damped
		// integral path.
		signSaturated := (saturated == h.cfg.Limits.Max && err > 0) || (saturated == h.cfg.Limits.Min && err < 0)
		if signSaturated {
			if h.cfg.Mode == AntiWindupBackCalculate {
				h.integral = previousIntegral
			}
			if h.cfg.Kaw != 0 {
				h.integral += h.cfg.Kaw * (saturated - unsaturated) * period
			}
		}
	}

	clampBound := h.cfg.AntiWindupClampPercent / 100 * h.cfg.Limits.Max
	if clampBound > 0 {
		h.integral = clamp(h.integral, -clampBound, clampBound)
	}

	return saturated, nil
}

// Integral exposes the current integral accumulator, primarily for tests.
func (h *HybridPI) Integral() float64 { return h.integral }

// LastPredictedSurface implements Controller.
func (h *HybridPI) LastPredictedSurface() float64 { return h.lastPredicted }
