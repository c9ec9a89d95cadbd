package calibration

import (
	"math"
	"testing"

	"github.com/kbuckham/reflowctl/internal/numeric"
	"github.com/kbuckham/reflowctl/internal/sample"
)

func floatPtr(v float64) *float64 { return &v }

func TestPartitionByStageDiscardsPerRun(t *testing.T) {
	mk := func(now float64, stage string) sample.Sample {
		return sample.Sample{Now: now, Stage: stage}
	}
	samples := []sample.Sample{
		mk(0, "rising-10"), mk(1, "rising-10"), mk(2, "rising-10"), mk(3, "rising-10"),
		mk(4, "falling-10"), mk(5, "falling-10"),
		mk(6, "rising-10"), mk(7, "rising-10"), mk(8, "rising-10"), mk(9, "rising-10"), mk(10, "rising-10"),
	}

	parts := PartitionByStage(samples, 2)

	// First rising-10 run is 4 long, discard 2 -> keeps 2; second run is 5
	// long, discard 2 -> keeps 3; combined = 5. Falling run is 2 long,
	// discard 2 -> keeps nothing.
	if got := len(parts["rising-10"]); got != 5 {
		t.Errorf("len(rising-10) = %d, want 5", got)
	}
	if got := len(parts["falling-10"]); got != 0 {
		t.Errorf("len(falling-10) = %d, want 0", got)
	}
}

func TestEquilibriumBlendWeightsLaterSamplesMore(t *testing.T) {
	segment := []sample.Sample{
		{Resistance: floatPtr(10), Temperature: floatPtr(100), Power: 20},
		{Resistance: floatPtr(10.2), Temperature: floatPtr(102), Power: 20},
		{Resistance: floatPtr(10.4), Temperature: floatPtr(104), Power: 20},
	}

	r, temp, power, ok := EquilibriumBlend(segment, 3)
	if !ok {
		t.Fatal("EquilibriumBlend reported not ok")
	}
	if r <= 10.2 || r >= 10.4 {
		t.Errorf("blended resistance = %v, want strictly between last two points, biased late", r)
	}
	if temp <= 102 || temp >= 104 {
		t.Errorf("blended temperature = %v, want strictly between last two points, biased late", temp)
	}
	if power != 20 {
		t.Errorf("blended power = %v, want 20", power)
	}
}

func TestThermalResistance(t *testing.T) {
	got := ThermalResistance(125, 25, 10)
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("ThermalResistance = %v, want 10", got)
	}
}

// syntheticStepLeg generates first-order step-response samples T(t) =
// ambient + P*Rtheta*(1-exp(-t/tau)), matching spec §8 scenario E.
func syntheticStepLeg(ambient, power, rtheta, tau, period float64, n int) []sample.Sample {
	tFinal := ambient + power*rtheta
	out := make([]sample.Sample, n)
	for i := 0; i < n; i++ {
		t := float64(i) * period
		temp := tFinal - (tFinal-ambient)*math.Exp(-t/tau)
		out[i] = sample.Sample{Now: t, Period: period, Temperature: floatPtr(temp)}
	}
	return out
}

func TestFitHeatCapacityRecoversKnownTauAndRtheta(t *testing.T) {
	const (
		ambient = 25.0
		power   = 12.0
		rtheta  = 2.4
		tau     = 100.0
		period  = 1.0
	)
	segment := syntheticStepLeg(ambient, power, rtheta, tau, period, 600)

	heatCapacity, fittedTau, _, converged, err := FitHeatCapacity(segment, ambient, power, rtheta, 0.05, 50)
	if err != nil {
		t.Fatalf("FitHeatCapacity: %v", err)
	}
	if !converged {
		t.Fatal("FitHeatCapacity did not converge")
	}

	if relErr := math.Abs(fittedTau-tau) / tau; relErr > 0.03 {
		t.Errorf("fitted tau = %v, want within 3%% of %v (rel err %.4f)", fittedTau, tau, relErr)
	}

	wantHeatCapacity := tau / rtheta
	if relErr := math.Abs(heatCapacity-wantHeatCapacity) / wantHeatCapacity; relErr > 0.03 {
		t.Errorf("fitted heat capacity = %v, want within 3%% of %v", heatCapacity, wantHeatCapacity)
	}
}

func TestFitHeatCapacityRejectsNonDecayingLeg(t *testing.T) {
	segment := []sample.Sample{
		{Now: 0, Temperature: floatPtr(25)},
		{Now: 1, Temperature: floatPtr(26)},
		{Now: 2, Temperature: floatPtr(27)},
	}
	// tFinal computed from ambient+power*Rtheta will sit below the actual
	// rising trace, so every ln(diff) term is invalid.
	_, _, _, _, err := FitHeatCapacity(segment, 25, 0, 1, 0.05, 10)
	if err == nil {
		t.Fatal("expected an error for a non-decaying leg")
	}
}

// syntheticDelaySamples generates a single step response in DeviceTemperature
// (the reference surface reading) lagging a constant element reading by a
// known tau, so FitDelayTau should recover that tau from either half of the
// trace once split by threshold.
func syntheticDelaySamples(ambient, target, tau, period float64, n int) []sample.Sample {
	prev := ambient
	out := make([]sample.Sample, n)
	for i := 0; i < n; i++ {
		element := target
		if i == 0 {
			element = ambient
		}
		if i > 0 {
			alpha := period / (period + tau)
			prev += (element - prev) * alpha
		}
		e, d := element, prev
		out[i] = sample.Sample{
			Now:               float64(i) * period,
			Period:            period,
			Temperature:       &e,
			DeviceTemperature: &d,
		}
	}
	return out
}

func TestFitDelayTauRecoversKnownTauOnBothSidesOfThreshold(t *testing.T) {
	const (
		ambient   = 25.0
		target    = 200.0
		tau       = 40.0
		period    = 1.0
		threshold = (ambient + target) / 2
	)
	segment := syntheticDelaySamples(ambient, target, tau, period, 400)
	opts := numeric.SearchOptions{Steps: 10, Depth: 10, Threshold: 1e-3}

	tauBelow, tauAbove, err := FitDelayTau(segment, threshold, ambient, [2]float64{1, 200}, opts)
	if err != nil {
		t.Fatalf("FitDelayTau: %v", err)
	}
	if relErr := math.Abs(tauBelow-tau) / tau; relErr > 0.15 {
		t.Errorf("tauBelow = %v, want within 15%% of %v", tauBelow, tau)
	}
	if relErr := math.Abs(tauAbove-tau) / tau; relErr > 0.15 {
		t.Errorf("tauAbove = %v, want within 15%% of %v", tauAbove, tau)
	}
}
