package controller

import "testing"

func TestBangBangHysteresisTransitions(t *testing.T) {
	predictor := &fakePredictor{surface: 100}
	target := &fakeTarget{value: 100}

	bb := NewBangBang(BangBangConfig{
		Hysteresis:    Hysteresis{Low: 1, High: 0},
		FixedMaxPower: 120,
		Limits:        Limits{Min: 0, Max: 120},
		Predictor:     predictor,
		Target:        target,
	})

	// error = target - predicted = 0 initially: off, error(0) is not > low, stays off.
	power, err := bb.Compute(0, 1.5, 100, 25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if bb.IsOn() || power != 0 {
		t.Errorf("expected off with zero error, got on=%v power=%v", bb.IsOn(), power)
	}

	// Drop well below target: error > low threshold -> turn on.
	predictor.surface = 90
	power, err = bb.Compute(1.5, 1.5, 90, 25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !bb.IsOn() || power != 120 {
		t.Errorf("expected on with full power after large positive error, got on=%v power=%v", bb.IsOn(), power)
	}

	// Reach target exactly: error(0) <= -high(0) -> turn off.
	predictor.surface = 100
	power, err = bb.Compute(3, 1.5, 100, 25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if bb.IsOn() || power != 0 {
		t.Errorf("expected off once target reached, got on=%v power=%v", bb.IsOn(), power)
	}
}

func TestBangBangOnPowerCurve(t *testing.T) {
	predictor := &fakePredictor{surface: 80}
	target := &fakeTarget{value: 200}

	curve := &stepCurve{value: 75}
	bb := NewBangBang(BangBangConfig{
		Hysteresis: Hysteresis{Low: 1, High: 0},
		OnPower:    curve,
		Limits:     Limits{Min: 0, Max: 120},
		Predictor:  predictor,
		Target:     target,
	})

	power, err := bb.Compute(0, 1.5, 80, 25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !bb.IsOn() || power != 75 {
		t.Errorf("expected on-power curve value 75, got on=%v power=%v", bb.IsOn(), power)
	}
}

type stepCurve struct{ value float64 }

func (s *stepCurve) At(temperature float64) (float64, bool) { return s.value, true }
