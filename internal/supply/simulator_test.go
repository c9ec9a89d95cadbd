package supply

import (
	"context"
	"math"
	"testing"
)

func newTestSimulator() *Simulator {
	return NewSimulator(SimulatorConfig{
		Ambient:              25,
		ReferenceResistance:  10,
		ReferenceTemperature: 25,
		ThermalResistance:    5,
		TimeConstant:         20,
		Limits:               Limits{VoltageMax: 30, CurrentMax: 5, PowerMax: 100},
		MinMeasurableCurrent: 0.01,
	})
}

func TestSimulatorIdleStaysAtAmbient(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator()
	if err := sim.On(ctx, true); err != nil {
		t.Fatalf("On: %v", err)
	}
	for i := 0; i < 50; i++ {
		sim.Advance(1)
	}
	if got := sim.ElementTemperature(); math.Abs(got-25) > 1e-9 {
		t.Fatalf("idle element temperature = %v, want 25", got)
	}
	v, i, err := sim.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if v != 0 || i != 0 {
		t.Fatalf("idle poll = (%v, %v), want (0, 0)", v, i)
	}
}

func TestSimulatorConvergesToSteadyState(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator()
	sim.On(ctx, true)
	sim.SetPower(ctx, 10)

	for i := 0; i < 2000; i++ {
		sim.Advance(1)
	}

	want := sim.cfg.Ambient + 10*sim.cfg.ThermalResistance
	if got := sim.ElementTemperature(); math.Abs(got-want) > 0.1 {
		t.Fatalf("element temperature = %v, want ~%v", got, want)
	}
}

func TestSimulatorPollMatchesVIRModel(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator()
	sim.On(ctx, true)
	sim.SetPower(ctx, 8)
	for i := 0; i < 500; i++ {
		sim.Advance(1)
	}

	v, i, err := sim.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	r := sim.resistance()
	wantV := math.Sqrt(8 * r)
	wantI := wantV / r
	if math.Abs(v-wantV) > 1e-6 {
		t.Fatalf("voltage = %v, want %v", v, wantV)
	}
	if math.Abs(i-wantI) > 1e-6 {
		t.Fatalf("current = %v, want %v", i, wantI)
	}
	if math.Abs(v*i-8) > 1e-6 {
		t.Fatalf("v*i = %v, want 8 (power conservation)", v*i)
	}
}

func TestSimulatorOffZeroesPower(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator()
	sim.SetPower(ctx, 20)
	if err := sim.On(ctx, false); err != nil {
		t.Fatalf("On: %v", err)
	}
	for i := 0; i < 100; i++ {
		sim.Advance(1)
	}
	if got := sim.ElementTemperature(); math.Abs(got-25) > 1e-6 {
		t.Fatalf("element temperature with output off = %v, want 25", got)
	}
}

func TestSimulatorSetVoltageAndCurrentDeriveConsistentPower(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator()
	r := sim.resistance()

	if err := sim.SetVoltage(ctx, 10, 0); err != nil {
		t.Fatalf("SetVoltage: %v", err)
	}
	if got, want := sim.power, 100/r; math.Abs(got-want) > 1e-9 {
		t.Fatalf("power after SetVoltage = %v, want %v", got, want)
	}

	if err := sim.SetCurrent(ctx, 2, 0); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if got, want := sim.power, 4*r; math.Abs(got-want) > 1e-9 {
		t.Fatalf("power after SetCurrent = %v, want %v", got, want)
	}
}

func TestSimulatorLimitsAndMinimumCurrent(t *testing.T) {
	sim := newTestSimulator()
	if sim.Limits().PowerMax != 100 {
		t.Fatalf("Limits().PowerMax = %v, want 100", sim.Limits().PowerMax)
	}
	if sim.MinimumMeasurableCurrent() != 0.01 {
		t.Fatalf("MinimumMeasurableCurrent() = %v, want 0.01", sim.MinimumMeasurableCurrent())
	}
}
