package supply

import (
	"context"
	"math"
	"sync"

	"github.com/kbuckham/reflowctl/internal/thermal"
)

// SimulatorConfig parameterizes the simulated plant (spec §8 end-to-end
// harness: "a simulated PowerSupply implementing V=sqrt(P*R), I=V/R, with
// R updated by a simulated first-order thermal system").
type SimulatorConfig struct {
	Ambient float64
	// ReferenceResistance/ReferenceTemperature anchor the copper RTD
	// curve the simulator uses to turn element temperature into
	// resistance (the inverse of what RTDEstimator does).
	ReferenceResistance  float64
	ReferenceTemperature float64
	// ThermalResistance (K/W) and TimeConstant (s) define the first-order
	// plant: T_ss = ambient + power*ThermalResistance,
	// T(t+dt) = T(t) + (T_ss-T(t)) * dt/(dt+TimeConstant).
	ThermalResistance float64
	TimeConstant      float64
	Limits            Limits
	MinMeasurableCurrent float64
}

// Simulator is an in-memory PowerSupply used by property/end-to-end tests.
// It does not advance time on
// its own: call Advance(period) once per simulated tick, mirroring how a
// real supply's physical plant evolves between polls. Grounded on the
// teacher's Simulator (internal/protocol/simulator.go) in spirit — a
// deterministic stand-in for the real device satisfying the same
// interface — rewritten entirely for first-order thermal physics instead
// of ECU sensor waveforms.
type Simulator struct {
	mu sync.Mutex

	cfg         SimulatorConfig
	elementTemp float64
	power       float64
	on          bool
}

// NewSimulator creates a simulator primed at ambient temperature.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	return &Simulator{
		cfg:         cfg,
		elementTemp: cfg.Ambient,
	}
}

// Advance steps the simulated plant forward by period seconds at the
// currently commanded power.
func (s *Simulator) Advance(period float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	power := s.power
	if !s.on {
		power = 0
	}
	tau := s.cfg.TimeConstant
	if tau <= 0 {
		tau = 1
	}
	alpha := period / (period + tau)
	steadyState := s.cfg.Ambient + power*s.cfg.ThermalResistance
	s.elementTemp += (steadyState - s.elementTemp) * alpha
}

// ElementTemperature returns the simulator's internal element temperature,
// for test assertions (a reference thermometer stand-in has no need to go
// through resistance/RTD round-tripping).
func (s *Simulator) ElementTemperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elementTemp
}

func (s *Simulator) resistance() float64 {
	return s.cfg.ReferenceResistance * (1 + thermal.CopperAlpha*(s.elementTemp-s.cfg.ReferenceTemperature))
}

// SetVoltage implements PowerSupply; the simulator tracks commanded power
// only, so voltage/current setpoints are converted via the resistance
// model at the time of the call.
func (s *Simulator) SetVoltage(ctx context.Context, volts, ampsLimit float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.resistance()
	s.power = volts * volts / r
	return nil
}

// SetCurrent implements PowerSupply.
func (s *Simulator) SetCurrent(ctx context.Context, amps, voltsLimit float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.resistance()
	s.power = amps * amps * r
	return nil
}

// SetPower implements PowerSupply directly (spec's V=sqrt(P*R) model).
func (s *Simulator) SetPower(ctx context.Context, watts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = watts
	return nil
}

// Poll implements PowerSupply, returning V=sqrt(P*R), I=V/R at the current
// simulated resistance.
func (s *Simulator) Poll(ctx context.Context) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	power := s.power
	if !s.on {
		power = 0
	}
	r := s.resistance()
	v := math.Sqrt(power * r)
	i := 0.0
	if r > 0 {
		i = v / r
	}
	return v, i, nil
}

// On implements PowerSupply.
func (s *Simulator) On(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = enabled
	return nil
}

// Limits implements PowerSupply.
func (s *Simulator) Limits() Limits { return s.cfg.Limits }

// MinimumMeasurableCurrent implements PowerSupply.
func (s *Simulator) MinimumMeasurableCurrent() float64 { return s.cfg.MinMeasurableCurrent }
