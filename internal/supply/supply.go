// Package supply defines the PowerSupply contract (spec §6) and its two
// concrete transports — SCPI over serial and Modbus RTU — plus a simulated
// supply used by tests and the calibration/controller end-to-end harness.
package supply

import "context"

// Limits describes the supply's operating envelope (spec §6 "limits()").
type Limits struct {
	VoltageMin, VoltageMax float64
	CurrentMin, CurrentMax float64
	PowerMin, PowerMax     float64
}

// PowerSupply is the abstract contract every transport implements (spec
// §6). All operations take a context so callers can bound response time
// (spec §5 "every blocking I/O call has an upper bound").
type PowerSupply interface {
	// SetVoltage commands a voltage setpoint, with an optional current
	// compliance limit (0 means "leave unchanged").
	SetVoltage(ctx context.Context, volts, ampsLimit float64) error
	// SetCurrent commands a current setpoint, with an optional voltage
	// compliance limit (0 means "leave unchanged").
	SetCurrent(ctx context.Context, amps, voltsLimit float64) error
	// SetPower commands a power setpoint in watts.
	SetPower(ctx context.Context, watts float64) error
	// Poll reads back the present voltage and current.
	Poll(ctx context.Context) (volts, amps float64, err error)
	// On enables or disables the output.
	On(ctx context.Context, enabled bool) error
	// Limits returns the supply's configured operating envelope.
	Limits() Limits
	// MinimumMeasurableCurrent is the smallest current the supply can
	// reliably report; below it, resistance/temperature are unavailable
	// (spec §3, §4.1).
	MinimumMeasurableCurrent() float64
}
