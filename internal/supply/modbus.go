package supply

import (
	"context"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

// ModbusRegisterMap gives the fixed holding-register/coil addresses for a
// Modbus RTU power supply (spec §6 "Modbus RTU" transport), analogous in
// shape to the AddrFut* register table in the pack's gofutura driver.
type ModbusRegisterMap struct {
	VoltageSetReg uint16 // holding register, millivolts
	CurrentSetReg uint16 // holding register, milliamps
	VoltageReg    uint16 // input register, millivolts (readback)
	CurrentReg    uint16 // input register, milliamps (readback)
	OutputCoil    uint16 // coil, output enable
}

// DefaultModbusRegisterMap matches a common bench-supply RTU register
// layout.
func DefaultModbusRegisterMap() ModbusRegisterMap {
	return ModbusRegisterMap{
		VoltageSetReg: 0x0000,
		CurrentSetReg: 0x0001,
		VoltageReg:    0x0010,
		CurrentReg:    0x0011,
		OutputCoil:    0x0000,
	}
}

// ModbusSupply drives a programmable DC power supply over Modbus RTU.
// Grounded on danielkucera-gofutura's use of simonvetter/modbus
// (NewClient against an RTU URL, ReadRegister/WriteRegister by fixed
// address table).
type ModbusSupply struct {
	client   *modbus.ModbusClient
	portName string
	baudRate int
	unitID   uint8
	regs     ModbusRegisterMap
	limits   Limits
	minI     float64
}

// NewModbusSupply creates a (not yet opened) Modbus RTU supply transport.
func NewModbusSupply(portName string, baudRate int, unitID uint8, regs ModbusRegisterMap, limits Limits, minMeasurableCurrent float64) *ModbusSupply {
	if baudRate <= 0 {
		baudRate = 19200
	}
	return &ModbusSupply{
		portName: portName,
		baudRate: baudRate,
		unitID:   unitID,
		regs:     regs,
		limits:   limits,
		minI:     minMeasurableCurrent,
	}
}

// Open opens the RTU link.
func (m *ModbusSupply) Open() error {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("rtu://%s", m.portName),
		Speed:   uint(m.baudRate),
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("supply: failed to create modbus client for %s: %w", m.portName, err)
	}
	if err := client.Open(); err != nil {
		return fmt.Errorf("supply: failed to open modbus RTU link %s: %w", m.portName, err)
	}
	client.SetUnitId(m.unitID)
	m.client = client
	return nil
}

// Close closes the RTU link.
func (m *ModbusSupply) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *ModbusSupply) withTimeout(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("supply: %w", ctx.Err())
	}
}

// SetVoltage implements PowerSupply.
func (m *ModbusSupply) SetVoltage(ctx context.Context, volts, ampsLimit float64) error {
	return m.withTimeout(ctx, func() error {
		if ampsLimit > 0 {
			if err := m.client.WriteRegister(m.regs.CurrentSetReg, milli(ampsLimit)); err != nil {
				return fmt.Errorf("supply: write current-limit register: %w", err)
			}
		}
		if err := m.client.WriteRegister(m.regs.VoltageSetReg, milli(volts)); err != nil {
			return fmt.Errorf("supply: write voltage-set register: %w", err)
		}
		return nil
	})
}

// SetCurrent implements PowerSupply.
func (m *ModbusSupply) SetCurrent(ctx context.Context, amps, voltsLimit float64) error {
	return m.withTimeout(ctx, func() error {
		if voltsLimit > 0 {
			if err := m.client.WriteRegister(m.regs.VoltageSetReg, milli(voltsLimit)); err != nil {
				return fmt.Errorf("supply: write voltage-limit register: %w", err)
			}
		}
		if err := m.client.WriteRegister(m.regs.CurrentSetReg, milli(amps)); err != nil {
			return fmt.Errorf("supply: write current-set register: %w", err)
		}
		return nil
	})
}

// SetPower implements PowerSupply by the same voltage-ceiling approximation
// as the SCPI transport (see scpi.go SetPower).
func (m *ModbusSupply) SetPower(ctx context.Context, watts float64) error {
	v := m.limits.VoltageMax
	if v <= 0 {
		v = 1
	}
	return m.SetVoltage(ctx, v, watts/v)
}

// Poll implements PowerSupply.
func (m *ModbusSupply) Poll(ctx context.Context) (float64, float64, error) {
	var v, i float64
	err := m.withTimeout(ctx, func() error {
		vRaw, err := m.client.ReadRegister(m.regs.VoltageReg, modbus.INPUT_REGISTER)
		if err != nil {
			return fmt.Errorf("supply: read voltage register: %w", err)
		}
		iRaw, err := m.client.ReadRegister(m.regs.CurrentReg, modbus.INPUT_REGISTER)
		if err != nil {
			return fmt.Errorf("supply: read current register: %w", err)
		}
		v = float64(vRaw) / 1000
		i = float64(iRaw) / 1000
		return nil
	})
	return v, i, err
}

// On implements PowerSupply.
func (m *ModbusSupply) On(ctx context.Context, enabled bool) error {
	return m.withTimeout(ctx, func() error {
		if err := m.client.WriteCoil(m.regs.OutputCoil, enabled); err != nil {
			return fmt.Errorf("supply: write output coil: %w", err)
		}
		return nil
	})
}

// Limits implements PowerSupply.
func (m *ModbusSupply) Limits() Limits { return m.limits }

// MinimumMeasurableCurrent implements PowerSupply.
func (m *ModbusSupply) MinimumMeasurableCurrent() float64 { return m.minI }

func milli(v float64) uint16 {
	return uint16(v * 1000)
}
