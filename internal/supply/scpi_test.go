package supply

import (
	"context"
	"regexp"
	"strings"
	"testing"
)

func newTestSCPISupply() *SCPISupply {
	return NewSCPISupply("/dev/null", 0, DefaultCommandSet(), regexp.MustCompile("^KORAD"), Limits{VoltageMax: 30, CurrentMax: 5}, 0.01)
}

func TestSCPISupplyDefaultsBaudRate(t *testing.T) {
	s := NewSCPISupply("/dev/null", 0, DefaultCommandSet(), nil, Limits{}, 0)
	if s.baudRate != DefaultBaudRate {
		t.Errorf("baudRate = %d, want default %d", s.baudRate, DefaultBaudRate)
	}
}

func TestSCPISupplySendFailsBeforeOpen(t *testing.T) {
	s := newTestSCPISupply()
	ctx := context.Background()

	if err := s.SetVoltage(ctx, 5, 1); err == nil {
		t.Error("SetVoltage on unopened port should fail")
	} else if !strings.Contains(err.Error(), "not open") {
		t.Errorf("SetVoltage error = %q, want mention of port not open", err.Error())
	}

	if _, _, err := s.Poll(ctx); err == nil {
		t.Error("Poll on unopened port should fail")
	}

	if err := s.On(ctx, true); err == nil {
		t.Error("On on unopened port should fail")
	}
}

func TestSCPISupplyLimitsAndMinimumCurrent(t *testing.T) {
	s := newTestSCPISupply()
	if s.Limits().VoltageMax != 30 {
		t.Errorf("Limits().VoltageMax = %v, want 30", s.Limits().VoltageMax)
	}
	if s.MinimumMeasurableCurrent() != 0.01 {
		t.Errorf("MinimumMeasurableCurrent() = %v, want 0.01", s.MinimumMeasurableCurrent())
	}
}

func TestDefaultCommandSetMatchesKoradFamily(t *testing.T) {
	cs := DefaultCommandSet()
	if cs.Identify != "*IDN?" {
		t.Errorf("Identify = %q, want *IDN?", cs.Identify)
	}
	if cs.VoltageSet == "" || cs.CurrentSet == "" || cs.VoltageQuery == "" || cs.CurrentQuery == "" || cs.OnOff == "" {
		t.Error("DefaultCommandSet should populate every command")
	}
}
