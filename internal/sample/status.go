package sample

// Status is the mutable, per-tick builder for a Sample (spec §3: "Status
// (mutable per-tick): the Sample being built"). Each field setter
// corresponds to a step of the event loop's poll -> estimate -> predict ->
// control -> apply pipeline; Build() freezes it into an immutable Sample.
//
// Unlike the teacher's Status, this carries no back-pointer to a previous
// tick (spec §9 flags "last/next back-pointers forming a cycle" for
// re-architecture) — history lives in a History ring buffer owned by the
// caller instead.
type Status struct {
	now    float64
	period float64

	voltage float64
	current float64

	resistance  *float64
	temperature *float64

	predictedTemperature float64
	ambient              float64
	deviceTemperature    *float64

	stage    string
	setPower float64
}

// NewStatus begins building a Sample for the tick at time now, period
// seconds after the previous tick.
func NewStatus(now, period, ambient float64) *Status {
	return &Status{now: now, period: period, ambient: ambient}
}

// SetPoll records the polled voltage/current (spec §4.5 step b).
func (s *Status) SetPoll(voltage, current float64) *Status {
	s.voltage = voltage
	s.current = current
	return s
}

// SetResistance records the measured resistance, or leaves it absent when
// current was below the supply's minimum measurable current.
func (s *Status) SetResistance(resistance float64) *Status {
	s.resistance = &resistance
	return s
}

// SetTemperature records the RTD-estimated temperature (spec §4.5 step c).
func (s *Status) SetTemperature(temperature float64) *Status {
	s.temperature = &temperature
	return s
}

// SetPredictedTemperature records the predictor's surface estimate.
func (s *Status) SetPredictedTemperature(t float64) *Status {
	s.predictedTemperature = t
	return s
}

// SetDeviceTemperature attaches a reference-thermometer reading (spec §4.5
// step d); absent unless a reference thermometer is configured.
func (s *Status) SetDeviceTemperature(hot float64) *Status {
	s.deviceTemperature = &hot
	return s
}

// SetStage records the calibration/run stage label.
func (s *Status) SetStage(stage string) *Status {
	s.stage = stage
	return s
}

// SetPower records the commanded set-point power (spec §4.5 step e).
func (s *Status) SetPower(watts float64) *Status {
	s.setPower = watts
	return s
}

// Build freezes the builder into an immutable Sample.
func (s *Status) Build() Sample {
	return Sample{
		Now:                  s.now,
		Period:               s.period,
		Voltage:              s.voltage,
		Current:              s.current,
		Power:                s.voltage * s.current,
		Resistance:           s.resistance,
		Temperature:          s.temperature,
		PredictedTemperature: s.predictedTemperature,
		Ambient:              s.ambient,
		DeviceTemperature:    s.deviceTemperature,
		Stage:                s.stage,
		SetPower:             s.setPower,
	}
}
