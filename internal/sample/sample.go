// Package sample defines the per-tick Sample record the event loop
// produces, the Status builder that assembles one, and a ring buffer of
// history that replaces the "last sample" back-pointer chain flagged in
// spec.md §9 Design Notes.
package sample

// Sample is one tick's complete, immutable record (spec §3).
type Sample struct {
	Now    float64 // seconds since loop start
	Period float64 // seconds since the previous tick

	Voltage float64
	Current float64
	Power   float64 // = Voltage * Current

	// Resistance and Temperature are absent when Current was below the
	// supply's minimum measurable current (spec §3 invariant).
	Resistance  *float64
	Temperature *float64

	PredictedTemperature float64
	Ambient              float64

	// DeviceTemperature is populated only when a reference thermometer is
	// attached (spec §6 "reference thermometer (optional)").
	DeviceTemperature *float64

	Stage    string
	SetPower float64
}

// TemperatureOrZero returns Temperature if present, else 0 and false.
func (s Sample) TemperatureOrZero() (float64, bool) {
	if s.Temperature == nil {
		return 0, false
	}
	return *s.Temperature, true
}

// ResistanceOrZero returns Resistance if present, else 0 and false.
func (s Sample) ResistanceOrZero() (float64, bool) {
	if s.Resistance == nil {
		return 0, false
	}
	return *s.Resistance, true
}
