package loop

import "errors"

// Sentinel fatal-shutdown reasons (spec §7 "Error kinds"). The CLI layer
// maps these to the process's non-zero exit code.
var (
	// ErrRunaway covers both the RTD's rate-of-change check and the
	// element cutoff-temperature safety limit (spec §4.3.3, §7).
	ErrRunaway = errors.New("loop: runaway condition, shutting down")
	// ErrIdentityMismatch names the identity-check failure kind (spec §6,
	// §7). Nothing in this module returns it: SCPISupply.Open reports a
	// mismatch with its own error.
	ErrIdentityMismatch = errors.New("loop: power supply identity mismatch")
	// ErrFeedForwardUnsupported mirrors the controller construction
	// failure (spec §4.3.2 fail mode) for callers that discover it later.
	ErrFeedForwardUnsupported = errors.New("loop: feed-forward requires a power-capable predictor")
	// ErrCalibrationDiverged names the fit-divergence failure kind (spec
	// §4.6, §7). The calibration package reports divergence with its own
	// calibration.ErrDiverged, not with this value.
	ErrCalibrationDiverged = errors.New("loop: calibration fit diverged")
)
