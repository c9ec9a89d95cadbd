package calibration

import "errors"

// ErrDiverged is returned by a curve fit whose iteration is moving away
// from convergence rather than toward it (spec §4.6 "diverging delta
// aborts with a warning").
var ErrDiverged = errors.New("calibration: curve fit diverged")

// ErrNoSamples is returned when a fit is attempted on an empty or
// all-invalid segment.
var ErrNoSamples = errors.New("calibration: segment has no usable samples")
