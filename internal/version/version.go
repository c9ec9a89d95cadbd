package version

const (
	Version     = "0.1.0"
	Name        = "reflowctl"
	Description = "Closed-loop controller for a DC-powered solder-reflow hotplate: RTD temperature sensing, two-stage thermal prediction, HybridPI/BangBang control, and an automated calibration pipeline."
	Copyright   = "© 2026 Kevin Buckham"
	Developers  = "Kevin Buckham"
	License     = "GPL-2.0-or-later"
	URL         = "https://github.com/kbuckham/reflowctl"
)

// Injected at build time via -ldflags
var (
	GitHash   = "dev"
	BuildTime = "unknown"
)

// FullVersion returns version string with git hash and build time.
func FullVersion() string {
	return Version + " (" + GitHash + ") built " + BuildTime
}
