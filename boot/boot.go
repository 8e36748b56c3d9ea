// Package boot is the first-stage bootstrap: it decides from the reset
// cause whether the error register starts fresh or keeps what it held
// before the reset.
package boot

import "avrcore-go/errflag"

// Cause is the MCUSR reset-cause bit set.
type Cause uint8

const (
	PowerOn  Cause = 1 << iota // PORF
	External                   // EXTRF
	BrownOut                   // BORF
	Watchdog                   // WDRF

	causeMask = PowerOn | External | BrownOut | Watchdog
)

// Cold reports a reset after which RAM contents are meaningless: power-on,
// brown-out, or no recorded cause at all.
func (c Cause) Cold() bool {
	c &= causeMask
	return c == 0 || c&(PowerOn|BrownOut) != 0
}

func (c Cause) String() string {
	switch {
	case c&PowerOn != 0:
		return "power_on"
	case c&BrownOut != 0:
		return "brown_out"
	case c&Watchdog != 0:
		return "watchdog"
	case c&External != 0:
		return "external"
	default:
		return "unknown"
	}
}

// Start initializes flags for the given reset cause and reports whether it
// was a cold boot. It is the only code path that initializes the register.
func Start(flags *errflag.Register, cause Cause) (cold bool) {
	if cause.Cold() {
		flags.ColdBoot()
		return true
	}
	flags.WarmRestart()
	return false
}
