package usart

import (
	"errors"

	"avrcore-go/x/mathx"
)

var (
	ErrInvalidConfig  = errors.New("usart: invalid config")
	ErrBaudOutOfRange = errors.New("usart: baud rate out of range")
)

// Option enables one optional feature of the driver.
type Option uint8

const (
	TxEnable          Option = 1 << iota // transmitter on
	RxEnable                             // receiver on
	AddCarriageReturn                    // send "\r\n" for every '\n'
)

// Has reports whether every option in o is enabled.
func (opts Option) Has(o Option) bool { return opts&o == o }

// Config is the fixed line configuration applied by Configure.
type Config struct {
	ClockHz uint32 // CPU clock feeding the baud generator
	Baud    uint32
	// TolerancePercent is the largest acceptable difference between the
	// requested and the achieved baud rate.
	TolerancePercent uint8
	Options          Option
}

// DefaultConfig returns 9600 baud on a 16 MHz part with the transmitter
// enabled, the receiver disabled and no line-ending translation.
func DefaultConfig() Config {
	return Config{
		ClockHz:          16_000_000,
		Baud:             9600,
		TolerancePercent: 2,
		Options:          TxEnable,
	}
}

// Validate checks the config and that a divisor exists for it.
func (c Config) Validate() error {
	_, err := c.Timing()
	return err
}

// Timing derives the baud generator settings for c.
func (c Config) Timing() (Timing, error) {
	return Divisor(c.ClockHz, c.Baud, c.TolerancePercent)
}

// Timing is a baud generator setting: the UBRR0 value and whether the
// double-speed (8x) sampling mode is used.
type Timing struct {
	UBRR uint16
	U2X  bool
}

// Baud returns the rate the setting achieves at clockHz, truncated.
func (t Timing) Baud(clockHz uint32) uint32 {
	return clockHz / (uint32(t.samples()) * (uint32(t.UBRR) + 1))
}

func (t Timing) samples() uint16 {
	if t.U2X {
		return 8
	}
	return 16
}

// Divisor picks UBRR0 for baud at clockHz. The normal 16x mode is tried
// first with a rounded divisor; if the achieved rate is off by more than
// tolPercent, double-speed mode is tried. If neither fits, it returns
// ErrBaudOutOfRange.
func Divisor(clockHz, baud uint32, tolPercent uint8) (Timing, error) {
	if clockHz == 0 || baud == 0 || tolPercent > 100 {
		return Timing{}, ErrInvalidConfig
	}
	for _, u2x := range [...]bool{false, true} {
		t := Timing{U2X: u2x}
		n := uint64(t.samples())
		div := mathx.RoundDiv(uint64(clockHz), n*uint64(baud))
		if !mathx.Between(div, 1, maxUBRR+1) {
			continue
		}
		if !withinTolerance(uint64(clockHz), uint64(baud), n*div, uint64(tolPercent)) {
			continue
		}
		t.UBRR = uint16(div - 1)
		return t, nil
	}
	return Timing{}, ErrBaudOutOfRange
}

// withinTolerance compares clock against the clock that div would need to
// hit baud exactly, scaled by 100 to stay in integers.
func withinTolerance(clock, baud, div, tol uint64) bool {
	exact := 100 * clock
	slack := baud * tol
	return exact <= div*(100*baud+slack) && exact >= div*(100*baud-slack)
}
