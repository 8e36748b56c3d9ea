// Package errflag holds the process-wide 8-bit error register.
//
// Layout: [m4 m3 m2 m1 e4 e3 e2 e1]. The high nibble names the reporting
// module, the low nibble the condition. Every condition owns its bits and is
// recorded with a bitwise OR, so simultaneous conditions stay visible until
// someone clears them explicitly.
package errflag

import (
	"sync/atomic"

	"avrcore-go/x/conv"
)

// Flag is a raw error register value or mask.
type Flag uint8

// Module bits (high nibble).
const (
	ModEEPROM Flag = 0x10
	ModUSART  Flag = 0x20

	modMask  Flag = 0xF0
	condMask Flag = 0x0F
)

// Canonical codes.
const (
	None Flag = 0x00

	EEPROMAddress Flag = ModEEPROM // address outside the store

	USARTParity  Flag = ModUSART | 0x01
	USARTOverrun Flag = ModUSART | 0x02
	USARTFrame   Flag = ModUSART | 0x04
)

// Condition names one error code.
type Condition struct {
	Code Flag
	Name string
}

// Known conditions in reporting order.
var conditions = [...]Condition{
	{EEPROMAddress, "eeprom_address"},
	{USARTParity, "usart_parity"},
	{USARTOverrun, "usart_overrun"},
	{USARTFrame, "usart_frame"},
}

// Has reports whether every bit of mask is set in f.
func (f Flag) Has(mask Flag) bool { return mask != None && f&mask == mask }

// Module returns the module nibble of f.
func (f Flag) Module() Flag { return f & modMask }

// Conditions lists the known conditions recorded in f.
func (f Flag) Conditions() []Condition {
	var out []Condition
	for _, c := range conditions {
		if f.Has(c.Code) {
			out = append(out, c)
		}
	}
	return out
}

// String renders f as "0x21(usart_parity)". Bits that match no known
// condition are still visible in the hex prefix.
func (f Flag) String() string {
	var buf [2]byte
	s := "0x" + string(conv.U8Hex(buf[:], uint8(f)))
	if f == None {
		return s + "(none)"
	}
	cs := f.Conditions()
	if len(cs) == 0 {
		return s
	}
	s += "("
	for i, c := range cs {
		if i > 0 {
			s += "|"
		}
		s += c.Name
	}
	return s + ")"
}

// Register is the shared error register. The zero value reads None.
//
// Set may be called from interrupt context. Nothing in this package clears
// the register on its own; only ColdBoot, Clear and Reset do.
type Register struct {
	v      atomic.Uint32
	booted atomic.Bool
}

// New returns a fresh register, for tests and simulators.
func New() *Register { return &Register{} }

var global Register

// Global returns the single process-wide register.
func Global() *Register { return &global }

// ColdBoot initializes the register to None. Only the first-stage bootstrap
// calls it, after a power-on or brown-out reset.
func (r *Register) ColdBoot() {
	r.v.Store(uint32(None))
	r.booted.Store(true)
}

// WarmRestart keeps whatever the register held before the reset. A register
// that never saw a cold boot is initialized as if it had.
func (r *Register) WarmRestart() {
	if !r.booted.Load() {
		r.ColdBoot()
	}
}

// Booted reports whether ColdBoot ran at least once.
func (r *Register) Booted() bool { return r.booted.Load() }

// Set ORs code into the register.
func (r *Register) Set(code Flag) { r.v.Or(uint32(code)) }

// Load returns the current value.
func (r *Register) Load() Flag { return Flag(r.v.Load()) }

// Clear removes the conditions in mask and returns the value before
// clearing. The USART module bit is shared by its conditions and stays set
// while any of them is still recorded.
func (r *Register) Clear(mask Flag) Flag {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, uint32(clearBits(Flag(old), mask))) {
			return Flag(old)
		}
	}
}

func clearBits(v, mask Flag) Flag {
	v &^= mask & condMask
	mods := mask & modMask
	if v&condMask != 0 {
		mods &^= ModUSART
	}
	return v &^ mods
}

// PowerLoss leaves r as RAM looks after power comes back: holding garbage
// and never booted. Simulators use it so that pointers to r stay valid
// across a power cycle.
func (r *Register) PowerLoss(garbage Flag) {
	r.v.Store(uint32(garbage))
	r.booted.Store(false)
}

// Reset clears every bit and returns the previous value.
func (r *Register) Reset() Flag { return Flag(r.v.Swap(uint32(None))) }
