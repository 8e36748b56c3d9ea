// Package hw describes the 8-bit peripheral registers the drivers program
// against. On TinyGo MCU builds *volatile.Register8 satisfies Reg8 directly;
// host builds use the simulator in package sim.
package hw

// Reg8 is one memory-mapped 8-bit register.
type Reg8 interface {
	Get() uint8
	Set(value uint8)
	SetBits(mask uint8)
	ClearBits(mask uint8)
	HasBits(mask uint8) bool
}

// Bit returns the mask for bit position n.
func Bit(n uint8) uint8 { return 1 << n }
