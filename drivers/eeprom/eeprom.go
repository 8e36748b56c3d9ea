package eeprom

import (
	"avrcore-go/critical"
	"avrcore-go/errflag"
	"avrcore-go/hw"
)

// Registers is the EEPROM register block, plus SPMCSR which shares the
// programming circuitry.
type Registers struct {
	EECR   hw.Reg8
	EEDR   hw.Reg8
	EEARL  hw.Reg8
	EEARH  hw.Reg8
	SPMCSR hw.Reg8
}

// Config selects the addressable size. Zero means Size.
type Config struct {
	Size uint16
}

// Device is the EEPROM driver. Operations block until the peripheral is
// ready and have no timeout.
type Device struct {
	regs  Registers
	irq   critical.Interrupts
	flags *errflag.Register
	size  uint16
}

// New constructs a Device. A nil flags register means errflag.Global().
func New(regs Registers, irq critical.Interrupts, flags *errflag.Register, cfg Config) *Device {
	if flags == nil {
		flags = errflag.Global()
	}
	size := cfg.Size
	if size == 0 {
		size = Size
	}
	return &Device{regs: regs, irq: irq, flags: flags, size: size}
}

// Size returns the number of addressable bytes.
func (d *Device) Size() uint16 { return d.size }

// IsReady reports that neither an EEPROM write nor self-programming is in
// flight. It only reads status bits and is safe inside a critical section.
func (d *Device) IsReady() bool {
	return !d.regs.EECR.HasBits(hw.Bit(bitEEPE)) &&
		!d.regs.SPMCSR.HasBits(hw.Bit(bitSELFPRGEN))
}

// valid records an address error for addr outside the store.
func (d *Device) valid(addr uint16) bool {
	if addr >= d.size {
		d.flags.Set(errflag.EEPROMAddress)
		return false
	}
	return true
}

// ReadByte returns the byte at addr, or Sentinel with the address error
// recorded if addr is out of range.
func (d *Device) ReadByte(addr uint16) byte {
	if !d.valid(addr) {
		return Sentinel
	}
	var v byte
	critical.Guarded(d.irq, d.IsReady, func() {
		v = d.read(addr)
	})
	return v
}

// WriteByte stores v at addr. Out-of-range addresses are recorded and
// nothing is written.
func (d *Device) WriteByte(addr uint16, v byte) {
	if !d.valid(addr) {
		return
	}
	critical.Guarded(d.irq, d.IsReady, func() {
		d.write(addr, v)
	})
}

// Update writes v at addr only if the stored byte differs, saving a write
// cycle on the wear-limited medium. Read and write share one critical
// section.
func (d *Device) Update(addr uint16, v byte) {
	if !d.valid(addr) {
		return
	}
	critical.Guarded(d.irq, d.IsReady, func() {
		if d.read(addr) == v {
			return
		}
		critical.Spin(d.IsReady)
		d.write(addr, v)
	})
}

// EnableReadyInterrupt and DisableReadyInterrupt toggle EERIE. The handler
// itself is installed elsewhere.
func (d *Device) EnableReadyInterrupt() {
	critical.Do(d.irq, func() { d.regs.EECR.SetBits(hw.Bit(bitEERIE)) })
}

func (d *Device) DisableReadyInterrupt() {
	critical.Do(d.irq, func() { d.regs.EECR.ClearBits(hw.Bit(bitEERIE)) })
}

// --- register sequences; callers hold a critical section and have seen
// IsReady ---

func (d *Device) setAddress(addr uint16) {
	d.regs.EEARH.Set(uint8(addr >> 8))
	d.regs.EEARL.Set(uint8(addr))
}

func (d *Device) read(addr uint16) byte {
	d.setAddress(addr)
	d.regs.EECR.SetBits(hw.Bit(bitEERE))
	return d.regs.EEDR.Get()
}

func (d *Device) write(addr uint16, v byte) {
	d.setAddress(addr)
	d.regs.EEDR.Set(v)
	// EEMPE opens a four-cycle window in which EEPE commits; the reverse
	// order is ignored by the hardware.
	d.regs.EECR.SetBits(hw.Bit(bitEEMPE))
	d.regs.EECR.SetBits(hw.Bit(bitEEPE))
}
