package sim

import (
	"github.com/golang/glog"

	"avrcore-go/boot"
	"avrcore-go/errflag"
)

// MCU bundles the simulated peripherals of one chip.
//
// Flags stands in for the .noinit RAM holding the error register: it keeps
// its contents across Reset and is filled with garbage by PowerOn, so
// only the bootstrap can make it meaningful.
type MCU struct {
	CPU    *CPU
	EEPROM *EEPROM
	USART  *USART
	MCUSR  *Reg8
	Flags  *errflag.Register
}

// NewMCU returns a chip that has just been powered on. eepromSize of zero
// means 1024 bytes.
func NewMCU(eepromSize int) *MCU {
	if eepromSize <= 0 {
		eepromSize = 1024
	}
	cpu := NewCPU()
	m := &MCU{
		CPU:    cpu,
		EEPROM: NewEEPROM(eepromSize, cpu),
		USART:  NewUSART(),
		MCUSR:  NewCell("MCUSR", 0),
		Flags:  errflag.New(),
	}
	m.PowerOn()
	return m
}

// PowerOn models a cold start: RAM is garbage and MCUSR reports PORF.
// EEPROM contents survive. Flags keeps its identity, so drivers built
// before the power cycle see the new contents.
func (m *MCU) PowerOn() {
	m.Flags.PowerLoss(0xA5)
	m.resetPeripherals()
	m.MCUSR.Set(uint8(boot.PowerOn))
	glog.V(1).Info("sim mcu: power on")
}

// Reset models a warm reset with the given cause. RAM, and with it the
// error register, keeps its contents; MCUSR accumulates the cause.
func (m *MCU) Reset(cause boot.Cause) {
	m.resetPeripherals()
	m.MCUSR.SetBits(uint8(cause))
	glog.V(1).Infof("sim mcu: reset (%s)", cause)
}

// ResetCause reads and clears MCUSR, as the bootstrap does on hardware.
func (m *MCU) ResetCause() boot.Cause {
	c := boot.Cause(m.MCUSR.Get())
	m.MCUSR.Set(0)
	return c
}

func (m *MCU) resetPeripherals() {
	m.CPU.reset()
	m.EEPROM.reset()
	m.USART.reset()
}
