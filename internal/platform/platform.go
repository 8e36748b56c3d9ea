// Package platform wires the drivers to the chip: TinyGo's device/avr
// registers on AVR builds, the simulator everywhere else.
package platform

import (
	"avrcore-go/boot"
	"avrcore-go/critical"
	"avrcore-go/drivers/eeprom"
	"avrcore-go/drivers/usart"
	"avrcore-go/errflag"
)

// Peripherals is everything the firmware needs from the chip.
type Peripherals struct {
	IRQ    critical.Interrupts
	EEPROM eeprom.Registers
	USART  usart.Registers
	// Flags is the error register in memory the startup code leaves alone.
	Flags *errflag.Register
	// ResetCause reads and clears the reset-cause register.
	ResetCause func() boot.Cause
}
