//go:build !avr

package platform

import (
	"sync"

	"avrcore-go/drivers/eeprom"
	"avrcore-go/drivers/usart"
	"avrcore-go/sim"
)

var (
	hostOnce sync.Once
	hostMCU  *sim.MCU
)

// Open returns the peripherals of a process-wide simulated chip.
func Open() Peripherals {
	return FromSim(Simulator())
}

// Simulator exposes the chip behind Open, for tests and host tools that
// want to drive the line or force resets.
func Simulator() *sim.MCU {
	hostOnce.Do(func() { hostMCU = sim.NewMCU(eeprom.Size) })
	return hostMCU
}

// FromSim maps a simulated chip onto Peripherals.
func FromSim(m *sim.MCU) Peripherals {
	return Peripherals{
		IRQ: m.CPU,
		EEPROM: eeprom.Registers{
			EECR:   m.EEPROM.EECR,
			EEDR:   m.EEPROM.EEDR,
			EEARL:  m.EEPROM.EEARL,
			EEARH:  m.EEPROM.EEARH,
			SPMCSR: m.EEPROM.SPMCSR,
		},
		USART: usart.Registers{
			UCSRA: m.USART.UCSRA,
			UCSRB: m.USART.UCSRB,
			UCSRC: m.USART.UCSRC,
			UBRRL: m.USART.UBRRL,
			UBRRH: m.USART.UBRRH,
			UDR:   m.USART.UDR,
		},
		Flags:      m.Flags,
		ResetCause: m.ResetCause,
	}
}
