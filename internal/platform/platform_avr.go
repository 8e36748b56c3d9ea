//go:build avr

package platform

import (
	"device/avr"
	"runtime/interrupt"

	"avrcore-go/boot"
	"avrcore-go/critical"
	"avrcore-go/drivers/eeprom"
	"avrcore-go/drivers/usart"
	"avrcore-go/errflag"
)

// avrIRQ is SREG.I.
type avrIRQ struct{}

func (avrIRQ) Disable() critical.State { return critical.State(interrupt.Disable()) }

func (avrIRQ) Restore(s critical.State) { interrupt.Restore(interrupt.State(s)) }

// Open returns the ATmega328P peripherals.
func Open() Peripherals {
	return Peripherals{
		IRQ: avrIRQ{},
		EEPROM: eeprom.Registers{
			EECR:   avr.EECR,
			EEDR:   avr.EEDR,
			EEARL:  avr.EEARL,
			EEARH:  avr.EEARH,
			SPMCSR: avr.SPMCSR,
		},
		USART: usart.Registers{
			UCSRA: avr.UCSR0A,
			UCSRB: avr.UCSR0B,
			UCSRC: avr.UCSR0C,
			UBRRL: avr.UBRR0L,
			UBRRH: avr.UBRR0H,
			UDR:   avr.UDR0,
		},
		// Global sits in .bss, which the runtime zeroes on every reset, so
		// boot.Start always finds it unbooted and starts it at None.
		Flags:      errflag.Global(),
		ResetCause: resetCause,
	}
}

func resetCause() boot.Cause {
	c := boot.Cause(avr.MCUSR.Get())
	avr.MCUSR.Set(0)
	return c
}
