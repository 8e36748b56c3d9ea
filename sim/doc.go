// Package sim simulates the ATmega328P peripherals the drivers program:
// the global interrupt flag, the EEPROM controller, USART0 and MCUSR.
//
// Time is measured in register polls rather than clock cycles, so tests can
// force busy/ready transitions deterministically. Hooks let a test raise an
// "interrupt" at a chosen poll to exercise the critical-section rules.
package sim
