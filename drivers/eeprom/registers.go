// Package eeprom drives the on-chip EEPROM of the ATmega328P one byte at a
// time. Errors are reported through the shared error register, never
// returned.
package eeprom

const (
	// Size of the on-chip store in bytes.
	Size = 1024
	// Sentinel is returned by ReadByte for an address outside the store.
	Sentinel = 0xFF

	// --- EECR bits ---
	bitEERE  = 0 // read enable (strobe)
	bitEEPE  = 1 // write enable; stays set while a write is in flight
	bitEEMPE = 2 // master write enable; must precede EEPE
	bitEERIE = 3 // ready interrupt enable

	// --- SPMCSR bits ---
	bitSELFPRGEN = 0 // self-programming in flight
)
