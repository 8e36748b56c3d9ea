// Package usart drives USART0 of the ATmega328P in polled, single-byte
// mode. Receive errors are reported through the shared error register.
package usart

const (
	// --- UCSR0A bits ---
	bitMPCM = 0
	bitU2X  = 1 // double transmission speed
	bitUPE  = 2 // parity error
	bitDOR  = 3 // data overrun
	bitFE   = 4 // frame error
	bitUDRE = 5 // data register empty
	bitTXC  = 6 // transmit complete
	bitRXC  = 7 // receive complete

	// --- UCSR0B bits ---
	bitUCSZ2 = 2
	bitTXEN  = 3
	bitRXEN  = 4
	bitUDRIE = 5 // data register empty interrupt enable
	bitTXCIE = 6
	bitRXCIE = 7 // receive complete interrupt enable

	// --- UCSR0C bits ---
	bitUCSZ0 = 1
	bitUCSZ1 = 2
	bitUSBS  = 3
	bitUPM0  = 4

	// frame8N1 selects 8 data bits, no parity, 1 stop bit.
	frame8N1 = 1<<bitUCSZ1 | 1<<bitUCSZ0

	// maxUBRR is the largest value the 12-bit baud register holds.
	maxUBRR = 0x0FFF
)
