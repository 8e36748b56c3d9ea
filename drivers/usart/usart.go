package usart

import (
	"avrcore-go/critical"
	"avrcore-go/errflag"
	"avrcore-go/hw"
)

// Registers is the USART0 register block.
type Registers struct {
	UCSRA hw.Reg8
	UCSRB hw.Reg8
	UCSRC hw.Reg8
	UBRRL hw.Reg8
	UBRRH hw.Reg8
	UDR   hw.Reg8
}

// Device is the USART driver. Transmit assumes a single producer; receive
// a single consumer.
type Device struct {
	regs   Registers
	irq    critical.Interrupts
	flags  *errflag.Register
	cfg    Config
	timing Timing

	configured bool
}

// New validates cfg and constructs a Device. The peripheral is not touched
// until Configure. A nil flags register means errflag.Global().
func New(regs Registers, irq critical.Interrupts, flags *errflag.Register, cfg Config) (*Device, error) {
	t, err := cfg.Timing()
	if err != nil {
		return nil, err
	}
	if flags == nil {
		flags = errflag.Global()
	}
	return &Device{regs: regs, irq: irq, flags: flags, cfg: cfg, timing: t}, nil
}

// Config returns the configuration the device was built with.
func (d *Device) Config() Config { return d.cfg }

// Timing returns the baud generator setting Configure programs.
func (d *Device) Timing() Timing { return d.timing }

// Configured reports whether Configure has run.
func (d *Device) Configured() bool { return d.configured }

// Configure programs the baud generator, an 8N1 frame and the transmitter
// and receiver enables, and discards error flags left from a previous
// session. It runs as one critical section and may be called again to
// re-apply the same settings.
func (d *Device) Configure() {
	critical.Do(d.irq, func() {
		d.regs.UBRRH.Set(uint8(d.timing.UBRR >> 8))
		d.regs.UBRRL.Set(uint8(d.timing.UBRR))
		if d.timing.U2X {
			d.regs.UCSRA.SetBits(hw.Bit(bitU2X))
		} else {
			d.regs.UCSRA.ClearBits(hw.Bit(bitU2X))
		}

		// Error flags clear when written as zero. UDRE must always be
		// written as zero.
		d.regs.UCSRA.ClearBits(hw.Bit(bitUPE) | hw.Bit(bitDOR) | hw.Bit(bitFE) | hw.Bit(bitUDRE))

		d.regs.UCSRC.Set(frame8N1)

		d.enable(bitTXEN, d.cfg.Options.Has(TxEnable))
		d.enable(bitRXEN, d.cfg.Options.Has(RxEnable))
		d.configured = true
	})
}

func (d *Device) enable(bit uint8, on bool) {
	if on {
		d.regs.UCSRB.SetBits(hw.Bit(bit))
	} else {
		d.regs.UCSRB.ClearBits(hw.Bit(bit))
	}
}

// TxReady reports that the transmit buffer can take a byte.
func (d *Device) TxReady() bool { return d.regs.UCSRA.HasBits(hw.Bit(bitUDRE)) }

// TxTransmitted reports that the last byte has left the shift register.
func (d *Device) TxTransmitted() bool { return d.regs.UCSRA.HasBits(hw.Bit(bitTXC)) }

// RxReady reports that a received byte is waiting.
func (d *Device) RxReady() bool { return d.regs.UCSRA.HasBits(hw.Bit(bitRXC)) }

// TxByte waits for the transmit buffer and writes v. With
// AddCarriageReturn, '\n' is preceded by '\r'.
func (d *Device) TxByte(v byte) {
	if v == '\n' && d.cfg.Options.Has(AddCarriageReturn) {
		d.tx('\r')
	}
	d.tx(v)
}

func (d *Device) tx(v byte) {
	critical.Spin(d.TxReady)
	d.regs.UDR.Set(v)
}

// RxByte waits for a received byte and returns it. Parity, overrun and
// frame errors flagged for the byte are recorded first; the byte is
// delivered regardless. Reading UDR0 acknowledges the status bits.
func (d *Device) RxByte() byte {
	critical.Spin(d.RxReady)
	st := d.regs.UCSRA.Get()
	if st&hw.Bit(bitUPE) != 0 {
		d.flags.Set(errflag.USARTParity)
	}
	if st&hw.Bit(bitDOR) != 0 {
		d.flags.Set(errflag.USARTOverrun)
	}
	if st&hw.Bit(bitFE) != 0 {
		d.flags.Set(errflag.USARTFrame)
	}
	return d.regs.UDR.Get()
}

// Interrupt enable toggles. They only flip UDRIE and RXCIE; installing the
// handlers is up to the caller.

func (d *Device) EnableTxInterrupt()  { d.toggle(bitUDRIE, true) }
func (d *Device) DisableTxInterrupt() { d.toggle(bitUDRIE, false) }
func (d *Device) EnableRxInterrupt()  { d.toggle(bitRXCIE, true) }
func (d *Device) DisableRxInterrupt() { d.toggle(bitRXCIE, false) }

// toggle is a read-modify-write of UCSR0B, which Configure also writes.
func (d *Device) toggle(bit uint8, on bool) {
	critical.Do(d.irq, func() { d.enable(bit, on) })
}
