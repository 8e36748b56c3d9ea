package usart

import (
	"io"

	"tinygo.org/x/drivers"
)

// Port exposes a Device through the stream interfaces. It adds no
// buffering: every byte goes through TxByte or RxByte.
type Port struct {
	dev *Device
}

var (
	_ drivers.UART    = (*Port)(nil)
	_ io.ByteReader   = (*Port)(nil)
	_ io.ByteWriter   = (*Port)(nil)
	_ io.StringWriter = (*Port)(nil)
)

// NewPort wraps dev.
func NewPort(dev *Device) *Port { return &Port{dev: dev} }

// Device returns the wrapped driver.
func (p *Port) Device() *Device { return p.dev }

// Read blocks for the first byte, then returns whatever else has already
// arrived without waiting further.
func (p *Port) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	b[0] = p.dev.RxByte()
	n := 1
	for n < len(b) && p.dev.RxReady() {
		b[n] = p.dev.RxByte()
		n++
	}
	return n, nil
}

// Write transmits every byte of b.
func (p *Port) Write(b []byte) (int, error) {
	for _, c := range b {
		p.dev.TxByte(c)
	}
	return len(b), nil
}

// WriteString transmits every byte of s.
func (p *Port) WriteString(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		p.dev.TxByte(s[i])
	}
	return len(s), nil
}

// Buffered reports 1 when a received byte is waiting in UDR0, else 0.
func (p *Port) Buffered() int {
	if p.dev.RxReady() {
		return 1
	}
	return 0
}

func (p *Port) ReadByte() (byte, error) { return p.dev.RxByte(), nil }

func (p *Port) WriteByte(c byte) error {
	p.dev.TxByte(c)
	return nil
}
