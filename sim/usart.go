package sim

import (
	"io"
	"sync"

	"github.com/golang/glog"
)

// UCSR0A bits.
const (
	mpcm = 1 << 0
	u2x  = 1 << 1
	upe  = 1 << 2
	dor  = 1 << 3
	fe   = 1 << 4
	udre = 1 << 5
	txc  = 1 << 6
	rxc  = 1 << 7

	rxErrMask = upe | dor | fe
)

// UCSR0B bits.
const (
	txen   = 1 << 3
	rxen   = 1 << 4
	udrie  = 1 << 5
	txcie  = 1 << 6
	rxcie  = 1 << 7
	ucsrbR = txen | rxen | udrie | txcie | rxcie | 0x07
)

// Reset values.
const (
	ucsraReset = udre
	ucsrcReset = 0x06 // 8N1
)

// Fault marks a received byte with link-layer errors.
type Fault uint8

const (
	FaultParity  Fault = upe
	FaultOverrun Fault = dor
	FaultFrame   Fault = fe
)

// DefaultTxCycles is the number of UCSR0A polls a byte occupies the
// transmit buffer.
const DefaultTxCycles = 2

type rxFrame struct {
	b     byte
	fault Fault
}

// USARTConfig is the configuration visible in the control registers.
type USARTConfig struct {
	U2X   bool
	UCSRB uint8
	UCSRC uint8
	UBRR  uint16
}

// USART simulates USART0. Transmitted bytes go to the line writer; received
// bytes are queued with Inject, each optionally carrying faults.
type USART struct {
	UCSRA *Reg8
	UCSRB *Reg8
	UCSRC *Reg8
	UBRRL *Reg8
	UBRRH *Reg8
	UDR   *Reg8

	mu       sync.Mutex
	ucsra    uint8 // MPCM and U2X only; status bits are derived
	ucsrb    uint8
	ucsrc    uint8
	ubrr     uint16
	udreSet  bool
	txcSet   bool
	txBusy   int
	txCycles int
	stale    Fault
	rx       []rxFrame
	lastRx   byte
	sent     []byte
	dropped  int
	line     io.Writer
	cfgWrite int
}

// NewUSART returns a USART in its reset state.
func NewUSART() *USART {
	u := &USART{txCycles: DefaultTxCycles}
	u.resetLocked()
	u.UCSRA = &Reg8{name: "UCSR0A", load: u.loadUCSRA, store: u.storeUCSRA}
	u.UCSRB = &Reg8{name: "UCSR0B", load: u.loadUCSRB, store: u.storeUCSRB}
	u.UCSRC = &Reg8{name: "UCSR0C", load: u.loadUCSRC, store: u.storeUCSRC}
	u.UBRRL = &Reg8{name: "UBRR0L", load: u.loadUBRRL, store: u.storeUBRRL}
	u.UBRRH = &Reg8{name: "UBRR0H", load: u.loadUBRRH, store: u.storeUBRRH}
	u.UDR = &Reg8{name: "UDR0", load: u.loadUDR, store: u.storeUDR}
	return u
}

// SetLine directs transmitted bytes to w.
func (u *USART) SetLine(w io.Writer) {
	u.mu.Lock()
	u.line = w
	u.mu.Unlock()
}

// SetTxCycles sets how many UCSR0A polls a byte keeps UDRE clear.
func (u *USART) SetTxCycles(n int) {
	u.mu.Lock()
	u.txCycles = n
	u.mu.Unlock()
}

// Inject queues a received byte. Bytes arriving while the receiver is
// disabled are dropped, as on the hardware.
func (u *USART) Inject(b byte, fault Fault) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ucsrb&rxen == 0 {
		u.dropped++
		return false
	}
	u.rx = append(u.rx, rxFrame{b: b, fault: fault & rxErrMask})
	return true
}

// InjectString queues every byte of s without faults.
func (u *USART) InjectString(s string) {
	for i := 0; i < len(s); i++ {
		u.Inject(s[i], 0)
	}
}

// LeaveStaleErrors sets error flags as if left over from a previous
// session. Writing them as zero clears them.
func (u *USART) LeaveStaleErrors(f Fault) {
	u.mu.Lock()
	u.stale |= f & rxErrMask
	u.mu.Unlock()
}

// Sent returns every byte transmitted so far.
func (u *USART) Sent() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.sent...)
}

// Queued returns the number of received bytes not yet read.
func (u *USART) Queued() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rx)
}

// Dropped counts bytes lost to a disabled receiver or transmitter.
func (u *USART) Dropped() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}

// Config returns the configuration held in the control registers.
func (u *USART) Config() USARTConfig {
	u.mu.Lock()
	defer u.mu.Unlock()
	return USARTConfig{U2X: u.ucsra&u2x != 0, UCSRB: u.ucsrb, UCSRC: u.ucsrc, UBRR: u.ubrr}
}

func (u *USART) reset() {
	u.mu.Lock()
	u.resetLocked()
	u.mu.Unlock()
}

func (u *USART) resetLocked() {
	u.ucsra, u.ucsrb, u.ucsrc, u.ubrr = 0, 0, ucsrcReset, 0
	u.udreSet, u.txcSet, u.txBusy = true, false, 0
	u.stale = 0
	u.rx = nil
}

func (u *USART) loadUCSRA() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.txBusy > 0 {
		u.txBusy--
		if u.txBusy == 0 {
			u.udreSet, u.txcSet = true, true
		}
	}
	v := u.ucsra & (mpcm | u2x)
	if u.udreSet {
		v |= udre
	}
	if u.txcSet {
		v |= txc
	}
	v |= uint8(u.stale)
	if len(u.rx) > 0 {
		v |= rxc | uint8(u.rx[0].fault)
	}
	return v
}

func (u *USART) storeUCSRA(v uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ucsra = v & (mpcm | u2x)
	if v&txc != 0 {
		u.txcSet = false
	}
	// Error flags are read-only except that writing zero discards flags
	// left from a previous session.
	u.stale &= Fault(v)
	u.cfgWrite++
}

func (u *USART) loadUCSRB() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ucsrb
}

func (u *USART) storeUCSRB(v uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ucsrb = v & ucsrbR
	if u.ucsrb&rxen == 0 {
		u.rx = nil
	}
	u.cfgWrite++
}

func (u *USART) loadUCSRC() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ucsrc
}

func (u *USART) storeUCSRC(v uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ucsrc = v
	u.cfgWrite++
}

func (u *USART) loadUBRRL() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return uint8(u.ubrr)
}

func (u *USART) storeUBRRL(v uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ubrr = u.ubrr&0x0F00 | uint16(v)
}

func (u *USART) loadUBRRH() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return uint8(u.ubrr >> 8)
}

func (u *USART) storeUBRRH(v uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ubrr = uint16(v&0x0F)<<8 | u.ubrr&0x00FF
}

// loadUDR pops the receive buffer. Reading acknowledges RXC and the error
// flags of the byte read.
func (u *USART) loadUDR() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stale = 0
	if len(u.rx) == 0 {
		return u.lastRx
	}
	f := u.rx[0]
	u.rx = u.rx[1:]
	u.lastRx = f.b
	return f.b
}

func (u *USART) storeUDR(v uint8) {
	u.mu.Lock()
	u.udreSet, u.txcSet = false, false
	u.txBusy = u.txCycles
	if u.txBusy <= 0 {
		u.udreSet, u.txcSet = true, true
	}
	if u.ucsrb&txen == 0 {
		u.dropped++
		u.mu.Unlock()
		return
	}
	u.sent = append(u.sent, v)
	w := u.line
	u.mu.Unlock()

	glog.V(2).Infof("sim usart: tx %#02x", v)
	if w != nil {
		_, _ = w.Write([]byte{v})
	}
}
