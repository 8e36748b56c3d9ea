package usart

import (
	"bytes"
	"errors"
	"testing"

	"avrcore-go/errflag"
	"avrcore-go/sim"
)

// --- helpers ---

type rig struct {
	cpu   *sim.CPU
	line  *sim.USART
	out   *bytes.Buffer
	flags *errflag.Register
	dev   *Device
}

func newRig(t *testing.T, opts Option) *rig {
	t.Helper()
	cpu := sim.NewCPU()
	u := sim.NewUSART()
	out := &bytes.Buffer{}
	u.SetLine(out)
	flags := errflag.New()
	flags.ColdBoot()

	cfg := DefaultConfig()
	cfg.Options = opts
	dev, err := New(Registers{
		UCSRA: u.UCSRA,
		UCSRB: u.UCSRB,
		UCSRC: u.UCSRC,
		UBRRL: u.UBRRL,
		UBRRH: u.UBRRH,
		UDR:   u.UDR,
	}, cpu, flags, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &rig{cpu: cpu, line: u, out: out, flags: flags, dev: dev}
}

// --- config ---

func TestDivisor(t *testing.T) {
	cases := []struct {
		name  string
		clock uint32
		baud  uint32
		tol   uint8
		want  Timing
		err   error
	}{
		{"9600@16M", 16_000_000, 9600, 2, Timing{UBRR: 103}, nil},
		{"57600@16M needs 2x", 16_000_000, 57600, 2, Timing{UBRR: 34, U2X: true}, nil},
		{"115200@16M too far off", 16_000_000, 115200, 2, Timing{}, ErrBaudOutOfRange},
		{"115200@16M loose", 16_000_000, 115200, 3, Timing{UBRR: 16, U2X: true}, nil},
		{"2M@16M", 16_000_000, 2_000_000, 2, Timing{UBRR: 0, U2X: true}, nil},
		{"9600@8M", 8_000_000, 9600, 2, Timing{UBRR: 51}, nil},
		{"300@16M", 16_000_000, 300, 2, Timing{UBRR: 3332}, nil},
		{"100@16M divisor overflows", 16_000_000, 100, 2, Timing{}, ErrBaudOutOfRange},
		{"faster than clock", 16_000_000, 10_000_000, 2, Timing{}, ErrBaudOutOfRange},
		{"zero clock", 0, 9600, 2, Timing{}, ErrInvalidConfig},
		{"zero baud", 16_000_000, 0, 2, Timing{}, ErrInvalidConfig},
		{"tolerance over 100", 16_000_000, 9600, 101, Timing{}, ErrInvalidConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Divisor(tc.clock, tc.baud, tc.tol)
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("timing = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestTimingBaud(t *testing.T) {
	if got := (Timing{UBRR: 103}).Baud(16_000_000); got != 9615 {
		t.Fatalf("baud = %d, want 9615", got)
	}
	if got := (Timing{UBRR: 34, U2X: true}).Baud(16_000_000); got != 57142 {
		t.Fatalf("baud = %d, want 57142", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !c.Options.Has(TxEnable) || c.Options.Has(RxEnable) || c.Options.Has(AddCarriageReturn) {
		t.Fatalf("options = %#x", c.Options)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	u := sim.NewUSART()
	regs := Registers{u.UCSRA, u.UCSRB, u.UCSRC, u.UBRRL, u.UBRRH, u.UDR}
	if _, err := New(regs, sim.NewCPU(), nil, Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero config: err = %v", err)
	}
	cfg := DefaultConfig()
	cfg.Baud = 100
	if _, err := New(regs, sim.NewCPU(), nil, cfg); !errors.Is(err, ErrBaudOutOfRange) {
		t.Fatalf("100 baud: err = %v", err)
	}
	d, err := New(regs, sim.NewCPU(), nil, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if d.flags != errflag.Global() {
		t.Fatalf("nil flags should select the global register")
	}
}

// --- configure ---

func TestConfigure_ProgramsRegisters(t *testing.T) {
	r := newRig(t, TxEnable|RxEnable)
	if r.dev.Configured() {
		t.Fatalf("configured before Configure")
	}
	r.dev.Configure()

	got := r.line.Config()
	if got.UBRR != 103 || got.U2X {
		t.Fatalf("baud registers = %+v", got)
	}
	if got.UCSRC != 0x06 {
		t.Fatalf("UCSR0C = %#x, want 8N1", got.UCSRC)
	}
	if got.UCSRB != 1<<bitTXEN|1<<bitRXEN {
		t.Fatalf("UCSR0B = %#x", got.UCSRB)
	}
	if r.cpu.Sections() != 1 || !r.cpu.Enabled() {
		t.Fatalf("sections=%d enabled=%v", r.cpu.Sections(), r.cpu.Enabled())
	}
	if !r.dev.Configured() {
		t.Fatalf("not marked configured")
	}
}

func TestConfigure_Idempotent(t *testing.T) {
	r := newRig(t, TxEnable)
	r.dev.Configure()
	once := r.line.Config()
	r.dev.Configure()
	if twice := r.line.Config(); twice != once {
		t.Fatalf("second Configure changed state: %+v -> %+v", once, twice)
	}
}

func TestConfigure_DoubleSpeed(t *testing.T) {
	r := newRig(t, TxEnable)
	cfg := r.dev.Config()
	cfg.Baud = 57600
	d, err := New(r.dev.regs, r.cpu, r.flags, cfg)
	if err != nil {
		t.Fatal(err)
	}
	d.Configure()
	if got := r.line.Config(); !got.U2X || got.UBRR != 34 {
		t.Fatalf("config = %+v", got)
	}
	// Back to 9600 clears U2X again.
	r.dev.Configure()
	if got := r.line.Config(); got.U2X || got.UBRR != 103 {
		t.Fatalf("config = %+v", got)
	}
}

func TestConfigure_DisablesReceiverWhenNotSelected(t *testing.T) {
	r := newRig(t, TxEnable|RxEnable)
	r.dev.Configure()
	txOnly, _ := New(r.dev.regs, r.cpu, r.flags, DefaultConfig())
	txOnly.Configure()
	if r.line.Config().UCSRB&(1<<bitRXEN) != 0 {
		t.Fatalf("RXEN still set")
	}
	if r.line.Inject('x', 0) {
		t.Fatalf("byte accepted with receiver off")
	}
}

func TestConfigure_DiscardsStaleErrors(t *testing.T) {
	r := newRig(t, TxEnable|RxEnable)
	r.line.LeaveStaleErrors(sim.FaultParity | sim.FaultFrame | sim.FaultOverrun)
	r.dev.Configure()
	r.line.Inject('k', 0)
	if got := r.dev.RxByte(); got != 'k' {
		t.Fatalf("rx = %q", got)
	}
	if r.flags.Load() != errflag.None {
		t.Fatalf("stale errors reported: %v", r.flags.Load())
	}
}

// --- transmit ---

func TestTxByte(t *testing.T) {
	cases := []struct {
		name string
		opts Option
		in   string
		want string
	}{
		{"plain", TxEnable, "hi\n", "hi\n"},
		{"crlf", TxEnable | AddCarriageReturn, "hi\n", "hi\r\n"},
		{"cr not expanded", TxEnable | AddCarriageReturn, "a\rb", "a\rb"},
		{"blank lines", TxEnable | AddCarriageReturn, "\n\n", "\r\n\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, tc.opts)
			r.dev.Configure()
			for i := 0; i < len(tc.in); i++ {
				r.dev.TxByte(tc.in[i])
			}
			if got := r.out.String(); got != tc.want {
				t.Fatalf("line = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTxByte_WaitsForBuffer(t *testing.T) {
	r := newRig(t, TxEnable)
	r.line.SetTxCycles(5)
	r.dev.Configure()
	r.dev.TxByte('a')
	if r.dev.TxReady() {
		t.Fatalf("buffer ready immediately after write")
	}
	r.dev.TxByte('b')
	if got := string(r.line.Sent()); got != "ab" {
		t.Fatalf("sent = %q", got)
	}
	polls := 0
	for !r.dev.TxTransmitted() {
		polls++
	}
	if polls == 0 {
		t.Fatalf("transmit complete before the byte could shift out")
	}
}

// --- receive ---

func TestRxByte_FrameErrorRecordedAndByteDelivered(t *testing.T) {
	r := newRig(t, TxEnable|RxEnable)
	r.dev.Configure()
	r.line.Inject('Z', sim.FaultFrame)
	if got := r.dev.RxByte(); got != 'Z' {
		t.Fatalf("rx = %q, want 'Z'", got)
	}
	if r.flags.Load() != errflag.USARTFrame {
		t.Fatalf("flags = %v, want %v", r.flags.Load(), errflag.USARTFrame)
	}

	// A clean byte does not add anything.
	r.flags.Reset()
	r.line.Inject('y', 0)
	_ = r.dev.RxByte()
	if r.flags.Load() != errflag.None {
		t.Fatalf("flags = %v after clean byte", r.flags.Load())
	}
}

func TestRxByte_SimultaneousErrorsStayDistinct(t *testing.T) {
	cases := []struct {
		fault sim.Fault
		want  errflag.Flag
	}{
		{sim.FaultParity, errflag.USARTParity},
		{sim.FaultOverrun, errflag.USARTOverrun},
		{sim.FaultFrame | sim.FaultOverrun, errflag.USARTFrame | errflag.USARTOverrun},
		{sim.FaultParity | sim.FaultFrame | sim.FaultOverrun, 0x27},
	}
	for _, tc := range cases {
		r := newRig(t, RxEnable)
		r.dev.Configure()
		r.line.Inject(0x55, tc.fault)
		if got := r.dev.RxByte(); got != 0x55 {
			t.Fatalf("rx = %#x", got)
		}
		if got := r.flags.Load(); got != tc.want {
			t.Fatalf("fault %#x: flags = %v, want %v", tc.fault, got, tc.want)
		}
	}
}

func TestRxByte_KeepsOtherModulesFlags(t *testing.T) {
	r := newRig(t, RxEnable)
	r.dev.Configure()
	r.flags.Set(errflag.EEPROMAddress)
	r.line.Inject('q', sim.FaultParity)
	_ = r.dev.RxByte()
	if !r.flags.Load().Has(errflag.EEPROMAddress) || !r.flags.Load().Has(errflag.USARTParity) {
		t.Fatalf("flags = %v", r.flags.Load())
	}
}

func TestRxReady(t *testing.T) {
	r := newRig(t, RxEnable)
	r.dev.Configure()
	if r.dev.RxReady() {
		t.Fatalf("ready with empty queue")
	}
	r.line.Inject('a', 0)
	if !r.dev.RxReady() {
		t.Fatalf("not ready with a byte queued")
	}
	_ = r.dev.RxByte()
	if r.dev.RxReady() {
		t.Fatalf("still ready after read")
	}
}

// --- interrupt enables ---

func TestInterruptToggles(t *testing.T) {
	r := newRig(t, TxEnable|RxEnable)
	r.dev.Configure()
	base := r.line.Config().UCSRB
	sections := r.cpu.Sections()

	r.dev.EnableTxInterrupt()
	r.dev.EnableRxInterrupt()
	if got := r.line.Config().UCSRB; got != base|1<<bitUDRIE|1<<bitRXCIE {
		t.Fatalf("UCSR0B = %#x", got)
	}
	r.dev.DisableTxInterrupt()
	if got := r.line.Config().UCSRB; got != base|1<<bitRXCIE {
		t.Fatalf("UCSR0B = %#x", got)
	}
	r.dev.DisableRxInterrupt()
	if got := r.line.Config().UCSRB; got != base {
		t.Fatalf("UCSR0B = %#x", got)
	}
	if got := r.cpu.Sections() - sections; got != 4 {
		t.Fatalf("sections = %d, want one per toggle", got)
	}
}

// --- port ---

func TestPort_WriteAndRead(t *testing.T) {
	r := newRig(t, TxEnable|RxEnable|AddCarriageReturn)
	r.dev.Configure()
	p := NewPort(r.dev)

	if n, err := p.Write([]byte("ok\n")); n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if _, err := p.WriteString("!"); err != nil {
		t.Fatal(err)
	}
	if got := r.out.String(); got != "ok\r\n!" {
		t.Fatalf("line = %q", got)
	}

	if p.Buffered() != 0 {
		t.Fatalf("buffered with nothing received")
	}
	r.line.InjectString("abc")
	if p.Buffered() != 1 {
		t.Fatalf("Buffered = %d, want 1", p.Buffered())
	}
	buf := make([]byte, 8)
	n, err := p.Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Fatalf("Read = %q, %v", buf[:n], err)
	}
	if n, _ := p.Read(nil); n != 0 {
		t.Fatalf("empty read returned %d", n)
	}

	r.line.Inject('z', 0)
	if c, err := p.ReadByte(); c != 'z' || err != nil {
		t.Fatalf("ReadByte = %q, %v", c, err)
	}
	if err := p.WriteByte('\n'); err != nil {
		t.Fatal(err)
	}
	if got := r.out.String(); got != "ok\r\n!\r\n" {
		t.Fatalf("line = %q", got)
	}
}
