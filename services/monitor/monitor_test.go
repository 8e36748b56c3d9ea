package monitor

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"avrcore-go/drivers/eeprom"
	"avrcore-go/drivers/usart"
	"avrcore-go/errflag"
	"avrcore-go/sim"
)

type rig struct {
	mcu *sim.MCU
	out *bytes.Buffer
	mon *Monitor
}

func newRig(t *testing.T) *rig {
	t.Helper()
	m := sim.NewMCU(0)
	m.Flags.ColdBoot()
	out := &bytes.Buffer{}
	m.USART.SetLine(out)

	cfg := usart.DefaultConfig()
	cfg.Options = usart.TxEnable | usart.RxEnable
	u, err := usart.New(usart.Registers{
		UCSRA: m.USART.UCSRA, UCSRB: m.USART.UCSRB, UCSRC: m.USART.UCSRC,
		UBRRL: m.USART.UBRRL, UBRRH: m.USART.UBRRH, UDR: m.USART.UDR,
	}, m.CPU, m.Flags, cfg)
	if err != nil {
		t.Fatal(err)
	}
	u.Configure()
	ee := eeprom.New(eeprom.Registers{
		EECR: m.EEPROM.EECR, EEDR: m.EEPROM.EEDR, EEARL: m.EEPROM.EEARL,
		EEARH: m.EEPROM.EEARH, SPMCSR: m.EEPROM.SPMCSR,
	}, m.CPU, m.Flags, eeprom.Config{})
	return &rig{mcu: m, out: out, mon: New(u, ee, m.Flags)}
}

// send types s on the line and returns what the monitor wrote back.
func (r *rig) send(s string) string {
	r.out.Reset()
	r.mcu.USART.InjectString(s)
	r.mon.Poll()
	return r.out.String()
}

func TestExec(t *testing.T) {
	r := newRig(t)
	cases := []struct {
		cmd  string
		want string
	}{
		{"w 5 0xab", "ok"},
		{"r 5", "0x0005: AB"},
		{"u 5 0xab", "ok"},
		{"w 0x3ff 1", "ok"},
		{"r 0x3fe 2", "0x03FE: FF 01"},
		{"e", "0x00(none)"},
		{"r 2000", "0x07D0: FF"},
		{"e", "0x10(eeprom_address)"},
		{"c 0x10", "was 0x10(eeprom_address)"},
		{"e", "0x00(none)"},
		{`w "6" '7'`, "ok"},
		{"r 6", "0x0006: 07"},
		{"r 0xfffe 4", "0xFFFE: FF FF"},
		{"h", help},
		{"r", "error: usage: r <addr> [n]"},
		{"r 1 17", "error: count must be 1..16"},
		{"w 1", "error: usage: w <addr> <v>"},
		{"w 1 256", "error: bad value 256"},
		{"w 0x10000 1", "error: bad address 0x10000"},
		{"c zz", "error: bad mask zz"},
		{"x", "error: unknown command x"},
	}
	for _, tc := range cases {
		if got := r.mon.Exec(tc.cmd); got != tc.want {
			t.Errorf("Exec(%q) = %q, want %q", tc.cmd, got, tc.want)
		}
	}
	if got := r.mcu.EEPROM.Peek(5); got != 0xAB {
		t.Fatalf("store[5] = %#x", got)
	}
}

func TestExec_UnterminatedQuote(t *testing.T) {
	r := newRig(t)
	if got := r.mon.Exec(`w "5 1`); !strings.HasPrefix(got, "error: ") {
		t.Fatalf("Exec = %q", got)
	}
}

func TestExec_UpdateSkipsEqualWrite(t *testing.T) {
	r := newRig(t)
	r.mon.Exec("w 9 0x42")
	r.mon.Exec("r 9") // waits for the write to land
	writes := r.mcu.EEPROM.Writes()
	r.mon.Exec("u 9 0x42")
	r.mon.Exec("r 9")
	if got := r.mcu.EEPROM.Writes(); got != writes {
		t.Fatalf("writes %d -> %d", writes, got)
	}
}

func TestLine_EchoAndReply(t *testing.T) {
	r := newRig(t)
	r.mon.Banner()
	if !strings.HasSuffix(r.out.String(), prompt) {
		t.Fatalf("banner = %q", r.out.String())
	}

	got := r.send("w 1 2\r")
	if got != "w 1 2\nok\n"+prompt {
		t.Fatalf("reply = %q", got)
	}
	// CR LF is one line ending.
	got = r.send("e\r\n")
	if got != "e\n0x00(none)\n"+prompt {
		t.Fatalf("reply = %q", got)
	}
	// Empty line only re-prompts.
	if got = r.send("\n"); got != "\n"+prompt {
		t.Fatalf("reply = %q", got)
	}
}

func TestLine_Backspace(t *testing.T) {
	r := newRig(t)
	r.mon.Exec("w 5 0x55")
	got := r.send("r 55\b\r")
	if !strings.Contains(got, "\b \b") || !strings.Contains(got, "0x0005: 55") {
		t.Fatalf("reply = %q", got)
	}
}

func TestLine_OverlongInputTruncated(t *testing.T) {
	r := newRig(t)
	r.send("h" + strings.Repeat(" ", MaxLine+10) + "x\r")
	// The trailing x was dropped, so only "h" ran.
	if !strings.Contains(r.out.String(), help) {
		t.Fatalf("reply = %q", r.out.String())
	}
}

func TestLine_FrameErrorVisibleThroughMonitor(t *testing.T) {
	r := newRig(t)
	r.mcu.USART.Inject('e', sim.FaultFrame)
	r.send("\r")
	if r.mcu.Flags.Load() != errflag.USARTFrame {
		t.Fatalf("flags = %v", r.mcu.Flags.Load())
	}
	if got := r.send("e\r"); !strings.Contains(got, "0x24(usart_frame)") {
		t.Fatalf("reply = %q", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.mon.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
