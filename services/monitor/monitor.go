// Package monitor is a line-oriented command console over the serial
// port. It reads and writes EEPROM bytes and shows or clears the error
// register:
//
//	r <addr> [n]   read n bytes (default 1, at most 16)
//	w <addr> <v>   write a byte
//	u <addr> <v>   write a byte only if it differs
//	e              show the error register
//	c [mask]       clear bits (default all)
//	h              help
//
// Numbers are decimal or 0x/0b/0o prefixed. All I/O goes through the
// USART driver one byte at a time.
package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/google/shlex"

	"avrcore-go/errflag"
	"avrcore-go/x/conv"
	"avrcore-go/x/strconvx"
)

const (
	MaxLine = 64
	maxDump = 16

	prompt = "> "
)

const help = "r <addr> [n] | w <addr> <v> | u <addr> <v> | e | c [mask] | h"

// Line is the serial port. *usart.Device implements it.
type Line interface {
	TxByte(v byte)
	RxByte() byte
	RxReady() bool
}

// Store is the byte store. *eeprom.Device implements it.
type Store interface {
	ReadByte(addr uint16) byte
	WriteByte(addr uint16, v byte)
	Update(addr uint16, v byte)
}

type Monitor struct {
	line  Line
	mem   Store
	flags *errflag.Register

	buf    []byte
	lastCR bool
}

// New returns a monitor. A nil flags register means errflag.Global().
func New(line Line, mem Store, flags *errflag.Register) *Monitor {
	if flags == nil {
		flags = errflag.Global()
	}
	return &Monitor{line: line, mem: mem, flags: flags, buf: make([]byte, 0, MaxLine)}
}

// Banner prints the greeting and the first prompt.
func (m *Monitor) Banner() {
	m.puts("avrcore monitor, h for help\n" + prompt)
}

// Poll handles every byte already received and returns how many there
// were. It never waits for input.
func (m *Monitor) Poll() int {
	n := 0
	for m.line.RxReady() {
		m.feed(m.line.RxByte())
		n++
	}
	return n
}

// Run polls until ctx is done, sleeping for idle whenever the line is
// quiet.
func (m *Monitor) Run(ctx context.Context, idle time.Duration) {
	t := time.NewTicker(idle)
	defer t.Stop()
	for {
		m.Poll()
		select {
		case <-ctx.Done():
			println("Info: monitor stopping")
			return
		case <-t.C:
		}
	}
}

func (m *Monitor) feed(b byte) {
	switch b {
	case '\n':
		if m.lastCR {
			m.lastCR = false
			return
		}
		m.enter()
	case '\r':
		m.lastCR = true
		m.enter()
		return
	case 0x08, 0x7F:
		if len(m.buf) > 0 {
			m.buf = m.buf[:len(m.buf)-1]
			m.puts("\b \b")
		}
	default:
		if b >= 0x20 && b < 0x7F && len(m.buf) < MaxLine {
			m.buf = append(m.buf, b)
			m.line.TxByte(b)
		}
	}
	m.lastCR = false
}

func (m *Monitor) enter() {
	m.puts("\n")
	if cmd := strings.TrimSpace(string(m.buf)); cmd != "" {
		m.puts(m.Exec(cmd) + "\n")
	}
	m.buf = m.buf[:0]
	m.puts(prompt)
}

func (m *Monitor) puts(s string) {
	for i := 0; i < len(s); i++ {
		m.line.TxByte(s[i])
	}
}

// Exec runs one command line and returns its reply.
func (m *Monitor) Exec(cmdline string) string {
	args, err := shlex.Split(cmdline)
	if err != nil {
		return "error: " + err.Error()
	}
	if len(args) == 0 {
		return ""
	}
	switch args[0] {
	case "r":
		return m.read(args[1:])
	case "w", "u":
		if len(args) != 3 {
			return "error: usage: " + args[0] + " <addr> <v>"
		}
		addr, err := parse(args[1], 16)
		if err != nil {
			return "error: bad address " + args[1]
		}
		v, err := parse(args[2], 8)
		if err != nil {
			return "error: bad value " + args[2]
		}
		if args[0] == "w" {
			m.mem.WriteByte(uint16(addr), byte(v))
		} else {
			m.mem.Update(uint16(addr), byte(v))
		}
		return "ok"
	case "e":
		return m.flags.Load().String()
	case "c":
		mask := uint64(0xFF)
		if len(args) > 1 {
			if mask, err = parse(args[1], 8); err != nil {
				return "error: bad mask " + args[1]
			}
		}
		prev := m.flags.Clear(errflag.Flag(mask))
		return "was " + prev.String()
	case "h", "?":
		return help
	}
	return "error: unknown command " + args[0]
}

func (m *Monitor) read(args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return "error: usage: r <addr> [n]"
	}
	addr, err := parse(args[0], 16)
	if err != nil {
		return "error: bad address " + args[0]
	}
	n := uint64(1)
	if len(args) == 2 {
		if n, err = parse(args[1], 8); err != nil || n == 0 || n > maxDump {
			return "error: count must be 1.." + strconvx.Itoa(maxDump)
		}
	}
	if addr+n-1 > 0xFFFF {
		n = 0x10000 - addr
	}

	var hb [4]byte
	out := "0x" + string(conv.U16Hex(hb[:], uint16(addr))) + ":"
	for i := uint64(0); i < n; i++ {
		v := m.mem.ReadByte(uint16(addr + i))
		out += " " + string(conv.U8Hex(hb[:], v))
	}
	return out
}

func parse(s string, bits int) (uint64, error) {
	return strconvx.ParseUint(s, 0, bits)
}
