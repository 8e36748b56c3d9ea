package sim

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// EECR / SPMCSR bit masks as seen by the simulator.
const (
	eere      = 1 << 0
	eepe      = 1 << 1
	eempe     = 1 << 2
	eerie     = 1 << 3
	selfprgen = 1 << 0
)

// DefaultWriteCycles is the number of EECR polls a write keeps EEPE set.
const DefaultWriteCycles = 3

// EEPROM simulates the EEPROM controller and its byte store.
//
// A write started with EEMPE then EEPE keeps EEPE set for WriteCycles polls
// of EECR and lands in the store when it completes. EEPE without a
// preceding EEMPE is ignored. Touching the address or data registers while
// a write is in flight, or triggering with interrupts enabled, is logged as
// a violation.
type EEPROM struct {
	EECR   *Reg8
	EEDR   *Reg8
	EEARL  *Reg8
	EEARH  *Reg8
	SPMCSR *Reg8

	mu          sync.Mutex
	cpu         *CPU
	mem         []byte
	writeCycles int

	eedr, earl, earh uint8
	eerie            bool
	mpeArmed         bool
	busy             int
	spmBusy          int
	inflight         struct {
		addr uint16
		val  byte
	}

	writes, reads, ignored int
	violations             []string
	afterPoll              func()
}

// NewEEPROM returns an erased (all 0xFF) store of size bytes. cpu may be nil
// when interrupt discipline is not checked.
func NewEEPROM(size int, cpu *CPU) *EEPROM {
	e := &EEPROM{cpu: cpu, mem: make([]byte, size), writeCycles: DefaultWriteCycles}
	for i := range e.mem {
		e.mem[i] = 0xFF
	}
	e.EECR = &Reg8{name: "EECR", load: e.loadEECR, store: e.storeEECR}
	e.EEDR = &Reg8{name: "EEDR", load: e.loadEEDR, store: e.storeEEDR}
	e.EEARL = &Reg8{name: "EEARL", load: e.loadEEARL, store: e.storeEEARL}
	e.EEARH = &Reg8{name: "EEARH", load: e.loadEEARH, store: e.storeEEARH}
	e.SPMCSR = &Reg8{name: "SPMCSR", load: e.loadSPMCSR, store: func(uint8) {}}
	return e
}

// SetWriteCycles sets how many EECR polls a write stays busy. Zero makes
// writes complete on the next poll.
func (e *EEPROM) SetWriteCycles(n int) {
	e.mu.Lock()
	e.writeCycles = n
	e.mu.Unlock()
}

// AfterPoll installs a hook run after every EECR read, outside the
// simulator's lock. A hook may raise interrupts or start writes.
func (e *EEPROM) AfterPoll(fn func()) {
	e.mu.Lock()
	e.afterPoll = fn
	e.mu.Unlock()
}

// StartSelfProgramming keeps SELFPRGEN set for n polls of SPMCSR.
func (e *EEPROM) StartSelfProgramming(n int) {
	e.mu.Lock()
	e.spmBusy = n
	e.mu.Unlock()
}

// Busy reports whether a write is in flight.
func (e *EEPROM) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy > 0
}

// Peek returns a stored byte without touching the registers.
func (e *EEPROM) Peek(addr int) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem[addr]
}

// Poke stores a byte without touching the registers or the write counter.
func (e *EEPROM) Poke(addr int, v byte) {
	e.mu.Lock()
	e.mem[addr] = v
	e.mu.Unlock()
}

// Size returns the store size in bytes.
func (e *EEPROM) Size() int { return len(e.mem) }

// Writes counts committed write operations.
func (e *EEPROM) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

// Reads counts EERE read strobes.
func (e *EEPROM) Reads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reads
}

// Ignored counts EEPE strobes dropped for lack of a preceding EEMPE.
func (e *EEPROM) Ignored() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ignored
}

// Violations returns the logged protocol violations.
func (e *EEPROM) Violations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.violations...)
}

// Snapshot copies the store.
func (e *EEPROM) Snapshot() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.mem...)
}

// Restore replaces the store contents. len(b) must equal Size.
func (e *EEPROM) Restore(b []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(b) != len(e.mem) {
		return fmt.Errorf("eeprom image is %d bytes, want %d", len(b), len(e.mem))
	}
	copy(e.mem, b)
	return nil
}

// reset models a hardware reset: registers clear, an in-flight write
// still lands, the store is untouched.
func (e *EEPROM) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy > 0 {
		e.commitLocked()
	}
	e.busy, e.spmBusy = 0, 0
	e.eedr, e.earl, e.earh = 0, 0, 0
	e.eerie, e.mpeArmed = false, false
}

func (e *EEPROM) addrLocked() uint16 {
	return (uint16(e.earh&0x03)<<8 | uint16(e.earl)) % uint16(len(e.mem))
}

func (e *EEPROM) violateLocked(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	e.violations = append(e.violations, msg)
	glog.Warningf("sim eeprom: %s", msg)
}

func (e *EEPROM) checkGuardedLocked(op string) {
	if e.cpu != nil && e.cpu.Enabled() {
		e.violateLocked("%s with interrupts enabled", op)
	}
}

func (e *EEPROM) commitLocked() {
	e.mem[e.inflight.addr] = e.inflight.val
	e.writes++
	glog.V(2).Infof("sim eeprom: write [%#03x]=%#02x done", e.inflight.addr, e.inflight.val)
}

func (e *EEPROM) loadEECR() uint8 {
	e.mu.Lock()
	var v uint8
	if e.eerie {
		v |= eerie
	}
	if e.mpeArmed {
		v |= eempe
	}
	if e.busy > 0 {
		v |= eepe
		e.busy--
		if e.busy == 0 {
			e.commitLocked()
		}
	}
	hook := e.afterPoll
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return v
}

func (e *EEPROM) storeEECR(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eerie = v&eerie != 0
	armed := e.mpeArmed
	e.mpeArmed = false

	switch {
	case v&eepe != 0:
		if !armed {
			e.ignored++
			return
		}
		if e.busy > 0 {
			e.violateLocked("EEPE while a write is in flight")
			return
		}
		e.checkGuardedLocked("write trigger")
		e.inflight.addr, e.inflight.val = e.addrLocked(), e.eedr
		glog.V(2).Infof("sim eeprom: write [%#03x]=%#02x start", e.inflight.addr, e.eedr)
		if e.writeCycles <= 0 {
			e.commitLocked()
			return
		}
		e.busy = e.writeCycles
	case v&eempe != 0:
		e.mpeArmed = true
	}

	if v&eere != 0 {
		if e.busy > 0 {
			e.violateLocked("EERE while a write is in flight")
			return
		}
		e.checkGuardedLocked("read trigger")
		e.eedr = e.mem[e.addrLocked()]
		e.reads++
	}
}

func (e *EEPROM) loadEEDR() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eedr
}

func (e *EEPROM) storeEEDR(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy > 0 {
		e.violateLocked("EEDR written while a write is in flight")
	}
	e.eedr = v
}

func (e *EEPROM) loadEEARL() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.earl
}

func (e *EEPROM) storeEEARL(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy > 0 {
		e.violateLocked("EEARL written while a write is in flight")
	}
	e.earl = v
}

func (e *EEPROM) loadEEARH() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.earh
}

func (e *EEPROM) storeEEARH(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy > 0 {
		e.violateLocked("EEARH written while a write is in flight")
	}
	e.earh = v & 0x03
}

func (e *EEPROM) loadSPMCSR() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.spmBusy > 0 {
		e.spmBusy--
		return selfprgen
	}
	return 0
}
