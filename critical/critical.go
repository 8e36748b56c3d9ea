// Package critical implements the atomic peripheral access rule shared by
// the drivers: a read-modify-write on shared peripheral registers runs with
// interrupts suppressed, and the peripheral's ready condition is checked
// again once suppression has begun.
//
// Busy-waits here are unbounded. A peripheral that never becomes ready
// hangs the caller.
package critical

// State is the saved global interrupt-enable state returned by Disable.
type State uintptr

// Interrupts is the CPU's global interrupt enable. Disable suppresses
// interrupts and returns the previous state; Restore puts it back.
type Interrupts interface {
	Disable() State
	Restore(State)
}

// Guard is a scoped critical section. Release restores the state saved by
// Acquire and may be called more than once.
type Guard struct {
	irq   Interrupts
	state State
	held  bool
}

// Acquire suppresses interrupts until Release.
func Acquire(irq Interrupts) Guard {
	return Guard{irq: irq, state: irq.Disable(), held: true}
}

// Release restores the interrupt state saved by Acquire. Releasing an inner
// guard of a nested pair leaves interrupts suppressed.
func (g *Guard) Release() {
	if !g.held {
		return
	}
	g.held = false
	g.irq.Restore(g.state)
}

// Held reports whether the guard still suppresses interrupts.
func (g *Guard) Held() bool { return g.held }

// Do runs fn inside a guard. The prior interrupt state is restored on every
// exit path, panics included.
func Do(irq Interrupts, fn func()) {
	g := Acquire(irq)
	defer g.Release()
	fn()
}

// Spin busy-waits until ready reports true.
func Spin(ready func() bool) {
	for !ready() {
	}
}

// Guarded waits for ready with interrupts enabled, then enters a critical
// section, waits for ready again and runs fn. The second wait catches an
// interrupt handler that claimed the peripheral between the first poll and
// the start of the section.
func Guarded(irq Interrupts, ready func() bool, fn func()) {
	Spin(ready)
	g := Acquire(irq)
	defer g.Release()
	Spin(ready)
	fn()
}
