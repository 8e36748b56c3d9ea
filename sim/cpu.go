package sim

import (
	"sync"

	"avrcore-go/critical"
)

// CPU models the global interrupt flag (SREG.I). Interrupts raised while it
// is clear stay pending until it is set again, which is what makes a
// critical section observable in tests.
type CPU struct {
	mu       sync.Mutex
	enabled  bool
	pending  []func()
	sections int
	isrs     int
}

// NewCPU returns a CPU with interrupts enabled, as the TinyGo runtime leaves
// them after startup.
func NewCPU() *CPU { return &CPU{enabled: true} }

// Disable clears the interrupt flag and returns the previous state.
func (c *CPU) Disable() critical.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.enabled
	c.enabled = false
	if prev {
		c.sections++
		return 1
	}
	return 0
}

// Restore sets the interrupt flag to s. Pending interrupts run as soon as
// interrupts are enabled.
func (c *CPU) Restore(s critical.State) {
	c.mu.Lock()
	c.enabled = s != 0
	c.mu.Unlock()
	c.drain()
}

// Enabled reports the interrupt flag.
func (c *CPU) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Raise requests an interrupt. The handler runs immediately when interrupts
// are enabled, otherwise when they are next restored. Handlers run with
// interrupts disabled, as on AVR.
func (c *CPU) Raise(isr func()) {
	c.mu.Lock()
	if !c.enabled {
		c.pending = append(c.pending, isr)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.run(isr)
}

// Pending returns the number of interrupts waiting for the flag.
func (c *CPU) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Sections counts transitions from enabled to disabled made by Disable.
func (c *CPU) Sections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sections
}

// Handled counts interrupt handlers run so far.
func (c *CPU) Handled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isrs
}

func (c *CPU) run(isr func()) {
	c.mu.Lock()
	c.enabled = false
	c.isrs++
	c.mu.Unlock()

	isr()

	// RETI
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
	c.drain()
}

func (c *CPU) drain() {
	for {
		c.mu.Lock()
		if !c.enabled || len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		isr := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		c.run(isr)
	}
}

// reset clears the flag and drops pending requests, as a hardware reset
// does.
func (c *CPU) reset() {
	c.mu.Lock()
	c.enabled = true
	c.pending = nil
	c.mu.Unlock()
}
