package critical

import "testing"

// --- minimal fake global interrupt flag ---

type fakeIRQ struct {
	enabled  bool
	disables int
	restores int
	pending  []func()
}

func (f *fakeIRQ) Disable() State {
	f.disables++
	prev := f.enabled
	f.enabled = false
	if prev {
		return 1
	}
	return 0
}

func (f *fakeIRQ) Restore(s State) {
	f.restores++
	f.enabled = s != 0
	for f.enabled && len(f.pending) > 0 {
		isr := f.pending[0]
		f.pending = f.pending[1:]
		isr()
	}
}

// raise runs isr now if interrupts are enabled, otherwise on the next
// re-enable.
func (f *fakeIRQ) raise(isr func()) {
	if f.enabled {
		isr()
		return
	}
	f.pending = append(f.pending, isr)
}

// --- tests ---

func TestGuard_RestoresPriorState(t *testing.T) {
	irq := &fakeIRQ{enabled: true}
	g := Acquire(irq)
	if irq.enabled {
		t.Fatalf("interrupts still enabled inside guard")
	}
	g.Release()
	if !irq.enabled {
		t.Fatalf("interrupts not restored")
	}
	g.Release()
	if irq.restores != 1 {
		t.Fatalf("second Release must be a no-op, restores=%d", irq.restores)
	}
}

func TestGuard_NestedLeavesOuterSuppressed(t *testing.T) {
	irq := &fakeIRQ{enabled: true}
	outer := Acquire(irq)
	inner := Acquire(irq)
	inner.Release()
	if irq.enabled {
		t.Fatalf("inner release re-enabled interrupts")
	}
	outer.Release()
	if !irq.enabled {
		t.Fatalf("outer release did not re-enable interrupts")
	}
}

func TestGuard_CallerAlreadyDisabled(t *testing.T) {
	irq := &fakeIRQ{enabled: false}
	Do(irq, func() {})
	if irq.enabled {
		t.Fatalf("Do enabled interrupts for a caller that had them off")
	}
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	irq := &fakeIRQ{enabled: true}
	func() {
		defer func() { _ = recover() }()
		Do(irq, func() { panic("boom") })
	}()
	if !irq.enabled {
		t.Fatalf("interrupts left suppressed after panic")
	}
}

func TestDo_DefersInterruptUntilExit(t *testing.T) {
	irq := &fakeIRQ{enabled: true}
	var order []string
	Do(irq, func() {
		irq.raise(func() { order = append(order, "isr") })
		order = append(order, "body")
	})
	if len(order) != 2 || order[0] != "body" || order[1] != "isr" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestSpin_PollsUntilReady(t *testing.T) {
	n := 0
	Spin(func() bool { n++; return n == 5 })
	if n != 5 {
		t.Fatalf("polls=%d, want 5", n)
	}
}

func TestGuarded_RechecksAfterSuppression(t *testing.T) {
	irq := &fakeIRQ{enabled: true}
	busy := 0
	polls, suppressedPolls := 0, 0
	ready := func() bool {
		polls++
		if !irq.enabled {
			suppressedPolls++
		}
		if busy > 0 {
			busy--
			return false
		}
		// An interrupt claims the peripheral right after the first
		// successful poll, before the section starts.
		if polls == 1 {
			irq.raise(func() { busy = 3 })
		}
		return true
	}

	ran := false
	Guarded(irq, ready, func() {
		if irq.enabled {
			t.Fatalf("body ran with interrupts enabled")
		}
		if busy != 0 {
			t.Fatalf("body ran while peripheral busy")
		}
		ran = true
	})
	if !ran {
		t.Fatalf("body did not run")
	}
	if suppressedPolls != 4 {
		t.Fatalf("suppressed polls=%d, want 4 (3 busy + 1 ready)", suppressedPolls)
	}
	if !irq.enabled {
		t.Fatalf("interrupts not restored")
	}
}
