package sim

import "sync/atomic"

// Reg8 is a simulated register. Reads and writes go through the owning
// peripheral so they can have side effects.
type Reg8 struct {
	name  string
	load  func() uint8
	store func(uint8)
}

func (r *Reg8) Name() string         { return r.name }
func (r *Reg8) Get() uint8           { return r.load() }
func (r *Reg8) Set(v uint8)          { r.store(v) }
func (r *Reg8) SetBits(m uint8)      { r.Set(r.Get() | m) }
func (r *Reg8) ClearBits(m uint8)    { r.Set(r.Get() &^ m) }
func (r *Reg8) HasBits(m uint8) bool { return r.Get()&m != 0 }

// NewCell returns a plain storage register without side effects.
func NewCell(name string, v uint8) *Reg8 {
	var cell atomic.Uint32
	cell.Store(uint32(v))
	return &Reg8{
		name:  name,
		load:  func() uint8 { return uint8(cell.Load()) },
		store: func(v uint8) { cell.Store(uint32(v)) },
	}
}
