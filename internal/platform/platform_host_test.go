//go:build !avr

package platform

import (
	"testing"

	"avrcore-go/boot"
	"avrcore-go/drivers/eeprom"
	"avrcore-go/drivers/usart"
	"avrcore-go/errflag"
	"avrcore-go/sim"
)

func TestOpen_SharesOneChip(t *testing.T) {
	a, b := Open(), Open()
	if a.Flags != b.Flags || a.IRQ != b.IRQ {
		t.Fatalf("Open returned different chips")
	}
}

func TestFromSim_DriversAndWarmReset(t *testing.T) {
	m := sim.NewMCU(0)
	p := FromSim(m)
	if !boot.Start(p.Flags, p.ResetCause()) {
		t.Fatalf("power-on not detected as cold")
	}

	ee := eeprom.New(p.EEPROM, p.IRQ, p.Flags, eeprom.Config{})
	ee.WriteByte(12, 0x34)
	ee.WriteByte(eeprom.Size, 0)

	cfg := usart.DefaultConfig()
	cfg.Options |= usart.RxEnable
	u, err := usart.New(p.USART, p.IRQ, p.Flags, cfg)
	if err != nil {
		t.Fatal(err)
	}
	u.Configure()
	u.TxByte('!')
	if got := string(m.USART.Sent()); got != "!" {
		t.Fatalf("sent = %q", got)
	}

	m.Reset(boot.Watchdog)
	p = FromSim(m)
	if boot.Start(p.Flags, p.ResetCause()) {
		t.Fatalf("watchdog reset treated as cold")
	}
	if p.Flags.Load() != errflag.EEPROMAddress {
		t.Fatalf("flags lost across warm reset: %v", p.Flags.Load())
	}
	ee = eeprom.New(p.EEPROM, p.IRQ, p.Flags, eeprom.Config{})
	if got := ee.ReadByte(12); got != 0x34 {
		t.Fatalf("eeprom = %#x", got)
	}
}
