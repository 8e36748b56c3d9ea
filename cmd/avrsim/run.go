package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"avrcore-go/boot"
	"avrcore-go/bus"
	"avrcore-go/drivers/eeprom"
	"avrcore-go/drivers/usart"
	"avrcore-go/internal/platform"
	"avrcore-go/services/diag"
	"avrcore-go/services/monitor"
	"avrcore-go/sim"
)

var errConnectTimeout = errors.New("mqtt: connect timeout")

// monitorIdle is how long the monitor sleeps when the line is quiet.
const monitorIdle = 5 * time.Millisecond

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// simulator is one simulated chip plus the host-side services around it.
type simulator struct {
	cfg  *Config
	mcu  *sim.MCU
	bus  *bus.Bus
	line io.ReadWriteCloser
}

func newSimulator(cfg *Config, line io.ReadWriteCloser) (*simulator, error) {
	m := sim.NewMCU(cfg.MCU.EEPROMSize)
	m.EEPROM.SetWriteCycles(cfg.MCU.WriteCycles)
	if cfg.MCU.EEPROMImage != "" {
		if err := m.EEPROM.LoadImageFile(cfg.MCU.EEPROMImage); err != nil {
			return nil, fmt.Errorf("load eeprom image: %w", err)
		}
	}
	m.USART.SetLine(line)
	return &simulator{cfg: cfg, mcu: m, bus: bus.NewBus(8), line: line}, nil
}

// session boots the chip from its current reset state and runs the
// monitor until ctx is done.
func (s *simulator) session(ctx context.Context) error {
	p := platform.FromSim(s.mcu)
	cause := p.ResetCause()
	cold := boot.Start(p.Flags, cause)
	glog.Infof("boot: %s reset, cold=%v, error flag %s", cause, cold, p.Flags.Load())

	u, err := usart.New(p.USART, p.IRQ, p.Flags, s.cfg.Driver())
	if err != nil {
		return err
	}
	u.Configure()
	glog.V(1).Infof("usart: UBRR=%d U2X=%v (%d baud)", u.Timing().UBRR, u.Timing().U2X, u.Timing().Baud(s.cfg.MCU.ClockHz))

	ee := eeprom.New(p.EEPROM, p.IRQ, p.Flags, eeprom.Config{Size: uint16(s.cfg.MCU.EEPROMSize)})
	if _, err := io.WriteString(usart.NewPort(u), "\nreset: "+cause.String()+"\n"); err != nil {
		return err
	}
	mon := monitor.New(u, ee, p.Flags)
	mon.Banner()
	mon.Run(ctx, monitorIdle)
	return nil
}

// run starts the host services, then runs sessions until ctx is done.
// Each value on resets ends the current session with a watchdog reset.
// run closes the line before returning.
func (s *simulator) run(ctx context.Context, resets <-chan struct{}) error {
	defer s.saveImage()

	var lineErr chan error
	pumping := false
	defer func() {
		if pumping {
			s.stopLine(lineErr)
			return
		}
		_ = s.line.Close()
	}()

	d := &diag.Service{Flags: s.mcu.Flags, Interval: s.cfg.DiagInterval()}
	if err := d.Start(ctx, s.bus.NewConnection("diag")); err != nil {
		return err
	}
	if s.cfg.MQTT.Broker != "" {
		e, err := dialMQTT(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		go e.run(ctx, s.bus.NewConnection("mqtt"))
	}

	lineErr = make(chan error, 1)
	go func() { lineErr <- pump(ctx, s.line, s.mcu.USART) }()
	pumping = true

	for {
		sctx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- s.session(sctx) }()

		var reset bool
		select {
		case <-ctx.Done():
		case <-resets:
			reset = true
		case err := <-lineErr:
			pumping = false
			if err == nil {
				// Let the monitor finish what was typed before EOF.
				s.drain()
			}
			stop()
			<-done
			if err != nil {
				return fmt.Errorf("line: %w", err)
			}
			glog.Info("line closed")
			return nil
		case err := <-done:
			stop()
			return err
		}
		stop()
		if err := <-done; err != nil {
			return err
		}
		if !reset {
			return nil
		}
		s.mcu.Reset(boot.Watchdog)
	}
}

// lineStopWait bounds the wait for the pump after the line is closed.
const lineStopWait = 250 * time.Millisecond

// stopLine closes the line so a pump blocked in Read returns. Closing
// os.Stdin does not interrupt a pending Read, so that reader is left
// behind after lineStopWait; the process is exiting by then.
func (s *simulator) stopLine(lineErr <-chan error) {
	if err := s.line.Close(); err != nil {
		glog.V(1).Infof("line: close: %v", err)
	}
	select {
	case err := <-lineErr:
		if err != nil {
			glog.V(1).Infof("line: pump stopped: %v", err)
		}
	case <-time.After(lineStopWait):
		glog.V(1).Info("line: reader still blocked after close")
	}
}

// drain waits until the receiver queue is empty, plus a few monitor
// ticks for the last line to be handled.
func (s *simulator) drain() {
	for s.mcu.USART.Queued() > 0 {
		time.Sleep(monitorIdle)
	}
	time.Sleep(4 * monitorIdle)
}

func (s *simulator) saveImage() {
	if s.cfg.MCU.EEPROMImage == "" {
		return
	}
	if err := s.mcu.EEPROM.SaveImageFile(s.cfg.MCU.EEPROMImage); err != nil {
		glog.Errorf("save eeprom image: %v", err)
		return
	}
	glog.Infof("eeprom image saved to %s", s.cfg.MCU.EEPROMImage)
}
