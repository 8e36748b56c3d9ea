package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/goburrow/serial"
	"github.com/golang/glog"

	"avrcore-go/sim"
)

// stdio is the terminal used when no serial device is configured.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

// openLine opens the host end of the simulated USART.
func openLine(cfg LineConfig) (io.ReadWriteCloser, error) {
	if cfg.Device == "" {
		return stdio{Reader: os.Stdin, Writer: os.Stdout}, nil
	}
	c := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
	}
	if cfg.TimeoutMs > 0 {
		c.Timeout = msDuration(cfg.TimeoutMs)
	}
	p, err := serial.Open(c)
	if err != nil {
		return nil, err
	}
	glog.Infof("line: %s at %d baud 8N1", cfg.Device, cfg.Baud)
	return p, nil
}

// rxRetry is how often a held byte is offered again while the receiver is
// off, as during a reset.
const rxRetry = time.Millisecond

// pump feeds bytes read from r into the simulated receiver until ctx is
// done or r fails. Bytes are held while the receiver is off. Read timeouts
// are not failures. It returns nil on EOF.
func pump(ctx context.Context, r io.Reader, u *sim.USART) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			for !u.Inject(b, 0) {
				if ctx.Err() != nil {
					return nil
				}
				glog.V(2).Infof("line: receiver off, holding %#02x", b)
				time.Sleep(rxRetry)
			}
		}
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil, errors.Is(err, serial.ErrTimeout):
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}
