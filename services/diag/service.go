// Package diag reports the error register on the bus. Nothing else in the
// system pushes errors anywhere; this service polls the register and
// publishes a retained snapshot whenever the value changes, and clears
// bits only when asked to.
package diag

import (
	"context"
	"time"

	"avrcore-go/bus"
	"avrcore-go/errflag"
)

var (
	TopicErrorFlag = bus.T("diag", "error_flag")
	TopicClear     = bus.T("diag", "clear")
	TopicConfig    = bus.T("config", "diag")
)

const DefaultInterval = time.Second

// Snapshot is the published view of the register.
type Snapshot struct {
	Value      uint8    `json:"value"`
	Text       string   `json:"text"`
	Conditions []string `json:"conditions,omitempty"`
}

// Snap builds a Snapshot of f.
func Snap(f errflag.Flag) Snapshot {
	s := Snapshot{Value: uint8(f), Text: f.String()}
	for _, c := range f.Conditions() {
		s.Conditions = append(s.Conditions, c.Name)
	}
	return s
}

type Service struct {
	Flags    *errflag.Register // nil means errflag.Global()
	Interval time.Duration     // zero means DefaultInterval
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(TopicConfig)
	defer conn.Unsubscribe(cfgSub)
	clrSub := conn.Subscribe(TopicClear)
	defer conn.Unsubscribe(clrSub)

	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	last := s.Flags.Load()
	s.publish(conn, last)

	for {
		select {
		case <-ctx.Done():
			println("Info: diag service stopping")
			return
		case <-tick.C:
			if v := s.Flags.Load(); v != last {
				last = v
				println("[diag] error flag", v.String())
				s.publish(conn, v)
			}
		case msg, ok := <-clrSub.Channel():
			if !ok {
				println("Info: diag service disconnected")
				return
			}
			mask, ok := clearMask(msg.Payload)
			if !ok {
				println("[diag] bad clear request:", msg.Payload)
				continue
			}
			prev := s.Flags.Clear(mask)
			println("[diag] cleared", mask.String(), "was", prev.String())
			conn.Reply(msg, Snap(prev), false)
			last = s.Flags.Load()
			s.publish(conn, last)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				println("Info: diag service disconnected")
				return
			}
			if iv, ok := interval(msg.Payload); ok {
				tick.Reset(iv)
				println("Info:", "diag interval set to", iv.String())
			}
		}
	}
}

func (s *Service) publish(conn *bus.Connection, v errflag.Flag) {
	conn.Publish(conn.NewMessage(TopicErrorFlag, Snap(v), true))
}

// Start runs the service until ctx is done.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Flags == nil {
		s.Flags = errflag.Global()
	}
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	go s.serviceLoop(ctx, conn)
	return nil
}

// clearMask accepts a bare mask or {"mask": n}. A nil payload clears
// everything.
func clearMask(p any) (errflag.Flag, bool) {
	switch v := p.(type) {
	case nil:
		return 0xFF, true
	case errflag.Flag:
		return v, true
	case uint8:
		return errflag.Flag(v), true
	case int:
		return errflag.Flag(v), v >= 0 && v <= 0xFF
	case float64:
		return errflag.Flag(v), v >= 0 && v <= 0xFF
	case map[string]any:
		m, ok := v["mask"]
		if !ok || m == nil {
			return 0, false
		}
		return clearMask(m)
	}
	return 0, false
}

// Bounds for a configured polling interval.
const (
	MinInterval = time.Millisecond
	MaxInterval = 24 * time.Hour
)

// interval accepts a duration or {"interval": seconds} within
// [MinInterval, MaxInterval].
func interval(p any) (time.Duration, bool) {
	var d time.Duration
	switch v := p.(type) {
	case time.Duration:
		d = v
	case map[string]any:
		sec, ok := v["interval"].(float64)
		// Compared in seconds so huge values never reach the conversion.
		if !ok || !(sec >= MinInterval.Seconds() && sec <= MaxInterval.Seconds()) {
			return 0, false
		}
		d = time.Duration(sec * float64(time.Second))
	default:
		return 0, false
	}
	return d, d >= MinInterval && d <= MaxInterval
}
