// Command avrsim runs the firmware's drivers and monitor against a
// simulated ATmega328P. The chip's USART is bridged to stdin/stdout or to
// a host serial port; SIGHUP triggers a watchdog reset, which keeps the
// error register.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (defaults are used when empty)")
	flag.Parse()
	defer glog.Flush()

	cfg, err := Load(*cfgPath)
	if err != nil {
		glog.Exitf("config load failed: %v", err)
	}
	if err := Validate(cfg); err != nil {
		glog.Exitf("config validation failed: %v", err)
	}
	Normalize(cfg)

	line, err := openLine(cfg.Line)
	if err != nil {
		glog.Exitf("open line: %v", err)
	}

	s, err := newSimulator(cfg, line)
	if err != nil {
		glog.Exitf("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	resets := make(chan struct{})
	go func() {
		for range hup {
			select {
			case resets <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := s.run(ctx, resets); err != nil {
		glog.Errorf("avrsim: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}
