package main

import (
	"fmt"
	"net/url"
)

// eepromMax is what the 10-bit address register reaches.
const eepromMax = 1024

// Validate checks configuration correctness. It MUST NOT mutate cfg.
func Validate(cfg *Config) error {
	// ---- mcu ----
	if cfg.MCU.EEPROMSize < 1 || cfg.MCU.EEPROMSize > eepromMax {
		return fmt.Errorf("mcu.eeprom_size %d: must be 1..%d", cfg.MCU.EEPROMSize, eepromMax)
	}
	if cfg.MCU.WriteCycles < 0 {
		return fmt.Errorf("mcu.write_cycles %d: must not be negative", cfg.MCU.WriteCycles)
	}

	// ---- usart ----
	if err := cfg.Driver().Validate(); err != nil {
		return fmt.Errorf("usart: %d baud at %d Hz: %w", cfg.USART.Baud, cfg.MCU.ClockHz, err)
	}
	if !cfg.USART.TX || !cfg.USART.RX {
		return fmt.Errorf("usart: the monitor needs both tx and rx enabled")
	}

	// ---- line ----
	if cfg.Line.Baud < 0 {
		return fmt.Errorf("line.baud %d: must not be negative", cfg.Line.Baud)
	}
	if cfg.Line.TimeoutMs < 0 {
		return fmt.Errorf("line.timeout_ms %d: must not be negative", cfg.Line.TimeoutMs)
	}

	// ---- diag ----
	if cfg.Diag.IntervalMs <= 0 {
		return fmt.Errorf("diag.interval_ms %d: must be positive", cfg.Diag.IntervalMs)
	}

	// ---- mqtt (opt-in) ----
	if cfg.MQTT.Broker == "" {
		return nil
	}
	u, err := url.Parse(cfg.MQTT.Broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt":
	default:
		return fmt.Errorf("mqtt.broker %q: unsupported scheme %q", cfg.MQTT.Broker, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("mqtt.broker %q: missing host", cfg.MQTT.Broker)
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d: must be 0, 1 or 2", cfg.MQTT.QoS)
	}
	return nil
}
