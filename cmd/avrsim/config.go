package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"avrcore-go/drivers/usart"
)

type Config struct {
	MCU   MCUConfig   `yaml:"mcu"`
	USART USARTConfig `yaml:"usart"`
	Line  LineConfig  `yaml:"line"`
	Diag  DiagConfig  `yaml:"diag"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

// ---- MCU ----

type MCUConfig struct {
	ClockHz     uint32 `yaml:"clock_hz"`
	EEPROMSize  int    `yaml:"eeprom_size"`
	EEPROMImage string `yaml:"eeprom_image"` // empty: contents are not persisted
	WriteCycles int    `yaml:"write_cycles"` // EECR polls per EEPROM write
}

// ---- USART (the simulated chip's side) ----

type USARTConfig struct {
	Baud             uint32 `yaml:"baud"`
	TolerancePercent uint8  `yaml:"tolerance_percent"`
	TX               bool   `yaml:"tx"`
	RX               bool   `yaml:"rx"`
	CRLF             bool   `yaml:"crlf"`
}

// ---- LINE (the host's side) ----

type LineConfig struct {
	Device    string `yaml:"device"` // serial device path; empty means stdin/stdout
	Baud      int    `yaml:"baud"`   // zero: same as usart.baud
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- DIAG ----

type DiagConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- MQTT (optional) ----

type MQTTConfig struct {
	Broker      string `yaml:"broker"` // empty disables export
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Default is the configuration used without a file, and the base a file
// is decoded over.
func Default() *Config {
	d := usart.DefaultConfig()
	return &Config{
		MCU: MCUConfig{
			ClockHz:     d.ClockHz,
			EEPROMSize:  1024,
			WriteCycles: 3,
		},
		USART: USARTConfig{
			Baud:             d.Baud,
			TolerancePercent: d.TolerancePercent,
			TX:               true,
			RX:               true,
			CRLF:             true,
		},
		Line: LineConfig{TimeoutMs: 100},
		Diag: DiagConfig{IntervalMs: 1000},
		MQTT: MQTTConfig{ClientID: "avrsim", TopicPrefix: "avrsim"},
	}
}

// Load reads a YAML file over Default. An empty path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Driver returns the USART driver configuration.
func (c *Config) Driver() usart.Config {
	var opts usart.Option
	if c.USART.TX {
		opts |= usart.TxEnable
	}
	if c.USART.RX {
		opts |= usart.RxEnable
	}
	if c.USART.CRLF {
		opts |= usart.AddCarriageReturn
	}
	return usart.Config{
		ClockHz:          c.MCU.ClockHz,
		Baud:             c.USART.Baud,
		TolerancePercent: c.USART.TolerancePercent,
		Options:          opts,
	}
}

func (c *Config) DiagInterval() time.Duration {
	return time.Duration(c.Diag.IntervalMs) * time.Millisecond
}
