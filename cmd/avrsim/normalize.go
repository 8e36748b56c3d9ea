package main

import "strings"

// Normalize fills derived values. It MUST be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Line.Baud == 0 {
		cfg.Line.Baud = int(cfg.USART.Baud)
	}

	// paho speaks tcp://, not mqtt://.
	if strings.HasPrefix(cfg.MQTT.Broker, "mqtt://") {
		cfg.MQTT.Broker = "tcp://" + strings.TrimPrefix(cfg.MQTT.Broker, "mqtt://")
	}
	cfg.MQTT.TopicPrefix = strings.Trim(cfg.MQTT.TopicPrefix, "/")
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "avrsim"
	}
}
