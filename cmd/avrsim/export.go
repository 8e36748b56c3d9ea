package main

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"avrcore-go/bus"
	"avrcore-go/services/diag"
)

// mqttClient is the part of paho.Client the exporter uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// exporter mirrors the diag snapshot to an MQTT broker and forwards clear
// requests from it back onto the bus.
type exporter struct {
	client mqttClient
	prefix string
	qos    byte
}

const connectTimeout = 5 * time.Second

func dialMQTT(cfg MQTTConfig) (*exporter, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	c := paho.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, errConnectTimeout
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	glog.Infof("mqtt: connected to %s as %s", cfg.Broker, cfg.ClientID)
	return &exporter{client: c, prefix: cfg.TopicPrefix, qos: cfg.QoS}, nil
}

func (e *exporter) topic(t bus.Topic) string {
	if e.prefix == "" {
		return t.String()
	}
	return e.prefix + "/" + t.String()
}

// run exports until ctx is done, then disconnects.
func (e *exporter) run(ctx context.Context, conn *bus.Connection) {
	defer e.client.Disconnect(250)

	sub := conn.Subscribe(diag.TopicErrorFlag)
	defer conn.Unsubscribe(sub)

	clearTopic := e.topic(diag.TopicClear)
	tok := e.client.Subscribe(clearTopic, e.qos, func(_ paho.Client, m paho.Message) {
		var v any
		if err := json.Unmarshal(m.Payload(), &v); err != nil {
			glog.Warningf("mqtt: bad clear payload on %s: %v", m.Topic(), err)
			return
		}
		conn.Publish(conn.NewMessage(diag.TopicClear, v, false))
	})
	if tok.WaitTimeout(connectTimeout) && tok.Error() != nil {
		glog.Warningf("mqtt: subscribe %s: %v", clearTopic, tok.Error())
	}

	out := e.topic(diag.TopicErrorFlag)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			snap, ok := msg.Payload.(diag.Snapshot)
			if !ok {
				continue
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				glog.Errorf("mqtt: encode snapshot: %v", err)
				continue
			}
			e.client.Publish(out, e.qos, true, payload)
			glog.V(2).Infof("mqtt: PUB %s %s", out, payload)
		}
	}
}
