// Package mqttpublish is an optional secondary sink for decoded time
// samples, for monitoring dashboards that cannot read the SysV shared
// memory published by pkg/shm. It never touches the tear-free SHM
// protocol; a sample is only offered here after it is already committed to
// shared memory, so a slow or disconnected broker cannot delay publication.
package mqttpublish

import (
	"encoding/json"
	"fmt"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

// quiesce is how long, in milliseconds, Disconnect waits for in-flight
// publishes to complete.
const quiesce = 250

// Sample is one decoded time sample, reported as JSON.
type Sample struct {
	Station      string `json:"station"`
	Unit         int    `json:"unit"`
	DecodedUnix  int64  `json:"decoded_unix"`
	OffsetMicros int64  `json:"offset_micros,omitempty"`
	Leap         int32  `json:"leap"`
}

// Handler publishes decoded samples to an MQTT broker. C is serviced by
// Service; sending a Sample to C publishes it under topicPrefix/<station>.
type Handler struct {
	handler     mqttlib.Client
	topicPrefix string
	C           chan Sample
}

// New returns a Handler that publishes under the given topic prefix.
func New(topicPrefix string) *Handler {
	return &Handler{
		topicPrefix: topicPrefix,
		C:           make(chan Sample),
	}
}

// Connect connects to broker. If broker is empty, no messages are sent and
// Service becomes a no-op drain of C.
func (m *Handler) Connect(broker string) error {
	if broker == "" {
		return nil
	}
	opts := mqttlib.NewClientOptions().AddBroker(broker)
	m.handler = mqttlib.NewClient(opts)
	return m.ReConnect()
}

// ReConnect reconnects to the configured broker.
func (m *Handler) ReConnect() error {
	t := m.handler.Connect()
	<-t.Done()
	return t.Error()
}

// Disconnect ends the connection to the broker.
func (m *Handler) Disconnect() error {
	if m.handler == nil {
		return nil
	}
	m.handler.Disconnect(quiesce)
	return nil
}

// Service reads samples off C and publishes each as JSON, reconnecting on
// demand. A publish or marshal failure is logged and otherwise discarded:
// telemetry is best-effort and must never block the decode loop.
func (m *Handler) Service() {
	for s := range m.C {
		if m.handler == nil {
			continue
		}

		payload, err := json.Marshal(s)
		if err != nil {
			debug.ErrorLog.Printf("mqttpublish: marshal sample: %v", err)
			continue
		}
		topic := fmt.Sprintf("%s/%s", m.topicPrefix, s.Station)

		go func(topic string, payload []byte) {
			if !m.handler.IsConnected() {
				debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")
				if err := m.ReConnect(); err != nil {
					debug.ErrorLog.Printf("can't reconnect to mqtt broker: %v", err)
					return
				}
			}

			debug.DebugLog.Printf("publishing %v bytes to topic %v", len(payload), topic)
			t := m.handler.Publish(topic, 0, false, payload)

			go func() {
				<-t.Done()
				if err := t.Error(); err != nil {
					debug.ErrorLog.Printf("publishing topic %v: %v", topic, err)
				}
			}()
		}(topic, payload)
	}
}
