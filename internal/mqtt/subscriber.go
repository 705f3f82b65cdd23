package mqtt

import (
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber is the inbound pub/sub boundary.
type Subscriber interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// Subscribe registers a handler for a topic at QoS 1.
func (c *Conn) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	log.Printf("MQTT Client: Subscribed to topic: %s", topic)
	return nil
}

// ExtractGateID extracts the gate ID from a per-gate MQTT topic.
// Example: "gates/gate-01/commands" -> "gate-01"
func ExtractGateID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
