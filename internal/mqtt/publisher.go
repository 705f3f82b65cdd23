package mqtt

import (
	"fmt"
	"strings"
	"time"
)

// Publisher is the outbound pub/sub boundary.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

const publishTimeout = 5 * time.Second

// Publish sends a payload at QoS 1, bounded by the publish timeout.
func (c *Conn) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// FormatTopic replaces the {gate_id} placeholder with the actual gate ID.
func FormatTopic(topicPattern, gateID string) string {
	return strings.ReplaceAll(topicPattern, "{gate_id}", gateID)
}
