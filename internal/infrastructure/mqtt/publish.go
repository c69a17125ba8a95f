package mqtt

import (
	"fmt"
)

// maxPayloadSize caps a single message at 1MB. Schedule documents and
// command envelopes are a few KB; anything near this limit is a bug
// upstream, and most brokers would refuse it anyway.
const maxPayloadSize = 1 << 20

// checkTopicQoS is the shared input gate for publish and subscribe.
func checkTopicQoS(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Publish sends one message and waits for the broker's ack.
//
// QoS 1 is the working level for PillFleet traffic; dispensers and
// Core both deduplicate on their own identifiers, so an occasional
// redelivery is harmless. Retained is for state topics only, where a
// late subscriber should see the current value, never for commands.
//
//	topic := mqtt.Topics{}.DeviceCommand("a1b2c3")
//	err := client.Publish(topic, []byte(`{"type":"reboot"}`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured
// default QoS. Used for the schedule topics, where a dispenser coming
// back from a power cut must receive its current schedule without
// waiting for the next push.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
