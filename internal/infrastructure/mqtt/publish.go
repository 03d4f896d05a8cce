package mqtt

import "fmt"

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message and waits for the broker acknowledgement
// (for QoS 1 and 2).
//
// It fails fast with ErrNotConnected when the manager is not connected;
// nothing is queued for later delivery.
//
// Example:
//
//	topic := mqtt.Topics{}.DeviceSet("plug-kitchen")
//	err := manager.Publish(topic, []byte(`{"command":"on"}`), 1, false)
func (m *Manager) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !m.IsConnected() {
		return ErrNotConnected
	}
	client := m.currentClient()
	if client == nil {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishRetained publishes a retained message with the configured default QoS.
func (m *Manager) PublishRetained(topic string, payload []byte) error {
	return m.Publish(topic, payload, byte(m.cfg.QoS), true)
}
