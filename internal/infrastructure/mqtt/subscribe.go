package mqtt

import "fmt"

// Subscribe registers a handler for a topic pattern (+ and # wildcards allowed).
//
// The subscription is recorded first and survives reconnects. When the
// manager is offline it is applied on the next connect and Subscribe
// returns nil; when connected, a broker failure removes the record and is
// returned.
func (m *Manager) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	m.subMu.Lock()
	m.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	m.subMu.Unlock()

	if !m.IsConnected() {
		return nil
	}
	client := m.currentClient()
	if client == nil {
		return nil
	}

	token := client.Subscribe(topic, qos, m.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		m.forget(topic)
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		m.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription. The record is dropped even when
// offline so it is not restored on the next connect.
func (m *Manager) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	m.forget(topic)

	if !m.IsConnected() {
		return nil
	}
	client := m.currentClient()
	if client == nil {
		return nil
	}

	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrUnsubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (m *Manager) SubscriptionCount() int {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return len(m.subscriptions)
}

// HasSubscription checks if a subscription exists for the exact topic string.
func (m *Manager) HasSubscription(topic string) bool {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	_, exists := m.subscriptions[topic]
	return exists
}

func (m *Manager) forget(topic string) {
	m.subMu.Lock()
	delete(m.subscriptions, topic)
	m.subMu.Unlock()
}
