package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/adapter/mqttdevice"
	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/infrastructure/mqtt"
)

// subscribeQoS is used for state and discovery subscriptions.
const subscribeQoS byte = 1

// MQTTBus is the part of the connection manager the registry uses.
// *mqtt.Manager satisfies it.
type MQTTBus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	On(ev mqtt.Event, fn mqtt.Listener) (unsubscribe func())
	State() mqtt.State
	LastError() error
}

// AttachMQTT subscribes to device state and discovery topics on bus and
// follows its connection events. Subscriptions made while disconnected are
// applied once the connection is up. After a reconnect the registry asks
// devices to announce themselves again.
func (r *Registry) AttachMQTT(bus MQTTBus) error {
	r.mqttMu.Lock()
	r.bus = bus
	r.mqttMu.Unlock()

	topics := mqtt.Topics{}
	if err := bus.Subscribe(topics.AllDeviceStates(), subscribeQoS, r.handleStateMessage); err != nil {
		return fmt.Errorf("subscribing to device states: %w", err)
	}
	if err := bus.Subscribe(topics.DiscoveryAnnounce(), subscribeQoS, r.handleAnnouncement); err != nil {
		return fmt.Errorf("subscribing to discovery: %w", err)
	}
	r.subscribeStateTopics()

	for _, ev := range []mqtt.Event{mqtt.EventConnect, mqtt.EventDisconnect, mqtt.EventReconnect, mqtt.EventError} {
		bus.On(ev, r.handleConnectionEvent)
	}
	r.metrics.SetMQTTState(bus.State())
	return nil
}

// MQTTState returns the state of the attached connection, or offline when
// none is attached.
func (r *Registry) MQTTState() (mqtt.State, error) {
	bus := r.mqttBus()
	if bus == nil {
		return mqtt.StateOffline, ErrNoMQTT
	}
	return bus.State(), bus.LastError()
}

func (r *Registry) mqttBus() MQTTBus {
	r.mqttMu.RLock()
	defer r.mqttMu.RUnlock()
	return r.bus
}

// subscribeStateTopics subscribes to the state topics of devices with a
// custom topic prefix. Subscribing twice to a topic replaces the handler.
func (r *Registry) subscribeStateTopics() {
	bus := r.mqttBus()
	if bus == nil {
		return
	}

	r.mu.RLock()
	topics := make([]string, 0, len(r.stateTopics))
	for t := range r.stateTopics {
		topics = append(topics, t)
	}
	r.mu.RUnlock()

	for _, t := range topics {
		if err := bus.Subscribe(t, subscribeQoS, r.handleStateMessage); err != nil {
			r.logger.Warn("subscribing to device state topic failed", "topic", t, "error", err)
		}
	}
}

func (r *Registry) handleConnectionEvent(ev mqtt.Event, err error) {
	bus := r.mqttBus()
	if bus == nil {
		return
	}
	state := bus.State()
	r.metrics.SetMQTTState(state)

	change := ConnectionChange{State: string(state), Event: string(ev)}
	if err != nil {
		change.Error = err.Error()
	}
	r.notifier.Broadcast(ChannelMQTTConnection, change)

	if ev == mqtt.EventReconnect {
		// Listeners run on the paho callback goroutine; publishing from it
		// must not wait for the broker.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			if err := r.RequestDiscovery(ctx); err != nil {
				r.logger.Warn("discovery request after reconnect failed", "error", err)
			}
		}()
	}
}

// handleStateMessage applies a confirmed state report. Reports are applied
// in arrival order, last write wins, to both the current state and the
// confirmed baseline of any command in flight.
func (r *Registry) handleStateMessage(topic string, payload []byte) error {
	id, ok := r.resolveStateTopic(topic)
	if !ok {
		return nil
	}

	patch, err := mqttdevice.ParseState(payload)
	if err != nil {
		return fmt.Errorf("state for %s: %w", id, err)
	}
	now := r.now()
	patch.LastSeen = device.Time(now)
	if patch.Status == nil {
		patch.Status = device.StatusPtr(device.StatusOnline)
	}

	r.mu.Lock()
	e, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("state for unknown device", "device_id", id)
		return nil
	}
	patch.Apply(e.dev)
	if e.slot != nil {
		patch.Apply(e.slot.baseline)
	}
	r.persistDevicesLocked()
	current := *e.dev.DeepCopy()
	waiters := r.waiters[id]
	delete(r.waiters, id)
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- current
	}
	r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: current, Source: SourceMQTT})
	return nil
}

func (r *Registry) resolveStateTopic(topic string) (string, bool) {
	r.mu.RLock()
	id, ok := r.stateTopics[topic]
	r.mu.RUnlock()
	if ok {
		return id, true
	}
	return mqtt.Topics{}.DeviceIDFromState(topic)
}

// handleAnnouncement registers unknown announcing devices and marks known
// ones as seen.
func (r *Registry) handleAnnouncement(_ string, payload []byte) error {
	announced, err := mqttdevice.ParseAnnouncement(payload)
	if err != nil {
		return err
	}
	now := r.now()

	r.mu.Lock()
	e, known := r.devices[announced.ID]
	if known {
		if e.dev.Protocol != device.ProtocolMQTT {
			r.mu.Unlock()
			r.logger.Warn("announcement id collides with a non-mqtt device", "device_id", announced.ID)
			return nil
		}
		device.Patch{Status: device.StatusPtr(device.StatusOnline), LastSeen: device.Time(now)}.Apply(e.dev)
	} else {
		announced.LastSeen = device.Time(now)
		r.addLocked(&announced)
		e = r.devices[announced.ID]
	}
	r.persistDevicesLocked()
	if !known {
		r.persistRoomsLocked()
	}
	current := *e.dev.DeepCopy()
	r.mu.Unlock()

	if !known {
		r.logger.Info("device discovered", "device_id", current.ID, "type", current.Type)
		r.subscribeStateTopics()
	}
	r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: current, Source: SourceDiscovery})
	return nil
}

// discoveryRequest is published on the system status topic.
type discoveryRequest struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// RequestDiscovery asks MQTT devices to announce themselves.
func (r *Registry) RequestDiscovery(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return adapter.ClassifyTransport(err)
	}
	bus := r.mqttBus()
	if bus == nil {
		return fmt.Errorf("%w: %w", adapter.ErrNotConnected, ErrNoMQTT)
	}

	payload, err := json.Marshal(discoveryRequest{Type: "discovery_request", Timestamp: r.now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := bus.Publish(mqtt.Topics{}.SystemStatus(), payload, subscribeQoS, false); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("%w: %w", adapter.ErrNotConnected, err)
		}
		return fmt.Errorf("%w: %w", adapter.ErrNetwork, err)
	}
	return nil
}

// WaitForState blocks until the next state report for device id arrives,
// timeout elapses or ctx ends. The wait is independent of whether the
// command that prompted it was published. If the device is removed
// meanwhile it returns ErrDeviceNotFound.
func (r *Registry) WaitForState(ctx context.Context, id string, timeout time.Duration) (device.Device, error) {
	ch := make(chan device.Device, 1)

	r.mu.Lock()
	if _, ok := r.devices[id]; !ok {
		r.mu.Unlock()
		return device.Device{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	r.waiters[id] = append(r.waiters[id], ch)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d, ok := <-ch:
		if !ok {
			return device.Device{}, fmt.Errorf("%w: %s removed while waiting", device.ErrDeviceNotFound, id)
		}
		return d, nil
	case <-timer.C:
		r.dropWaiter(id, ch)
		return device.Device{}, fmt.Errorf("%w: no state from %s within %s", adapter.ErrTimeout, id, timeout)
	case <-ctx.Done():
		r.dropWaiter(id, ch)
		return device.Device{}, adapter.ClassifyTransport(ctx.Err())
	}
}

func (r *Registry) dropWaiter(id string, ch chan device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.waiters[id]
	for i, c := range list {
		if c == ch {
			r.waiters[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.waiters[id]) == 0 {
		delete(r.waiters, id)
	}
}
