package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/kv"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Adapters holds one adapter per protocol. A nil field means the protocol
// is not configured and its devices reject commands as unsupported.
type Adapters struct {
	HTTP adapter.Adapter
	MQTT adapter.Adapter
	Hue  adapter.Adapter
}

// Persister queues a debounced write. *kv.Writer satisfies it.
type Persister interface {
	Schedule(key string, v any) error
}

// HueDiscoverer lists the lights known to a Hue bridge.
type HueDiscoverer interface {
	ListLights(ctx context.Context) ([]device.Device, error)
}

// Deps are the collaborators of a Registry. Only Adapters is required.
type Deps struct {
	Adapters  Adapters
	Store     kv.Store
	Persister Persister
	Hue       HueDiscoverer
	Notifier  Notifier
	Metrics   *Metrics
	Logger    Logger

	// CommandTimeout bounds each adapter call (default 5s).
	CommandTimeout time.Duration
}

// Registry owns the canonical in-memory device list.
//
// It dispatches commands to the adapter matching each device's protocol,
// applies the optimistic state at once and reconciles it with the adapter
// result: confirmed state is persisted, failures roll back to the last
// confirmed state. Each device has at most one in-flight command; a newer
// command supersedes it and the older result is discarded when it arrives.
//
// All public methods are safe for concurrent use. Returned devices are
// copies.
type Registry struct {
	adapters  Adapters
	store     kv.Store
	persister Persister
	hue       HueDiscoverer
	notifier  Notifier
	metrics   *Metrics
	logger    Logger
	timeout   time.Duration
	now       func() time.Time

	mu          sync.RWMutex
	devices     map[string]*entry
	order       []string
	rooms       []device.Room
	scenes      []device.Scene
	stateTopics map[string]string
	waiters     map[string][]chan device.Device

	mqttMu sync.RWMutex
	bus    MQTTBus
}

// entry is the registry's record of one device.
type entry struct {
	dev    *device.Device
	slot   *slot
	status CommandStatus
}

// New creates an empty registry. Call Load to populate it from the store.
func New(deps Deps) *Registry {
	r := &Registry{
		adapters:    deps.Adapters,
		store:       deps.Store,
		persister:   deps.Persister,
		hue:         deps.Hue,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		timeout:     deps.CommandTimeout,
		now:         time.Now,
		devices:     make(map[string]*entry),
		stateTopics: make(map[string]string),
		waiters:     make(map[string][]chan device.Device),
	}
	if r.notifier == nil {
		r.notifier = nopNotifier{}
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.timeout <= 0 {
		r.timeout = adapter.DefaultTimeout
	}
	return r
}

// adapterFor selects the adapter owning protocol p. Unknown protocols are a
// validation error and never fall back to another adapter.
func (r *Registry) adapterFor(p device.Protocol) (adapter.Adapter, error) {
	var a adapter.Adapter
	switch p {
	case device.ProtocolHTTP:
		a = r.adapters.HTTP
	case device.ProtocolMQTT:
		a = r.adapters.MQTT
	case device.ProtocolHue:
		a = r.adapters.Hue
	default:
		return nil, fmt.Errorf("%w: unknown protocol %q", adapter.ErrValidation, p)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: no %s adapter configured", adapter.ErrUnsupported, p)
	}
	return a, nil
}

// Load replaces the registry contents with the devices, rooms and scenes
// stored in KV. Absent keys leave the corresponding list empty. Stored
// devices without a usable id, or repeating an earlier id, are skipped.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	var devices []device.Device
	if _, err := kv.GetJSON(ctx, r.store, kv.KeyDevices, &devices); err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	var rooms []device.Room
	if _, err := kv.GetJSON(ctx, r.store, kv.KeyRooms, &rooms); err != nil {
		return fmt.Errorf("loading rooms: %w", err)
	}
	var scenes []device.Scene
	if _, err := kv.GetJSON(ctx, r.store, kv.KeyScenes, &scenes); err != nil {
		return fmt.Errorf("loading scenes: %w", err)
	}

	r.mu.Lock()
	r.devices = make(map[string]*entry, len(devices))
	r.order = nil
	r.stateTopics = make(map[string]string)
	for i := range devices {
		d := devices[i]
		if err := device.ValidateID(d.ID); err != nil {
			r.logger.Warn("skipping stored device", "id", d.ID, "error", err)
			continue
		}
		if _, dup := r.devices[d.ID]; dup {
			r.logger.Warn("skipping duplicate stored device", "id", d.ID)
			continue
		}
		device.Normalize(&d)
		if err := device.ValidateDevice(&d); err != nil {
			// Kept so it stays visible; commands to it are rejected.
			r.logger.Warn("stored device is invalid", "id", d.ID, "error", err)
		}
		r.addLocked(&d)
	}
	r.rooms = rooms
	r.scenes = scenes
	n := len(r.order)
	r.updateDeviceMetricsLocked()
	r.mu.Unlock()

	r.subscribeStateTopics()
	r.logger.Info("registry loaded", "devices", n, "rooms", len(rooms), "scenes", len(scenes))
	return nil
}

// addLocked inserts a device that is not yet known.
func (r *Registry) addLocked(d *device.Device) {
	r.devices[d.ID] = &entry{
		dev:    d,
		status: CommandStatus{DeviceID: d.ID, Phase: PhaseIdle},
	}
	r.order = append(r.order, d.ID)
	if d.Protocol == device.ProtocolMQTT && d.Config.TopicPrefix != "" {
		r.stateTopics[d.Config.TopicPrefix+"/state"] = d.ID
	}
}

// Devices returns every device in insertion order.
func (r *Registry) Devices() []device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]device.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.devices[id].dev.DeepCopy())
	}
	return out
}

// Device returns one device.
func (r *Registry) Device(id string) (device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.devices[id]
	if !ok {
		return device.Device{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	return *e.dev.DeepCopy(), nil
}

// DeviceCount returns the number of known devices.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Upsert validates d and adds it, or replaces the definition of an existing
// device with the same id. A command still in flight for a replaced device
// resolves as superseded.
func (r *Registry) Upsert(d device.Device) (device.Device, error) {
	device.Normalize(&d)
	if err := device.ValidateDevice(&d); err != nil {
		return device.Device{}, fmt.Errorf("%w: %w", adapter.ErrValidation, err)
	}
	d = *d.DeepCopy()

	r.mu.Lock()
	if e, ok := r.devices[d.ID]; ok {
		r.forgetStateTopicLocked(e.dev)
		e.dev = &d
		e.slot = nil
		e.status = CommandStatus{DeviceID: d.ID, Phase: PhaseIdle, UpdatedAt: r.now()}
		if d.Protocol == device.ProtocolMQTT && d.Config.TopicPrefix != "" {
			r.stateTopics[d.Config.TopicPrefix+"/state"] = d.ID
		}
	} else {
		r.addLocked(&d)
	}
	out := *d.DeepCopy()
	r.persistDevicesLocked()
	r.persistRoomsLocked()
	r.mu.Unlock()

	r.subscribeStateTopics()
	r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: out, Source: SourceUser})
	return out, nil
}

// Remove deletes a device.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	delete(r.devices, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.forgetStateTopicLocked(e.dev)
	for _, ch := range r.waiters[id] {
		close(ch)
	}
	delete(r.waiters, id)
	r.persistDevicesLocked()
	r.persistRoomsLocked()
	return nil
}

// forgetStateTopicLocked drops d's state topic mapping if d owns it. When
// another MQTT device shares the prefix, the topic passes to it.
func (r *Registry) forgetStateTopicLocked(d *device.Device) {
	if d.Config.TopicPrefix == "" {
		return
	}
	topic := d.Config.TopicPrefix + "/state"
	if r.stateTopics[topic] != d.ID {
		return
	}
	delete(r.stateTopics, topic)
	for _, id := range r.order {
		other := r.devices[id].dev
		if id != d.ID && other.Protocol == device.ProtocolMQTT && other.Config.TopicPrefix == d.Config.TopicPrefix {
			r.stateTopics[topic] = id
			return
		}
	}
}

// confirmedSnapshotLocked returns the device list as last confirmed: a
// device with a command in flight contributes its baseline, not the
// optimistic state.
func (r *Registry) confirmedSnapshotLocked() []device.Device {
	out := make([]device.Device, 0, len(r.order))
	for _, id := range r.order {
		e := r.devices[id]
		if e.slot != nil {
			out = append(out, *e.slot.baseline.DeepCopy())
			continue
		}
		out = append(out, *e.dev.DeepCopy())
	}
	return out
}

// persistDevicesLocked schedules the confirmed device list for writing.
// It runs under r.mu so snapshots reach the writer in order.
func (r *Registry) persistDevicesLocked() {
	r.updateDeviceMetricsLocked()
	if r.persister == nil {
		return
	}
	if err := r.persister.Schedule(kv.KeyDevices, r.confirmedSnapshotLocked()); err != nil {
		r.logger.Error("scheduling device write failed", "error", err)
	}
}

func (r *Registry) persistRoomsLocked() {
	if r.persister == nil {
		return
	}
	rooms := device.AssignRooms(r.rooms, r.confirmedSnapshotLocked())
	if err := r.persister.Schedule(kv.KeyRooms, rooms); err != nil {
		r.logger.Error("scheduling room write failed", "error", err)
	}
}

func (r *Registry) persistScenesLocked() {
	if r.persister == nil {
		return
	}
	if err := r.persister.Schedule(kv.KeyScenes, slices.Clone(r.scenes)); err != nil {
		r.logger.Error("scheduling scene write failed", "error", err)
	}
}

func (r *Registry) updateDeviceMetricsLocked() {
	if r.metrics == nil {
		return
	}
	counts := make(map[device.Status]int, 4)
	for _, e := range r.devices {
		counts[e.dev.Status]++
	}
	r.metrics.setDeviceCounts(counts)
}
