package registry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homehub-core/internal/kv"
)

// call records one adapter invocation.
type call struct {
	method string
	id     string
	value  int
}

// gatedCall is a command blocked inside a gated adapter until a result is
// sent on reply.
type gatedCall struct {
	call
	reply chan adapter.Result
}

// fakeAdapter answers every call with result. When gated, each command is
// announced on started and blocks until the test replies to it.
type fakeAdapter struct {
	mu      sync.Mutex
	calls   []call
	result  adapter.Result
	state   adapter.Result
	gate    bool
	started chan gatedCall
	panics  bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{result: adapter.Succeeded(nil), state: adapter.Succeeded(nil)}
}

// newGatedAdapter returns an adapter whose commands block until released.
func newGatedAdapter() *fakeAdapter {
	a := newFakeAdapter()
	a.gate = true
	a.started = make(chan gatedCall, 8)
	return a
}

func (a *fakeAdapter) do(ctx context.Context, c call) adapter.Result {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	res, gate, panics := a.result, a.gate, a.panics
	a.mu.Unlock()

	if panics {
		panic("adapter exploded")
	}
	if !gate {
		return res
	}
	gc := gatedCall{call: c, reply: make(chan adapter.Result, 1)}
	a.started <- gc
	select {
	case res := <-gc.reply:
		return res
	case <-ctx.Done():
		return adapter.Failed(adapter.ClassifyTransport(ctx.Err()))
	}
}

func (a *fakeAdapter) TurnOn(ctx context.Context, d *device.Device) adapter.Result {
	return a.do(ctx, call{method: "on", id: d.ID})
}

func (a *fakeAdapter) TurnOff(ctx context.Context, d *device.Device) adapter.Result {
	return a.do(ctx, call{method: "off", id: d.ID})
}

func (a *fakeAdapter) SetBrightness(ctx context.Context, d *device.Device, p int) adapter.Result {
	return a.do(ctx, call{method: "brightness", id: d.ID, value: p})
}

func (a *fakeAdapter) SetColorTemperature(ctx context.Context, d *device.Device, k int) adapter.Result {
	return a.do(ctx, call{method: "ct", id: d.ID, value: k})
}

func (a *fakeAdapter) GetState(_ context.Context, d *device.Device) adapter.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call{method: "get", id: d.ID})
	return a.state
}

func (a *fakeAdapter) setResult(res adapter.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = res
}

func (a *fakeAdapter) setState(res adapter.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = res
}

func (a *fakeAdapter) recorded() []call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]call, len(a.calls))
	copy(out, a.calls)
	return out
}

// togglingAdapter adds a native toggle.
type togglingAdapter struct {
	*fakeAdapter
}

func (a togglingAdapter) Toggle(ctx context.Context, d *device.Device) adapter.Result {
	return a.do(ctx, call{method: "toggle", id: d.ID})
}

// recordingNotifier keeps every broadcast.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

type notification struct {
	channel string
	payload any
}

func (n *recordingNotifier) Broadcast(channel string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{channel, payload})
}

func (n *recordingNotifier) on(channel string) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []any
	for _, e := range n.events {
		if e.channel == channel {
			out = append(out, e.payload)
		}
	}
	return out
}

// recordingPersister keeps the latest snapshot per key.
type recordingPersister struct {
	mu     sync.Mutex
	latest map[string]json.RawMessage
	count  map[string]int
}

func newRecordingPersister() *recordingPersister {
	return &recordingPersister{latest: make(map[string]json.RawMessage), count: make(map[string]int)}
}

func (p *recordingPersister) Schedule(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest[key] = data
	p.count[key]++
	return nil
}

func (p *recordingPersister) devices(t *testing.T) []device.Device {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []device.Device
	if err := json.Unmarshal(p.latest[kv.KeyDevices], &out); err != nil {
		t.Fatalf("decoding persisted devices: %v", err)
	}
	return out
}

func (p *recordingPersister) writes(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count[key]
}

// memStore is an in-memory kv.Store.
type memStore struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

func newMemStore(t *testing.T, entries map[string]any) *memStore {
	t.Helper()
	s := &memStore{data: make(map[string]json.RawMessage)}
	for k, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		s.data[k] = data
	}
	return s
}

func (s *memStore) Get(_ context.Context, key string) (kv.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return kv.Entry{}, kv.ErrNotFound
	}
	return kv.Entry{Key: key, Value: v}, nil
}

func (s *memStore) Set(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// fakeBus is an in-memory MQTTBus.
type fakeBus struct {
	mu         sync.Mutex
	state      mqtt.State
	handlers   map[string]mqtt.MessageHandler
	listeners  map[mqtt.Event][]mqtt.Listener
	published  []published
	publishErr error
}

type published struct {
	topic   string
	payload []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		state:     mqtt.StateConnected,
		handlers:  make(map[string]mqtt.MessageHandler),
		listeners: make(map[mqtt.Event][]mqtt.Listener),
	}
}

func (b *fakeBus) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{topic, payload})
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBus) On(ev mqtt.Event, fn mqtt.Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[ev] = append(b.listeners[ev], fn)
	return func() {}
}

func (b *fakeBus) State() mqtt.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *fakeBus) LastError() error { return nil }

// deliver routes a message to the handler subscribed under pattern.
func (b *fakeBus) deliver(t *testing.T, pattern, topic, payload string) error {
	t.Helper()
	b.mu.Lock()
	h, ok := b.handlers[pattern]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %q", pattern)
	}
	return h(topic, []byte(payload))
}

func (b *fakeBus) emit(ev mqtt.Event, state mqtt.State) {
	b.mu.Lock()
	b.state = state
	fns := append([]mqtt.Listener(nil), b.listeners[ev]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev, nil)
	}
}

func (b *fakeBus) publishedTo(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, p := range b.published {
		if p.topic == topic {
			out = append(out, p.payload)
		}
	}
	return out
}

// fakeHue lists a fixed set of lights.
type fakeHue struct {
	lights []device.Device
	err    error
}

func (h fakeHue) ListLights(context.Context) ([]device.Device, error) {
	return h.lights, h.err
}

// Fixtures.

func plug(id string) device.Device {
	return device.Device{
		ID: id, Name: id, Type: device.DeviceTypePlug, Room: "Kitchen",
		Status: device.StatusOnline, Protocol: device.ProtocolHTTP,
		Config: device.Config{Host: "192.0.2.10"},
	}
}

func hueLight(id string, lightID int) device.Device {
	return device.Device{
		ID: id, Name: id, Type: device.DeviceTypeLight, Room: "Lounge",
		Status: device.StatusOnline, Protocol: device.ProtocolHue,
		Config:       device.Config{LightID: lightID},
		Capabilities: []device.Capability{device.CapabilityDimming, device.CapabilityColorTemp},
	}
}

func mqttSensor(id string) device.Device {
	return device.Device{
		ID: id, Name: id, Type: device.DeviceTypeSensor, Room: "Hall",
		Status: device.StatusOnline, Protocol: device.ProtocolMQTT,
	}
}

// fixture is a registry wired to fakes.
type fixture struct {
	reg       *Registry
	http      *fakeAdapter
	mqtt      *fakeAdapter
	hue       *fakeAdapter
	notifier  *recordingNotifier
	persister *recordingPersister
}

func newFixture(t *testing.T, devices ...device.Device) *fixture {
	t.Helper()
	f := &fixture{
		http:      newFakeAdapter(),
		mqtt:      newFakeAdapter(),
		hue:       newFakeAdapter(),
		notifier:  &recordingNotifier{},
		persister: newRecordingPersister(),
	}
	f.build(t, devices)
	return f
}

func (f *fixture) build(t *testing.T, devices []device.Device) {
	t.Helper()
	f.reg = New(Deps{
		Adapters:       Adapters{HTTP: f.http, MQTT: f.mqtt, Hue: f.hue},
		Store:          newMemStore(t, map[string]any{kv.KeyDevices: devices}),
		Persister:      f.persister,
		Notifier:       f.notifier,
		CommandTimeout: time.Second,
	})
	if err := f.reg.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func (f *fixture) device(t *testing.T, id string) device.Device {
	t.Helper()
	d, err := f.reg.Device(id)
	if err != nil {
		t.Fatalf("Device(%q) error = %v", id, err)
	}
	return d
}

// next returns the next command to reach a gated adapter.
func (a *fakeAdapter) next(t *testing.T) gatedCall {
	t.Helper()
	select {
	case gc := <-a.started:
		return gc
	case <-time.After(time.Second):
		t.Fatal("adapter was not called")
		return gatedCall{}
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
