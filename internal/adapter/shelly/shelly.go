package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

// maxResponseBytes caps how much of a device response is read.
const maxResponseBytes = 64 << 10

// Consecutive reachability failures before a device is marked offline.
// A single failure marks it as warning.
const offlineAfterFailures = 2

// TelemetryWriter receives numeric readings reported by devices.
// influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteDeviceTelemetry(deviceID string, fields map[string]float64)
}

// Adapter controls Shelly-style HTTP RPC devices.
//
// It keeps one piece of state: a consecutive failure counter per device,
// used to degrade status from warning to offline.
type Adapter struct {
	client    *http.Client
	timeout   time.Duration
	telemetry TelemetryWriter
	now       func() time.Time

	mu       sync.Mutex
	failures map[string]int
}

var (
	_ adapter.Adapter = (*Adapter)(nil)
	_ adapter.Toggler = (*Adapter)(nil)
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient sets the HTTP client used for device requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithTimeout overrides the per-request bound (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithTelemetry forwards power readings from GetState to w.
func WithTelemetry(w TelemetryWriter) Option {
	return func(a *Adapter) { a.telemetry = w }
}

// New creates an HTTP device adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		client:   &http.Client{},
		timeout:  adapter.DefaultTimeout,
		now:      time.Now,
		failures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// switchStatus is the Switch.GetStatus / Light.GetStatus response body.
type switchStatus struct {
	Output      *bool           `json:"output"`
	Brightness  *float64        `json:"brightness,omitempty"`
	APower      *float64        `json:"apower,omitempty"`
	Voltage     *float64        `json:"voltage,omitempty"`
	Current     *float64        `json:"current,omitempty"`
	Temperature json.RawMessage `json:"temperature,omitempty"`
}

type wasOnResponse struct {
	WasOn *bool `json:"was_on"`
}

// TurnOn switches the output on. Repeating it on an already-on device
// is a no-op at the device and still succeeds.
func (a *Adapter) TurnOn(ctx context.Context, d *device.Device) adapter.Result {
	return a.setOutput(ctx, d, true)
}

// TurnOff switches the output off.
func (a *Adapter) TurnOff(ctx context.Context, d *device.Device) adapter.Result {
	return a.setOutput(ctx, d, false)
}

func (a *Adapter) setOutput(ctx context.Context, d *device.Device, on bool) adapter.Result {
	method := "Switch.Set"
	if isDimmer(d) {
		method = "Light.Set"
	}

	q := channelQuery(d)
	q.Set("on", strconv.FormatBool(on))

	if err := a.call(ctx, d, http.MethodPost, method, q, nil); err != nil {
		return a.fail(d, err)
	}

	patch := a.succeed(d)
	patch.Enabled = device.Bool(on)
	return adapter.Succeeded(patch)
}

// Toggle inverts the output. The new state is the negation of was_on.
func (a *Adapter) Toggle(ctx context.Context, d *device.Device) adapter.Result {
	method := "Switch.Toggle"
	if isDimmer(d) {
		method = "Light.Toggle"
	}

	var resp wasOnResponse
	if err := a.call(ctx, d, http.MethodPost, method, channelQuery(d), &resp); err != nil {
		return a.fail(d, err)
	}
	if resp.WasOn == nil {
		return adapter.Failedf(adapter.ErrProtocol, "%s response missing was_on", method)
	}

	patch := a.succeed(d)
	patch.Enabled = device.Bool(!*resp.WasOn)
	return adapter.Succeeded(patch)
}

// SetBrightness is only available on dimmers.
func (a *Adapter) SetBrightness(ctx context.Context, d *device.Device, percent int) adapter.Result {
	if err := adapter.ValidateBrightness(percent); err != nil {
		return adapter.Failed(err)
	}
	if !isDimmer(d) {
		return adapter.Failedf(adapter.ErrUnsupported, "device %s cannot dim", d.ID)
	}

	q := channelQuery(d)
	q.Set("on", strconv.FormatBool(percent > 0))
	q.Set("brightness", strconv.Itoa(percent))

	if err := a.call(ctx, d, http.MethodPost, "Light.Set", q, nil); err != nil {
		return a.fail(d, err)
	}

	patch := a.succeed(d)
	patch.Enabled = device.Bool(percent > 0)
	patch.Value = device.Float(float64(percent))
	return adapter.Succeeded(patch)
}

// SetColorTemperature is not offered by the Shelly switch and dimmer APIs.
func (a *Adapter) SetColorTemperature(_ context.Context, d *device.Device, kelvin int) adapter.Result {
	if err := adapter.ValidateColorTemperature(kelvin); err != nil {
		return adapter.Failed(err)
	}
	return adapter.Failedf(adapter.ErrUnsupported, "device %s has no colour temperature control", d.ID)
}

// GetState polls the status endpoint and maps it onto the device shape.
func (a *Adapter) GetState(ctx context.Context, d *device.Device) adapter.Result {
	method := "Switch.GetStatus"
	if isDimmer(d) {
		method = "Light.GetStatus"
	}

	var st switchStatus
	if err := a.call(ctx, d, http.MethodGet, method, channelQuery(d), &st); err != nil {
		return a.fail(d, err)
	}
	if st.Output == nil {
		return adapter.Failedf(adapter.ErrProtocol, "%s response missing output", method)
	}

	patch := a.succeed(d)
	patch.Enabled = device.Bool(*st.Output)
	if st.Brightness != nil {
		patch.Value = device.Float(*st.Brightness)
	}

	readings := st.readings()
	if len(readings) > 0 {
		patch.Metadata = readings
		if a.telemetry != nil {
			a.telemetry.WriteDeviceTelemetry(d.ID, readings)
		}
	}

	return adapter.Succeeded(patch)
}

// Failures returns the current consecutive failure count for a device.
func (a *Adapter) Failures(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures[id]
}

// call performs one RPC request bounded by the adapter timeout and decodes
// the JSON body into out when out is non-nil.
func (a *Adapter) call(parent context.Context, d *device.Device, httpMethod, rpc string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(parent, a.timeout)
	defer cancel()

	endpoint := baseURL(d) + "/rpc/" + rpc + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", adapter.ErrValidation, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return classifyCallError(parent, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyCallError(parent, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned HTTP %d", adapter.ErrProtocol, rpc, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", adapter.ErrProtocol, rpc, err)
	}
	return nil
}

// classifyCallError reports a request abandoned by the caller as cancelled,
// whatever error the transport surfaced for it.
func classifyCallError(parent context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", adapter.ErrCanceled, err)
	}
	return adapter.ClassifyTransport(err)
}

// fail records a failure and returns a result carrying the degraded status.
// Only reachability failures advance the counter; a cancelled caller
// leaves it untouched.
func (a *Adapter) fail(d *device.Device, err error) adapter.Result {
	res := adapter.Failed(err)
	if !adapter.IsReachabilityFailure(err) {
		return res
	}

	a.mu.Lock()
	a.failures[d.ID]++
	n := a.failures[d.ID]
	a.mu.Unlock()

	status := device.StatusWarning
	if n >= offlineAfterFailures {
		status = device.StatusOffline
	}
	return res.WithState(&device.Patch{Status: device.StatusPtr(status)})
}

func (a *Adapter) succeed(d *device.Device) *device.Patch {
	a.mu.Lock()
	delete(a.failures, d.ID)
	a.mu.Unlock()
	return adapter.Online(a.now())
}

func (s switchStatus) readings() map[string]float64 {
	m := make(map[string]float64, 4)
	if s.APower != nil {
		m["power"] = *s.APower
	}
	if s.Voltage != nil {
		m["voltage"] = *s.Voltage
	}
	if s.Current != nil {
		m["current"] = *s.Current
	}
	if t, ok := parseTemperature(s.Temperature); ok {
		m["temperature"] = t
	}
	return m
}

// parseTemperature accepts both a bare number and the Gen2 {"tC": n} object.
func parseTemperature(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var obj struct {
		TC *float64 `json:"tC"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.TC != nil {
		return *obj.TC, true
	}
	return 0, false
}

func isDimmer(d *device.Device) bool {
	return d.HasCapability(device.CapabilityDimming)
}

func channelQuery(d *device.Device) url.Values {
	q := url.Values{}
	q.Set("id", strconv.Itoa(d.Config.Channel))
	return q
}

func baseURL(d *device.Device) string {
	host := d.Config.Host
	if d.Config.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(d.Config.Port))
	}
	return "http://" + host
}

