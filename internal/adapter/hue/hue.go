package hue

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amimof/huego"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

const maxResponseBytes = 256 << 10

// Adapter controls lights through a local Hue bridge (v1 REST API).
type Adapter struct {
	base    string // http://{bridge}/api/{username}
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

var _ adapter.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient sets the HTTP client used for bridge requests.
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

// New creates a Hue adapter for the bridge at host, authenticated by the
// whitelisted username. host may carry a scheme; http is assumed otherwise.
func New(host, username string, opts ...Option) *Adapter {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	a := &Adapter{
		base:    strings.TrimRight(host, "/") + "/api/" + username,
		client:  &http.Client{},
		timeout: adapter.DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TurnOn writes {"on":true}. The bridge does not guarantee brightness is
// retained across power cycles, so the light is re-read afterwards and the
// bridge-reported state is merged into the result.
func (a *Adapter) TurnOn(ctx context.Context, d *device.Device) adapter.Result {
	if err := a.putState(ctx, d, map[string]any{"on": true}); err != nil {
		return adapter.Failed(err)
	}

	patch := adapter.Online(a.now())
	patch.Enabled = device.Bool(true)

	// Best effort: the command already succeeded.
	if fresh := a.GetState(ctx, d); fresh.Success && fresh.NewState != nil {
		fresh.NewState.Enabled = device.Bool(true)
		patch = fresh.NewState
	}
	return adapter.Succeeded(patch)
}

// TurnOff writes {"on":false} and leaves brightness untouched.
func (a *Adapter) TurnOff(ctx context.Context, d *device.Device) adapter.Result {
	if err := a.putState(ctx, d, map[string]any{"on": false}); err != nil {
		return adapter.Failed(err)
	}

	patch := adapter.Online(a.now())
	patch.Enabled = device.Bool(false)
	return adapter.Succeeded(patch)
}

// SetBrightness writes {"bri": n} with n = round(percent/100*254).
// Zero brightness is expressed as {"on":false}.
func (a *Adapter) SetBrightness(ctx context.Context, d *device.Device, percent int) adapter.Result {
	if err := adapter.ValidateBrightness(percent); err != nil {
		return adapter.Failed(err)
	}

	if percent == 0 {
		if err := a.putState(ctx, d, map[string]any{"on": false}); err != nil {
			return adapter.Failed(err)
		}
		patch := adapter.Online(a.now())
		patch.Enabled = device.Bool(false)
		patch.Value = device.Float(0)
		return adapter.Succeeded(patch)
	}

	if err := a.putState(ctx, d, map[string]any{"bri": PercentToNative(percent)}); err != nil {
		return adapter.Failed(err)
	}

	patch := adapter.Online(a.now())
	patch.Value = device.Float(float64(percent))
	return adapter.Succeeded(patch)
}

// SetColorTemperature writes {"ct": mired}. Requires the color-temp capability.
func (a *Adapter) SetColorTemperature(ctx context.Context, d *device.Device, kelvin int) adapter.Result {
	if err := adapter.ValidateColorTemperature(kelvin); err != nil {
		return adapter.Failed(err)
	}
	if !d.HasCapability(device.CapabilityColorTemp) {
		return adapter.Failedf(adapter.ErrUnsupported, "light %s has no colour temperature control", d.ID)
	}

	if err := a.putState(ctx, d, map[string]any{"ct": KelvinToMired(kelvin)}); err != nil {
		return adapter.Failed(err)
	}

	patch := adapter.Online(a.now())
	patch.Metadata = map[string]float64{"colorTemp": float64(kelvin)}
	return adapter.Succeeded(patch)
}

// GetState reads GET /lights/{id} and reports the bridge's view of the light.
// A light the bridge marks unreachable is reported offline.
func (a *Adapter) GetState(ctx context.Context, d *device.Device) adapter.Result {
	if err := checkLightID(d); err != nil {
		return adapter.Failed(err)
	}

	var light huego.Light
	if err := a.get(ctx, fmt.Sprintf("/lights/%d", d.Config.LightID), &light); err != nil {
		return adapter.Failed(err)
	}
	if light.State == nil {
		return adapter.Failedf(adapter.ErrProtocol, "light %d has no state", d.Config.LightID)
	}

	return adapter.Succeeded(stateToPatch(light.State, a.now()))
}

// ListLights reads every light on the bridge and maps them to devices
// with ids of the form hue-{n}.
func (a *Adapter) ListLights(ctx context.Context) ([]device.Device, error) {
	var lights map[string]huego.Light
	if err := a.get(ctx, "/lights", &lights); err != nil {
		return nil, err
	}

	now := a.now()
	out := make([]device.Device, 0, len(lights))
	for key, light := range lights {
		var n int
		if _, err := fmt.Sscanf(key, "%d", &n); err != nil || n <= 0 {
			continue
		}
		d := device.Device{
			ID:           fmt.Sprintf("hue-%d", n),
			Name:         light.Name,
			Type:         device.DeviceTypeLight,
			Room:         device.UnassignedRoom,
			Status:       device.StatusOffline,
			Protocol:     device.ProtocolHue,
			Config:       device.Config{LightID: n},
			Capabilities: capabilitiesFor(light.Type),
			Unit:         "%",
		}
		if light.State != nil {
			stateToPatch(light.State, now).Apply(&d)
		}
		out = append(out, d)
	}
	sortByLightID(out)
	return out, nil
}

func stateToPatch(st *huego.State, now time.Time) *device.Patch {
	p := &device.Patch{
		Enabled: device.Bool(st.On),
		Value:   device.Float(float64(NativeToPercent(int(st.Bri)))),
	}
	if st.Reachable {
		p.Status = device.StatusPtr(device.StatusOnline)
		p.LastSeen = device.Time(now)
	} else {
		p.Status = device.StatusPtr(device.StatusOffline)
	}
	if st.Ct > 0 {
		p.Metadata = map[string]float64{"colorTemp": float64(MiredToKelvin(int(st.Ct)))}
	}
	return p
}

// capabilitiesFor maps the bridge's light type string to capabilities.
func capabilitiesFor(lightType string) []device.Capability {
	switch strings.ToLower(lightType) {
	case "extended color light":
		return []device.Capability{device.CapabilityDimming, device.CapabilityColor, device.CapabilityColorTemp}
	case "color temperature light":
		return []device.Capability{device.CapabilityDimming, device.CapabilityColorTemp}
	case "color light":
		return []device.Capability{device.CapabilityDimming, device.CapabilityColor}
	case "dimmable light":
		return []device.Capability{device.CapabilityDimming}
	default:
		return nil
	}
}

func checkLightID(d *device.Device) error {
	if d.Config.LightID <= 0 {
		return fmt.Errorf("%w: device %s has no hue light id", adapter.ErrValidation, d.ID)
	}
	return nil
}
