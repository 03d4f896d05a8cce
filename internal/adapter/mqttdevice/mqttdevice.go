package mqttdevice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/infrastructure/mqtt"
)

// commandQoS is the QoS for device commands: at least once.
const commandQoS byte = 1

// Command names sent in the "command" field.
const (
	CommandOn                  = "on"
	CommandOff                 = "off"
	CommandToggle              = "toggle"
	CommandSetBrightness       = "setBrightness"
	CommandSetColorTemperature = "setColorTemperature"
)

// Publisher sends one MQTT message. *mqtt.Manager satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Adapter publishes commands to MQTT actuators.
//
// Commands are fire-and-forget: a successful QoS 1 publish is reported as
// success with no new state, and the device confirms asynchronously on its
// state topic.
type Adapter struct {
	pub Publisher
}

var (
	_ adapter.Adapter = (*Adapter)(nil)
	_ adapter.Toggler = (*Adapter)(nil)
)

// New creates an MQTT device adapter publishing through pub.
func New(pub Publisher) *Adapter {
	return &Adapter{pub: pub}
}

// commandPayload is the body published to {prefix}/set.
type commandPayload struct {
	Command string `json:"command"`
	Value   *int   `json:"value,omitempty"`
}

// TurnOn publishes {"command":"on"}.
func (a *Adapter) TurnOn(ctx context.Context, d *device.Device) adapter.Result {
	return a.send(ctx, d, commandPayload{Command: CommandOn})
}

// TurnOff publishes {"command":"off"}.
func (a *Adapter) TurnOff(ctx context.Context, d *device.Device) adapter.Result {
	return a.send(ctx, d, commandPayload{Command: CommandOff})
}

// Toggle publishes {"command":"toggle"}.
func (a *Adapter) Toggle(ctx context.Context, d *device.Device) adapter.Result {
	return a.send(ctx, d, commandPayload{Command: CommandToggle})
}

// SetBrightness publishes {"command":"setBrightness","value":percent}.
func (a *Adapter) SetBrightness(ctx context.Context, d *device.Device, percent int) adapter.Result {
	if err := adapter.ValidateBrightness(percent); err != nil {
		return adapter.Failed(err)
	}
	return a.send(ctx, d, commandPayload{Command: CommandSetBrightness, Value: &percent})
}

// SetColorTemperature publishes {"command":"setColorTemperature","value":kelvin}
// to devices that advertise the color-temp capability.
func (a *Adapter) SetColorTemperature(ctx context.Context, d *device.Device, kelvin int) adapter.Result {
	if err := adapter.ValidateColorTemperature(kelvin); err != nil {
		return adapter.Failed(err)
	}
	if !d.HasCapability(device.CapabilityColorTemp) {
		return adapter.Failedf(adapter.ErrUnsupported, "device %s has no colour temperature control", d.ID)
	}
	return a.send(ctx, d, commandPayload{Command: CommandSetColorTemperature, Value: &kelvin})
}

// GetState succeeds without state: MQTT devices report on their state topic
// and the registry applies those messages as they arrive.
func (a *Adapter) GetState(ctx context.Context, _ *device.Device) adapter.Result {
	if err := ctx.Err(); err != nil {
		return adapter.Failed(adapter.ClassifyTransport(err))
	}
	return adapter.Succeeded(nil)
}

func (a *Adapter) send(ctx context.Context, d *device.Device, cmd commandPayload) adapter.Result {
	if err := ctx.Err(); err != nil {
		return adapter.Failed(adapter.ClassifyTransport(err))
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return adapter.Failedf(adapter.ErrValidation, "encoding command: %v", err)
	}

	if err := a.pub.Publish(CommandTopic(d), payload, commandQoS, false); err != nil {
		return adapter.Failed(classifyPublish(err))
	}
	return adapter.Succeeded(nil)
}

// CommandTopic returns {topicPrefix}/set, defaulting to homehub/devices/{id}/set.
func CommandTopic(d *device.Device) string {
	if d.Config.TopicPrefix != "" {
		return d.Config.TopicPrefix + "/set"
	}
	return mqtt.Topics{}.DeviceSet(d.ID)
}

// StateTopic returns {topicPrefix}/state, defaulting to homehub/devices/{id}/state.
func StateTopic(d *device.Device) string {
	if d.Config.TopicPrefix != "" {
		return d.Config.TopicPrefix + "/state"
	}
	return mqtt.Topics{}.DeviceState(d.ID)
}

func classifyPublish(err error) error {
	switch {
	case errors.Is(err, mqtt.ErrNotConnected):
		return fmt.Errorf("%w: %w", adapter.ErrNotConnected, err)
	case errors.Is(err, mqtt.ErrTimeout):
		return fmt.Errorf("%w: %w", adapter.ErrTimeout, err)
	case errors.Is(err, mqtt.ErrInvalidTopic), errors.Is(err, mqtt.ErrInvalidQoS):
		return fmt.Errorf("%w: %w", adapter.ErrValidation, err)
	default:
		return fmt.Errorf("%w: %w", adapter.ErrNetwork, err)
	}
}
