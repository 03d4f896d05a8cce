package registry

import (
	"fmt"
	"time"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

// CommandKind names a device command.
type CommandKind string

// Commands understood by Execute.
const (
	CommandOn                  CommandKind = "on"
	CommandOff                 CommandKind = "off"
	CommandToggle              CommandKind = "toggle"
	CommandSetBrightness       CommandKind = "setBrightness"
	CommandSetColorTemperature CommandKind = "setColorTemperature"
)

// Command is a request to change a device. Value is the brightness
// percentage or the colour temperature in kelvin.
type Command struct {
	Kind  CommandKind `json:"command"`
	Value *int        `json:"value,omitempty"`
}

// On returns a turn-on command.
func On() Command { return Command{Kind: CommandOn} }

// Off returns a turn-off command.
func Off() Command { return Command{Kind: CommandOff} }

// Toggle returns a command inverting the power state.
func Toggle() Command { return Command{Kind: CommandToggle} }

// Brightness returns a setBrightness command for percent 0-100.
func Brightness(percent int) Command {
	return Command{Kind: CommandSetBrightness, Value: &percent}
}

// ColorTemperature returns a setColorTemperature command in kelvin.
func ColorTemperature(kelvin int) Command {
	return Command{Kind: CommandSetColorTemperature, Value: &kelvin}
}

// Validate checks the command name and its value range.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandOn, CommandOff, CommandToggle:
		return nil
	case CommandSetBrightness:
		if c.Value == nil {
			return fmt.Errorf("%w: setBrightness needs a value", adapter.ErrValidation)
		}
		return adapter.ValidateBrightness(*c.Value)
	case CommandSetColorTemperature:
		if c.Value == nil {
			return fmt.Errorf("%w: setColorTemperature needs a value", adapter.ErrValidation)
		}
		return adapter.ValidateColorTemperature(*c.Value)
	default:
		return fmt.Errorf("%w: unknown command %q", adapter.ErrValidation, c.Kind)
	}
}

// applyOptimistic mutates d to what it should look like once c succeeds.
func applyOptimistic(d *device.Device, c Command) {
	switch c.Kind {
	case CommandOn:
		d.Enabled = true
	case CommandOff:
		d.Enabled = false
	case CommandToggle:
		d.Enabled = !d.Enabled
	case CommandSetBrightness:
		d.Value = float64(*c.Value)
		d.Enabled = *c.Value > 0
	case CommandSetColorTemperature:
		if d.Metadata == nil {
			d.Metadata = make(map[string]float64, 1)
		}
		d.Metadata["colorTemp"] = float64(*c.Value)
	}
}

// Phase is where the most recent command of a device stands.
//
//	idle -> pending -> confirmed | rolled-back
type Phase string

// Command phases.
const (
	PhaseIdle       Phase = "idle"
	PhasePending    Phase = "pending"
	PhaseConfirmed  Phase = "confirmed"
	PhaseRolledBack Phase = "rolled-back"
)

// CommandStatus describes the latest command of a device.
type CommandStatus struct {
	DeviceID  string      `json:"deviceId"`
	Phase     Phase       `json:"phase"`
	Command   CommandKind `json:"command,omitempty"`
	Token     string      `json:"token,omitempty"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// slot is the one in-flight command a device may have. A newer command
// overwrites it; the older result then no longer matches the token.
type slot struct {
	token    string
	baseline *device.Device
	started  time.Time
}
