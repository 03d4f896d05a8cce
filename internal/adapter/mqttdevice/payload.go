package mqttdevice

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/homehub-core/internal/device"
)

// ErrInvalidPayload is returned for state or announcement messages that
// cannot be decoded.
var ErrInvalidPayload = errors.New("mqttdevice: invalid payload")

// Keys of a state message with a meaning beyond metadata.
var reservedStateKeys = map[string]struct{}{
	"enabled": {}, "state": {}, "on": {}, "value": {}, "brightness": {},
	"unit": {}, "status": {}, "signalStrength": {}, "rssi": {}, "metadata": {},
}

// ParseState decodes a state-topic message into a patch.
//
// Power state may be given as "enabled": bool, "on": bool or
// "state": "on"|"off". "brightness" is accepted as an alias of "value" and
// "rssi" of "signalStrength". Any other numeric top-level field (power,
// battery, humidity, ...) is carried in metadata.
func ParseState(payload []byte) (device.Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return device.Patch{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var p device.Patch

	for _, key := range []string{"enabled", "on"} {
		if v, ok := raw[key]; ok {
			var b bool
			if err := json.Unmarshal(v, &b); err != nil {
				return device.Patch{}, fmt.Errorf("%w: %s must be a boolean", ErrInvalidPayload, key)
			}
			p.Enabled = device.Bool(b)
		}
	}
	if v, ok := raw["state"]; ok && p.Enabled == nil {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			switch strings.ToLower(s) {
			case "on", "true":
				p.Enabled = device.Bool(true)
			case "off", "false":
				p.Enabled = device.Bool(false)
			}
		}
	}

	for _, key := range []string{"value", "brightness"} {
		if v, ok := raw[key]; ok {
			var f float64
			if err := json.Unmarshal(v, &f); err != nil {
				return device.Patch{}, fmt.Errorf("%w: %s must be a number", ErrInvalidPayload, key)
			}
			p.Value = device.Float(f)
		}
	}

	if v, ok := raw["unit"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			p.Unit = &s
		}
	}

	if v, ok := raw["status"]; ok {
		var s device.Status
		if err := json.Unmarshal(v, &s); err == nil && slices.Contains(device.AllStatuses(), s) {
			p.Status = device.StatusPtr(s)
		}
	}

	for _, key := range []string{"signalStrength", "rssi"} {
		if v, ok := raw[key]; ok {
			var n int
			if err := json.Unmarshal(v, &n); err == nil {
				p.SignalStrength = &n
			}
		}
	}

	meta := make(map[string]float64)
	if v, ok := raw["metadata"]; ok {
		var m map[string]float64
		if err := json.Unmarshal(v, &m); err == nil {
			for k, f := range m {
				meta[k] = f
			}
		}
	}
	for key, v := range raw {
		if _, reserved := reservedStateKeys[key]; reserved {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			meta[key] = f
		}
	}
	if len(meta) > 0 {
		p.Metadata = meta
	}

	return p, nil
}

// announcement is the body devices publish on homehub/discovery/announce.
type announcement struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Type         device.DeviceType   `json:"type"`
	Room         string              `json:"room"`
	Unit         string              `json:"unit"`
	Capabilities []device.Capability `json:"capabilities"`
	TopicPrefix  string              `json:"topicPrefix"`
}

// ParseAnnouncement decodes a discovery announcement into a new mqtt device.
// Missing type defaults to sensor and the device is reported online.
func ParseAnnouncement(payload []byte) (device.Device, error) {
	var a announcement
	if err := json.Unmarshal(payload, &a); err != nil {
		return device.Device{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := device.ValidateID(a.ID); err != nil {
		return device.Device{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	d := device.Device{
		ID:           a.ID,
		Name:         a.Name,
		Type:         a.Type,
		Room:         a.Room,
		Status:       device.StatusOnline,
		Unit:         a.Unit,
		Protocol:     device.ProtocolMQTT,
		Config:       device.Config{TopicPrefix: a.TopicPrefix},
		Capabilities: a.Capabilities,
	}
	if d.Type == "" {
		d.Type = device.DeviceTypeSensor
	}
	device.Normalize(&d)

	if err := device.ValidateDevice(&d); err != nil {
		return device.Device{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return d, nil
}
