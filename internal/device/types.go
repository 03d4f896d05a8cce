package device

import (
	"slices"
	"time"
)

// Device is the unified view of a controllable or monitorable thing,
// regardless of which transport reaches it.
//
// JSON field names follow the dashboard's persisted shape so the "devices"
// KV entry stays readable by every client.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// Classification
	Type DeviceType `json:"type"`
	Room string     `json:"room"`

	// Runtime state
	Status  Status  `json:"status"`
	Enabled bool    `json:"enabled"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`

	// Transport binding. Protocol decides which adapter owns the device
	// and how Config is read.
	Protocol Protocol `json:"protocol"`
	Config   Config   `json:"config"`

	// Metadata
	Capabilities   []Capability       `json:"capabilities,omitempty"`
	LastSeen       *time.Time         `json:"lastSeen,omitempty"`
	SignalStrength *int               `json:"signalStrength,omitempty"`
	Metadata       map[string]float64 `json:"metadata,omitempty"`
}

// Config holds the protocol-specific binding of a device.
// Only the fields relevant to Device.Protocol are set.
type Config struct {
	// http: device-local endpoint and switch channel.
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
	Channel int    `json:"channel,omitempty"`

	// hue: numeric light id on the bridge.
	LightID int `json:"lightId,omitempty"`

	// mqtt: topic prefix, defaults to homehub/devices/{id}.
	TopicPrefix string `json:"topicPrefix,omitempty"`
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Capabilities = slices.Clone(d.Capabilities)

	if d.Metadata != nil {
		cpy.Metadata = make(map[string]float64, len(d.Metadata))
		for k, v := range d.Metadata {
			cpy.Metadata[k] = v
		}
	}
	if d.LastSeen != nil {
		t := *d.LastSeen
		cpy.LastSeen = &t
	}
	if d.SignalStrength != nil {
		s := *d.SignalStrength
		cpy.SignalStrength = &s
	}

	return &cpy
}

// HasCapability reports whether the device advertises c.
func (d *Device) HasCapability(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// DisplayName returns Name, falling back to ID.
func (d *Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// DeviceType classifies what a device is.
type DeviceType string //nolint:revive // device.DeviceType reads better than device.Type at call sites

// Device types.
const (
	DeviceTypeLight      DeviceType = "light"
	DeviceTypeThermostat DeviceType = "thermostat"
	DeviceTypeSensor     DeviceType = "sensor"
	DeviceTypePlug       DeviceType = "plug"
	DeviceTypeSwitch     DeviceType = "switch"
	DeviceTypeCamera     DeviceType = "camera"
	DeviceTypeSecurity   DeviceType = "security"
)

// AllDeviceTypes returns all valid device types.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeLight, DeviceTypeThermostat, DeviceTypeSensor, DeviceTypePlug,
		DeviceTypeSwitch, DeviceTypeCamera, DeviceTypeSecurity,
	}
}

// Status is the reachability of a device as last observed.
type Status string

// Status values.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusWarning, StatusError}
}

// Protocol is the transport a device is reached over.
type Protocol string

// Protocols.
const (
	ProtocolHTTP Protocol = "http"
	ProtocolMQTT Protocol = "mqtt"
	ProtocolHue  Protocol = "hue"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolHTTP, ProtocolMQTT, ProtocolHue}
}

// Capability is an optional operation a device supports beyond on/off.
type Capability string

// Capabilities.
const (
	CapabilityDimming   Capability = "dimming"
	CapabilityColor     Capability = "color"
	CapabilityColorTemp Capability = "color-temp"
)

// AllCapabilities returns all valid capability values.
func AllCapabilities() []Capability {
	return []Capability{CapabilityDimming, CapabilityColor, CapabilityColorTemp}
}

// UnassignedRoom is the room name of devices not placed in any room.
const UnassignedRoom = "Unassigned"
