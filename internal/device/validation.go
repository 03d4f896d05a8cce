package device

import (
	"fmt"
	"strings"
)

// Validation limits.
const (
	maxIDLength    = 100
	maxNameLength  = 100
	maxMetadataLen = 50
	maxPort        = 65535
)

// Pre-computed validation sets.
var (
	validProtocols    map[Protocol]struct{}
	validDeviceTypes  map[DeviceType]struct{}
	validStatuses     map[Status]struct{}
	validCapabilities map[Capability]struct{}
)

func init() {
	validProtocols = setOf(AllProtocols())
	validDeviceTypes = setOf(AllDeviceTypes())
	validStatuses = setOf(AllStatuses())
	validCapabilities = setOf(AllCapabilities())
}

func setOf[T comparable](values []T) map[T]struct{} {
	m := make(map[T]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// ValidateDevice checks a device and returns the first problem found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if err := ValidateProtocol(d.Protocol); err != nil {
		return err
	}
	if _, ok := validDeviceTypes[d.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, d.Type)
	}
	if d.Status != "" {
		if _, ok := validStatuses[d.Status]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
		}
	}
	for _, c := range d.Capabilities {
		if _, ok := validCapabilities[c]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}
	if len(d.Metadata) > maxMetadataLen {
		return fmt.Errorf("%w: metadata exceeds %d keys", ErrInvalidDevice, maxMetadataLen)
	}

	return validateConfig(d.Protocol, d.Config)
}

// ValidateID checks that id is non-empty, bounded, and usable as a single
// MQTT topic level.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if strings.ContainsAny(id, "/+# ") {
		return fmt.Errorf("%w: %q contains '/', '+', '#' or space", ErrInvalidID, id)
	}
	return nil
}

// ValidateProtocol checks that p is a known protocol.
func ValidateProtocol(p Protocol) error {
	if _, ok := validProtocols[p]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, p)
	}
	return nil
}

// validateConfig checks that the binding required by the protocol is present.
func validateConfig(p Protocol, c Config) error {
	switch p {
	case ProtocolHTTP:
		if c.Host == "" {
			return fmt.Errorf("%w: http devices need config.host", ErrInvalidConfig)
		}
		if c.Port < 0 || c.Port > maxPort {
			return fmt.Errorf("%w: config.port %d out of range", ErrInvalidConfig, c.Port)
		}
		if c.Channel < 0 {
			return fmt.Errorf("%w: config.channel must not be negative", ErrInvalidConfig)
		}
	case ProtocolHue:
		if c.LightID <= 0 {
			return fmt.Errorf("%w: hue devices need a positive config.lightId", ErrInvalidConfig)
		}
	case ProtocolMQTT:
		if strings.ContainsAny(c.TopicPrefix, "+#") {
			return fmt.Errorf("%w: config.topicPrefix must not contain wildcards", ErrInvalidConfig)
		}
	}
	return nil
}

// ValidateRoom checks a room's identity fields.
func ValidateRoom(r *Room) error {
	if r == nil {
		return ErrInvalidRoom
	}
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRoom)
	}
	if r.Name == "" || len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidRoom, maxNameLength)
	}
	return nil
}

// ValidateScene checks a scene's identity and that every entry names a device.
// Whether those devices exist is only checked at activation time.
func ValidateScene(s *Scene) error {
	if s == nil {
		return ErrInvalidScene
	}
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidScene)
	}
	if s.Name == "" || len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidScene, maxNameLength)
	}
	for i, ds := range s.DeviceStates {
		if ds.DeviceID == "" {
			return fmt.Errorf("%w: deviceStates[%d] has no deviceId", ErrInvalidScene, i)
		}
		if ds.Value != nil && (*ds.Value < 0 || *ds.Value > 100) {
			return fmt.Errorf("%w: deviceStates[%d] value must be 0-100", ErrInvalidScene, i)
		}
	}
	return nil
}

// Normalize fills defaults a stored or announced device may omit.
func Normalize(d *Device) {
	if d.Room == "" {
		d.Room = UnassignedRoom
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
}
