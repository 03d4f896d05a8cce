package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("device: room not found")

	// ErrSceneNotFound is returned when a scene ID does not exist.
	ErrSceneNotFound = errors.New("device: scene not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidID is returned when an ID is empty, too long, or unsafe in an MQTT topic.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidProtocol is returned when a protocol value is not recognised.
	ErrInvalidProtocol = errors.New("device: invalid protocol")

	// ErrInvalidDeviceType is returned when a device type is not recognised.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidCapability is returned when a capability is not recognised.
	ErrInvalidCapability = errors.New("device: invalid capability")

	// ErrInvalidConfig is returned when the protocol binding is incomplete.
	ErrInvalidConfig = errors.New("device: invalid config")

	// ErrInvalidRoom is returned when room validation fails.
	ErrInvalidRoom = errors.New("device: invalid room")

	// ErrInvalidScene is returned when scene validation fails.
	ErrInvalidScene = errors.New("device: invalid scene")
)
