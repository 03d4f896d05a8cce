package registry

import "errors"

var (
	// ErrSuperseded is returned to the caller of a command whose result
	// arrived after a newer command for the same device was dispatched.
	// The late result is discarded.
	ErrSuperseded = errors.New("registry: superseded by a newer command")

	// ErrNoMQTT is returned by operations that need the MQTT connection
	// before one has been attached.
	ErrNoMQTT = errors.New("registry: mqtt not attached")

	// ErrNoHueBridge is returned by Hue discovery when no bridge is configured.
	ErrNoHueBridge = errors.New("registry: no hue bridge configured")
)
