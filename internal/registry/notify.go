package registry

import "github.com/nerrad567/homehub-core/internal/device"

// Notification channels.
const (
	ChannelDeviceStateChanged = "device.state_changed"
	ChannelCommandFailed      = "device.command_failed"
	ChannelSceneActivated     = "scene.activated"
	ChannelMQTTConnection     = "mqtt.connection"
)

// Notifier receives change notifications. The API's WebSocket hub
// implements it. Broadcast must not block.
type Notifier interface {
	Broadcast(channel string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string, any) {}

// StateChange is the payload of device.state_changed. Pending is true while
// the state is an optimistic one awaiting confirmation.
type StateChange struct {
	Device  device.Device `json:"device"`
	Pending bool          `json:"pending"`
	Source  string        `json:"source"`
}

// Change sources.
const (
	SourceCommand   = "command"
	SourceRollback  = "rollback"
	SourceMQTT      = "mqtt"
	SourceRefresh   = "refresh"
	SourceDiscovery = "discovery"
	SourceUser      = "user"
)

// CommandFailure is the payload of device.command_failed.
type CommandFailure struct {
	DeviceID string      `json:"deviceId"`
	Command  CommandKind `json:"command"`
	Error    string      `json:"error"`
	Detail   string      `json:"detail,omitempty"`
}

// ConnectionChange is the payload of mqtt.connection.
type ConnectionChange struct {
	State string `json:"state"`
	Event string `json:"event"`
	Error string `json:"error,omitempty"`
}
