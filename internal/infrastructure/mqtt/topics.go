package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the home hub topic tree.
const (
	// TopicPrefixDevices is the base for per-device topics.
	TopicPrefixDevices = "homehub/devices"

	// TopicPrefixDiscovery is the base for discovery topics.
	TopicPrefixDiscovery = "homehub/discovery"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "homehub/system"
)

// Topics provides builders for home hub MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceSet("plug-kitchen")
//	// Returns: "homehub/devices/plug-kitchen/set"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceBase returns the default topic prefix of a device.
//
// Example: homehub/devices/plug-kitchen
func (Topics) DeviceBase(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixDevices, deviceID)
}

// DeviceSet returns the command topic of a device.
//
// Example: homehub/devices/plug-kitchen/set
func (t Topics) DeviceSet(deviceID string) string {
	return t.DeviceBase(deviceID) + "/set"
}

// DeviceState returns the topic a device reports confirmed state on.
//
// Example: homehub/devices/plug-kitchen/state
func (t Topics) DeviceState(deviceID string) string {
	return t.DeviceBase(deviceID) + "/state"
}

// DeviceIDFromState extracts the device id from a default-prefix state
// topic. ok is false for any other topic.
func (Topics) DeviceIDFromState(topic string) (id string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevices+"/")
	if !found {
		return "", false
	}
	id, found = strings.CutSuffix(rest, "/state")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// =============================================================================
// Discovery and System Topics
// =============================================================================

// DiscoveryAnnounce returns the topic devices self-announce on.
//
// Example: homehub/discovery/announce
func (Topics) DiscoveryAnnounce() string {
	return TopicPrefixDiscovery + "/announce"
}

// SystemStatus returns the system status topic. It carries the hub's
// online/offline status and discovery requests.
//
// Example: homehub/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStates returns a pattern matching every default-prefix state topic.
//
// Pattern: homehub/devices/+/state
func (Topics) AllDeviceStates() string {
	return TopicPrefixDevices + "/+/state"
}
