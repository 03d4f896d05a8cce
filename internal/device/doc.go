// Package device defines the protocol-neutral device model of HomeHub.
//
// A Device is the single entity the dashboard sees, whether it is a
// Shelly-style HTTP switch, an MQTT actuator or a Hue bridge light.
// Device.Protocol names the transport and Device.Config carries the
// protocol-specific binding (HTTP host/port, Hue light id, MQTT topic prefix).
//
// Rooms and Scenes group devices. Patch is a partial state used to report
// adapter results without mutating devices directly.
//
//	┌──────────┐  Patch   ┌──────────┐  Patch.Apply  ┌────────┐
//	│ Adapter  │ ───────► │ Registry │ ────────────► │ Device │
//	└──────────┘          └──────────┘               └────────┘
//
// This package has no I/O; ownership of the live device list belongs to
// the registry package.
package device
