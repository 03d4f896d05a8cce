// Package adapter defines the uniform device-control contract and the
// failure taxonomy shared by every protocol adapter.
//
// Protocol implementations live in sub-packages:
//
//   - shelly: Shelly-style HTTP RPC switches and dimmers
//   - hue: Philips Hue bridge v1 REST API
//   - mqttdevice: MQTT pub/sub actuators on homehub/devices/{id}/set
//
// Adapters are pure functions of (device, command) to Result. They hold no
// device list and never persist anything; the registry applies results.
package adapter
