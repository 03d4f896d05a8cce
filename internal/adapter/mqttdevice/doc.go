// Package mqttdevice implements the device adapter for MQTT actuators and
// the decoding of the messages those devices publish.
//
// Commands go to {prefix}/set as {"command": "on"|"off"|"toggle"|
// "setBrightness"|"setColorTemperature", "value"?} at QoS 1, where prefix
// defaults to homehub/devices/{id}. Publishing never waits for the device;
// confirmed state arrives on {prefix}/state and is applied by the registry
// in arrival order.
package mqttdevice
