// Package mqtt owns the home hub's single MQTT broker connection.
//
// The Manager is a state machine over one paho client:
//
//	offline -> connecting -> connected
//	connected -> reconnecting -> connected | offline
//	any -> error (initial connection exhausted)
//
// Consumers observe it through On(event, listener) for the connect,
// disconnect, reconnect and error events, publish through Publish (which
// fails fast with ErrNotConnected while down), and register handlers with
// Subscribe (recorded and restored after every reconnect).
//
// # Topics
//
//	homehub/devices/{id}/set        commands to a device
//	homehub/devices/{id}/state      confirmed state from a device
//	homehub/discovery/announce      device self-announcement
//	homehub/system/status           hub status (retained, LWT) and discovery requests
//
// # Reconnection
//
// The initial connection is retried by Init with exponential backoff from
// cenkalti/backoff, never closer than one second apart. After the first
// successful connection paho's auto-reconnect takes over.
//
// # Usage
//
//	m := mqtt.NewManager(cfg.MQTT, log)
//	if err := m.Init(ctx); err != nil {
//	    return err
//	}
//	defer m.Shutdown()
//
//	m.On(mqtt.EventDisconnect, func(_ mqtt.Event, err error) { ... })
//	m.Subscribe(mqtt.Topics{}.AllDeviceStates(), 1, handleState)
package mqtt
