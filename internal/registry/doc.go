// Package registry is the canonical in-memory device list and the single
// place device state changes.
//
// Commands are dispatched to the adapter selected by the device protocol:
//
//	http -> Shelly adapter
//	mqtt -> MQTT device adapter
//	hue  -> Hue bridge adapter
//
// Each command goes through the same lifecycle:
//
//	idle -> pending (optimistic state applied, broadcast)
//	     -> confirmed (adapter state applied, persisted)
//	     -> rolled-back (last confirmed state restored, failure broadcast)
//
// A device has one in-flight command slot. A second command replaces the
// slot; when the first result eventually arrives its token no longer
// matches and it is discarded with ErrSuperseded. Rollback always restores
// the state confirmed before the oldest pending command, never an earlier
// optimistic state.
//
// The registry also consumes MQTT state reports and discovery
// announcements, refreshes polled devices, imports Hue lights and
// activates scenes. Devices, rooms and scenes are written back to the KV
// store through a debounced Persister.
package registry
