// Package hue implements the device adapter for lights behind a local
// Philips Hue bridge, using the bridge's v1 REST API.
//
// Writes go to PUT /api/{username}/lights/{n}/state with only the changed
// fields in the body; state is read from GET /api/{username}/lights/{n}.
// Bridge replies to writes are arrays of {"success":{...}} or
// {"error":{...}} entries, and any error entry fails the command.
//
// Light and state documents are decoded with the huego resource types.
package hue
