// Package shelly implements the device adapter for Shelly-style HTTP RPC
// switches and dimmers.
//
// Endpoints used, relative to http://{host}:{port}:
//
//	POST /rpc/Switch.Set?id={ch}&on=true|false    -> {"was_on": bool}
//	POST /rpc/Switch.Toggle?id={ch}               -> {"was_on": bool}
//	GET  /rpc/Switch.GetStatus?id={ch}            -> {"output", "apower", "voltage", "current", "temperature"}
//	POST /rpc/Light.Set?id={ch}&on=..&brightness= (dimmers only)
//	GET  /rpc/Light.GetStatus?id={ch}             (dimmers only)
//
// Every request is bounded by the adapter timeout (5s by default). One
// unreachable attempt marks the device warning, the second consecutive one
// marks it offline; any successful call resets the count.
package shelly
