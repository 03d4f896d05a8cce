// Package api implements the HTTP REST API and WebSocket server for the hub.
//
// This package provides:
//   - REST endpoints for devices, rooms and scenes
//   - Device commands with optimistic update and rollback, via the registry
//   - A WebSocket hub that relays registry notifications to subscribers
//   - Optional bearer-token authentication
//   - Prometheus metrics at /metrics
//
// # Architecture
//
// The API server sits between user interfaces and the device registry. All
// device traffic goes through the registry, which owns protocol dispatch and
// reconciliation. The WebSocket Hub implements registry.Notifier, so every
// optimistic update, confirmation and rollback reaches subscribed clients.
//
// # Security
//
// With security.auth.enabled unset every route is open, which suits a hub on
// a trusted LAN. When enabled, POST /api/v1/auth/login exchanges the household
// password for an HS256 token. Protected routes read it from the
// Authorization header and the WebSocket upgrade from the token query
// parameter, since browsers cannot set headers on a WebSocket handshake.
//
// # Graceful Degradation
//
// The server operates without MQTT. Reads, HTTP and Hue commands keep
// working; MQTT commands fail with a not connected error.
package api
