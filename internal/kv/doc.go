// Package kv persists application state (devices, rooms, scenes) as JSON
// documents in a key-value store.
//
// Three backends implement Store: RESTStore talks to the remote KV service
// (GET/POST/DELETE /kv/{key}), RedisStore keeps entries in Redis and
// SQLiteStore keeps them in a local file. Keys must match [a-zA-Z0-9_-]+.
//
// Writer sits in front of a Store and coalesces bursts of writes: only the
// newest value per key is sent once the debounce window elapses, and Close
// flushes whatever is still pending.
package kv
