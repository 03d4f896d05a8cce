package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned by Get for absent keys.
	ErrNotFound = errors.New("kv: key not found")

	// ErrInvalidKey is returned for keys outside [a-zA-Z0-9_-]+.
	ErrInvalidKey = errors.New("kv: invalid key")

	// ErrInvalidValue is returned when a value is not a JSON document.
	ErrInvalidValue = errors.New("kv: invalid value")

	// ErrUnavailable wraps transport and backend failures.
	ErrUnavailable = errors.New("kv: store unavailable")

	// ErrClosed is returned by a Writer after Close.
	ErrClosed = errors.New("kv: writer closed")
)

// Well-known keys.
const (
	KeyDevices = "devices"
	KeyRooms   = "rooms"
	KeyScenes  = "scenes"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateKey checks key against [a-zA-Z0-9_-]+.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Entry is a stored value and the time it was last written.
type Entry struct {
	Key       string
	Value     json.RawMessage
	Timestamp time.Time
}

// Decode unmarshals the entry's value into v.
func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Value, v); err != nil {
		return fmt.Errorf("decoding %s: %w", e.Key, err)
	}
	return nil
}

// Store is a key-value backend. Values are JSON documents.
//
// Delete of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
}

// GetJSON reads key into v. It reports false without error when the key is
// absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	entry, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, entry.Decode(v)
}

// SetJSON marshals v and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return s.Set(ctx, key, data)
}

func checkValue(value json.RawMessage) error {
	if len(value) == 0 || !json.Valid(value) {
		return ErrInvalidValue
	}
	return nil
}

// parseTimestamp accepts unix milliseconds or an RFC 3339 string.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var ms json.Number
	if err := json.Unmarshal(raw, &ms); err == nil {
		if n, err := strconv.ParseInt(ms.String(), 10, 64); err == nil {
			return time.UnixMilli(n)
		}
		if f, err := ms.Float64(); err == nil {
			return time.UnixMilli(int64(f))
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
