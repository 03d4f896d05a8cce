package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure taxonomy. Every failed Result wraps exactly one of these, and the
// sentinel's message is the short code surfaced to clients.
var (
	// ErrNetwork covers unreachable hosts and refused connections.
	ErrNetwork = errors.New("network")

	// ErrTimeout is returned when an operation exceeds its time bound.
	ErrTimeout = errors.New("timeout")

	// ErrProtocol is returned for malformed or unexpected responses.
	ErrProtocol = errors.New("protocol")

	// ErrUnsupported is returned when a command does not apply to the device.
	ErrUnsupported = errors.New("unsupported")

	// ErrNotConnected is returned when the MQTT connection is not up.
	ErrNotConnected = errors.New("not connected")

	// ErrValidation is returned for out-of-range input or unknown protocols.
	ErrValidation = errors.New("validation")

	// ErrCanceled is returned when the caller gave up before the operation
	// finished. It says nothing about the device's reachability.
	ErrCanceled = errors.New("canceled")
)

var taxonomy = []error{
	ErrTimeout, ErrNotConnected, ErrNetwork, ErrProtocol, ErrUnsupported, ErrValidation, ErrCanceled,
}

// Code returns the taxonomy code of err, or "error" if it is unclassified.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "error"
}

// ClassifyTransport wraps a transport-level error as ErrTimeout, ErrNetwork
// or ErrCanceled. An exceeded deadline is a timeout; a cancelled context
// means the caller went away and is not held against the device.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
}

// IsReachabilityFailure reports whether err means the device could not be reached.
func IsReachabilityFailure(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork)
}
