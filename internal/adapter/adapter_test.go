package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/nerrad567/homehub-core/internal/device"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"wrapped deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrTimeout},
		{"cancelled", context.Canceled, ErrCanceled},
		{"wrapped cancel", fmt.Errorf("post: %w", context.Canceled), ErrCanceled},
		{"net timeout", timeoutErr{}, ErrTimeout},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransport(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("ClassifyTransport() = %v, want %v", got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("ClassifyTransport() lost the original error")
			}
		})
	}

	if ClassifyTransport(nil) != nil {
		t.Error("ClassifyTransport(nil) != nil")
	}
}

func TestIsReachabilityFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"caller cancelled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReachabilityFailure(ClassifyTransport(tt.err)); got != tt.want {
				t.Errorf("IsReachabilityFailure() = %v, want %v", got, tt.want)
			}
		})
	}
	if IsReachabilityFailure(fmt.Errorf("%w: 404", ErrProtocol)) {
		t.Error("IsReachabilityFailure(protocol) = true")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrTimeout, "timeout"},
		{fmt.Errorf("%w: x", ErrNotConnected), "not connected"},
		{fmt.Errorf("%w: x", ErrUnsupported), "unsupported"},
		{fmt.Errorf("%w: x", ErrValidation), "validation"},
		{fmt.Errorf("%w: x", ErrCanceled), "canceled"},
		{errors.New("mystery"), "error"},
	}

	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestResultJSON(t *testing.T) {
	ok := Succeeded(&device.Patch{Enabled: device.Bool(true)})
	data, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"success":true,"newState":{"enabled":true}}` {
		t.Errorf("success JSON = %s", data)
	}

	failed := Failedf(ErrTimeout, "no answer from %s", "10.0.0.5")
	data, err = json.Marshal(failed)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["success"] != false || decoded["error"] != "timeout" {
		t.Errorf("failure JSON = %s", data)
	}
}

func TestCallRecoversPanic(t *testing.T) {
	res := Call(func() Result {
		panic("boom")
	})

	if res.Success {
		t.Fatal("Call() Success = true after panic")
	}
	if !errors.Is(res.Err, ErrProtocol) {
		t.Errorf("Call() Err = %v, want ErrProtocol", res.Err)
	}
}

func TestValidateRanges(t *testing.T) {
	for _, p := range []int{0, 50, 100} {
		if err := ValidateBrightness(p); err != nil {
			t.Errorf("ValidateBrightness(%d) error = %v", p, err)
		}
	}
	for _, p := range []int{-1, 101} {
		if err := ValidateBrightness(p); !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateBrightness(%d) error = %v, want ErrValidation", p, err)
		}
	}
	for _, k := range []int{MinKelvin, 4000, MaxKelvin} {
		if err := ValidateColorTemperature(k); err != nil {
			t.Errorf("ValidateColorTemperature(%d) error = %v", k, err)
		}
	}
	for _, k := range []int{1999, 6501} {
		if err := ValidateColorTemperature(k); !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateColorTemperature(%d) error = %v, want ErrValidation", k, err)
		}
	}
}
