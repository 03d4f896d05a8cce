package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/homehub-core/internal/device"
)

// DefaultTimeout bounds every adapter network operation.
const DefaultTimeout = 5 * time.Second

// Colour temperature range accepted by SetColorTemperature, in kelvin.
const (
	MinKelvin = 2000
	MaxKelvin = 6500
)

// Adapter translates the uniform device-control contract into one
// transport's request/response or publish/subscribe semantics.
//
// Implementations must never panic or return a raw error past this
// boundary: every failure is reported as a Result with Success=false.
// The device argument is a snapshot; adapters must not retain or mutate it.
type Adapter interface {
	TurnOn(ctx context.Context, d *device.Device) Result
	TurnOff(ctx context.Context, d *device.Device) Result
	SetBrightness(ctx context.Context, d *device.Device, percent int) Result
	SetColorTemperature(ctx context.Context, d *device.Device, kelvin int) Result
	GetState(ctx context.Context, d *device.Device) Result
}

// Toggler is implemented by adapters that can invert power state natively.
type Toggler interface {
	Toggle(ctx context.Context, d *device.Device) Result
}

// Result is the outcome of one adapter call. It is consumed once by the
// registry and then discarded.
//
// NewState may be set on failure too, carrying only health fields
// (for example status=offline after repeated timeouts).
type Result struct {
	Success  bool
	NewState *device.Patch
	Err      error
}

// Succeeded returns a successful result carrying an optional patch.
func Succeeded(p *device.Patch) Result {
	return Result{Success: true, NewState: p}
}

// Failed returns a failed result. err should wrap one of the taxonomy sentinels.
func Failed(err error) Result {
	return Result{Success: false, Err: err}
}

// Failedf builds a failed result wrapping kind with a formatted detail.
func Failedf(kind error, format string, args ...any) Result {
	return Failed(fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
}

// WithState attaches a patch to a result.
func (r Result) WithState(p *device.Patch) Result {
	r.NewState = p
	return r
}

// ErrorCode returns the short taxonomy code of a failed result, or "" on success.
func (r Result) ErrorCode() string {
	if r.Success {
		return ""
	}
	return Code(r.Err)
}

// MarshalJSON renders the result as {success, newState?, error?}.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Success  bool          `json:"success"`
		NewState *device.Patch `json:"newState,omitempty"`
		Error    string        `json:"error,omitempty"`
		Detail   string        `json:"detail,omitempty"`
	}{
		Success:  r.Success,
		NewState: r.NewState,
	}
	if !r.Success {
		out.Error = r.ErrorCode()
		if r.Err != nil {
			out.Detail = r.Err.Error()
		}
	}
	return json.Marshal(out)
}

// Call runs fn and converts a panic into a protocol failure so nothing
// escapes an adapter call.
func Call(fn func() Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failedf(ErrProtocol, "adapter panic: %v", r)
		}
	}()
	return fn()
}

// ValidateBrightness checks a brightness percentage.
func ValidateBrightness(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: brightness %d outside 0-100", ErrValidation, percent)
	}
	return nil
}

// ValidateColorTemperature checks a colour temperature in kelvin.
func ValidateColorTemperature(kelvin int) error {
	if kelvin < MinKelvin || kelvin > MaxKelvin {
		return fmt.Errorf("%w: colour temperature %dK outside %d-%dK", ErrValidation, kelvin, MinKelvin, MaxKelvin)
	}
	return nil
}

// Online returns a patch marking the device reachable now, plus any extra fields.
func Online(now time.Time) *device.Patch {
	return &device.Patch{
		Status:   device.StatusPtr(device.StatusOnline),
		LastSeen: device.Time(now),
	}
}
