package hue

import "math"

// Native Hue ranges.
const (
	MaxBri   = 254
	MinMired = 153
	MaxMired = 500
)

// PercentToNative maps 0-100 onto the bridge's 0-254 brightness scale.
func PercentToNative(percent int) int {
	switch {
	case percent <= 0:
		return 0
	case percent >= 100:
		return MaxBri
	}
	return int(math.Round(float64(percent) / 100 * MaxBri))
}

// NativeToPercent is the inverse of PercentToNative.
func NativeToPercent(native int) int {
	switch {
	case native <= 0:
		return 0
	case native >= MaxBri:
		return 100
	}
	return int(math.Round(float64(native) / MaxBri * 100))
}

// KelvinToMired converts a colour temperature to the bridge's ct value,
// clamped to what Hue bulbs accept.
func KelvinToMired(kelvin int) int {
	if kelvin <= 0 {
		return MaxMired
	}
	m := int(math.Round(1e6 / float64(kelvin)))
	return min(max(m, MinMired), MaxMired)
}

// MiredToKelvin converts a bridge ct value back to kelvin.
func MiredToKelvin(mired int) int {
	if mired <= 0 {
		return 0
	}
	return int(math.Round(1e6 / float64(mired)))
}
