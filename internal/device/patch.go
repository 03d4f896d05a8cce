package device

import "time"

// Patch is a partial device state. Nil fields are left untouched by Apply.
//
// Adapters report results as patches; only the registry applies them.
type Patch struct {
	Enabled        *bool              `json:"enabled,omitempty"`
	Value          *float64           `json:"value,omitempty"`
	Unit           *string            `json:"unit,omitempty"`
	Status         *Status            `json:"status,omitempty"`
	LastSeen       *time.Time         `json:"lastSeen,omitempty"`
	SignalStrength *int               `json:"signalStrength,omitempty"`
	Metadata       map[string]float64 `json:"metadata,omitempty"`
}

// Apply writes every set field of p onto d. Metadata keys are merged.
func (p Patch) Apply(d *Device) {
	if p.Enabled != nil {
		d.Enabled = *p.Enabled
	}
	if p.Value != nil {
		d.Value = *p.Value
	}
	if p.Unit != nil {
		d.Unit = *p.Unit
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.LastSeen != nil {
		t := *p.LastSeen
		d.LastSeen = &t
	}
	if p.SignalStrength != nil {
		s := *p.SignalStrength
		d.SignalStrength = &s
	}
	if len(p.Metadata) > 0 {
		if d.Metadata == nil {
			d.Metadata = make(map[string]float64, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			d.Metadata[k] = v
		}
	}
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Enabled == nil && p.Value == nil && p.Unit == nil && p.Status == nil &&
		p.LastSeen == nil && p.SignalStrength == nil && len(p.Metadata) == 0
}

// HealthOnly keeps the reachability fields and drops control state.
// Used when a failed command still tells us something about the device.
func (p Patch) HealthOnly() Patch {
	return Patch{
		Status:   p.Status,
		LastSeen: p.LastSeen,
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// StatusPtr returns a pointer to s.
func StatusPtr(s Status) *Status { return &s }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }
