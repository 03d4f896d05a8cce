package hue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

const testUser = "testuser"

// fakeBridge serves a single light and records PUT bodies.
type fakeBridge struct {
	mu        sync.Mutex
	puts      []string
	on        bool
	bri       int
	reachable bool
	reject    bool
}

func (f *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/api/"+testUser+"/lights/39/state":
		body, _ := io.ReadAll(r.Body)
		f.puts = append(f.puts, string(body))
		if f.reject {
			w.Write([]byte(`[{"error":{"type":201,"address":"/lights/39/state/bri","description":"parameter, bri, is not modifiable. Device is set to off."}}]`))
			return
		}
		var req map[string]any
		json.Unmarshal(body, &req)
		if on, ok := req["on"].(bool); ok {
			f.on = on
		}
		if bri, ok := req["bri"].(float64); ok {
			f.bri = int(bri)
		}
		w.Write([]byte(`[{"success":{"/lights/39/state/on":true}}]`))

	case r.Method == http.MethodGet && r.URL.Path == "/api/"+testUser+"/lights/39":
		json.NewEncoder(w).Encode(map[string]any{
			"name":    "Lounge lamp",
			"type":    "Extended color light",
			"modelid": "LCT015",
			"state": map[string]any{
				"on": f.on, "bri": f.bri, "ct": 370, "reachable": f.reachable,
			},
		})

	case r.Method == http.MethodGet && r.URL.Path == "/api/"+testUser+"/lights":
		w.Write([]byte(`{
			"39": {"name":"Lounge lamp","type":"Extended color light","state":{"on":true,"bri":254,"reachable":true}},
			"7":  {"name":"Hall","type":"Dimmable light","state":{"on":false,"bri":1,"reachable":false}}
		}`))

	default:
		w.Write([]byte(`[{"error":{"type":3,"address":"` + r.URL.Path + `","description":"resource not available"}}]`))
	}
}

func (f *fakeBridge) lastPut() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.puts) == 0 {
		return ""
	}
	return f.puts[len(f.puts)-1]
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeBridge) {
	t.Helper()
	fake := &fakeBridge{reachable: true, bri: 200}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(srv.URL, testUser), fake
}

func hue39() *device.Device {
	return &device.Device{ID: "hue-39", Protocol: device.ProtocolHue, Config: device.Config{LightID: 39}}
}

func TestTurnOnOffBodies(t *testing.T) {
	a, fake := newTestAdapter(t)
	d := hue39()

	res := a.TurnOn(context.Background(), d)
	if !res.Success {
		t.Fatalf("TurnOn() error = %v", res.Err)
	}
	if got := fake.lastPut(); got != `{"on":true}` {
		t.Errorf("TurnOn() PUT body = %s, want {\"on\":true}", got)
	}
	if !*res.NewState.Enabled {
		t.Error("TurnOn() NewState not enabled")
	}
	// Brightness comes from the bridge re-read, not from memory.
	if res.NewState.Value == nil || *res.NewState.Value != float64(NativeToPercent(200)) {
		t.Errorf("TurnOn() Value = %v, want bridge-reported brightness", res.NewState.Value)
	}

	res = a.TurnOff(context.Background(), d)
	if !res.Success {
		t.Fatalf("TurnOff() error = %v", res.Err)
	}
	if got := fake.lastPut(); got != `{"on":false}` {
		t.Errorf("TurnOff() PUT body = %s", got)
	}
}

func TestSetBrightnessBody(t *testing.T) {
	a, fake := newTestAdapter(t)

	res := a.SetBrightness(context.Background(), hue39(), 50)
	if !res.Success {
		t.Fatalf("SetBrightness() error = %v", res.Err)
	}
	if got := fake.lastPut(); got != `{"bri":127}` {
		t.Errorf("SetBrightness(50) PUT body = %s, want {\"bri\":127}", got)
	}
	if *res.NewState.Value != 50 {
		t.Errorf("Value = %v, want 50", *res.NewState.Value)
	}

	res = a.SetBrightness(context.Background(), hue39(), 0)
	if !res.Success || *res.NewState.Enabled {
		t.Fatalf("SetBrightness(0) = %+v", res)
	}
	if got := fake.lastPut(); got != `{"on":false}` {
		t.Errorf("SetBrightness(0) PUT body = %s, want {\"on\":false}", got)
	}

	res = a.SetBrightness(context.Background(), hue39(), 101)
	if !errors.Is(res.Err, adapter.ErrValidation) {
		t.Errorf("SetBrightness(101) error = %v, want validation", res.Err)
	}
}

func TestBrightnessRoundTrip(t *testing.T) {
	for p := 0; p <= 100; p++ {
		got := NativeToPercent(PercentToNative(p))
		if got < p-1 || got > p+1 {
			t.Errorf("round trip of %d = %d", p, got)
		}
	}

	for _, p := range []int{0, 50, 100} {
		if got := NativeToPercent(PercentToNative(p)); got != p {
			t.Errorf("round trip of canonical %d = %d", p, got)
		}
	}

	if PercentToNative(50) != 127 {
		t.Errorf("PercentToNative(50) = %d, want 127", PercentToNative(50))
	}
}

func TestKelvinToMired(t *testing.T) {
	tests := []struct {
		kelvin int
		want   int
	}{
		{2000, 500},
		{2700, 370},
		{4000, 250},
		{6500, 154},
		{10000, MinMired},
	}
	for _, tt := range tests {
		if got := KelvinToMired(tt.kelvin); got != tt.want {
			t.Errorf("KelvinToMired(%d) = %d, want %d", tt.kelvin, got, tt.want)
		}
	}
}

func TestSetColorTemperature(t *testing.T) {
	a, fake := newTestAdapter(t)
	d := hue39()

	res := a.SetColorTemperature(context.Background(), d, 2700)
	if !errors.Is(res.Err, adapter.ErrUnsupported) {
		t.Fatalf("SetColorTemperature() without capability error = %v", res.Err)
	}

	d.Capabilities = []device.Capability{device.CapabilityDimming, device.CapabilityColorTemp}
	res = a.SetColorTemperature(context.Background(), d, 2700)
	if !res.Success {
		t.Fatalf("SetColorTemperature() error = %v", res.Err)
	}
	if got := fake.lastPut(); got != `{"ct":370}` {
		t.Errorf("PUT body = %s, want {\"ct\":370}", got)
	}
}

func TestBridgeRejection(t *testing.T) {
	a, fake := newTestAdapter(t)
	fake.mu.Lock()
	fake.reject = true
	fake.mu.Unlock()

	res := a.SetBrightness(context.Background(), hue39(), 30)
	if res.Success {
		t.Fatal("SetBrightness() succeeded despite bridge error")
	}
	if !errors.Is(res.Err, adapter.ErrProtocol) {
		t.Errorf("error = %v, want protocol", res.Err)
	}
}

func TestGetStateUnreachable(t *testing.T) {
	a, fake := newTestAdapter(t)
	fake.mu.Lock()
	fake.on = true
	fake.bri = 127
	fake.reachable = false
	fake.mu.Unlock()

	res := a.GetState(context.Background(), hue39())
	if !res.Success {
		t.Fatalf("GetState() error = %v", res.Err)
	}
	p := res.NewState
	if *p.Status != device.StatusOffline {
		t.Errorf("Status = %q, want offline", *p.Status)
	}
	if *p.Value != 50 {
		t.Errorf("Value = %v, want 50", *p.Value)
	}
	if p.Metadata["colorTemp"] != 2703 {
		t.Errorf("colorTemp = %v, want 2703", p.Metadata["colorTemp"])
	}
}

func TestGetStateUnknownLight(t *testing.T) {
	a, _ := newTestAdapter(t)
	d := hue39()
	d.Config.LightID = 99

	res := a.GetState(context.Background(), d)
	if !errors.Is(res.Err, adapter.ErrProtocol) {
		t.Errorf("GetState() error = %v, want protocol", res.Err)
	}

	d.Config.LightID = 0
	res = a.GetState(context.Background(), d)
	if !errors.Is(res.Err, adapter.ErrValidation) {
		t.Errorf("GetState() without light id error = %v, want validation", res.Err)
	}
}

func TestListLights(t *testing.T) {
	a, _ := newTestAdapter(t)

	lights, err := a.ListLights(context.Background())
	if err != nil {
		t.Fatalf("ListLights() error = %v", err)
	}
	if len(lights) != 2 {
		t.Fatalf("len(lights) = %d, want 2", len(lights))
	}

	hall, lounge := lights[0], lights[1]
	if hall.ID != "hue-7" || lounge.ID != "hue-39" {
		t.Errorf("ids = %s, %s", hall.ID, lounge.ID)
	}
	if hall.Status != device.StatusOffline || lounge.Status != device.StatusOnline {
		t.Errorf("statuses = %s, %s", hall.Status, lounge.Status)
	}
	if !lounge.HasCapability(device.CapabilityColorTemp) || hall.HasCapability(device.CapabilityColorTemp) {
		t.Error("capabilities not derived from light type")
	}
	if lounge.Value != 100 || !lounge.Enabled {
		t.Errorf("lounge = enabled %v value %v", lounge.Enabled, lounge.Value)
	}
	if err := device.ValidateDevice(&lounge); err != nil {
		t.Errorf("discovered device invalid: %v", err)
	}
}

func TestBridgeDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := New(url, testUser).TurnOn(context.Background(), hue39())
	if res.ErrorCode() != "network" {
		t.Errorf("ErrorCode() = %q, want network", res.ErrorCode())
	}
}
