package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"testing"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/registry"
)

type deviceList struct {
	Devices []device.Device `json:"devices"`
	Count   int             `json:"count"`
}

func TestListDevices_Empty(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Code, http.StatusOK)
	}
	got := decode[deviceList](t, w)
	if got.Count != 0 || got.Devices == nil {
		t.Errorf("list = %+v, want empty non-nil list", got)
	}
}

func TestListDevices_Filters(t *testing.T) {
	e := newTestEnv(t)
	e.addDevice(t, httpPlug("plug-1"))
	e.addDevice(t, dimmer("lamp-1", "Lounge"))
	off := dimmer("lamp-2", "Lounge")
	off.Status = device.StatusOffline
	e.addDevice(t, off)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"plug-1", "lamp-1", "lamp-2"}},
		{"?room=Lounge", []string{"lamp-1", "lamp-2"}},
		{"?type=plug", []string{"plug-1"}},
		{"?status=offline", []string{"lamp-2"}},
		{"?room=Lounge&status=online", []string{"lamp-1"}},
		{"?protocol=hue", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := decode[deviceList](t, e.do(t, http.MethodGet, "/api/v1/devices"+tt.query, nil))
			var ids []string
			for _, d := range got.Devices {
				ids = append(ids, d.ID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
			if got.Count != len(tt.want) {
				t.Errorf("count = %d, want %d", got.Count, len(tt.want))
			}
		})
	}
}

func TestPutAndGetDevice(t *testing.T) {
	e := newTestEnv(t)

	body := httpPlug("")
	body.Room = ""
	w := e.do(t, http.MethodPut, "/api/v1/devices/plug-1", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	created := decode[device.Device](t, w)
	if created.ID != "plug-1" || created.Room != device.UnassignedRoom {
		t.Errorf("created = %+v, want id plug-1 in %q", created, device.UnassignedRoom)
	}

	body.Name = "Kettle"
	if w := e.do(t, http.MethodPut, "/api/v1/devices/plug-1", body); w.Code != http.StatusOK {
		t.Fatalf("replace status = %d, want %d", w.Code, http.StatusOK)
	}

	w = e.do(t, http.MethodGet, "/api/v1/devices/plug-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decode[device.Device](t, w); got.Name != "Kettle" {
		t.Errorf("Name = %q, want Kettle", got.Name)
	}
}

func TestPutDevice_Rejects(t *testing.T) {
	e := newTestEnv(t)

	noHost := httpPlug("plug-1")
	noHost.Config.Host = ""

	tests := []struct {
		name string
		path string
		body any
	}{
		{"invalid JSON", "/api/v1/devices/plug-1", "{"},
		{"id mismatch", "/api/v1/devices/plug-1", httpPlug("plug-2")},
		{"http without host", "/api/v1/devices/plug-1", noHost},
		{"bad protocol", "/api/v1/devices/x-1", map[string]any{"type": "plug", "protocol": "zigbee"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPut, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
	if n := len(e.reg.Devices()); n != 0 {
		t.Errorf("registry has %d devices after rejected puts", n)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/devices/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := decode[Error](t, w); got.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", got.Code, ErrCodeNotFound)
	}
}

func TestDeleteDevice(t *testing.T) {
	e := newTestEnv(t)
	e.addDevice(t, httpPlug("plug-1"))

	if w := e.do(t, http.MethodDelete, "/api/v1/devices/plug-1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/devices/plug-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeviceCommand_Success(t *testing.T) {
	e := newTestEnv(t)
	e.addDevice(t, dimmer("lamp-1", "Lounge"))

	w := e.do(t, http.MethodPost, "/api/v1/devices/lamp-1/commands", map[string]any{"command": "setBrightness", "value": 40})
	if w.Code != http.StatusOK {
		t.Fatalf("command status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	got := decode[device.Device](t, w)
	if got.Value != 40 || !got.Enabled {
		t.Errorf("device = value %v enabled %v, want 40 true", got.Value, got.Enabled)
	}
	if calls := e.adapter.recorded(); !slices.Equal(calls, []string{"brightness"}) {
		t.Errorf("adapter calls = %v, want [brightness]", calls)
	}

	w = e.do(t, http.MethodGet, "/api/v1/devices/lamp-1/command", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("command state status = %d, want %d", w.Code, http.StatusOK)
	}
	st := decode[registry.CommandStatus](t, w)
	if st.Phase != registry.PhaseConfirmed || st.Command != registry.CommandSetBrightness {
		t.Errorf("command state = %+v, want confirmed setBrightness", st)
	}
}

func TestDeviceCommand_Failures(t *testing.T) {
	tests := []struct {
		name   string
		device string
		body   any
		result adapter.Result
		want   int
		code   string
	}{
		{
			name: "missing command", device: "lamp-1", body: map[string]any{},
			want: http.StatusBadRequest, code: ErrCodeBadRequest,
		},
		{
			name: "brightness out of range", device: "lamp-1",
			body: map[string]any{"command": "setBrightness", "value": 101},
			want: http.StatusBadRequest, code: ErrCodeValidation,
		},
		{
			name: "unknown command", device: "lamp-1", body: map[string]any{"command": "explode"},
			want: http.StatusBadRequest, code: ErrCodeValidation,
		},
		{
			name: "unknown device", device: "ghost", body: map[string]any{"command": "on"},
			want: http.StatusNotFound, code: ErrCodeNotFound,
		},
		{
			name: "unsupported", device: "lamp-1", body: map[string]any{"command": "setColorTemperature", "value": 3000},
			result: adapter.Failedf(adapter.ErrUnsupported, "no colour"),
			want:   http.StatusUnprocessableEntity, code: ErrCodeUnsupported,
		},
		{
			name: "timeout", device: "lamp-1", body: map[string]any{"command": "on"},
			result: adapter.Failedf(adapter.ErrTimeout, "no answer"),
			want:   http.StatusGatewayTimeout, code: ErrCodeTimeout,
		},
		{
			name: "network", device: "lamp-1", body: map[string]any{"command": "off"},
			result: adapter.Failedf(adapter.ErrNetwork, "connection refused"),
			want:   http.StatusBadGateway, code: ErrCodeDevice,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.addDevice(t, dimmer("lamp-1", "Lounge"))
			if tt.result.Err != nil {
				e.adapter.set(tt.result)
			}

			w := e.do(t, http.MethodPost, "/api/v1/devices/"+tt.device+"/commands", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if got := decode[Error](t, w); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}

func TestDeviceCommand_RollbackVisible(t *testing.T) {
	e := newTestEnv(t)
	e.addDevice(t, dimmer("lamp-1", "Lounge"))
	e.adapter.set(adapter.Failedf(adapter.ErrNetwork, "unreachable"))

	e.do(t, http.MethodPost, "/api/v1/devices/lamp-1/commands", map[string]any{"command": "on"})

	got := decode[device.Device](t, e.do(t, http.MethodGet, "/api/v1/devices/lamp-1", nil))
	if got.Enabled {
		t.Error("device still on after failed command")
	}
	st := decode[registry.CommandStatus](t, e.do(t, http.MethodGet, "/api/v1/devices/lamp-1/command", nil))
	if st.Phase != registry.PhaseRolledBack {
		t.Errorf("phase = %q, want %q", st.Phase, registry.PhaseRolledBack)
	}
}

func TestDeviceCommand_OutlivesClientDisconnect(t *testing.T) {
	e := newTestEnv(t)
	e.addDevice(t, httpPlug("plug-1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := e.doContext(t, ctx, http.MethodPost, "/api/v1/devices/plug-1/commands", map[string]any{"command": "on"})
	if w.Code != http.StatusOK {
		t.Fatalf("command status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	for i, err := range e.adapter.ctxErrors() {
		if err != nil {
			t.Errorf("adapter call %d saw ctx error %v, want none", i, err)
		}
	}
	got := decode[device.Device](t, e.do(t, http.MethodGet, "/api/v1/devices/plug-1", nil))
	if !got.Enabled || got.Status != device.StatusOnline {
		t.Errorf("device = enabled %v status %q, want true online", got.Enabled, got.Status)
	}
}

func TestRefreshDevice(t *testing.T) {
	e := newTestEnv(t)
	e.addDevice(t, httpPlug("plug-1"))

	on := true
	e.adapter.set(adapter.Succeeded(&device.Patch{Enabled: &on}))

	w := e.do(t, http.MethodPost, "/api/v1/devices/plug-1/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := decode[device.Device](t, w); !got.Enabled {
		t.Error("refreshed device not enabled")
	}

	if w := e.do(t, http.MethodPost, "/api/v1/devices/ghost/refresh", nil); w.Code != http.StatusNotFound {
		t.Errorf("refresh unknown status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", device.ErrDeviceNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", device.ErrRoomNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", device.ErrSceneNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: %w", adapter.ErrValidation, device.ErrInvalidID), http.StatusBadRequest},
		{adapter.ErrUnsupported, http.StatusUnprocessableEntity},
		{registry.ErrSuperseded, http.StatusConflict},
		{fmt.Errorf("%w: deadline", adapter.ErrTimeout), http.StatusGatewayTimeout},
		{registry.ErrNoMQTT, http.StatusServiceUnavailable},
		{adapter.ErrProtocol, http.StatusBadGateway},
		{adapter.ErrNotConnected, http.StatusBadGateway},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got, _ := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
