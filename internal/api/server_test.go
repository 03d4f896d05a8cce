package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/auth"
	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/infrastructure/config"
	"github.com/nerrad567/homehub-core/internal/infrastructure/logging"
	"github.com/nerrad567/homehub-core/internal/registry"
)

const (
	testJWTSecret = "test-secret-key-at-least-32-characters-long"
	testPassword  = "open-sesame"
)

// stubAdapter answers every call with a configurable result.
type stubAdapter struct {
	mu      sync.Mutex
	result  adapter.Result
	calls   []string
	ctxErrs []error // ctx.Err() seen by each call
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{result: adapter.Succeeded(nil)}
}

func (a *stubAdapter) set(res adapter.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = res
}

func (a *stubAdapter) record(ctx context.Context, call string) adapter.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	a.ctxErrs = append(a.ctxErrs, ctx.Err())
	return a.result
}

func (a *stubAdapter) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *stubAdapter) ctxErrors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]error(nil), a.ctxErrs...)
}

func (a *stubAdapter) TurnOn(ctx context.Context, _ *device.Device) adapter.Result {
	return a.record(ctx, "on")
}

func (a *stubAdapter) TurnOff(ctx context.Context, _ *device.Device) adapter.Result {
	return a.record(ctx, "off")
}

func (a *stubAdapter) SetBrightness(ctx context.Context, _ *device.Device, _ int) adapter.Result {
	return a.record(ctx, "brightness")
}

func (a *stubAdapter) SetColorTemperature(ctx context.Context, _ *device.Device, _ int) adapter.Result {
	return a.record(ctx, "colorTemperature")
}

func (a *stubAdapter) GetState(ctx context.Context, _ *device.Device) adapter.Result {
	return a.record(ctx, "state")
}

// testEnv is a server wired to a real registry with a stub HTTP adapter.
type testEnv struct {
	srv     *Server
	reg     *registry.Registry
	adapter *stubAdapter
	hub     *Hub
	router  http.Handler
}

type envOption func(*Deps, *registry.Deps)

func withAuth(t *testing.T) envOption {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return func(d *Deps, _ *registry.Deps) {
		d.Security.Auth = config.AuthConfig{Enabled: true, PasswordHash: hash}
	}
}

func withCORSOrigins(origins ...string) envOption {
	return func(d *Deps, _ *registry.Deps) {
		d.Config.CORS.AllowedOrigins = origins
	}
}

func withHue(h registry.HueDiscoverer) envOption {
	return func(_ *Deps, r *registry.Deps) {
		r.Hue = h
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	log := logging.Discard()
	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	hub := NewHub(wsCfg, log)
	stub := newStubAdapter()

	regDeps := registry.Deps{
		Adapters:       registry.Adapters{HTTP: stub, Hue: stub},
		Notifier:       hub,
		CommandTimeout: time.Second,
	}
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: wsCfg,
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:   log,
		Hub:      hub,
		Gatherer: prometheus.NewRegistry(),
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps, &regDeps)
	}
	reg := registry.New(regDeps)
	deps.Registry = reg

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return &testEnv{srv: srv, reg: reg, adapter: stub, hub: hub, router: srv.buildRouter()}
}

// do sends a request through the router. body may be nil, a string, or a
// value to encode as JSON.
func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	return e.doContext(t, context.Background(), method, path, body, header...)
}

// doContext is do with the request bound to ctx.
func (e *testEnv) doContext(t *testing.T, ctx context.Context, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequestWithContext(ctx, method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) addDevice(t *testing.T, d device.Device) {
	t.Helper()
	if _, err := e.reg.Upsert(d); err != nil {
		t.Fatalf("Upsert(%s) error = %v", d.ID, err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func httpPlug(id string) device.Device {
	return device.Device{
		ID: id, Name: id, Type: device.DeviceTypePlug, Room: "Kitchen",
		Status: device.StatusOnline, Protocol: device.ProtocolHTTP,
		Config: device.Config{Host: "192.0.2.10"},
	}
}

func dimmer(id, room string) device.Device {
	d := httpPlug(id)
	d.Type = device.DeviceTypeLight
	d.Room = room
	d.Capabilities = []device.Capability{device.CapabilityDimming}
	return d
}

// ─── Health and middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestRequestID(t *testing.T) {
	e := newTestEnv(t)

	if got := e.do(t, http.MethodGet, "/api/v1/health", nil).Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	w := e.do(t, http.MethodGet, "/api/v1/health", nil, "X-Request-ID", "client-123")
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, withCORSOrigins("http://panel.local"))

	tests := []struct {
		name     string
		origin   string
		wantACAO string
	}{
		{"allowed origin", "http://panel.local", "http://panel.local"},
		{"other origin", "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodOptions, "/api/v1/devices", nil,
				"Origin", tt.origin,
				"Access-Control-Request-Method", http.MethodPost,
			)
			if w.Code >= http.StatusMultipleChoices {
				t.Errorf("preflight status = %d, want 2xx", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantACAO {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantACAO)
			}
		})
	}
}

func TestNotFoundRoute(t *testing.T) {
	e := newTestEnv(t)

	if w := e.do(t, http.MethodGet, "/api/v1/nonexistent", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestBodySizeLimit(t *testing.T) {
	e := newTestEnv(t)

	huge := `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	if w := e.do(t, http.MethodPut, "/api/v1/devices/plug-1", huge); w.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	gatherer := prometheus.NewRegistry()
	metrics := registry.NewMetrics(gatherer)

	e := newTestEnv(t, func(d *Deps, _ *registry.Deps) { d.Gatherer = gatherer })
	metrics.SetMQTTState("connected")

	w := e.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "homehub_") {
		t.Errorf("metrics body has no homehub_ series:\n%s", w.Body.String())
	}
}

func TestSystemMetrics(t *testing.T) {
	e := newTestEnv(t)
	e.addDevice(t, httpPlug("plug-1"))
	off := httpPlug("plug-2")
	off.Status = device.StatusOffline
	e.addDevice(t, off)

	w := e.do(t, http.MethodGet, "/api/v1/system", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("system status = %d, want %d", w.Code, http.StatusOK)
	}
	got := decode[SystemMetrics](t, w)
	if got.Devices.Total != 2 {
		t.Errorf("Devices.Total = %d, want 2", got.Devices.Total)
	}
	if got.Devices.ByStatus["offline"] != 1 || got.Devices.ByProtocol["http"] != 2 {
		t.Errorf("Devices = %+v", got.Devices)
	}
	if got.MQTT.Attached {
		t.Error("MQTT.Attached = true with no broker")
	}
	if got.Version != "test" {
		t.Errorf("Version = %q, want test", got.Version)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	e := newTestEnv(t)

	if err := e.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := e.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { e.srv.Close() }) //nolint:errcheck

	if err := e.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := e.srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + e.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if err := e.srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	reg := registry.New(registry.Deps{})

	if _, err := New(Deps{Registry: reg}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without registry should fail")
	}

	_, err := New(Deps{
		Logger:   logging.Discard(),
		Registry: reg,
		Security: config.SecurityConfig{Auth: config.AuthConfig{Enabled: true, PasswordHash: "nope"}},
	})
	if err == nil {
		t.Error("New() with auth enabled and a bad hash should fail")
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func login(t *testing.T, e *testEnv) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"password": testPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[loginResponse](t, w)
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 15*60 {
		t.Errorf("login response = %+v", resp)
	}
	return resp.AccessToken
}

func TestAuth_ProtectsRoutes(t *testing.T) {
	e := newTestEnv(t, withAuth(t))
	e.addDevice(t, httpPlug("plug-1"))

	if w := e.do(t, http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("health without token = %d, want %d", w.Code, http.StatusOK)
	}

	token := login(t, e)

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic " + token}, http.StatusUnauthorized},
		{"garbage token", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"valid token", []string{"Authorization", "Bearer " + token}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodGet, "/api/v1/devices", nil, tt.header...); w.Code != tt.want {
				t.Errorf("GET /devices status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t, withAuth(t))

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong password", map[string]string{"password": "guess"}, http.StatusUnauthorized},
		{"empty password", map[string]string{"password": ""}, http.StatusBadRequest},
		{"invalid JSON", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodPost, "/api/v1/auth/login", tt.body); w.Code != tt.want {
				t.Errorf("login status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLogin_AuthDisabled(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"password": testPassword})
	if w.Code != http.StatusNotFound {
		t.Errorf("login status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/devices", nil); w.Code != http.StatusOK {
		t.Errorf("GET /devices with auth disabled = %d, want %d", w.Code, http.StatusOK)
	}
}
