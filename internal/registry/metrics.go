package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homehub-core/internal/kv"
)

// Command outcomes recorded in homehub_commands_total.
const (
	outcomeConfirmed  = "confirmed"
	outcomeRolledBack = "rolled_back"
	outcomeSuperseded = "superseded"
	outcomeRejected   = "rejected"
)

// Metrics holds the registry's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	commands  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	devices   *prometheus.GaugeVec
	mqttState *prometheus.GaugeVec
	kvFlushes *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homehub_commands_total",
			Help: "Device commands by protocol, command and outcome",
		}, []string{"protocol", "command", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homehub_command_duration_seconds",
			Help:    "Time from dispatch to adapter result",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"protocol"}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "homehub_devices",
			Help: "Known devices by status",
		}, []string{"status"}),
		mqttState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "homehub_mqtt_connection_state",
			Help: "MQTT connection state (1 for the current state)",
		}, []string{"state"}),
		kvFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homehub_kv_flushes_total",
			Help: "Debounced KV writes by outcome",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.duration, m.devices, m.mqttState, m.kvFlushes)
	}
	return m
}

func (m *Metrics) observeCommand(p device.Protocol, kind CommandKind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(string(p), string(kind), outcome).Inc()
	if took > 0 {
		m.duration.WithLabelValues(string(p)).Observe(took.Seconds())
	}
}

func (m *Metrics) setDeviceCounts(counts map[device.Status]int) {
	if m == nil {
		return
	}
	for _, s := range device.AllStatuses() {
		m.devices.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// SetMQTTState marks s as the current connection state.
func (m *Metrics) SetMQTTState(s mqtt.State) {
	if m == nil {
		return
	}
	for _, st := range []mqtt.State{
		mqtt.StateOffline, mqtt.StateConnecting, mqtt.StateConnected, mqtt.StateReconnecting, mqtt.StateError,
	} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.mqttState.WithLabelValues(string(st)).Set(v)
	}
}

// KVFlushObserver returns a kv.FlushObserver counting flush outcomes.
func (m *Metrics) KVFlushObserver() kv.FlushObserver {
	return func(_ string, err error) {
		if m == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.kvFlushes.WithLabelValues(outcome).Inc()
	}
}
