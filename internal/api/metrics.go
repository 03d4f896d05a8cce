package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the body of GET /system, a human-readable summary for
// admin screens. Prometheus scrapes /metrics instead.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByProtocol map[string]int `json:"by_protocol"`
	Rooms      int            `json:"rooms"`
	Scenes     int            `json:"scenes"`
}

// handleSystemMetrics returns runtime, connection and registry statistics.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT: s.mqttStatus(),
	}

	devices := s.registry.Devices()
	metrics.Devices = DeviceMetrics{
		Total:      len(devices),
		ByStatus:   make(map[string]int),
		ByProtocol: make(map[string]int),
		Rooms:      len(s.registry.Rooms()),
		Scenes:     len(s.registry.Scenes()),
	}
	for _, d := range devices {
		metrics.Devices.ByStatus[string(d.Status)]++
		metrics.Devices.ByProtocol[string(d.Protocol)]++
	}

	writeJSON(w, http.StatusOK, metrics)
}
