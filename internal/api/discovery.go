package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/homehub-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homehub-core/internal/registry"
)

// DiscoveryResult reports what POST /discovery did per protocol.
type DiscoveryResult struct {
	MQTTRequested bool   `json:"mqttRequested"`
	MQTTError     string `json:"mqttError,omitempty"`
	HueAdded      int    `json:"hueAdded"`
	HueError      string `json:"hueError,omitempty"`
}

// MQTTStatus is the body of GET /mqtt/status.
type MQTTStatus struct {
	Attached  bool   `json:"attached"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	LastError string `json:"lastError,omitempty"`
}

// handleDiscovery asks MQTT devices to announce themselves and imports any
// new lights from the Hue bridge. It succeeds if either source worked.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var res DiscoveryResult

	mqttErr := s.registry.RequestDiscovery(ctx)
	if mqttErr == nil {
		res.MQTTRequested = true
	} else {
		res.MQTTError = mqttErr.Error()
	}

	added, hueErr := s.registry.DiscoverHue(ctx)
	res.HueAdded = added
	if hueErr != nil {
		res.HueError = hueErr.Error()
	}

	if mqttErr != nil && hueErr != nil {
		writeRegistryError(w, errors.Join(mqttErr, hueErr))
		return
	}
	s.logger.Info("discovery run", "mqtt_requested", res.MQTTRequested, "hue_added", added)
	writeJSON(w, http.StatusOK, res)
}

// handleMQTTStatus reports the broker connection state.
func (s *Server) handleMQTTStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mqttStatus())
}

func (s *Server) mqttStatus() MQTTStatus {
	state, err := s.registry.MQTTState()
	status := MQTTStatus{
		Attached: !errors.Is(err, registry.ErrNoMQTT),
		State:    string(state),
	}
	status.Connected = status.Attached && state == mqtt.StateConnected
	if err != nil && status.Attached {
		status.LastError = err.Error()
	}
	return status
}
