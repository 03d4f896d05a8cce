package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/registry"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - room: filter by room name
//   - protocol: filter by protocol (http, mqtt, hue)
//   - type: filter by device type (light, plug, sensor, ...)
//   - status: filter by status (online, offline, warning, error)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room, protocol, typ, status := q.Get("room"), q.Get("protocol"), q.Get("type"), q.Get("status")

	all := s.registry.Devices()
	devices := make([]device.Device, 0, len(all))
	for _, d := range all {
		if room != "" && d.Room != room {
			continue
		}
		if protocol != "" && string(d.Protocol) != protocol {
			continue
		}
		if typ != "" && string(d.Type) != typ {
			continue
		}
		if status != "" && string(d.Status) != status {
			continue
		}
		devices = append(devices, d)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handlePutDevice creates or replaces a device definition.
// The path ID wins over any id in the body.
func (s *Server) handlePutDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var d device.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if d.ID != "" && d.ID != id {
		writeBadRequest(w, "body id does not match path")
		return
	}
	d.ID = id

	_, lookupErr := s.registry.Device(id)
	saved, err := s.registry.Upsert(d)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	status := http.StatusOK
	if lookupErr != nil {
		status = http.StatusCreated
		s.logger.Info("device added", "device_id", id, "protocol", saved.Protocol)
	}
	writeJSON(w, status, saved)
}

// handleDeleteDevice removes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Remove(id); err != nil {
		writeRegistryError(w, err)
		return
	}
	s.logger.Info("device removed", "device_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceCommand executes a command and returns the reconciled device.
//
// The request blocks until the adapter answers or the command timeout
// elapses. Clients wanting the optimistic state immediately subscribe to
// device.state_changed.
//
// The command runs detached from the request context: a client that hangs
// up does not abort a command that may already have reached the device.
// The registry's command timeout still bounds it.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd registry.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Kind == "" {
		writeBadRequest(w, "command is required")
		return
	}

	d, err := s.registry.Execute(context.WithoutCancel(r.Context()), id, cmd)
	if err != nil {
		args := []any{"device_id", id, "command", cmd.Kind, "error", err}
		if c := claimsFromContext(r.Context()); c != nil {
			args = append(args, "subject", c.Subject)
		}
		s.logger.Warn("device command failed", args...)
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleCommandState reports the phase of the latest command of a device.
func (s *Server) handleCommandState(w http.ResponseWriter, r *http.Request) {
	st, err := s.registry.CommandState(chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleRefreshDevice reads the device's state from its adapter.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
