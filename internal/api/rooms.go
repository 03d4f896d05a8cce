package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homehub-core/internal/device"
)

// handleListRooms returns rooms with their current device membership.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.registry.Rooms()
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

// handlePutRoom creates or replaces a room.
func (s *Server) handlePutRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var room device.Room
	if err := json.NewDecoder(r.Body).Decode(&room); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if room.ID != "" && room.ID != id {
		writeBadRequest(w, "body id does not match path")
		return
	}
	room.ID = id

	saved, err := s.registry.PutRoom(room)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteRoom removes a room. Devices keep their room name.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteRoom(chi.URLParam(r, "id")); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
