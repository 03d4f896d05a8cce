package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homehub-core/internal/device"
)

// handleListScenes returns all scenes.
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes := s.registry.Scenes()
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

// handleGetScene returns a single scene by ID.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	scene, err := s.registry.Scene(chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

// handlePutScene creates or replaces a scene.
func (s *Server) handlePutScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var scene device.Scene
	if err := json.NewDecoder(r.Body).Decode(&scene); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if scene.ID != "" && scene.ID != id {
		writeBadRequest(w, "body id does not match path")
		return
	}
	scene.ID = id

	saved, err := s.registry.PutScene(scene)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteScene removes a scene.
func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteScene(chi.URLParam(r, "id")); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateScene drives every device of a scene to its target.
//
// Per-device failures do not fail the request: the response lists which
// devices were applied, skipped and failed. Like single commands, the
// activation outlives a disconnecting client.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := s.registry.ActivateScene(context.WithoutCancel(r.Context()), id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	s.logger.Info("scene activated via API",
		"scene_id", id,
		"applied", len(result.Applied),
		"failed", len(result.Failed),
	)
	writeJSON(w, http.StatusOK, result)
}
