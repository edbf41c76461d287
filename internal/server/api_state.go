package server

import (
	"net/http"
	"time"

	"embymirror/internal/models"
	"embymirror/internal/reconciler"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Title     string     `json:"title"`
	UniqueID  string     `json:"unique_id"`
	Version   string     `json:"version,omitempty"`
	Available bool       `json:"available"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	Streams   int        `json:"active_streams"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Title:     s.identity.Title,
		UniqueID:  s.identity.UniqueID,
		Available: s.coordinator.Available(),
	}
	if snap := s.coordinator.Snapshot(); snap != nil {
		resp.Version = snap.Server.Version
		resp.FetchedAt = &snap.FetchedAt
		resp.Streams = snap.ActiveStreamCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.coordinator.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	snap := s.coordinator.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusOK, []models.Session{})
		return
	}
	writeJSON(w, http.StatusOK, snap.Sessions)
}

func (s *Server) handleLibraries(w http.ResponseWriter, r *http.Request) {
	snap := s.coordinator.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusOK, []models.Library{})
		return
	}
	writeJSON(w, http.StatusOK, snap.Libraries)
}

func (s *Server) handleHandles(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		writeJSON(w, http.StatusOK, []reconciler.HandleStatus{})
		return
	}
	handles := s.reconciler.Handles()
	if handles == nil {
		handles = []reconciler.HandleStatus{}
	}
	writeJSON(w, http.StatusOK, handles)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.coordinator.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}
