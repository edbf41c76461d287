package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"embymirror/internal/emby"
)

// commandError maps gateway errors onto response codes. Command names are
// deliberately not validated here; the upstream server rejects what it does
// not understand.
func (s *Server) commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, emby.ErrInvalidAuth):
		writeError(w, http.StatusUnauthorized, "media server rejected the API key")
	case errors.Is(err, emby.ErrCannotConnect):
		writeError(w, http.StatusBadGateway, "media server unreachable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) commandDone(w http.ResponseWriter) {
	s.coordinator.TriggerRefresh()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlayingCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cmd := chi.URLParam(r, "command")
	if err := s.client.PlayCommand(r.Context(), id, cmd); err != nil {
		s.commandError(w, err)
		return
	}
	s.commandDone(w)
}

func (s *Server) handleGeneralCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")
	if err := s.client.GeneralCommand(r.Context(), id, name); err != nil {
		s.commandError(w, err)
		return
	}
	s.commandDone(w)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionTicks int64 `json:"position_ticks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.client.Seek(r.Context(), chi.URLParam(r, "id"), req.PositionTicks); err != nil {
		s.commandError(w, err)
		return
	}
	s.commandDone(w)
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level *int `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level == nil {
		writeError(w, http.StatusBadRequest, "level (0-100) is required")
		return
	}
	if err := s.client.SetVolume(r.Context(), chi.URLParam(r, "id"), *req.Level); err != nil {
		s.commandError(w, err)
		return
	}
	s.commandDone(w)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Header    string `json:"header"`
		Text      string `json:"text"`
		TimeoutMs int    `json:"timeout_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := s.client.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Header, req.Text, req.TimeoutMs); err != nil {
		s.commandError(w, err)
		return
	}
	s.commandDone(w)
}

func (s *Server) handlePlayMedia(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemIDs     []string `json:"item_ids"`
		PlayCommand string   `json:"play_command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.ItemIDs) == 0 {
		writeError(w, http.StatusBadRequest, "item_ids is required")
		return
	}
	if err := s.client.PlayMedia(r.Context(), chi.URLParam(r, "id"), req.ItemIDs, req.PlayCommand); err != nil {
		s.commandError(w, err)
		return
	}
	s.commandDone(w)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.client.StopSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.commandError(w, err)
		return
	}
	s.commandDone(w)
}

func (s *Server) handleSystemRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Restart(r.Context()); err != nil {
		s.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restart requested"})
}

func (s *Server) handleSystemShutdown(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Shutdown(r.Context()); err != nil {
		s.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutdown requested"})
}

func (s *Server) handleLibraryScan(w http.ResponseWriter, r *http.Request) {
	if err := s.client.ScanLibrary(r.Context()); err != nil {
		s.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scan requested"})
}
