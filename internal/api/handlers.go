package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/samber/lo"
)

type healthResponse struct {
	Connected     bool `json:"connected"`
	Authenticated bool `json:"authenticated"`
}

func (s *DebugServer) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("json encode")
	}
}

func (s *DebugServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.chat.Connected() {
		status = http.StatusServiceUnavailable
	}

	s.writeJson(w, status, healthResponse{
		Connected:     s.chat.Connected(),
		Authenticated: s.chat.Authenticated(),
	})
}

// getView returns the active room's feed. ?limit=N keeps the N most
// recent messages.
func (s *DebugServer) getView(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			errResp := invalidParam("limit")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		limit = n
	}

	view, err := s.chat.View(r.Context())
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if limit >= 0 {
		view.Messages = lo.Subset(view.Messages, -limit, uint(limit))
	}

	s.writeJson(w, http.StatusOK, view)
}

func (s *DebugServer) getRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.chat.ListRooms(r.Context())
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}
