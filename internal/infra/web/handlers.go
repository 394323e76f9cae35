package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCharacters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   s.d.Characters.List(),
		"default": model.DefaultCharacterID,
	})
}

// ---- history ----

type historyResponse struct {
	SessionKey string       `json:"session_key"`
	MaxLen     int          `json:"max_len"`
	Turns      []model.Turn `json:"turns"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 0 {
		limit = 0
	}
	key := SessionKeyFrom(r.Context())
	turns := s.d.History.Snapshot(key, limit)
	if turns == nil {
		turns = []model.Turn{}
	}
	resp := historyResponse{SessionKey: key, Turns: turns}
	if m, ok := s.d.History.(interface{ MaxLen() int }); ok {
		resp.MaxLen = m.MaxLen()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistoryPurge(w http.ResponseWriter, r *http.Request) {
	s.d.History.Purge(SessionKeyFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// ---- proactive ----

type proactiveCheckRequest struct {
	Emotion     string  `json:"emotion"`
	IdleSeconds float64 `json:"idle_seconds"`
	Topic       string  `json:"topic"`
	Stamp       bool    `json:"stamp"`
}

func (s *Server) handleProactiveCheck(w http.ResponseWriter, r *http.Request) {
	var req proactiveCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdleSeconds < 0 {
		writeError(w, http.StatusBadRequest, "idle_seconds must not be negative")
		return
	}
	dec := s.d.Suggest.Evaluate(SessionKeyFrom(r.Context()), model.SuggestionContext{
		Emotion:     req.Emotion,
		IdleSeconds: req.IdleSeconds,
		Topic:       req.Topic,
	}, req.Stamp)
	writeJSON(w, http.StatusOK, dec)
}

type feedbackRequest struct {
	Type     string `json:"type"`
	Accepted bool   `json:"accepted"`
}

func (s *Server) handleProactiveFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, ok := model.ParseSuggestionType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown suggestion type")
		return
	}
	if err := s.d.Suggest.RecordFeedback(SessionKeyFrom(r.Context()), t, req.Accepted); err != nil {
		if errors.Is(err, domain.ErrUnknownType) || errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type quietHoursRequest struct {
	Hours []int `json:"hours"`
}

func (s *Server) handleQuietHours(w http.ResponseWriter, r *http.Request) {
	var req quietHoursRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.d.Suggest.SetQuietHours(SessionKeyFrom(r.Context()), req.Hours); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proactiveStateResponse struct {
	*model.UserSuggestionState
	QuietHours []int `json:"quiet_hours"`
}

func (s *Server) handleProactiveState(w http.ResponseWriter, r *http.Request) {
	st, ok := s.d.Suggest.State(SessionKeyFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, proactiveStateResponse{UserSuggestionState: st, QuietHours: st.QuietHourList()})
}
