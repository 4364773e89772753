package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// ReadHandler serves the match and summary read views over plain HTTP.
type ReadHandler struct {
	service *app.BattleService
}

func NewReadHandler(service *app.BattleService) *ReadHandler {
	return &ReadHandler{service: service}
}

// GetMatch handles GET /match?id={matchId}.
func (h *ReadHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("id")
	if matchID == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	view, err := h.service.GetMatch(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// GetSummary handles GET /summary?id={matchId}.
func (h *ReadHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("id")
	if matchID == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	summary, err := h.service.GetSummary(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, summary)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrMatchNotFound), errors.Is(err, domain.ErrSummaryNotFound):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
