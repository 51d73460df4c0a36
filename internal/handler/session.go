package handler

import (
	"encoding/json"
	"net/http"

	"faceenroll/internal/dto"
	"faceenroll/internal/logger"
	"faceenroll/internal/service/sampler"
)

// SessionController is the part of the enrollment manager the status API uses.
type SessionController interface {
	Progress() dto.Progress
	Stats() sampler.Stats
	Cancel()
}

type sessionResponse struct {
	dto.Progress
	Stats sampler.Stats `json:"stats"`
}

// GetSessionHandler serves the current progress and sampler counters as JSON.
func GetSessionHandler(session SessionController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		resp := sessionResponse{Progress: session.Progress(), Stats: session.Stats()}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("Failed to encode session: %v", err)
		}
	}
}

// CancelSessionHandler aborts the running enrollment.
func CancelSessionHandler(session SessionController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		logger.Warning("Cancellation requested from %s", r.RemoteAddr)
		session.Cancel()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(session.Progress()); err != nil {
			logger.Error("Failed to encode session: %v", err)
		}
	}
}
