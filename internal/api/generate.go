package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Romainl01/photobooth-backend/internal/gemini"
	"github.com/Romainl01/photobooth-backend/internal/service"
)

type generateRequest struct {
	Image string `json:"image"`
	Style string `json:"style"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFrom(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	out, err := s.generations.Generate(r.Context(), service.GenerateInput{
		AccountID: accountID,
		Style:     req.Style,
		Image:     req.Image,
	})
	if err != nil {
		s.respondGenerateError(w, accountID, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"image":   out.Image,
		"credits": out.Credits,
	})
}

func (s *Server) respondGenerateError(w http.ResponseWriter, accountID string, err error) {
	var quotaErr *gemini.QuotaError
	var rejectionErr *gemini.RejectionError
	var debitErr *service.DebitFailedError

	switch {
	case errors.Is(err, service.ErrProfileNotFound):
		s.writeError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, service.ErrInsufficientCredits):
		s.writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":        "not enough credits",
			"needsCredits": true,
		})
	case errors.Is(err, service.ErrEmptyImage):
		s.writeError(w, http.StatusBadRequest, "image is required")
	case errors.Is(err, service.ErrUnknownStyle):
		s.writeError(w, http.StatusBadRequest, "unknown style")
	case errors.As(err, &quotaErr):
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":      "the generator is at capacity, please retry shortly",
			"retryAfter": quotaErr.RetryAfter,
		})
	case errors.As(err, &rejectionErr):
		s.writeError(w, http.StatusInternalServerError, rejectionErr.UserMessage())
	case errors.As(err, &debitErr):
		// The one failure that needs a human. The wording must make clear
		// the user was not charged.
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":    "Generation could not be completed. Your credit was NOT deducted. Please try again or contact support.",
			"incident": debitErr.IncidentID,
		})
	default:
		s.log.Error("generation failed", "account_id", accountID, "err", err)
		s.writeError(w, http.StatusInternalServerError, "generation failed, you were not charged")
	}
}
