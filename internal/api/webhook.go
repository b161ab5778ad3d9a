package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/Romainl01/photobooth-backend/internal/service"
)

const maxWebhookBody = 1 << 20

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	outcome, err := s.payments.HandleEvent(r.Context(), rawBody, r.Header.Get("signature"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadSignature):
			s.writeError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, service.ErrBadEvent):
			s.writeError(w, http.StatusBadRequest, "invalid event payload")
		default:
			// 500 tells the sender to retry; the grant is idempotent.
			s.log.Error("webhook processing failed", "err", err)
			s.writeError(w, http.StatusInternalServerError, "processing failed")
		}
		return
	}

	if outcome.Duplicate {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"received": true,
			"message":  "duplicate event, credits already granted",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
