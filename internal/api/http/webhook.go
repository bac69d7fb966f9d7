package http

import (
	"encoding/json"
	"net/http"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/service"
)

type webhookResponse struct {
	EventID  string `json:"event_id"`
	Replayed bool   `json:"replayed"`
	Entries  int    `json:"entries"`
}

// PaymentsWebhook ingests payment-provider deliveries. The provider retries
// until it sees a 2xx, so every failure class that retrying cannot fix must
// still return 4xx, and duplicates must return 200 with the original result.
func (h *Handler) PaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	var evt service.PaymentEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := h.validate.Struct(&evt); err != nil {
		writeError(w, r, domain.NewValidationError("body", err.Error()))
		return
	}

	outcome, replayed, err := h.webhooks.ProcessPaymentEvent(r.Context(), &evt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, webhookResponse{EventID: evt.EventID, Replayed: replayed, Entries: len(outcome.Entries)})
}
