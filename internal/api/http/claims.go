package http

import (
	"encoding/json"
	"net/http"

	"autorenta-escrow-backend/internal/domain"

	"github.com/gorilla/mux"
)

type settleClaimRequest struct {
	BookingID   string `json:"booking_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
}

// SettleClaim runs the claim waterfall. A repeated call with the same claim
// ID returns the first settlement with a 200 instead of re-running it.
func (h *Handler) SettleClaim(w http.ResponseWriter, r *http.Request) {
	claimID := mux.Vars(r)["claimID"]
	var req settleClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	settlement, err := h.settlement.SettleClaim(r.Context(), claimID, req.BookingID, req.AmountCents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if settlement.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, settlement)
}

type fundResponse struct {
	Period              string `json:"period"`
	OpeningBalanceCents int64  `json:"opening_balance_cents"`
	CreditsCents        int64  `json:"credits_cents"`
	DebitsCents         int64  `json:"debits_cents"`
	ClosingBalanceCents int64  `json:"closing_balance_cents"`
}

func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	period, err := h.fund.CurrentPeriod(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fundResponse{
		Period:              period.Period,
		OpeningBalanceCents: period.OpeningBalanceCents,
		CreditsCents:        period.CreditsCents,
		DebitsCents:         period.DebitsCents,
		ClosingBalanceCents: period.ClosingBalanceCents(),
	})
}
