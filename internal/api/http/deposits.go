package http

import (
	"encoding/json"
	"net/http"

	"autorenta-escrow-backend/internal/domain"

	"github.com/gorilla/mux"
)

type lockDepositRequest struct {
	RenterAccountID string `json:"renter_account_id" validate:"required"`
	AmountCents     int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
}

func (h *Handler) LockDeposit(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["bookingID"]
	var req lockDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	deposit, err := h.deposits.Lock(r.Context(), bookingID, req.RenterAccountID, req.AmountCents, req.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, deposit)
}

func (h *Handler) ReleaseDeposit(w http.ResponseWriter, r *http.Request) {
	deposit, err := h.deposits.Release(r.Context(), mux.Vars(r)["bookingID"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deposit)
}

type chargeDepositRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required"`
}

func (h *Handler) ChargeDeposit(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["bookingID"]
	var req chargeDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	deposit, err := h.deposits.Charge(r.Context(), bookingID, req.AmountCents, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deposit)
}

func (h *Handler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	deposit, err := h.deposits.Get(r.Context(), mux.Vars(r)["bookingID"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deposit)
}
