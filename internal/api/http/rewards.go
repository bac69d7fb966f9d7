package http

import (
	"encoding/json"
	"net/http"

	"autorenta-escrow-backend/internal/domain"

	"github.com/gorilla/mux"
)

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.rewards.GetPool(r.Context(), mux.Vars(r)["period"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

type registerParticipantRequest struct {
	OwnerAccountID string  `json:"owner_account_id" validate:"required"`
	CarID          string  `json:"car_id" validate:"required"`
	Availability   float64 `json:"availability" validate:"gte=0,lte=1"`
	LocationFactor float64 `json:"location_factor" validate:"gte=0"`
	CategoryFactor float64 `json:"category_factor" validate:"gte=0"`
	OwnerRating    float64 `json:"owner_rating" validate:"gte=0,lte=1"`
	UsageBonus     float64 `json:"usage_bonus" validate:"gte=0,lte=1"`
}

func (h *Handler) RegisterParticipant(w http.ResponseWriter, r *http.Request) {
	period := mux.Vars(r)["period"]
	var req registerParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	p := &domain.ParticipationPeriod{
		Period:         period,
		OwnerAccountID: req.OwnerAccountID,
		CarID:          req.CarID,
		Availability:   req.Availability,
		LocationFactor: req.LocationFactor,
		CategoryFactor: req.CategoryFactor,
		OwnerRating:    req.OwnerRating,
		UsageBonus:     req.UsageBonus,
	}
	if err := h.rewards.RegisterParticipant(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	pool, err := h.rewards.ClosePeriod(r.Context(), mux.Vars(r)["period"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *Handler) DistributePeriod(w http.ResponseWriter, r *http.Request) {
	result, err := h.rewards.DistributePeriod(r.Context(), mux.Vars(r)["period"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
