package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"autorenta-escrow-backend/internal/domain"

	"github.com/gorilla/mux"
)

type createAccountRequest struct {
	OwnerRef string `json:"owner_ref" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	acct, err := h.ledger.CreateAccount(r.Context(), req.OwnerRef, req.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ledger.GetAccount(r.Context(), mux.Vars(r)["accountID"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type balanceResponse struct {
	AccountID    string     `json:"account_id"`
	BalanceCents int64      `json:"balance_cents"`
	AsOf         *time.Time `json:"as_of,omitempty"`
}

// GetBalance derives the balance from ledger entries. The optional as_of
// query parameter (RFC 3339) returns the balance at that point in time.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]

	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, domain.NewValidationError("as_of", "must be RFC 3339"))
			return
		}
		asOf = &t
	}

	balance, err := h.ledger.Balance(r.Context(), accountID, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: accountID, BalanceCents: balance, AsOf: asOf})
}

type entriesResponse struct {
	Entries []domain.LedgerEntry `json:"entries"`
	Total   int32                `json:"total"`
	Page    int32                `json:"page"`
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]
	page := queryInt32(r, "page", 1)
	pageSize := queryInt32(r, "page_size", 50)

	entries, total, err := h.ledger.ListEntries(r.Context(), accountID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{Entries: entries, Total: total, Page: page})
}

type postEntryRequest struct {
	AccountID      string  `json:"account_id" validate:"required"`
	Kind           string  `json:"kind" validate:"required"`
	AmountCents    int64   `json:"amount_cents" validate:"required"`
	IdempotencyKey string  `json:"idempotency_key" validate:"required"`
	BookingRef     *string `json:"booking_ref,omitempty"`
	Description    string  `json:"description,omitempty"`
}

// PostEntry appends a manual adjustment entry. Operator-only; the entry is
// marked with the admin origin and deduplicated by its idempotency key like
// any other posting.
func (h *Handler) PostEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	entry := &domain.LedgerEntry{
		AccountID:      req.AccountID,
		BookingRef:     req.BookingRef,
		Kind:           domain.EntryKind(req.Kind),
		AmountCents:    req.AmountCents,
		IdempotencyKey: req.IdempotencyKey,
		Origin:         domain.OriginAdmin,
		Description:    req.Description,
	}
	if err := h.ledger.Post(r.Context(), entry); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]
	if err := h.ledger.ReconcileAccount(r.Context(), accountID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": accountID, "status": "consistent"})
}

func queryInt32(r *http.Request, name string, def int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return def
	}
	return int32(v)
}
