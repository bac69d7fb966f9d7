package http

import (
	"net/http"

	"autorenta-escrow-backend/internal/security"
	"autorenta-escrow-backend/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	ledger     service.LedgerService
	deposits   service.DepositService
	fund       service.FundService
	settlement service.SettlementService
	rewards    service.RewardService
	webhooks   service.WebhookService
	validate   *validator.Validate
}

func NewHandler(
	ledger service.LedgerService,
	deposits service.DepositService,
	fund service.FundService,
	settlement service.SettlementService,
	rewards service.RewardService,
	webhooks service.WebhookService,
) *Handler {
	return &Handler{
		ledger:     ledger,
		deposits:   deposits,
		fund:       fund,
		settlement: settlement,
		rewards:    rewards,
		webhooks:   webhooks,
		validate:   validator.New(),
	}
}

// NewRouter wires all routes. The operator surface (charges, settlements,
// reward runs, reconciliation) sits behind service-token auth; the webhook
// endpoint relies on the idempotency gate rather than auth, matching the
// provider's delivery model.
func NewRouter(h *Handler, tokens security.TokenManager) *mux.Router {
	r := mux.NewRouter()
	r.Use(correlationMiddleware, loggingMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{accountID}", h.GetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountID}/balance", h.GetBalance).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountID}/entries", h.ListEntries).Methods(http.MethodGet)

	api.HandleFunc("/bookings/{bookingID}/deposit", h.GetDeposit).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{bookingID}/deposit/lock", h.LockDeposit).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{bookingID}/deposit/release", h.ReleaseDeposit).Methods(http.MethodPost)

	api.HandleFunc("/fund", h.GetFund).Methods(http.MethodGet)
	api.HandleFunc("/rewards/{period}", h.GetPool).Methods(http.MethodGet)

	api.HandleFunc("/webhooks/payments", h.PaymentsWebhook).Methods(http.MethodPost)

	admin := api.PathPrefix("").Subrouter()
	admin.Use(authMiddleware(tokens, security.ScopeOperator))
	admin.HandleFunc("/entries", h.PostEntry).Methods(http.MethodPost)
	admin.HandleFunc("/bookings/{bookingID}/deposit/charge", h.ChargeDeposit).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{claimID}/settle", h.SettleClaim).Methods(http.MethodPost)
	admin.HandleFunc("/rewards/{period}/participants", h.RegisterParticipant).Methods(http.MethodPost)
	admin.HandleFunc("/rewards/{period}/close", h.ClosePeriod).Methods(http.MethodPost)
	admin.HandleFunc("/rewards/{period}/distribute", h.DistributePeriod).Methods(http.MethodPost)
	admin.HandleFunc("/accounts/{accountID}/reconcile", h.ReconcileAccount).Methods(http.MethodPost)

	return r
}
