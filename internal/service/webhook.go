package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
)

// Payment-provider event types accepted on the webhook endpoint.
const (
	EventTypeTopup          = "payment.topup"
	EventTypeDepositFunding = "deposit.funding"
	EventTypeBookingCharged = "booking.charged"
)

// PaymentEvent is one delivery from the payment provider. EventID is the
// provider's stable identifier and doubles as the idempotency key, so any
// redelivery replays the original outcome.
type PaymentEvent struct {
	EventID     string `json:"event_id" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=payment.topup deposit.funding booking.charged"`
	AccountID   string `json:"account_id" validate:"required"`
	BookingRef  string `json:"booking_ref,omitempty" validate:"required_unless=Type payment.topup"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
}

type webhookService struct {
	gate    IdempotencyGate
	fund    FundService
	rewards RewardService
	cfg     *config.EscrowConfig
	now     func() time.Time
}

func NewWebhookService(gate IdempotencyGate, fund FundService, rewards RewardService, cfg *config.EscrowConfig) WebhookService {
	return &webhookService{gate: gate, fund: fund, rewards: rewards, cfg: cfg, now: time.Now}
}

func (s *webhookService) ProcessPaymentEvent(ctx context.Context, evt *PaymentEvent) (*Outcome, bool, error) {
	if evt.EventID == "" {
		return nil, false, domain.NewValidationError("event_id", "must not be empty")
	}
	if evt.AmountCents <= 0 {
		return nil, false, domain.NewValidationError("amount_cents", "must be positive")
	}
	if evt.AccountID == "" {
		return nil, false, domain.NewValidationError("account_id", "must not be empty")
	}

	var fn GateFunc
	switch evt.Type {
	case EventTypeTopup:
		fn = s.topup(evt)
	case EventTypeDepositFunding:
		fn = s.depositFunding(evt)
	case EventTypeBookingCharged:
		fn = s.bookingCharged(evt)
	default:
		return nil, false, domain.NewValidationError("type", fmt.Sprintf("unknown event type %q", evt.Type))
	}

	outcome, replayed, err := s.gate.Process(ctx, evt.EventID, fn)
	if err != nil {
		return nil, false, err
	}
	if replayed {
		logger.Info("Webhook replayed from recorded outcome", "event_id", evt.EventID, "type", evt.Type)
	} else {
		logger.Info("Webhook processed", "event_id", evt.EventID, "type", evt.Type, "amount_cents", evt.AmountCents)
	}
	return outcome, replayed, nil
}

func (s *webhookService) topup(evt *PaymentEvent) GateFunc {
	return func(ctx context.Context, tx *sql.Tx) (*Outcome, error) {
		return &Outcome{Entries: []*domain.LedgerEntry{{
			AccountID:      evt.AccountID,
			BookingRef:     bookingRef(evt),
			Kind:           domain.EntryKindTopup,
			AmountCents:    evt.AmountCents,
			IdempotencyKey: evt.EventID + ":topup",
			Origin:         domain.OriginWebhook,
			Description:    "Wallet top-up",
		}}}, nil
	}
}

// depositFunding credits the renter's wallet and accrues the alpha share of
// the incremental top-up into the guarantee fund. The provider sends only the
// newly funded amount per event, never a running total, so the alpha accrual
// is naturally incremental.
func (s *webhookService) depositFunding(evt *PaymentEvent) GateFunc {
	return func(ctx context.Context, tx *sql.Tx) (*Outcome, error) {
		entries := []*domain.LedgerEntry{{
			AccountID:      evt.AccountID,
			BookingRef:     bookingRef(evt),
			Kind:           domain.EntryKindTopup,
			AmountCents:    evt.AmountCents,
			IdempotencyKey: evt.EventID + ":topup",
			Origin:         domain.OriginWebhook,
			Description:    fmt.Sprintf("Deposit funding for booking %s", evt.BookingRef),
		}}

		alphaCents, err := s.fund.CreditFromDepositFunding(ctx, tx, evt.BookingRef, evt.AmountCents)
		if err != nil {
			return nil, err
		}
		if alphaCents > 0 {
			entries = append(entries, &domain.LedgerEntry{
				AccountID:      s.cfg.FGOAccountID,
				BookingRef:     bookingRef(evt),
				Kind:           domain.EntryKindFGOCredit,
				AmountCents:    alphaCents,
				IdempotencyKey: evt.EventID + ":fgo",
				Origin:         domain.OriginWebhook,
				Description:    fmt.Sprintf("Fund alpha accrual for booking %s", evt.BookingRef),
			})
		}
		return &Outcome{Entries: entries}, nil
	}
}

// bookingCharged debits the renter's booking fee and fans the money out: the
// platform's fee share, the guarantee-fund share, and the month's reward pool
// revenue, all in the gate's transaction.
func (s *webhookService) bookingCharged(evt *PaymentEvent) GateFunc {
	return func(ctx context.Context, tx *sql.Tx) (*Outcome, error) {
		entries := []*domain.LedgerEntry{{
			AccountID:      evt.AccountID,
			BookingRef:     bookingRef(evt),
			Kind:           domain.EntryKindBookingCharge,
			AmountCents:    -evt.AmountCents,
			IdempotencyKey: evt.EventID + ":charge",
			Origin:         domain.OriginWebhook,
			Description:    fmt.Sprintf("Booking fee for %s", evt.BookingRef),
		}}

		feeCents := shareCents(evt.AmountCents, s.cfg.PlatformFeePercent)
		if feeCents > 0 {
			entries = append(entries, &domain.LedgerEntry{
				AccountID:      s.cfg.FeeAccountID,
				BookingRef:     bookingRef(evt),
				Kind:           domain.EntryKindFee,
				AmountCents:    feeCents,
				IdempotencyKey: evt.EventID + ":fee",
				Origin:         domain.OriginWebhook,
				Description:    fmt.Sprintf("Platform fee for booking %s", evt.BookingRef),
			})
		}

		fgoCents, err := s.fund.CreditFromBooking(ctx, tx, evt.BookingRef, evt.AmountCents)
		if err != nil {
			return nil, err
		}
		if fgoCents > 0 {
			entries = append(entries, &domain.LedgerEntry{
				AccountID:      s.cfg.FGOAccountID,
				BookingRef:     bookingRef(evt),
				Kind:           domain.EntryKindFGOCredit,
				AmountCents:    fgoCents,
				IdempotencyKey: evt.EventID + ":fgo",
				Origin:         domain.OriginWebhook,
				Description:    fmt.Sprintf("Fund accrual for booking %s", evt.BookingRef),
			})
		}

		period := s.now().UTC().Format("2006-01")
		if err := s.rewards.RecordBookingRevenue(ctx, tx, period, evt.AmountCents); err != nil {
			return nil, err
		}
		return &Outcome{Entries: entries}, nil
	}
}

func bookingRef(evt *PaymentEvent) *string {
	if evt.BookingRef == "" {
		return nil
	}
	ref := evt.BookingRef
	return &ref
}
