package service

import (
	"context"
	"database/sql"
	"time"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/waterfall"
)

// Outcome is what the idempotency gate persists for a processed key: the
// ledger entries the handler produced plus an opaque payload describing the
// business result. A replayed delivery gets the identical Outcome back.
type Outcome struct {
	Entries []*domain.LedgerEntry `json:"entries"`
	Payload []byte                `json:"payload,omitempty"`
}

// GateFunc builds the outcome for a key inside the gate's transaction. The
// ledger entries it returns are posted by the gate itself; any other writes
// the handler needs must go through tx so everything commits or rolls back
// as one unit.
type GateFunc func(ctx context.Context, tx *sql.Tx) (*Outcome, error)

type IdempotencyGate interface {
	// Process runs fn exactly once per key. The bool reports whether the
	// returned outcome was replayed from a previous delivery.
	Process(ctx context.Context, externalKey string, fn GateFunc) (*Outcome, bool, error)
}

type LedgerService interface {
	CreateAccount(ctx context.Context, ownerRef, currency string) (*domain.WalletAccount, error)
	GetAccount(ctx context.Context, accountID string) (*domain.WalletAccount, error)
	Post(ctx context.Context, entry *domain.LedgerEntry) error
	// Balance derives the balance from entries, optionally as of a point in
	// time.
	Balance(ctx context.Context, accountID string, asOf *time.Time) (int64, error)
	ListEntries(ctx context.Context, accountID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error)
	// ReconcileAccount compares the derived balance against the cached one
	// and places the account on integrity hold when they disagree.
	ReconcileAccount(ctx context.Context, accountID string) error
	ReconcileAll(ctx context.Context) (checked, mismatched int, err error)
}

type DepositService interface {
	Lock(ctx context.Context, bookingID, renterAccountID string, amountCents int64, currency string) (*domain.BookingDeposit, error)
	// Release returns the unconsumed remainder to the renter. Releasing an
	// already-released deposit is a no-op that returns the prior result.
	Release(ctx context.Context, bookingID string) (*domain.BookingDeposit, error)
	Charge(ctx context.Context, bookingID string, amountCents int64, reason string) (*domain.BookingDeposit, error)
	Get(ctx context.Context, bookingID string) (*domain.BookingDeposit, error)
	// SweepAutoReleases releases deposits whose grace window has elapsed and
	// returns how many were released.
	SweepAutoReleases(ctx context.Context) (int, error)
}

type FundService interface {
	// CreditFromBooking accrues the booking-fee share into the current
	// period.
	CreditFromBooking(ctx context.Context, tx *sql.Tx, bookingRef string, feeCents int64) (int64, error)
	// CreditFromDepositFunding accrues the alpha share of an incremental
	// deposit top-up. Callers pass only the newly funded amount, never the
	// running deposit total.
	CreditFromDepositFunding(ctx context.Context, tx *sql.Tx, bookingRef string, topupCents int64) (int64, error)
	// DebitForClaim draws down the fund inside the caller's transaction,
	// failing with domain.ErrFundExhausted rather than going negative.
	DebitForClaim(ctx context.Context, tx *sql.Tx, bookingRef string, amountCents int64) error
	CurrentPeriod(ctx context.Context) (*domain.GuaranteeFundPeriod, error)
	Balance(ctx context.Context) (int64, error)
}

// ClaimSettlement is the recorded result of settling one claim.
type ClaimSettlement struct {
	ClaimID    string               `json:"claim_id"`
	BookingID  string               `json:"booking_id"`
	Allocation waterfall.Allocation `json:"allocation"`
	Replayed   bool                 `json:"-"`
}

type SettlementService interface {
	// SettleClaim runs the deposit-then-fund waterfall for a claim and posts
	// the resulting movements atomically. Settling the same claim ID twice
	// returns the first settlement unchanged.
	SettleClaim(ctx context.Context, claimID, bookingID string, claimCents int64) (*ClaimSettlement, error)
}

// DistributionResult summarizes one period's reward payout run.
type DistributionResult struct {
	Period             string           `json:"period"`
	DistributableCents int64            `json:"distributable_cents"`
	PaidCents          int64            `json:"paid_cents"`
	PerOwnerCents      map[string]int64 `json:"per_owner_cents"`
	Replayed           bool             `json:"-"`
}

type RewardService interface {
	EnsurePool(ctx context.Context, period string) (*domain.NetworkPool, error)
	RecordBookingRevenue(ctx context.Context, tx *sql.Tx, period string, cents int64) error
	RegisterParticipant(ctx context.Context, p *domain.ParticipationPeriod) error
	// ClosePeriod freezes the pool and fixes every participant's points and
	// share. With no scoring participants the revenue rolls to the next
	// period and domain.ErrNoParticipants is returned.
	ClosePeriod(ctx context.Context, period string) (*domain.NetworkPool, error)
	// DistributePeriod pays the closed pool out. Earnings always sum to the
	// distributable amount exactly; the remainder cents from integer division
	// go to the largest fractional shares.
	DistributePeriod(ctx context.Context, period string) (*DistributionResult, error)
	GetPool(ctx context.Context, period string) (*domain.NetworkPool, error)
}

// FxProvider resolves the conversion rate captured on non-USD deposit locks.
// Implementations must be safe for concurrent use.
type FxProvider interface {
	Snapshot(ctx context.Context, fromCurrency, toCurrency string) (*domain.FxSnapshot, error)
}

// WebhookService turns payment-provider events into ledger postings through
// the idempotency gate.
type WebhookService interface {
	ProcessPaymentEvent(ctx context.Context, evt *PaymentEvent) (*Outcome, bool, error)
}

// NotifierService delivers operational alerts. Failures are logged, never
// propagated into the money path.
type NotifierService interface {
	NotifyClaimSettled(ctx context.Context, s *ClaimSettlement) error
	NotifyRewardsDistributed(ctx context.Context, r *DistributionResult) error
	NotifyIntegrityAlert(ctx context.Context, accountID string, cachedCents, derivedCents int64) error
	NotifyFundExhausted(ctx context.Context, bookingRef string, requestedCents int64) error
}
