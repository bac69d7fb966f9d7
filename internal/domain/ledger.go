package domain

import "time"

type EntryKind string

const (
	EntryKindTopup          EntryKind = "topup"
	EntryKindBookingCharge  EntryKind = "booking_charge"
	EntryKindDepositLock    EntryKind = "deposit_lock"
	EntryKindDepositRelease EntryKind = "deposit_release"
	EntryKindDepositCharge  EntryKind = "deposit_charge"
	EntryKindFGOCredit      EntryKind = "fgo_credit"
	EntryKindFGODebit       EntryKind = "fgo_debit"
	EntryKindRewardPayout   EntryKind = "reward_payout"
	EntryKindFee            EntryKind = "fee"
)

type EntryOrigin string

const (
	OriginSystem  EntryOrigin = "system"
	OriginWebhook EntryOrigin = "webhook"
	OriginAdmin   EntryOrigin = "admin"
)

// WalletAccount holds a cached balance; ledger entries are the source of
// truth and the cache is re-derived by the reconciliation job.
type WalletAccount struct {
	ID            string    `json:"id"`
	OwnerRef      string    `json:"owner_ref"`
	Currency      string    `json:"currency"`
	BalanceCents  int64     `json:"balance_cents"`
	IntegrityHold bool      `json:"integrity_hold"`
	CreatedOn     time.Time `json:"created_on"`
}

// LedgerEntry is an immutable money movement. Entries are create-only:
// no update or delete path exists anywhere in the repository contract.
type LedgerEntry struct {
	ID                string      `json:"id"`
	AccountID         string      `json:"account_id"`
	BookingRef        *string     `json:"booking_ref,omitempty"`
	Kind              EntryKind   `json:"kind"`
	AmountCents       int64       `json:"amount_cents"` // positive for credit, negative for debit
	BalanceAfterCents int64       `json:"balance_after_cents"`
	IdempotencyKey    string      `json:"idempotency_key"` // unique across the whole ledger
	Origin            EntryOrigin `json:"origin"`
	Description       string      `json:"description"`
	CreatedOn         time.Time   `json:"created_on"`
}
