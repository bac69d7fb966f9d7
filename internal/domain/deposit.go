package domain

import "time"

type DepositStatus string

const (
	DepositStatusNone     DepositStatus = "NONE"
	DepositStatusLocked   DepositStatus = "LOCKED"
	DepositStatusReleased DepositStatus = "RELEASED"
	DepositStatusCharged  DepositStatus = "CHARGED"
	DepositStatusPartial  DepositStatus = "PARTIAL"
	DepositStatusClosed   DepositStatus = "CLOSED"
)

// FxSnapshot is the margin-adjusted exchange rate captured when a non-USD
// deposit is locked. Nil for USD deposits.
type FxSnapshot struct {
	Rate          float64   `json:"rate"`
	MarginPercent float64   `json:"margin_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// BookingDeposit is the per-booking security deposit lifecycle record.
// Money fields are caches over the booking's deposit_* ledger entries:
// locked == sum(deposit_lock), and charged + released <= locked.
type BookingDeposit struct {
	BookingID           string        `json:"booking_id"`
	RenterAccountID     string        `json:"renter_account_id"`
	Status              DepositStatus `json:"status"`
	Currency            string        `json:"currency"`
	LockedAmountCents   int64         `json:"locked_amount_cents"`
	ChargedAmountCents  int64         `json:"charged_amount_cents"`
	ReleasedAmountCents int64         `json:"released_amount_cents"`
	Fx                  *FxSnapshot   `json:"fx_snapshot,omitempty"`
	AutoReleaseAt       time.Time     `json:"auto_release_at"`
	CreatedOn           time.Time     `json:"created_on"`
	UpdatedOn           time.Time     `json:"updated_on"`
}

// AvailableCents is the unclaimed remainder of the lock.
func (d *BookingDeposit) AvailableCents() int64 {
	return d.LockedAmountCents - d.ChargedAmountCents - d.ReleasedAmountCents
}

// Terminal reports whether no further deposit money can move for the booking.
func (d *BookingDeposit) Terminal() bool {
	switch d.Status {
	case DepositStatusReleased, DepositStatusCharged, DepositStatusClosed:
		return true
	}
	return false
}
