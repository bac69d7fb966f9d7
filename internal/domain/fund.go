package domain

import "time"

// GuaranteeFundPeriod is the FGO accounting row for one month ("2006-01").
// The closing balance must never go negative: a debit that would violate
// this is rejected, the fund never borrows.
type GuaranteeFundPeriod struct {
	Period              string    `json:"period"`
	OpeningBalanceCents int64     `json:"opening_balance_cents"`
	CreditsCents        int64     `json:"credits_cents"`
	DebitsCents         int64     `json:"debits_cents"`
	UpdatedOn           time.Time `json:"updated_on"`
}

func (p *GuaranteeFundPeriod) ClosingBalanceCents() int64 {
	return p.OpeningBalanceCents + p.CreditsCents - p.DebitsCents
}
