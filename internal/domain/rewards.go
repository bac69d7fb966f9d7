package domain

import "time"

type PoolStatus string

const (
	PoolStatusCollecting  PoolStatus = "COLLECTING"
	PoolStatusClosed      PoolStatus = "CLOSED"
	PoolStatusDistributed PoolStatus = "DISTRIBUTED"
)

type ParticipationStatus string

const (
	ParticipationStatusOpen       ParticipationStatus = "OPEN"
	ParticipationStatusCalculated ParticipationStatus = "CALCULATED"
	ParticipationStatusPaid       ParticipationStatus = "PAID"
)

// ParticipationPeriod is one owner x car x month score record. Inputs are
// frozen when the pool closes; money fields are set at distribution and the
// record is immutable once paid.
type ParticipationPeriod struct {
	ID             string              `json:"id"`
	Period         string              `json:"period"` // "2006-01"
	OwnerAccountID string              `json:"owner_account_id"`
	CarID          string              `json:"car_id"`
	Availability   float64             `json:"availability"`    // 0.0 - 1.0 share of hours listed available
	LocationFactor float64             `json:"location_factor"` // demand multiplier for the car's zone
	CategoryFactor float64             `json:"category_factor"` // vehicle category multiplier
	OwnerRating    float64             `json:"owner_rating"`    // normalized 0.0 - 1.0
	UsageBonus     float64             `json:"usage_bonus"`     // 0.0 - 1.0
	Points         float64             `json:"points"`
	PoolSharePct   float64             `json:"pool_share_percentage"`
	EarningsCents  int64               `json:"earnings_cents"`
	Status         ParticipationStatus `json:"status"`
	UpdatedOn      time.Time           `json:"updated_on"`
}

// NetworkPool is the monthly distributable revenue pool. CarryoverCents is
// already net of fees: it is the undistributed remainder rolled in from an
// earlier period and must not be fee-netted again.
type NetworkPool struct {
	Period             string     `json:"period"` // "2006-01"
	TotalRevenueCents  int64      `json:"total_revenue_cents"`
	CarryoverCents     int64      `json:"carryover_cents"`
	PlatformFeePercent float64    `json:"platform_fee_percentage"`
	FGORate            float64    `json:"fgo_rate"`
	Status             PoolStatus `json:"status"`
	DistributedCents   int64      `json:"distributed_cents"`
	UpdatedOn          time.Time  `json:"updated_on"`
}

// DistributableCents is total revenue net of the platform fee and the FGO
// contribution, in integer cents (truncated, never rounded up), plus any
// carryover from undistributed periods.
func (p *NetworkPool) DistributableCents() int64 {
	net := 1.0 - p.PlatformFeePercent - p.FGORate
	if net <= 0 {
		return p.CarryoverCents
	}
	return int64(float64(p.TotalRevenueCents)*net) + p.CarryoverCents
}
