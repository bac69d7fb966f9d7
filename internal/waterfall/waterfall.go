package waterfall

import "fmt"

// Allocation splits a damage claim across its funding sources. All values
// are integer minor units; FromDepositCents + FromFGOCents + UnrecoveredCents
// always equals the claim.
type Allocation struct {
	ClaimCents       int64 `json:"claim_cents"`
	FromDepositCents int64 `json:"from_deposit_cents"`
	FromFGOCents     int64 `json:"from_fgo_cents"`
	UnrecoveredCents int64 `json:"unrecovered_cents"`
}

// Allocate runs the loss waterfall: deposit first, then the guarantee fund
// up to the per-event cap and the fund's balance, the rest written off to
// manual collection. Negative inputs are a caller contract violation and
// are rejected, never clamped.
func Allocate(claimCents, depositAvailableCents, fgoCapCents, fgoBalanceCents int64) (Allocation, error) {
	if claimCents < 0 {
		return Allocation{}, fmt.Errorf("claim_cents must be >= 0, got %d", claimCents)
	}
	if depositAvailableCents < 0 {
		return Allocation{}, fmt.Errorf("deposit_available_cents must be >= 0, got %d", depositAvailableCents)
	}
	if fgoCapCents < 0 {
		return Allocation{}, fmt.Errorf("fgo_cap_cents must be >= 0, got %d", fgoCapCents)
	}
	if fgoBalanceCents < 0 {
		return Allocation{}, fmt.Errorf("fgo_balance_cents must be >= 0, got %d", fgoBalanceCents)
	}

	fromDeposit := min64(claimCents, depositAvailableCents)
	remaining := claimCents - fromDeposit
	fromFGO := min64(remaining, min64(fgoCapCents, fgoBalanceCents))

	return Allocation{
		ClaimCents:       claimCents,
		FromDepositCents: fromDeposit,
		FromFGOCents:     fromFGO,
		UnrecoveredCents: remaining - fromFGO,
	}, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
