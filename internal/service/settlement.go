package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository"
	"autorenta-escrow-backend/internal/waterfall"
)

type settlementService struct {
	gate     IdempotencyGate
	deposits repository.DepositRepository
	fund     FundService
	cfg      *config.EscrowConfig
	notifier NotifierService
}

func NewSettlementService(gate IdempotencyGate, deposits repository.DepositRepository, fund FundService, cfg *config.EscrowConfig, notifier NotifierService) SettlementService {
	return &settlementService{gate: gate, deposits: deposits, fund: fund, cfg: cfg, notifier: notifier}
}

// SettleClaim allocates a claim across the deposit remainder and the
// guarantee fund, then applies the result atomically: the deposit_charge and
// fgo_debit entries, the fund draw-down, and the deposit status transition
// all commit together or not at all. The claim ID is the idempotency key, so
// a retried settlement replays the first allocation instead of recomputing
// against moved balances.
func (s *settlementService) SettleClaim(ctx context.Context, claimID, bookingID string, claimCents int64) (*ClaimSettlement, error) {
	if claimID == "" {
		return nil, domain.NewValidationError("claim_id", "must not be empty")
	}
	if bookingID == "" {
		return nil, domain.NewValidationError("booking_id", "must not be empty")
	}
	if claimCents <= 0 {
		return nil, domain.NewValidationError("claim_cents", "must be positive")
	}

	deposit, err := s.deposits.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	fundBalance, err := s.fund.Balance(ctx)
	if err != nil {
		return nil, err
	}

	alloc, err := waterfall.Allocate(claimCents, deposit.AvailableCents(), s.cfg.EventCapCents, fundBalance)
	if err != nil {
		return nil, err
	}

	settlement := &ClaimSettlement{ClaimID: claimID, BookingID: bookingID, Allocation: alloc}
	key := "claim:settle:" + claimID

	outcome, replayed, err := s.gate.Process(ctx, key, func(ctx context.Context, tx *sql.Tx) (*Outcome, error) {
		var entries []*domain.LedgerEntry
		if alloc.FromDepositCents > 0 {
			entries = append(entries, &domain.LedgerEntry{
				AccountID:      s.cfg.ClaimsAccountID,
				BookingRef:     &bookingID,
				Kind:           domain.EntryKindDepositCharge,
				AmountCents:    alloc.FromDepositCents,
				IdempotencyKey: key + ":deposit",
				Origin:         domain.OriginSystem,
				Description:    fmt.Sprintf("Claim %s charged against deposit", claimID),
			})
		}
		if alloc.FromFGOCents > 0 {
			if err := s.fund.DebitForClaim(ctx, tx, bookingID, alloc.FromFGOCents); err != nil {
				return nil, err
			}
			entries = append(entries, &domain.LedgerEntry{
				AccountID:      s.cfg.FGOAccountID,
				BookingRef:     &bookingID,
				Kind:           domain.EntryKindFGODebit,
				AmountCents:    -alloc.FromFGOCents,
				IdempotencyKey: key + ":fgo",
				Origin:         domain.OriginSystem,
				Description:    fmt.Sprintf("Claim %s covered by guarantee fund", claimID),
			})
		}

		if alloc.FromDepositCents > 0 {
			deposit.ChargedAmountCents += alloc.FromDepositCents
			if deposit.AvailableCents() == 0 {
				deposit.Status = domain.DepositStatusCharged
			} else {
				deposit.Status = domain.DepositStatusPartial
			}
			if err := s.deposits.UpdateTx(ctx, tx, deposit); err != nil {
				return nil, err
			}
		}

		payload, err := json.Marshal(settlement)
		if err != nil {
			return nil, fmt.Errorf("marshal settlement for claim %s: %w", claimID, err)
		}
		return &Outcome{Entries: entries, Payload: payload}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrFundExhausted) && s.notifier != nil {
			if nerr := s.notifier.NotifyFundExhausted(ctx, bookingID, alloc.FromFGOCents); nerr != nil {
				logger.Warn("Fund exhaustion alert failed", "booking_id", bookingID, "error", nerr)
			}
		}
		return nil, err
	}

	if replayed {
		// The stored allocation is authoritative. Balances may have moved
		// since the first delivery, so it is never recomputed.
		var stored ClaimSettlement
		if err := json.Unmarshal(outcome.Payload, &stored); err != nil {
			return nil, fmt.Errorf("decode stored settlement for claim %s: %w", claimID, err)
		}
		stored.Replayed = true
		return &stored, nil
	}

	logger.Info("Claim settled",
		"claim_id", claimID, "booking_id", bookingID, "claim_cents", claimCents,
		"from_deposit_cents", alloc.FromDepositCents, "from_fgo_cents", alloc.FromFGOCents,
		"unrecovered_cents", alloc.UnrecoveredCents)
	if s.notifier != nil {
		if err := s.notifier.NotifyClaimSettled(ctx, settlement); err != nil {
			logger.Warn("Claim settlement notification failed", "claim_id", claimID, "error", err)
		}
	}
	return settlement, nil
}
