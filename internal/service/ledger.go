package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository"

	"github.com/google/uuid"
)

type ledgerService struct {
	repo     repository.LedgerRepository
	notifier NotifierService
}

func NewLedgerService(repo repository.LedgerRepository, notifier NotifierService) LedgerService {
	return &ledgerService{repo: repo, notifier: notifier}
}

func (s *ledgerService) CreateAccount(ctx context.Context, ownerRef, currency string) (*domain.WalletAccount, error) {
	if ownerRef == "" {
		return nil, domain.NewValidationError("owner_ref", "must not be empty")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, domain.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	acct := &domain.WalletAccount{
		ID:       uuid.NewString(),
		OwnerRef: ownerRef,
		Currency: currency,
	}
	if err := s.repo.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}
	logger.Info("Wallet account created", "account_id", acct.ID, "owner_ref", ownerRef)
	return acct, nil
}

func (s *ledgerService) GetAccount(ctx context.Context, accountID string) (*domain.WalletAccount, error) {
	return s.repo.GetAccount(ctx, accountID)
}

func (s *ledgerService) Post(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	return s.repo.PostBatch(ctx, []*domain.LedgerEntry{entry})
}

func (s *ledgerService) Balance(ctx context.Context, accountID string, asOf *time.Time) (int64, error) {
	return s.repo.Balance(ctx, accountID, asOf)
}

func (s *ledgerService) ListEntries(ctx context.Context, accountID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.repo.ListEntries(ctx, accountID, page, pageSize)
}

// ReconcileAccount re-derives the balance from entries and compares it with
// the cached account balance. A mismatch places the account on integrity
// hold, which blocks further postings until an operator intervenes.
func (s *ledgerService) ReconcileAccount(ctx context.Context, accountID string) error {
	acct, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	derived, err := s.repo.Balance(ctx, accountID, nil)
	if err != nil {
		return err
	}
	if derived == acct.BalanceCents {
		return nil
	}

	logger.Error("Balance mismatch detected",
		"account_id", accountID, "cached_cents", acct.BalanceCents, "derived_cents", derived)
	if err := s.repo.SetIntegrityHold(ctx, accountID, true); err != nil {
		return fmt.Errorf("place integrity hold on %s: %w", accountID, err)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyIntegrityAlert(ctx, accountID, acct.BalanceCents, derived); err != nil {
			logger.Warn("Integrity alert notification failed", "account_id", accountID, "error", err)
		}
	}
	return fmt.Errorf("account %s cached=%d derived=%d: %w",
		accountID, acct.BalanceCents, derived, domain.ErrBalanceMismatch)
}

func (s *ledgerService) ReconcileAll(ctx context.Context) (int, int, error) {
	ids, err := s.repo.ListAccountIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	mismatched := 0
	for _, id := range ids {
		if err := s.ReconcileAccount(ctx, id); err != nil {
			if domain.IsIntegrity(err) {
				mismatched++
				continue
			}
			return len(ids), mismatched, err
		}
	}
	return len(ids), mismatched, nil
}

func validateEntry(entry *domain.LedgerEntry) error {
	if entry == nil {
		return domain.NewValidationError("entry", "must not be nil")
	}
	if entry.AccountID == "" {
		return domain.NewValidationError("account_id", "must not be empty")
	}
	if entry.AmountCents == 0 {
		return domain.NewValidationError("amount_cents", "must not be zero")
	}
	if entry.IdempotencyKey == "" {
		return domain.NewValidationError("idempotency_key", "must not be empty")
	}
	switch entry.Kind {
	case domain.EntryKindTopup, domain.EntryKindBookingCharge, domain.EntryKindDepositLock,
		domain.EntryKindDepositRelease, domain.EntryKindDepositCharge, domain.EntryKindFGOCredit,
		domain.EntryKindFGODebit, domain.EntryKindRewardPayout, domain.EntryKindFee:
	default:
		return domain.NewValidationError("kind", fmt.Sprintf("unknown entry kind %q", entry.Kind))
	}
	if entry.Origin == "" {
		entry.Origin = domain.OriginSystem
	}
	return nil
}
