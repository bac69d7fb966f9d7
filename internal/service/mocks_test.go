package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"autorenta-escrow-backend/internal/domain"

	"github.com/stretchr/testify/mock"
)

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) CreateAccount(ctx context.Context, acct *domain.WalletAccount) error {
	return m.Called(ctx, acct).Error(0)
}

func (m *mockLedgerRepo) GetAccount(ctx context.Context, id string) (*domain.WalletAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WalletAccount), args.Error(1)
}

func (m *mockLedgerRepo) ListAccountIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLedgerRepo) SetIntegrityHold(ctx context.Context, accountID string, hold bool) error {
	return m.Called(ctx, accountID, hold).Error(0)
}

func (m *mockLedgerRepo) PostBatch(ctx context.Context, entries []*domain.LedgerEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *mockLedgerRepo) PostBatchTx(ctx context.Context, tx *sql.Tx, entries []*domain.LedgerEntry) error {
	return m.Called(ctx, tx, entries).Error(0)
}

func (m *mockLedgerRepo) Balance(ctx context.Context, accountID string, asOf *time.Time) (int64, error) {
	args := m.Called(ctx, accountID, asOf)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedgerRepo) ListEntries(ctx context.Context, accountID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	args := m.Called(ctx, accountID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Get(1).(int32), args.Error(2)
}

type mockIdempotencyRepo struct {
	mock.Mock
}

func (m *mockIdempotencyRepo) ClaimTx(ctx context.Context, tx *sql.Tx, externalKey string) error {
	return m.Called(ctx, tx, externalKey).Error(0)
}

func (m *mockIdempotencyRepo) RecordOutcomeTx(ctx context.Context, tx *sql.Tx, externalKey string, outcome []byte) error {
	return m.Called(ctx, tx, externalKey, outcome).Error(0)
}

func (m *mockIdempotencyRepo) GetOutcome(ctx context.Context, externalKey string) ([]byte, error) {
	args := m.Called(ctx, externalKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockDepositRepo struct {
	mock.Mock
}

func (m *mockDepositRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *domain.BookingDeposit) error {
	return m.Called(ctx, tx, d).Error(0)
}

func (m *mockDepositRepo) GetByBookingID(ctx context.Context, bookingID string) (*domain.BookingDeposit, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingDeposit), args.Error(1)
}

func (m *mockDepositRepo) UpdateTx(ctx context.Context, tx *sql.Tx, d *domain.BookingDeposit) error {
	return m.Called(ctx, tx, d).Error(0)
}

func (m *mockDepositRepo) ListAutoReleasable(ctx context.Context, before time.Time, limit int) ([]domain.BookingDeposit, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BookingDeposit), args.Error(1)
}

type mockFundRepo struct {
	mock.Mock
}

func (m *mockFundRepo) GetPeriod(ctx context.Context, period string) (*domain.GuaranteeFundPeriod, error) {
	args := m.Called(ctx, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GuaranteeFundPeriod), args.Error(1)
}

func (m *mockFundRepo) LatestPeriodBefore(ctx context.Context, period string) (*domain.GuaranteeFundPeriod, error) {
	args := m.Called(ctx, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GuaranteeFundPeriod), args.Error(1)
}

func (m *mockFundRepo) EnsurePeriod(ctx context.Context, period string, openingCents int64) (*domain.GuaranteeFundPeriod, error) {
	args := m.Called(ctx, period, openingCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GuaranteeFundPeriod), args.Error(1)
}

func (m *mockFundRepo) AddCreditTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	return m.Called(ctx, tx, period, cents).Error(0)
}

func (m *mockFundRepo) AddDebitTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	return m.Called(ctx, tx, period, cents).Error(0)
}

type mockRewardRepo struct {
	mock.Mock
}

func (m *mockRewardRepo) GetPool(ctx context.Context, period string) (*domain.NetworkPool, error) {
	args := m.Called(ctx, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NetworkPool), args.Error(1)
}

func (m *mockRewardRepo) CreatePool(ctx context.Context, pool *domain.NetworkPool) error {
	return m.Called(ctx, pool).Error(0)
}

func (m *mockRewardRepo) AddRevenue(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	return m.Called(ctx, tx, period, cents).Error(0)
}

func (m *mockRewardRepo) AddCarryover(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	return m.Called(ctx, tx, period, cents).Error(0)
}

func (m *mockRewardRepo) TransitionPoolStatus(ctx context.Context, tx *sql.Tx, period string, from, to domain.PoolStatus) error {
	return m.Called(ctx, tx, period, from, to).Error(0)
}

func (m *mockRewardRepo) SetDistributedCentsTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	return m.Called(ctx, tx, period, cents).Error(0)
}

func (m *mockRewardRepo) CreateParticipant(ctx context.Context, p *domain.ParticipationPeriod) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockRewardRepo) ListParticipants(ctx context.Context, period string) ([]domain.ParticipationPeriod, error) {
	args := m.Called(ctx, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ParticipationPeriod), args.Error(1)
}

func (m *mockRewardRepo) UpdateParticipantTx(ctx context.Context, tx *sql.Tx, p *domain.ParticipationPeriod) error {
	return m.Called(ctx, tx, p).Error(0)
}

type mockFundService struct {
	mock.Mock
}

func (m *mockFundService) CreditFromBooking(ctx context.Context, tx *sql.Tx, bookingRef string, feeCents int64) (int64, error) {
	args := m.Called(ctx, tx, bookingRef, feeCents)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFundService) CreditFromDepositFunding(ctx context.Context, tx *sql.Tx, bookingRef string, topupCents int64) (int64, error) {
	args := m.Called(ctx, tx, bookingRef, topupCents)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFundService) DebitForClaim(ctx context.Context, tx *sql.Tx, bookingRef string, amountCents int64) error {
	return m.Called(ctx, tx, bookingRef, amountCents).Error(0)
}

func (m *mockFundService) CurrentPeriod(ctx context.Context) (*domain.GuaranteeFundPeriod, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GuaranteeFundPeriod), args.Error(1)
}

func (m *mockFundService) Balance(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// fakeGate runs handlers inline without a database, deduplicating by key the
// way the real gate does. Good enough to exercise the callers' replay paths.
type fakeGate struct {
	mu       sync.Mutex
	outcomes map[string]*Outcome
	calls    map[string]int
}

func newFakeGate() *fakeGate {
	return &fakeGate{outcomes: make(map[string]*Outcome), calls: make(map[string]int)}
}

func (g *fakeGate) Process(ctx context.Context, externalKey string, fn GateFunc) (*Outcome, bool, error) {
	g.mu.Lock()
	if outcome, ok := g.outcomes[externalKey]; ok {
		g.mu.Unlock()
		return outcome, true, nil
	}
	g.mu.Unlock()

	outcome, err := fn(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	if outcome == nil {
		outcome = &Outcome{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.outcomes[externalKey]; ok {
		return existing, true, nil
	}
	g.outcomes[externalKey] = outcome
	g.calls[externalKey]++
	return outcome, false, nil
}
