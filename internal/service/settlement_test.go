package service

import (
	"context"
	"testing"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func settlementFixture(deposits *mockDepositRepo, fund *mockFundService) (SettlementService, *fakeGate) {
	gate := newFakeGate()
	cfg := &config.EscrowConfig{
		EventCapCents:   80000,
		FGOAccountID:    "sys-fgo",
		ClaimsAccountID: "sys-claims",
	}
	return NewSettlementService(gate, deposits, fund, cfg, NewNoopNotifier()), gate
}

func lockedDeposit(available int64) *domain.BookingDeposit {
	return &domain.BookingDeposit{
		BookingID:         "bk-1",
		RenterAccountID:   "acct-renter",
		Status:            domain.DepositStatusLocked,
		Currency:          "USD",
		LockedAmountCents: available,
	}
}

func TestSettleClaimDepositThenFund(t *testing.T) {
	deposits := new(mockDepositRepo)
	fund := new(mockFundService)
	svc, _ := settlementFixture(deposits, fund)

	// Claim 1000 against 300 of deposit, cap 800, fund holds 2000:
	// 300 from the deposit, 700 from the fund, nothing unrecovered.
	deposits.On("GetByBookingID", mock.Anything, "bk-1").Return(lockedDeposit(300), nil)
	fund.On("Balance", mock.Anything).Return(int64(2000), nil)
	fund.On("DebitForClaim", mock.Anything, mock.Anything, "bk-1", int64(700)).Return(nil)
	deposits.On("UpdateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(d *domain.BookingDeposit) bool {
		return d.ChargedAmountCents == 300 && d.Status == domain.DepositStatusCharged
	})).Return(nil)

	settlement, err := svc.SettleClaim(context.Background(), "claim-1", "bk-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(300), settlement.Allocation.FromDepositCents)
	assert.Equal(t, int64(700), settlement.Allocation.FromFGOCents)
	assert.Equal(t, int64(0), settlement.Allocation.UnrecoveredCents)
	deposits.AssertExpectations(t)
	fund.AssertExpectations(t)
}

func TestSettleClaimLowFundLeavesUnrecovered(t *testing.T) {
	deposits := new(mockDepositRepo)
	fund := new(mockFundService)
	svc, _ := settlementFixture(deposits, fund)

	// Same claim but the fund only holds 400: 300 + 400, 300 unrecovered.
	deposits.On("GetByBookingID", mock.Anything, "bk-1").Return(lockedDeposit(300), nil)
	fund.On("Balance", mock.Anything).Return(int64(400), nil)
	fund.On("DebitForClaim", mock.Anything, mock.Anything, "bk-1", int64(400)).Return(nil)
	deposits.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	settlement, err := svc.SettleClaim(context.Background(), "claim-1", "bk-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(300), settlement.Allocation.FromDepositCents)
	assert.Equal(t, int64(400), settlement.Allocation.FromFGOCents)
	assert.Equal(t, int64(300), settlement.Allocation.UnrecoveredCents)
	sum := settlement.Allocation.FromDepositCents + settlement.Allocation.FromFGOCents + settlement.Allocation.UnrecoveredCents
	assert.Equal(t, settlement.Allocation.ClaimCents, sum)
}

func TestSettleClaimCapLimitsFundDraw(t *testing.T) {
	deposits := new(mockDepositRepo)
	fund := new(mockFundService)
	gate := newFakeGate()
	cfg := &config.EscrowConfig{EventCapCents: 500, FGOAccountID: "sys-fgo", ClaimsAccountID: "sys-claims"}
	svc := NewSettlementService(gate, deposits, fund, cfg, NewNoopNotifier())

	deposits.On("GetByBookingID", mock.Anything, "bk-1").Return(lockedDeposit(300), nil)
	fund.On("Balance", mock.Anything).Return(int64(2000), nil)
	fund.On("DebitForClaim", mock.Anything, mock.Anything, "bk-1", int64(500)).Return(nil)
	deposits.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	settlement, err := svc.SettleClaim(context.Background(), "claim-1", "bk-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), settlement.Allocation.FromFGOCents)
	assert.Equal(t, int64(200), settlement.Allocation.UnrecoveredCents)
}

func TestSettleClaimReplayReturnsFirstAllocation(t *testing.T) {
	deposits := new(mockDepositRepo)
	fund := new(mockFundService)
	svc, _ := settlementFixture(deposits, fund)

	deposit := lockedDeposit(300)
	deposits.On("GetByBookingID", mock.Anything, "bk-1").Return(deposit, nil)
	fund.On("Balance", mock.Anything).Return(int64(2000), nil).Once()
	fund.On("DebitForClaim", mock.Anything, mock.Anything, "bk-1", int64(700)).Return(nil).Once()
	deposits.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	first, err := svc.SettleClaim(context.Background(), "claim-1", "bk-1", 1000)
	require.NoError(t, err)

	// The fund has drained since, but the replay must not recompute.
	fund.On("Balance", mock.Anything).Return(int64(0), nil).Once()
	second, err := svc.SettleClaim(context.Background(), "claim-1", "bk-1", 1000)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Allocation, second.Allocation)
	fund.AssertNumberOfCalls(t, "DebitForClaim", 1)
}

func TestSettleClaimFundExhaustedPropagates(t *testing.T) {
	deposits := new(mockDepositRepo)
	fund := new(mockFundService)
	svc, _ := settlementFixture(deposits, fund)

	deposits.On("GetByBookingID", mock.Anything, "bk-1").Return(lockedDeposit(0), nil)
	fund.On("Balance", mock.Anything).Return(int64(1000), nil)
	// A racing settlement drained the fund between the balance read and the
	// transactional debit.
	fund.On("DebitForClaim", mock.Anything, mock.Anything, "bk-1", int64(1000)).
		Return(domain.ErrFundExhausted)

	_, err := svc.SettleClaim(context.Background(), "claim-1", "bk-1", 1000)
	assert.ErrorIs(t, err, domain.ErrFundExhausted)
}

func TestSettleClaimValidatesInput(t *testing.T) {
	svc, _ := settlementFixture(new(mockDepositRepo), new(mockFundService))

	_, err := svc.SettleClaim(context.Background(), "", "bk-1", 1000)
	assert.True(t, domain.IsValidation(err))
	_, err = svc.SettleClaim(context.Background(), "claim-1", "bk-1", 0)
	assert.True(t, domain.IsValidation(err))
}
