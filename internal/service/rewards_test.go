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

func rewardsFixture(repo *mockRewardRepo) (RewardService, *fakeGate) {
	gate := newFakeGate()
	escrow := &config.EscrowConfig{PlatformFeePercent: 0.20, FGORate: 0.10}
	weights := &config.RewardsConfig{
		AvailabilityWeight: 0.40,
		LocationWeight:     0.15,
		VehicleWeight:      0.15,
		RatingWeight:       0.20,
		BonusWeight:        0.10,
	}
	return NewRewardService(repo, gate, escrow, weights, NewNoopNotifier()), gate
}

func TestPointsWeighting(t *testing.T) {
	svc, _ := rewardsFixture(new(mockRewardRepo))
	rs := svc.(*rewardService)

	perfect := &domain.ParticipationPeriod{
		Availability:   1.0,
		LocationFactor: 1.0,
		CategoryFactor: 1.0,
		OwnerRating:    1.0,
		UsageBonus:     1.0,
	}
	assert.InDelta(t, 1.0, rs.points(perfect), 1e-9)

	idle := &domain.ParticipationPeriod{}
	assert.Equal(t, 0.0, rs.points(idle))

	partial := &domain.ParticipationPeriod{Availability: 0.5, OwnerRating: 1.0}
	assert.InDelta(t, 0.40*0.5+0.20*1.0, rs.points(partial), 1e-9)
}

func TestSplitByPointsSumsExactly(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		points []float64
	}{
		{"even split", 1000, []float64{1, 1, 1, 1}},
		{"thirds leave remainder", 1000, []float64{1, 1, 1}},
		{"skewed", 99999, []float64{0.7, 0.2, 0.1}},
		{"tiny pool", 2, []float64{1, 1, 1}},
		{"single participant", 12345, []float64{0.3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			participants := make([]domain.ParticipationPeriod, len(tc.points))
			total := 0.0
			for i, p := range tc.points {
				participants[i] = domain.ParticipationPeriod{ID: string(rune('a' + i)), Points: p}
				total += p
			}
			shares := splitByPoints(tc.amount, participants, total)
			var sum int64
			for _, s := range shares {
				assert.GreaterOrEqual(t, s, int64(0))
				sum += s
			}
			assert.Equal(t, tc.amount, sum, "shares must sum to the distributable amount exactly")
		})
	}
}

func TestClosePeriodFixesShares(t *testing.T) {
	repo := new(mockRewardRepo)
	svc, _ := rewardsFixture(repo)

	pool := &domain.NetworkPool{
		Period:             "2026-07",
		TotalRevenueCents:  100000,
		PlatformFeePercent: 0.20,
		FGORate:            0.10,
		Status:             domain.PoolStatusCollecting,
	}
	repo.On("GetPool", mock.Anything, "2026-07").Return(pool, nil)
	repo.On("ListParticipants", mock.Anything, "2026-07").Return([]domain.ParticipationPeriod{
		{ID: "p1", OwnerAccountID: "own-1", Availability: 1.0, OwnerRating: 1.0, Status: domain.ParticipationStatusOpen},
		{ID: "p2", OwnerAccountID: "own-2", Availability: 0.5, OwnerRating: 0.5, Status: domain.ParticipationStatusOpen},
	}, nil)
	repo.On("TransitionPoolStatus", mock.Anything, mock.Anything, "2026-07",
		domain.PoolStatusCollecting, domain.PoolStatusClosed).Return(nil)

	var shares []float64
	repo.On("UpdateParticipantTx", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			p := args.Get(2).(*domain.ParticipationPeriod)
			assert.Equal(t, domain.ParticipationStatusCalculated, p.Status)
			shares = append(shares, p.PoolSharePct)
		}).Return(nil)

	_, err := svc.ClosePeriod(context.Background(), "2026-07")
	require.NoError(t, err)

	require.Len(t, shares, 2)
	assert.InDelta(t, 1.0, shares[0]+shares[1], 1e-9, "shares must sum to 1")
	assert.Greater(t, shares[0], shares[1])
}

func TestClosePeriodWithoutParticipantsRollsForward(t *testing.T) {
	repo := new(mockRewardRepo)
	svc, _ := rewardsFixture(repo)

	pool := &domain.NetworkPool{
		Period:             "2026-07",
		TotalRevenueCents:  100000,
		PlatformFeePercent: 0.20,
		FGORate:            0.10,
		Status:             domain.PoolStatusCollecting,
	}
	repo.On("GetPool", mock.Anything, "2026-07").Return(pool, nil)
	repo.On("ListParticipants", mock.Anything, "2026-07").Return([]domain.ParticipationPeriod{}, nil)
	repo.On("TransitionPoolStatus", mock.Anything, mock.Anything, "2026-07",
		domain.PoolStatusCollecting, domain.PoolStatusClosed).Return(nil)
	repo.On("CreatePool", mock.Anything, mock.MatchedBy(func(p *domain.NetworkPool) bool {
		return p.Period == "2026-08" && p.Status == domain.PoolStatusCollecting
	})).Return(nil)
	repo.On("GetPool", mock.Anything, "2026-08").
		Return(&domain.NetworkPool{Period: "2026-08", Status: domain.PoolStatusCollecting}, nil)
	// 100000 * (1 - 0.20 - 0.10) = 70000 rolls into August.
	repo.On("AddCarryover", mock.Anything, mock.Anything, "2026-08", int64(70000)).Return(nil)
	repo.On("TransitionPoolStatus", mock.Anything, mock.Anything, "2026-07",
		domain.PoolStatusClosed, domain.PoolStatusDistributed).Return(nil)

	_, err := svc.ClosePeriod(context.Background(), "2026-07")
	assert.ErrorIs(t, err, domain.ErrNoParticipants)
	repo.AssertExpectations(t)
}

func TestDistributePeriodPaysLargestRemainder(t *testing.T) {
	repo := new(mockRewardRepo)
	svc, _ := rewardsFixture(repo)

	pool := &domain.NetworkPool{
		Period:             "2026-07",
		TotalRevenueCents:  100000, // distributable 70000
		PlatformFeePercent: 0.20,
		FGORate:            0.10,
		Status:             domain.PoolStatusClosed,
	}
	repo.On("GetPool", mock.Anything, "2026-07").Return(pool, nil)
	repo.On("ListParticipants", mock.Anything, "2026-07").Return([]domain.ParticipationPeriod{
		{ID: "p1", OwnerAccountID: "own-1", Points: 1, Status: domain.ParticipationStatusCalculated},
		{ID: "p2", OwnerAccountID: "own-2", Points: 1, Status: domain.ParticipationStatusCalculated},
		{ID: "p3", OwnerAccountID: "own-3", Points: 1, Status: domain.ParticipationStatusCalculated},
	}, nil)
	repo.On("TransitionPoolStatus", mock.Anything, mock.Anything, "2026-07",
		domain.PoolStatusClosed, domain.PoolStatusDistributed).Return(nil)

	var paid int64
	repo.On("UpdateParticipantTx", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			p := args.Get(2).(*domain.ParticipationPeriod)
			assert.Equal(t, domain.ParticipationStatusPaid, p.Status)
			paid += p.EarningsCents
		}).Return(nil)
	repo.On("SetDistributedCentsTx", mock.Anything, mock.Anything, "2026-07", int64(70000)).Return(nil)

	result, err := svc.DistributePeriod(context.Background(), "2026-07")
	require.NoError(t, err)
	assert.Equal(t, int64(70000), result.PaidCents)
	assert.Equal(t, int64(70000), paid, "participant earnings must sum to the pool exactly")
	assert.Len(t, result.PerOwnerCents, 3)
	repo.AssertExpectations(t)
}

func TestDistributePeriodTwiceConflicts(t *testing.T) {
	repo := new(mockRewardRepo)
	svc, _ := rewardsFixture(repo)

	repo.On("GetPool", mock.Anything, "2026-07").Return(&domain.NetworkPool{
		Period: "2026-07",
		Status: domain.PoolStatusDistributed,
	}, nil)

	_, err := svc.DistributePeriod(context.Background(), "2026-07")
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)
	assert.True(t, domain.IsConflict(err))
}

func TestDistributeCollectingPoolRejected(t *testing.T) {
	repo := new(mockRewardRepo)
	svc, _ := rewardsFixture(repo)

	repo.On("GetPool", mock.Anything, "2026-07").Return(&domain.NetworkPool{
		Period: "2026-07",
		Status: domain.PoolStatusCollecting,
	}, nil)

	_, err := svc.DistributePeriod(context.Background(), "2026-07")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRegisterParticipantValidatesInputs(t *testing.T) {
	svc, _ := rewardsFixture(new(mockRewardRepo))

	err := svc.RegisterParticipant(context.Background(), &domain.ParticipationPeriod{
		Period:         "2026-07",
		OwnerAccountID: "own-1",
		CarID:          "car-1",
		Availability:   1.5,
	})
	assert.True(t, domain.IsValidation(err))

	err = svc.RegisterParticipant(context.Background(), &domain.ParticipationPeriod{
		Period:         "not-a-period",
		OwnerAccountID: "own-1",
		CarID:          "car-1",
	})
	assert.True(t, domain.IsValidation(err))
}
