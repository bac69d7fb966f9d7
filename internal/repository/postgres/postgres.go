package postgres

import (
	"database/sql"

	"autorenta-escrow-backend/internal/repository"

	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.LedgerRepository
	repository.IdempotencyRepository
	repository.DepositRepository
	repository.FundRepository
	repository.RewardRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                    db,
		LedgerRepository:      NewLedgerRepository(db),
		IdempotencyRepository: NewIdempotencyRepository(db),
		DepositRepository:     NewDepositRepository(db),
		FundRepository:        NewFundRepository(db),
		RewardRepository:      NewRewardRepository(db),
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}
