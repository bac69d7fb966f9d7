package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository"

	"github.com/go-redis/redis/v8"
)

const outcomeCacheTTL = 24 * time.Hour

type idempotencyGate struct {
	db     *sql.DB
	idem   repository.IdempotencyRepository
	ledger repository.LedgerRepository
	cache  *redis.Client // optional, nil disables the fast path
}

func NewIdempotencyGate(db *sql.DB, idem repository.IdempotencyRepository, ledger repository.LedgerRepository, cache *redis.Client) IdempotencyGate {
	return &idempotencyGate{db: db, idem: idem, ledger: ledger, cache: cache}
}

// Process claims the key, runs fn, posts its entries and records the outcome
// in one transaction. Correctness rests entirely on the database unique
// constraint: the redis cache only short-circuits deliveries whose outcome is
// already committed, so losing it costs a round trip, never a double posting.
func (g *idempotencyGate) Process(ctx context.Context, externalKey string, fn GateFunc) (*Outcome, bool, error) {
	if externalKey == "" {
		return nil, false, domain.NewValidationError("external_key", "must not be empty")
	}

	if outcome := g.cachedOutcome(ctx, externalKey); outcome != nil {
		return outcome, true, nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := g.idem.ClaimTx(ctx, tx, externalKey); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// The concurrent winner has committed by the time the unique
			// index unblocks us, so its outcome is readable now.
			tx.Rollback()
			return g.replay(ctx, externalKey)
		}
		return nil, false, err
	}

	outcome, err := fn(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	if outcome == nil {
		outcome = &Outcome{}
	}

	if len(outcome.Entries) > 0 {
		if err := g.ledger.PostBatchTx(ctx, tx, outcome.Entries); err != nil {
			return nil, false, err
		}
	}

	raw, err := json.Marshal(outcome)
	if err != nil {
		return nil, false, fmt.Errorf("marshal outcome for key %s: %w", externalKey, err)
	}
	if err := g.idem.RecordOutcomeTx(ctx, tx, externalKey, raw); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit key %s: %w", externalKey, err)
	}

	g.cacheOutcome(ctx, externalKey, raw)
	return outcome, false, nil
}

func (g *idempotencyGate) replay(ctx context.Context, externalKey string) (*Outcome, bool, error) {
	raw, err := g.idem.GetOutcome(ctx, externalKey)
	if err != nil {
		return nil, false, fmt.Errorf("key %s claimed without outcome: %w", externalKey, domain.ErrDuplicateIdempotencyKey)
	}
	var outcome Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, false, fmt.Errorf("decode stored outcome for key %s: %w", externalKey, err)
	}
	g.cacheOutcome(ctx, externalKey, raw)
	return &outcome, true, nil
}

func (g *idempotencyGate) cachedOutcome(ctx context.Context, externalKey string) *Outcome {
	if g.cache == nil {
		return nil
	}
	raw, err := g.cache.Get(ctx, cacheKey(externalKey)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Idempotency cache read failed", "key", externalKey, "error", err)
		}
		return nil
	}
	var outcome Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		logger.Warn("Idempotency cache entry corrupt, ignoring", "key", externalKey, "error", err)
		return nil
	}
	return &outcome
}

func (g *idempotencyGate) cacheOutcome(ctx context.Context, externalKey string, raw []byte) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(externalKey), raw, outcomeCacheTTL).Err(); err != nil {
		logger.Warn("Idempotency cache write failed", "key", externalKey, "error", err)
	}
}

func cacheKey(externalKey string) string {
	return "idem:" + externalKey
}
