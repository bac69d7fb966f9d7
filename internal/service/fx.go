package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"autorenta-escrow-backend/internal/domain"
)

// staticFxProvider serves configured mid-market rates with the platform
// margin applied. Rates are keyed "FROM/TO", e.g. "EUR/USD".
type staticFxProvider struct {
	mu            sync.RWMutex
	rates         map[string]float64
	marginPercent float64
	now           func() time.Time
}

func NewStaticFxProvider(rates map[string]float64, marginPercent float64) FxProvider {
	normalized := make(map[string]float64, len(rates))
	for pair, rate := range rates {
		normalized[strings.ToUpper(pair)] = rate
	}
	return &staticFxProvider{rates: normalized, marginPercent: marginPercent, now: time.Now}
}

func (p *staticFxProvider) Snapshot(ctx context.Context, fromCurrency, toCurrency string) (*domain.FxSnapshot, error) {
	from := strings.ToUpper(strings.TrimSpace(fromCurrency))
	to := strings.ToUpper(strings.TrimSpace(toCurrency))
	if from == to {
		return &domain.FxSnapshot{Rate: 1.0, MarginPercent: 0, Timestamp: p.now().UTC()}, nil
	}

	p.mu.RLock()
	rate, ok := p.rates[from+"/"+to]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no rate configured for %s/%s", from, to)
	}

	// The margin is charged against the renter: the effective rate converts
	// slightly fewer target units per source unit.
	return &domain.FxSnapshot{
		Rate:          rate * (1.0 - p.marginPercent),
		MarginPercent: p.marginPercent,
		Timestamp:     p.now().UTC(),
	}, nil
}

// UpdateRate replaces one pair's mid-market rate at runtime. Concurrent
// Snapshot calls see either the old or the new rate.
func (p *staticFxProvider) UpdateRate(pair string, rate float64) {
	p.mu.Lock()
	p.rates[strings.ToUpper(pair)] = rate
	p.mu.Unlock()
}
