// Package feed supplies live USD prices for quest assets. The engine core
// consumes the Feed interface only; concrete providers are an HTTP price API
// and a static in-memory feed for tests and development.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when a provider has no quote for an asset.
var ErrPriceUnavailable = errors.New("feed: price unavailable")

// Feed supplies current unit prices, USD-denominated.
type Feed interface {
	// GetPrice returns the current price for one asset.
	GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error)

	// GetPrices returns current prices for a batch of assets. Assets the
	// provider cannot quote are absent from the result, not an error.
	GetPrices(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error)
}

// StaticFeed implements Feed with a fixed price table. Used for testing
// and development.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticFeed creates a static feed from an initial price table.
func NewStaticFeed(prices map[string]decimal.Decimal) *StaticFeed {
	table := make(map[string]decimal.Decimal, len(prices))
	for id, p := range prices {
		table[id] = p
	}
	return &StaticFeed{prices: table}
}

// SetPrice updates one asset's price. Tests use this to simulate market moves.
func (f *StaticFeed) SetPrice(assetID string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[assetID] = price
}

func (f *StaticFeed) GetPrice(_ context.Context, assetID string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.prices[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, assetID)
	}
	return p, nil
}

func (f *StaticFeed) GetPrices(_ context.Context, assetIDs []string) (map[string]decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(assetIDs))
	for _, id := range assetIDs {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
