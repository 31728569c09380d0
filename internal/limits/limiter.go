// Package limits enforces quest trade limits: every participant funds their
// portfolio from the quest entry fee, so total deployed cost may not exceed
// that budget, and a concentration cap keeps any single asset from absorbing
// the whole allocation.
//
// These checks belong to the integration layer — the ledger core itself
// never rejects a trade for funding reasons.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrAssetCapExceeded is returned when a buy would push a single asset's
	// cost basis beyond the per-asset concentration cap.
	ErrAssetCapExceeded = errors.New("limits: per-asset concentration cap exceeded")

	// ErrBudgetExceeded is returned when a buy would push total deployed cost
	// beyond the quest entry fee.
	ErrBudgetExceeded = errors.New("limits: quest entry-fee budget exceeded")
)

// TradeLimiter validates buys against the entry-fee budget.
type TradeLimiter struct {
	// MaxAssetShare is the maximum fraction of the entry fee that may be
	// deployed into one asset. 1 disables the concentration cap.
	MaxAssetShare decimal.Decimal
}

// NewTradeLimiter creates a limiter with the given concentration cap.
// Shares outside (0, 1] fall back to 1.
func NewTradeLimiter(maxAssetShare decimal.Decimal) *TradeLimiter {
	one := decimal.NewFromInt(1)
	if !maxAssetShare.IsPositive() || maxAssetShare.GreaterThan(one) {
		maxAssetShare = one
	}
	return &TradeLimiter{MaxAssetShare: maxAssetShare}
}

// CheckBuy validates whether spending costDelta on assetID respects both the
// per-asset cap and the total budget.
//
// Parameters:
//   - assetID: asset being bought
//   - costDelta: USD cost of the buy
//   - entryFee: the quest's entry fee (the budget)
//   - deployedCosts: asset ID → current cost basis for this participant
//
// Returns nil if the buy is within limits.
func (l *TradeLimiter) CheckBuy(
	assetID string,
	costDelta, entryFee decimal.Decimal,
	deployedCosts map[string]decimal.Decimal,
) error {
	// 1. Per-asset concentration cap.
	newAssetCost := deployedCosts[assetID].Add(costDelta)
	if newAssetCost.GreaterThan(entryFee.Mul(l.MaxAssetShare)) {
		return ErrAssetCapExceeded
	}

	// 2. Total budget: sum of deployed cost across all assets.
	total := newAssetCost
	for id, cost := range deployedCosts {
		if id == assetID {
			continue // already counted via newAssetCost above
		}
		total = total.Add(cost)
	}

	if total.GreaterThan(entryFee) {
		return ErrBudgetExceeded
	}

	return nil
}
