// Package ledger implements average-cost portfolio bookkeeping for one
// (actor, quest) pairing. Operations are pure state transitions over an
// explicit, caller-owned ledger — no I/O, no process-wide state, no locks.
// Callers serialize Buy/Sell per (actor, quest); see the quest service.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/asset"
	"github.com/blazeit/quest-engine/internal/model"
)

// New returns an empty ledger for one actor in one quest.
func New(actorID, questID string) *model.Ledger {
	return &model.Ledger{
		ActorID:  actorID,
		QuestID:  questID,
		Holdings: make(map[string]model.Holding),
	}
}

// Buy applies a purchase of quantity units of a at its current price.
// First buy of an asset creates the holding; subsequent buys accumulate
// quantity and cost, and the value is re-marked at the purchase price.
// Funding sufficiency is not checked here — that is the integration layer's
// job. Non-positive quantities leave the ledger untouched.
func Buy(l *model.Ledger, a asset.Asset, quantity decimal.Decimal) {
	if !quantity.IsPositive() {
		return
	}

	cost := a.Price.Mul(quantity)

	h, ok := l.Holdings[a.ID]
	if !ok {
		l.Holdings[a.ID] = model.Holding{
			AssetID:  a.ID,
			Symbol:   a.Symbol,
			Quantity: quantity,
			Cost:     cost,
			Value:    cost,
		}
		return
	}

	h.Quantity = h.Quantity.Add(quantity)
	h.Cost = h.Cost.Add(cost)
	h.Value = h.Quantity.Mul(a.Price)
	l.Holdings[a.ID] = h
}

// Sell disposes up to quantity units of the holding for assetID at price,
// reducing cost basis by the average unit cost computed before the mutation.
// Overselling caps at the held quantity; an absent holding is a no-op.
// Returns the quantity actually sold — zero when nothing was held.
// The holding is removed once its quantity depletes to zero.
func Sell(l *model.Ledger, assetID string, quantity, price decimal.Decimal) decimal.Decimal {
	h, ok := l.Holdings[assetID]
	if !ok || !quantity.IsPositive() {
		return decimal.Zero
	}

	sold := quantity
	if sold.GreaterThan(h.Quantity) {
		sold = h.Quantity
	}

	// Average unit cost before mutation: cost * sold/quantity keeps the
	// basis exactly proportional and never negative.
	h.Cost = h.Cost.Sub(h.Cost.Mul(sold).Div(h.Quantity))
	h.Quantity = h.Quantity.Sub(sold)

	if h.Quantity.LessThanOrEqual(decimal.Zero) {
		delete(l.Holdings, assetID)
		return sold
	}

	h.Value = h.Quantity.Mul(price)
	l.Holdings[assetID] = h
	return sold
}

// Revalue re-marks the holding for assetID at newPrice. Cost basis is
// untouched. Unknown assets are ignored.
func Revalue(l *model.Ledger, assetID string, newPrice decimal.Decimal) {
	h, ok := l.Holdings[assetID]
	if !ok {
		return
	}
	h.Value = h.Quantity.Mul(newPrice)
	l.Holdings[assetID] = h
}

// TotalValue sums the last-marked value of every holding.
func TotalValue(l *model.Ledger) decimal.Decimal {
	total := decimal.Zero
	for _, h := range l.Holdings {
		total = total.Add(h.Value)
	}
	return total
}

// TotalCost sums the cost basis of every holding — the net USD spent and
// still deployed in open positions.
func TotalCost(l *model.Ledger) decimal.Decimal {
	total := decimal.Zero
	for _, h := range l.Holdings {
		total = total.Add(h.Cost)
	}
	return total
}

// Quantities returns asset → quantity for every open holding. Used by the
// PNL engine, which values holdings against snapshot prices only.
func Quantities(l *model.Ledger) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.Holdings))
	for id, h := range l.Holdings {
		out[id] = h.Quantity
	}
	return out
}
