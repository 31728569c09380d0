// Package asset handles validated asset records and the per-quest eligible
// asset universe. Token references are always resolved through a validated
// Asset — no fallback lookup tables keyed by raw symbol strings.
package asset

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// idRegex matches feed-style asset identifiers: lowercase alphanumeric
// segments separated by single dashes. Example: "solana", "render-token".
var idRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// symbolRegex matches display symbols: 1–12 uppercase alphanumerics.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)

var (
	ErrInvalidID       = errors.New("asset: invalid asset identifier")
	ErrInvalidSymbol   = errors.New("asset: invalid display symbol")
	ErrInvalidDecimals = errors.New("asset: decimals must be in [0, 18]")
	ErrUnknownAsset    = errors.New("asset: not in universe")
)

// Asset is reference data for one tradable token. Price fields are refreshed
// by the external feed; identity fields are immutable.
type Asset struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Decimals  int             `json:"decimals"`
	Price     decimal.Decimal `json:"price"`      // current unit price, USD
	Change24h decimal.Decimal `json:"change_24h"` // percent over rolling window
	MarketCap decimal.Decimal `json:"market_cap"` // USD
}

// New validates identity fields and returns an Asset with zero price data.
func New(id, symbol string, decimals int) (Asset, error) {
	if !idRegex.MatchString(id) {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if !symbolRegex.MatchString(symbol) {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if decimals < 0 || decimals > 18 {
		return Asset{}, fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}
	return Asset{ID: id, Symbol: symbol, Decimals: decimals}, nil
}

// Universe is the set of assets eligible for one quest. Lookups are by
// identifier only; the universe preserves its declaration order for
// deterministic snapshot capture.
type Universe struct {
	byID  map[string]Asset
	order []string
}

// NewUniverse builds a universe from validated assets. Duplicate identifiers
// are rejected.
func NewUniverse(assets []Asset) (*Universe, error) {
	u := &Universe{byID: make(map[string]Asset, len(assets))}
	for _, a := range assets {
		if _, ok := u.byID[a.ID]; ok {
			return nil, fmt.Errorf("asset: duplicate identifier %q", a.ID)
		}
		u.byID[a.ID] = a
		u.order = append(u.order, a.ID)
	}
	return u, nil
}

// Get returns the asset for an identifier.
func (u *Universe) Get(id string) (Asset, error) {
	a, ok := u.byID[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, id)
	}
	return a, nil
}

// Contains reports whether an identifier is in the universe.
func (u *Universe) Contains(id string) bool {
	_, ok := u.byID[id]
	return ok
}

// IDs returns asset identifiers in declaration order.
func (u *Universe) IDs() []string {
	out := make([]string, len(u.order))
	copy(out, u.order)
	return out
}

// SetPrice updates the live price for an asset already in the universe.
func (u *Universe) SetPrice(id string, price decimal.Decimal) error {
	a, ok := u.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, id)
	}
	a.Price = price
	u.byID[id] = a
	return nil
}
