package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/asset"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func token(t *testing.T, id, symbol string, price float64) asset.Asset {
	t.Helper()
	a, err := asset.New(id, symbol, 9)
	if err != nil {
		t.Fatalf("asset.New(%q): %v", id, err)
	}
	a.Price = d(price)
	return a
}

// --- Buy tests ---

func TestBuy_CreatesHolding(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))

	h, ok := l.Holdings["solana"]
	if !ok {
		t.Fatal("expected holding for solana")
	}
	if !h.Quantity.Equal(d(10)) {
		t.Errorf("expected quantity=10, got %s", h.Quantity)
	}
	if !h.Cost.Equal(d(20)) {
		t.Errorf("expected cost=20, got %s", h.Cost)
	}
	if !h.Value.Equal(d(20)) {
		t.Errorf("expected value=20, got %s", h.Value)
	}
}

func TestBuy_AccumulatesQuantityAndCost(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))
	Buy(l, token(t, "solana", "SOL", 4), d(10)) // price moved to $4

	h := l.Holdings["solana"]
	if !h.Quantity.Equal(d(20)) {
		t.Errorf("expected quantity=20, got %s", h.Quantity)
	}
	if !h.Cost.Equal(d(60)) { // 10*2 + 10*4
		t.Errorf("expected cost=60, got %s", h.Cost)
	}
	if !h.Value.Equal(d(80)) { // 20 * current price 4
		t.Errorf("expected value=80, got %s", h.Value)
	}
}

func TestBuy_NonPositiveQuantityIsNoop(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(0))
	Buy(l, token(t, "solana", "SOL", 2), d(-5))

	if len(l.Holdings) != 0 {
		t.Errorf("expected no holdings, got %d", len(l.Holdings))
	}
}

// --- Sell tests ---

func TestSell_AverageCostProportional(t *testing.T) {
	// Spec scenario: buy 10 @ $2 (cost=20), price → $3, sell 4.
	// Remaining: quantity 6, cost 12, value 18.
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))
	Revalue(l, "solana", d(3))

	if !l.Holdings["solana"].Value.Equal(d(30)) {
		t.Fatalf("expected value=30 after revalue, got %s", l.Holdings["solana"].Value)
	}

	sold := Sell(l, "solana", d(4), d(3))
	if !sold.Equal(d(4)) {
		t.Errorf("expected sold=4, got %s", sold)
	}

	h := l.Holdings["solana"]
	if !h.Quantity.Equal(d(6)) {
		t.Errorf("expected quantity=6, got %s", h.Quantity)
	}
	if !h.Cost.Equal(d(12)) {
		t.Errorf("expected cost=12, got %s", h.Cost)
	}
	if !h.Value.Equal(d(18)) {
		t.Errorf("expected value=18, got %s", h.Value)
	}
}

func TestSell_OversellCapsAtHeld(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))

	sold := Sell(l, "solana", d(25), d(2))
	if !sold.Equal(d(10)) {
		t.Errorf("expected sold capped at 10, got %s", sold)
	}
	if _, ok := l.Holdings["solana"]; ok {
		t.Error("expected holding removed after full sell")
	}
}

func TestSell_AbsentHoldingIsNoop(t *testing.T) {
	l := New("wallet1", "quest1")
	sold := Sell(l, "bonk", d(5), d(1))
	if !sold.IsZero() {
		t.Errorf("expected sold=0 for absent holding, got %s", sold)
	}
}

func TestSell_FullDepletionRemovesHolding(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))
	Sell(l, "solana", d(10), d(2))

	if len(l.Holdings) != 0 {
		t.Errorf("expected zero-quantity holding removed, got %d holdings", len(l.Holdings))
	}
}

func TestSell_CostNeverNegative(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 1.5), d(7))

	// Sell in awkward increments; cost and quantity must stay >= 0.
	for _, q := range []float64{2.3, 1.1, 0.6, 10} {
		Sell(l, "solana", d(q), d(1.5))
		h, ok := l.Holdings["solana"]
		if !ok {
			return // depleted and removed, which is fine
		}
		if h.Quantity.IsNegative() {
			t.Fatalf("quantity went negative: %s", h.Quantity)
		}
		if h.Cost.IsNegative() {
			t.Fatalf("cost went negative: %s", h.Cost)
		}
	}
}

func TestSell_AverageCostInvariant(t *testing.T) {
	// Selling k of q units at cost c leaves cost c*(q-k)/q.
	tests := []struct {
		name    string
		q, k, c float64
		want    float64
	}{
		{"half", 10, 5, 30, 15},
		{"third", 9, 3, 27, 18},
		{"all", 4, 4, 10, 0},
		{"fractional", 2.5, 1, 5, 3},
	}
	tolerance := d(0.0000001)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New("wallet1", "quest1")
			a := token(t, "solana", "SOL", tt.c/tt.q)
			Buy(l, a, d(tt.q))

			Sell(l, "solana", d(tt.k), a.Price)

			got := decimal.Zero
			if h, ok := l.Holdings["solana"]; ok {
				got = h.Cost
			}
			if got.Sub(d(tt.want)).Abs().GreaterThan(tolerance) {
				t.Errorf("expected cost≈%v, got %s", tt.want, got)
			}
		})
	}
}

// --- Revalue tests ---

func TestRevalue_ValueOnlyCostUntouched(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))

	Revalue(l, "solana", d(5))

	h := l.Holdings["solana"]
	if !h.Value.Equal(d(50)) {
		t.Errorf("expected value=50, got %s", h.Value)
	}
	if !h.Cost.Equal(d(20)) {
		t.Errorf("cost should be untouched at 20, got %s", h.Cost)
	}
}

func TestRevalue_UnknownAssetIgnored(t *testing.T) {
	l := New("wallet1", "quest1")
	Revalue(l, "bonk", d(1)) // must not panic or create a holding
	if len(l.Holdings) != 0 {
		t.Errorf("expected no holdings, got %d", len(l.Holdings))
	}
}

// --- Aggregate tests ---

func TestTotalValue_SumsHoldings(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))  // value 20
	Buy(l, token(t, "bonk", "BONK", 0.5), d(40)) // value 20

	if !TotalValue(l).Equal(d(40)) {
		t.Errorf("expected total value 40, got %s", TotalValue(l))
	}
	if !TotalCost(l).Equal(d(40)) {
		t.Errorf("expected total cost 40, got %s", TotalCost(l))
	}
}

func TestQuantities_Copy(t *testing.T) {
	l := New("wallet1", "quest1")
	Buy(l, token(t, "solana", "SOL", 2), d(10))

	qs := Quantities(l)
	qs["solana"] = d(999)

	if !l.Holdings["solana"].Quantity.Equal(d(10)) {
		t.Error("Quantities must return a copy, not a view")
	}
}

// --- Invariant sweep over random-ish trade sequences ---

func TestBuySellSequence_Invariants(t *testing.T) {
	l := New("wallet1", "quest1")
	a := token(t, "solana", "SOL", 3)

	ops := []struct {
		buy bool
		qty float64
	}{
		{true, 5}, {false, 2}, {true, 1.5}, {false, 10}, // oversell → depletes
		{true, 4}, {false, 1}, {false, 1}, {false, 1}, {false, 1},
	}

	for i, op := range ops {
		if op.buy {
			Buy(l, a, d(op.qty))
		} else {
			Sell(l, "solana", d(op.qty), a.Price)
		}
		h, ok := l.Holdings["solana"]
		if ok {
			if h.Quantity.LessThanOrEqual(decimal.Zero) {
				t.Fatalf("op %d: zero/negative quantity persisted: %s", i, h.Quantity)
			}
			if h.Cost.IsNegative() {
				t.Fatalf("op %d: negative cost: %s", i, h.Cost)
			}
		}
	}
}
