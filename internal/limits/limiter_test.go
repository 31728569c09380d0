package limits

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckBuy_WithinLimits(t *testing.T) {
	limiter := NewTradeLimiter(d(0.5))

	err := limiter.CheckBuy("solana", d(40), d(100), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckBuy_AssetCapExceeded(t *testing.T) {
	limiter := NewTradeLimiter(d(0.5))

	// Existing 40 + new 20 = 60 > 100 × 0.5.
	deployed := map[string]decimal.Decimal{
		"solana": d(40),
	}

	err := limiter.CheckBuy("solana", d(20), d(100), deployed)
	if err != ErrAssetCapExceeded {
		t.Errorf("expected ErrAssetCapExceeded, got %v", err)
	}
}

func TestCheckBuy_AssetCapExactlyAtLimit(t *testing.T) {
	limiter := NewTradeLimiter(d(0.5))

	deployed := map[string]decimal.Decimal{
		"solana": d(30),
	}

	// 30 + 20 = 50, exactly at the cap — allowed.
	err := limiter.CheckBuy("solana", d(20), d(100), deployed)
	if err != nil {
		t.Errorf("buy at exact cap should be allowed, got %v", err)
	}
}

func TestCheckBuy_BudgetExceeded(t *testing.T) {
	limiter := NewTradeLimiter(d(0.5))

	deployed := map[string]decimal.Decimal{
		"solana": d(45),
		"bonk":   d(45),
	}

	// 45 + 45 + 20 = 110 > 100 entry fee; per-asset caps individually fine.
	err := limiter.CheckBuy("jito", d(20), d(100), deployed)
	if err != ErrBudgetExceeded {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestCheckBuy_BudgetSpreadAcrossAssets(t *testing.T) {
	limiter := NewTradeLimiter(d(0.5))

	deployed := map[string]decimal.Decimal{
		"solana": d(50),
		"bonk":   d(30),
	}

	// 50 + 30 + 20 = 100, exactly the budget — allowed.
	err := limiter.CheckBuy("jito", d(20), d(100), deployed)
	if err != nil {
		t.Errorf("buy at exact budget should be allowed, got %v", err)
	}
}

func TestCheckBuy_NilDeployedCosts(t *testing.T) {
	limiter := NewTradeLimiter(d(0.5))

	err := limiter.CheckBuy("solana", d(10), d(100), nil)
	if err != nil {
		t.Errorf("nil deployed costs should be treated as empty, got %v", err)
	}
}

func TestNewTradeLimiter_InvalidShareFallsBackToOne(t *testing.T) {
	one := decimal.NewFromInt(1)
	for _, share := range []decimal.Decimal{d(0), d(-0.3), d(1.5)} {
		limiter := NewTradeLimiter(share)
		if !limiter.MaxAssetShare.Equal(one) {
			t.Errorf("share %s should fall back to 1, got %s", share, limiter.MaxAssetShare)
		}
	}
}
