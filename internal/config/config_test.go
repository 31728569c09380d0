package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.SchedulerInterval != 30*time.Second {
		t.Errorf("expected 30s interval, got %s", cfg.SchedulerInterval)
	}
	if !cfg.MaxAssetShare.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("expected max asset share 0.5, got %s", cfg.MaxAssetShare)
	}
	if len(cfg.Catalog) == 0 {
		t.Error("expected non-empty default catalog")
	}
	if !cfg.PrizeShares[1].Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("expected rank-1 share 0.5, got %s", cfg.PrizeShares[1])
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SCHEDULER_INTERVAL", "5s")
	t.Setenv("ASSET_CATALOG", "bitcoin:BTC:8")
	t.Setenv("PRIZE_SHARES", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %s", cfg.Port)
	}
	if cfg.SchedulerInterval != 5*time.Second {
		t.Errorf("expected 5s interval, got %s", cfg.SchedulerInterval)
	}
	if len(cfg.Catalog) != 1 || cfg.Catalog[0].Symbol != "BTC" {
		t.Errorf("unexpected catalog: %+v", cfg.Catalog)
	}
	if len(cfg.PrizeShares) != 1 {
		t.Errorf("expected winner-takes-all table, got %v", cfg.PrizeShares)
	}
}

func TestLoad_BadInterval(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestParseCatalog_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing fields":        "solana",
		"non-numeric decimals":  "solana:SOL:x",
		"uppercase id":          "SOLANA:SOL:9",
		"lowercase symbol":      "solana:solana:9",
		"decimals out of range": "solana:SOL:25",
		"empty catalog":         "",
	}
	for name, raw := range cases {
		if _, err := parseCatalog(raw); err == nil {
			t.Errorf("expected error for %s: %q", name, raw)
		}
	}
}

func TestParsePrizeShares_OverAllocated(t *testing.T) {
	if _, err := parsePrizeShares("0.6,0.6"); err == nil {
		t.Fatal("expected error for shares summing past 1")
	}
}

func TestParsePrizeShares_RankOrder(t *testing.T) {
	table, err := parsePrizeShares("0.5, 0.3, 0.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 3 {
		t.Fatalf("expected 3 ranks, got %d", len(table))
	}
	if !table[2].Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("expected rank-2 share 0.3, got %s", table[2])
	}
}
