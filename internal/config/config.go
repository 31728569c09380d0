// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/asset"
	"github.com/blazeit/quest-engine/internal/pnl"
)

// defaultCatalog seeds the tradable asset catalog when ASSET_CATALOG is not
// set. Entries are feed-id:symbol:decimals.
const defaultCatalog = "solana:SOL:9,bonk:BONK:5,jito:JTO:9,jupiter:JUP:6,render-token:RENDER:8"

// defaultPrizeShares pays the top three ranks. Entries are ordered by rank.
const defaultPrizeShares = "0.5,0.3,0.2"

// Config holds service configuration.
type Config struct {
	Port        string
	DatabaseURL string // empty → in-memory store
	RedisURL    string // empty → no read-through cache
	CacheTTL    time.Duration

	FeedBaseURL string // empty → public CoinGecko API
	FeedAPIKey  string

	SchedulerInterval time.Duration
	MaxAssetShare     decimal.Decimal

	Catalog     []asset.Asset
	PrizeShares pnl.PrizeTable
}

// Load reads and validates configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:        envDefault("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		FeedBaseURL: os.Getenv("FEED_BASE_URL"),
		FeedAPIKey:  os.Getenv("FEED_API_KEY"),
	}

	var err error
	if cfg.CacheTTL, err = envDuration("CACHE_TTL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.SchedulerInterval, err = envDuration("SCHEDULER_INTERVAL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.MaxAssetShare, err = envDecimal("MAX_ASSET_SHARE", "0.5"); err != nil {
		return cfg, err
	}
	if cfg.Catalog, err = parseCatalog(envDefault("ASSET_CATALOG", defaultCatalog)); err != nil {
		return cfg, err
	}
	if cfg.PrizeShares, err = parsePrizeShares(envDefault("PRIZE_SHARES", defaultPrizeShares)); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func envDecimal(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(envDefault(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

// parseCatalog parses "id:SYMBOL:decimals" triples separated by commas.
func parseCatalog(raw string) ([]asset.Asset, error) {
	var assets []asset.Asset
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: malformed catalog entry %q", entry)
		}
		decimals, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("config: bad decimals in catalog entry %q: %w", entry, err)
		}
		a, err := asset.New(parts[0], parts[1], decimals)
		if err != nil {
			return nil, fmt.Errorf("config: catalog entry %q: %w", entry, err)
		}
		assets = append(assets, a)
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("config: asset catalog is empty")
	}
	return assets, nil
}

// parsePrizeShares parses comma-separated pool fractions ordered by rank.
// The shares must not sum past 1.
func parsePrizeShares(raw string) (pnl.PrizeTable, error) {
	table := make(pnl.PrizeTable)
	total := decimal.Zero
	rank := 1
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		share, err := decimal.NewFromString(entry)
		if err != nil {
			return nil, fmt.Errorf("config: bad prize share %q: %w", entry, err)
		}
		if share.IsNegative() {
			return nil, fmt.Errorf("config: prize share %q is negative", entry)
		}
		table[rank] = share
		total = total.Add(share)
		rank++
	}
	if total.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("config: prize shares sum to %s, exceeding the pool", total)
	}
	return table, nil
}
