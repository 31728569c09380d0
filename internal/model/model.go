// Package model defines the core domain types shared across the quest engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quest lifecycle statuses. Transitions are one-directional:
// upcoming → active → ended.
const (
	QuestUpcoming = "upcoming"
	QuestActive   = "active"
	QuestEnded    = "ended"
)

// Snapshot kinds. One snapshot set per (quest, kind).
const (
	SnapshotStart = "start"
	SnapshotEnd   = "end"
)

// Trade sides accepted by the trade endpoint.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Quest is a time-boxed competition where participants build portfolios from
// a fixed entry fee and are ranked by portfolio value at quest end.
type Quest struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	CreatorID    string          `json:"creator_id" db:"creator_id"`
	EntryFee     decimal.Decimal `json:"entry_fee" db:"entry_fee"`   // USD
	PrizePool    decimal.Decimal `json:"prize_pool" db:"prize_pool"` // USD
	Status       string          `json:"status" db:"status"`
	AssetIDs     []string        `json:"asset_ids" db:"asset_ids"` // eligible asset universe
	StartsAt     time.Time       `json:"starts_at" db:"starts_at"`
	EndsAt       time.Time       `json:"ends_at" db:"ends_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	Participants int             `json:"participants" db:"participants"`
}

// Participant records one actor's membership in a quest. JoinedAt is the
// leaderboard tie-breaker: earliest joiner ranks higher on equal end value.
type Participant struct {
	QuestID  string    `json:"quest_id" db:"quest_id"`
	ActorID  string    `json:"actor_id" db:"actor_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// Holding is a per-asset position within a ledger.
// Invariants: Quantity >= 0 always; Cost == 0 iff Quantity == 0; holdings with
// zero quantity are removed from the ledger, never persisted.
type Holding struct {
	AssetID  string          `json:"asset_id" db:"asset_id"`
	Symbol   string          `json:"symbol" db:"symbol"`
	Quantity decimal.Decimal `json:"quantity" db:"quantity"`
	Cost     decimal.Decimal `json:"cost" db:"cost"`   // cumulative USD basis
	Value    decimal.Decimal `json:"value" db:"value"` // quantity × last seen price
}

// Ledger maps asset identifiers to holdings for one (actor, quest) pairing.
// It is owned exclusively by that pairing; callers serialize mutations.
type Ledger struct {
	ActorID  string             `json:"actor_id" db:"actor_id"`
	QuestID  string             `json:"quest_id" db:"quest_id"`
	Holdings map[string]Holding `json:"holdings" db:"holdings"`
}

// PriceSnapshot is an immutable recorded price for one asset at one
// quest-lifecycle instant. Created exactly once per (quest, asset, kind).
type PriceSnapshot struct {
	ID         string          `json:"id" db:"id"`
	QuestID    string          `json:"quest_id" db:"quest_id"`
	AssetID    string          `json:"asset_id" db:"asset_id"`
	Kind       string          `json:"kind" db:"kind"` // "start" or "end"
	Price      decimal.Decimal `json:"price" db:"price"`
	CapturedAt time.Time       `json:"captured_at" db:"captured_at"`
}

// TradeRecord is an immutable record of an executed quest trade.
type TradeRecord struct {
	ID        string          `json:"id" db:"id"`
	QuestID   string          `json:"quest_id" db:"quest_id"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Side      string          `json:"side" db:"side"` // "BUY" or "SELL"
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"` // unit price at execution
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// ParticipantPNL is one leaderboard row: derived, recomputed on demand,
// never incrementally updated.
type ParticipantPNL struct {
	ActorID    string          `json:"actor_id"`
	JoinedAt   time.Time       `json:"joined_at"`
	StartValue decimal.Decimal `json:"start_value"`
	EndValue   decimal.Decimal `json:"end_value"`
	PNLPercent decimal.Decimal `json:"pnl_percent"`
	Rank       int             `json:"rank"`
	Prize      decimal.Decimal `json:"prize"`
}

// Leaderboard is the ranked output of the PNL engine for one quest.
type Leaderboard struct {
	QuestID    string           `json:"quest_id"`
	PrizePool  decimal.Decimal  `json:"prize_pool"`
	Rows       []ParticipantPNL `json:"rows"`
	ComputedAt time.Time        `json:"computed_at"`
}
