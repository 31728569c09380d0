// Package store defines the persistence interface for the quest engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/blazeit/quest-engine/internal/model"
)

// ErrNotFound is wrapped by implementations when an entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. The engine core never touches it
// directly — only the quest service does, so the ledger and PNL packages
// stay pure.
type Store interface {
	// --- Quest operations ---

	// CreateQuest persists a new quest.
	CreateQuest(ctx context.Context, q *model.Quest) error

	// GetQuest retrieves a quest by its ID.
	GetQuest(ctx context.Context, id string) (*model.Quest, error)

	// ListQuests returns all quests.
	ListQuests(ctx context.Context) ([]model.Quest, error)

	// UpdateQuestStatus advances a quest's lifecycle status.
	UpdateQuestStatus(ctx context.Context, id, status string) error

	// --- Participants ---

	// AddParticipant registers an actor in a quest.
	AddParticipant(ctx context.Context, p *model.Participant) error

	// ListParticipants returns a quest's participants with join timestamps.
	ListParticipants(ctx context.Context, questID string) ([]model.Participant, error)

	// --- Ledgers ---

	// GetLedger loads the live ledger for one (actor, quest) pairing.
	// An actor with no recorded holdings gets an empty ledger, not an error.
	GetLedger(ctx context.Context, questID, actorID string) (*model.Ledger, error)

	// PutLedger persists the live ledger after a mutation.
	PutLedger(ctx context.Context, l *model.Ledger) error

	// GetStartLedger loads the ledger frozen at start-snapshot capture.
	// Empty when the actor held nothing at that instant.
	GetStartLedger(ctx context.Context, questID, actorID string) (*model.Ledger, error)

	// PutStartLedger freezes an actor's holdings at start-snapshot capture.
	PutStartLedger(ctx context.Context, l *model.Ledger) error

	// --- Price snapshots (immutable) ---

	// InsertSnapshot appends an immutable price snapshot. Duplicate
	// (quest, asset, kind) triples are rejected.
	InsertSnapshot(ctx context.Context, s *model.PriceSnapshot) error

	// GetSnapshots returns a quest's snapshots of one kind, keyed by asset.
	GetSnapshots(ctx context.Context, questID, kind string) (map[string]model.PriceSnapshot, error)

	// --- Immutable trade history ---

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, tr *model.TradeRecord) error

	// GetTradesByQuest returns all trades for a quest in execution order.
	GetTradesByQuest(ctx context.Context, questID string) ([]model.TradeRecord, error)

	// GetTradesByActor returns one actor's trades in a quest.
	GetTradesByActor(ctx context.Context, questID, actorID string) ([]model.TradeRecord, error)
}
