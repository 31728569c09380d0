package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blazeit/quest-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateQuest(ctx context.Context, q *model.Quest) error {
	if err := s.primary.CreateQuest(ctx, q); err != nil {
		return err
	}
	s.cacheQuest(ctx, q)
	return nil
}

func (s *CachedStore) UpdateQuestStatus(ctx context.Context, id, status string) error {
	if err := s.primary.UpdateQuestStatus(ctx, id, status); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, questKey(id))
	return nil
}

func (s *CachedStore) AddParticipant(ctx context.Context, p *model.Participant) error {
	if err := s.primary.AddParticipant(ctx, p); err != nil {
		return err
	}
	// Participant count lives on the quest record.
	s.rdb.Del(ctx, questKey(p.QuestID))
	return nil
}

func (s *CachedStore) PutLedger(ctx context.Context, l *model.Ledger) error {
	if err := s.primary.PutLedger(ctx, l); err != nil {
		return err
	}
	s.rdb.Del(ctx, ledgerCacheKey(l.QuestID, l.ActorID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetQuest(ctx context.Context, id string) (*model.Quest, error) {
	data, err := s.rdb.Get(ctx, questKey(id)).Bytes()
	if err == nil {
		var q model.Quest
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	// Cache miss: read from primary.
	q, err := s.primary.GetQuest(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheQuest(ctx, q)
	return q, nil
}

func (s *CachedStore) GetLedger(ctx context.Context, questID, actorID string) (*model.Ledger, error) {
	data, err := s.rdb.Get(ctx, ledgerCacheKey(questID, actorID)).Bytes()
	if err == nil {
		var l model.Ledger
		if json.Unmarshal(data, &l) == nil {
			return &l, nil
		}
	}

	// Cache miss.
	l, err := s.primary.GetLedger(ctx, questID, actorID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(l); err == nil {
		s.rdb.Set(ctx, ledgerCacheKey(questID, actorID), data, s.ttl)
	}
	return l, nil
}

func (s *CachedStore) GetSnapshots(ctx context.Context, questID, kind string) (map[string]model.PriceSnapshot, error) {
	// Snapshots are immutable once captured, so a populated set is safe to
	// cache; empty sets are not cached (capture may still be pending).
	data, err := s.rdb.Get(ctx, snapCacheKey(questID, kind)).Bytes()
	if err == nil {
		var snaps map[string]model.PriceSnapshot
		if json.Unmarshal(data, &snaps) == nil {
			return snaps, nil
		}
	}

	snaps, err := s.primary.GetSnapshots(ctx, questID, kind)
	if err != nil {
		return nil, err
	}

	if len(snaps) > 0 {
		if data, err := json.Marshal(snaps); err == nil {
			s.rdb.Set(ctx, snapCacheKey(questID, kind), data, s.ttl)
		}
	}
	return snaps, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListQuests(ctx context.Context) ([]model.Quest, error) {
	return s.primary.ListQuests(ctx)
}

func (s *CachedStore) ListParticipants(ctx context.Context, questID string) ([]model.Participant, error) {
	return s.primary.ListParticipants(ctx, questID)
}

func (s *CachedStore) GetStartLedger(ctx context.Context, questID, actorID string) (*model.Ledger, error) {
	return s.primary.GetStartLedger(ctx, questID, actorID)
}

func (s *CachedStore) PutStartLedger(ctx context.Context, l *model.Ledger) error {
	return s.primary.PutStartLedger(ctx, l)
}

func (s *CachedStore) InsertSnapshot(ctx context.Context, snap *model.PriceSnapshot) error {
	return s.primary.InsertSnapshot(ctx, snap)
}

func (s *CachedStore) InsertTrade(ctx context.Context, tr *model.TradeRecord) error {
	return s.primary.InsertTrade(ctx, tr)
}

func (s *CachedStore) GetTradesByQuest(ctx context.Context, questID string) ([]model.TradeRecord, error) {
	return s.primary.GetTradesByQuest(ctx, questID)
}

func (s *CachedStore) GetTradesByActor(ctx context.Context, questID, actorID string) ([]model.TradeRecord, error) {
	return s.primary.GetTradesByActor(ctx, questID, actorID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheQuest(ctx context.Context, q *model.Quest) {
	if data, err := json.Marshal(q); err == nil {
		s.rdb.Set(ctx, questKey(q.ID), data, s.ttl)
	}
}

func questKey(id string) string { return fmt.Sprintf("quest:%s", id) }

func ledgerCacheKey(questID, actorID string) string {
	return fmt.Sprintf("ledger:%s:%s", questID, actorID)
}

func snapCacheKey(questID, kind string) string { return fmt.Sprintf("snaps:%s:%s", questID, kind) }
