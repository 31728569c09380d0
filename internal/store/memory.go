package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/blazeit/quest-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	quests       map[string]*model.Quest
	participants map[string][]model.Participant
	ledgers      map[string]*model.Ledger // questID|actorID → live ledger
	startLedgers map[string]*model.Ledger // questID|actorID → frozen at start capture
	snapshots    map[string]map[string]model.PriceSnapshot
	trades       []model.TradeRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quests:       make(map[string]*model.Quest),
		participants: make(map[string][]model.Participant),
		ledgers:      make(map[string]*model.Ledger),
		startLedgers: make(map[string]*model.Ledger),
		snapshots:    make(map[string]map[string]model.PriceSnapshot),
	}
}

func ledgerKey(questID, actorID string) string { return questID + "|" + actorID }
func snapKey(questID, kind string) string      { return questID + "|" + kind }

func (s *MemoryStore) CreateQuest(_ context.Context, q *model.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quests[q.ID]; ok {
		return fmt.Errorf("quest %s already exists", q.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *q
	cp.AssetIDs = append([]string(nil), q.AssetIDs...)
	s.quests[q.ID] = &cp
	return nil
}

func (s *MemoryStore) GetQuest(_ context.Context, id string) (*model.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quests[id]
	if !ok {
		return nil, fmt.Errorf("%w: quest %s", ErrNotFound, id)
	}
	cp := *q
	cp.AssetIDs = append([]string(nil), q.AssetIDs...)
	return &cp, nil
}

func (s *MemoryStore) ListQuests(_ context.Context) ([]model.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quests := make([]model.Quest, 0, len(s.quests))
	for _, q := range s.quests {
		quests = append(quests, *q)
	}
	return quests, nil
}

func (s *MemoryStore) UpdateQuestStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[id]
	if !ok {
		return fmt.Errorf("%w: quest %s", ErrNotFound, id)
	}
	q.Status = status
	return nil
}

func (s *MemoryStore) AddParticipant(_ context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[p.QuestID]
	if !ok {
		return fmt.Errorf("%w: quest %s", ErrNotFound, p.QuestID)
	}
	for _, existing := range s.participants[p.QuestID] {
		if existing.ActorID == p.ActorID {
			return fmt.Errorf("actor %s already joined quest %s", p.ActorID, p.QuestID)
		}
	}
	s.participants[p.QuestID] = append(s.participants[p.QuestID], *p)
	q.Participants = len(s.participants[p.QuestID])
	return nil
}

func (s *MemoryStore) ListParticipants(_ context.Context, questID string) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Participant, len(s.participants[questID]))
	copy(out, s.participants[questID])
	return out, nil
}

func copyLedger(l *model.Ledger) *model.Ledger {
	cp := model.Ledger{
		ActorID:  l.ActorID,
		QuestID:  l.QuestID,
		Holdings: make(map[string]model.Holding, len(l.Holdings)),
	}
	for id, h := range l.Holdings {
		cp.Holdings[id] = h
	}
	return &cp
}

func (s *MemoryStore) getLedgerFrom(ledgers map[string]*model.Ledger, questID, actorID string) *model.Ledger {
	if l, ok := ledgers[ledgerKey(questID, actorID)]; ok {
		return copyLedger(l)
	}
	return &model.Ledger{
		ActorID:  actorID,
		QuestID:  questID,
		Holdings: make(map[string]model.Holding),
	}
}

func (s *MemoryStore) GetLedger(_ context.Context, questID, actorID string) (*model.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getLedgerFrom(s.ledgers, questID, actorID), nil
}

func (s *MemoryStore) PutLedger(_ context.Context, l *model.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledgers[ledgerKey(l.QuestID, l.ActorID)] = copyLedger(l)
	return nil
}

func (s *MemoryStore) GetStartLedger(_ context.Context, questID, actorID string) (*model.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getLedgerFrom(s.startLedgers, questID, actorID), nil
}

func (s *MemoryStore) PutStartLedger(_ context.Context, l *model.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startLedgers[ledgerKey(l.QuestID, l.ActorID)] = copyLedger(l)
	return nil
}

func (s *MemoryStore) InsertSnapshot(_ context.Context, snap *model.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapKey(snap.QuestID, snap.Kind)
	set, ok := s.snapshots[key]
	if !ok {
		set = make(map[string]model.PriceSnapshot)
		s.snapshots[key] = set
	}
	if _, exists := set[snap.AssetID]; exists {
		return fmt.Errorf("snapshot %s/%s/%s already captured", snap.QuestID, snap.AssetID, snap.Kind)
	}
	set[snap.AssetID] = *snap
	return nil
}

func (s *MemoryStore) GetSnapshots(_ context.Context, questID, kind string) (map[string]model.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.PriceSnapshot)
	for id, snap := range s.snapshots[snapKey(questID, kind)] {
		out[id] = snap
	}
	return out, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, tr *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *tr)
	return nil
}

func (s *MemoryStore) GetTradesByQuest(_ context.Context, questID string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for _, tr := range s.trades {
		if tr.QuestID == questID {
			result = append(result, tr)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetTradesByActor(_ context.Context, questID, actorID string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for _, tr := range s.trades {
		if tr.QuestID == questID && tr.ActorID == actorID {
			result = append(result, tr)
		}
	}
	return result, nil
}
