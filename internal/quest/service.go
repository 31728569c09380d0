// Package quest provides the HTTP handlers and business logic for creating
// quests, joining them, executing portfolio trades, capturing price
// snapshots, and computing leaderboards.
//
// All monetary values use shopspring/decimal — never float64 for money.
package quest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/asset"
	"github.com/blazeit/quest-engine/internal/feed"
	"github.com/blazeit/quest-engine/internal/ledger"
	"github.com/blazeit/quest-engine/internal/limits"
	"github.com/blazeit/quest-engine/internal/metrics"
	"github.com/blazeit/quest-engine/internal/model"
	"github.com/blazeit/quest-engine/internal/pnl"
	"github.com/blazeit/quest-engine/internal/store"
)

// keyedLocks serializes ledger mutations per (actor, quest) pairing.
// Distinct pairings proceed in parallel; the guard map itself is tiny and
// held only long enough to hand out the pairing's mutex.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) acquire(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Service handles quest operations. Ledger mutations are serialized per
// (actor, quest) pairing (single-instance). For horizontal scaling, replace
// with distributed locking or database-level optimistic concurrency.
type Service struct {
	store   store.Store
	feed    feed.Feed
	catalog *asset.Universe // all tradable assets; quests pick a subset
	limiter *limits.TradeLimiter
	prizes  pnl.PrizeTable
	locks   *keyedLocks
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new quest service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(
	st store.Store,
	priceFeed feed.Feed,
	catalog *asset.Universe,
	limiter *limits.TradeLimiter,
	prizes pnl.PrizeTable,
	hub *WSHub,
) *Service {
	return &Service{
		store:   st,
		feed:    priceFeed,
		catalog: catalog,
		limiter: limiter,
		prizes:  prizes,
		locks:   newKeyedLocks(),
		wsHub:   hub,
	}
}

// --- Request/Response types ---

// CreateQuestRequest is the JSON body for quest creation.
type CreateQuestRequest struct {
	Name      string          `json:"name"`
	CreatorID string          `json:"creator_id"`
	EntryFee  decimal.Decimal `json:"entry_fee"`
	PrizePool decimal.Decimal `json:"prize_pool"`
	AssetIDs  []string        `json:"asset_ids"`
	StartsAt  time.Time       `json:"starts_at"`
	EndsAt    time.Time       `json:"ends_at"`
}

// JoinRequest is the JSON body for POST /quests/{questID}/join.
type JoinRequest struct {
	ActorID string `json:"actor_id"`
}

// TradeRequest is the JSON body for POST /quests/{questID}/trade.
type TradeRequest struct {
	ActorID  string          `json:"actor_id"`
	AssetID  string          `json:"asset_id"`
	Side     string          `json:"side"` // "BUY" or "SELL"
	Quantity decimal.Decimal `json:"quantity"`
}

// TradeResponse is the JSON body returned from the trade endpoint.
// Executed may be less than requested when a sell caps at the held quantity.
type TradeResponse struct {
	TradeID   string           `json:"trade_id"`
	QuestID   string           `json:"quest_id"`
	ActorID   string           `json:"actor_id"`
	AssetID   string           `json:"asset_id"`
	Side      string           `json:"side"`
	Requested decimal.Decimal  `json:"requested"`
	Executed  decimal.Decimal  `json:"executed"`
	Price     decimal.Decimal  `json:"price"`
	Portfolio PortfolioSummary `json:"portfolio"`
}

// PortfolioSummary is the ledger snapshot included in trade and portfolio
// responses.
type PortfolioSummary struct {
	Holdings   []model.Holding `json:"holdings"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	TotalValue decimal.Decimal `json:"total_value"`
	Budget     decimal.Decimal `json:"budget"`    // quest entry fee
	Remaining  decimal.Decimal `json:"remaining"` // budget minus deployed cost
}

// --- HTTP Handlers ---

// CreateQuest handles POST /api/v1/quests
func (s *Service) CreateQuest(w http.ResponseWriter, r *http.Request) {
	var req CreateQuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.CreatorID == "" {
		writeError(w, "creator_id is required", http.StatusBadRequest)
		return
	}
	if !req.EntryFee.IsPositive() {
		writeError(w, "entry_fee must be positive", http.StatusBadRequest)
		return
	}
	if req.PrizePool.IsNegative() {
		writeError(w, "prize_pool must not be negative", http.StatusBadRequest)
		return
	}
	if len(req.AssetIDs) == 0 {
		writeError(w, "asset_ids must not be empty", http.StatusBadRequest)
		return
	}
	for _, id := range req.AssetIDs {
		if !s.catalog.Contains(id) {
			writeError(w, "unknown asset: "+id, http.StatusBadRequest)
			return
		}
	}
	if !req.EndsAt.After(req.StartsAt) {
		writeError(w, "ends_at must be after starts_at", http.StatusBadRequest)
		return
	}

	q := &model.Quest{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CreatorID: req.CreatorID,
		EntryFee:  req.EntryFee,
		PrizePool: req.PrizePool,
		Status:    model.QuestUpcoming,
		AssetIDs:  req.AssetIDs,
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateQuest(r.Context(), q); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("quest created",
		"id", q.ID,
		"name", q.Name,
		"creator", q.CreatorID,
		"entry_fee", q.EntryFee.String(),
		"assets", len(q.AssetIDs),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(q)
}

// ListQuests handles GET /api/v1/quests
// Returns all quests, optionally filtered by ?status=<status>.
func (s *Service) ListQuests(w http.ResponseWriter, r *http.Request) {
	quests, err := s.store.ListQuests(r.Context())
	if err != nil {
		writeError(w, "failed to list quests", http.StatusInternalServerError)
		return
	}
	if quests == nil {
		quests = []model.Quest{}
	}

	if status := r.URL.Query().Get("status"); status != "" {
		var filtered []model.Quest
		for _, q := range quests {
			if q.Status == status {
				filtered = append(filtered, q)
			}
		}
		if filtered == nil {
			filtered = []model.Quest{}
		}
		quests = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quests)
}

// GetQuest handles GET /api/v1/quests/{questID}
func (s *Service) GetQuest(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")

	q, err := s.store.GetQuest(r.Context(), questID)
	if err != nil {
		writeError(w, "quest not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(q)
}

// JoinQuest handles POST /api/v1/quests/{questID}/join
func (s *Service) JoinQuest(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActorID == "" {
		writeError(w, "actor_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		writeError(w, "quest not found", http.StatusNotFound)
		return
	}
	if q.Status == model.QuestEnded {
		writeError(w, "quest has ended", http.StatusConflict)
		return
	}

	p := &model.Participant{
		QuestID:  questID,
		ActorID:  req.ActorID,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("participant joined", "quest", questID, "actor", req.ActorID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

// ExecuteTrade handles POST /api/v1/quests/{questID}/trade
// Executes a BUY or SELL against the actor's quest ledger at the current
// feed price and returns the executed quantity and updated portfolio.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.ActorID == "" {
		writeError(w, "actor_id is required", http.StatusBadRequest)
		return
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	start := time.Now()

	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		writeError(w, "quest not found", http.StatusNotFound)
		return
	}
	if q.Status != model.QuestActive {
		writeError(w, "quest is not active for trading", http.StatusConflict)
		return
	}

	if !containsID(q.AssetIDs, req.AssetID) {
		writeError(w, "asset not eligible for this quest: "+req.AssetID, http.StatusBadRequest)
		return
	}
	a, err := s.catalog.Get(req.AssetID)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	price, err := s.feed.GetPrice(ctx, req.AssetID)
	if err != nil {
		writeError(w, "price unavailable for "+req.AssetID, http.StatusServiceUnavailable)
		return
	}
	a.Price = price

	// Serialize mutations for this (actor, quest) pairing. Other pairings
	// trade concurrently.
	lock := s.locks.acquire(questID + "|" + req.ActorID)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.store.GetLedger(ctx, questID, req.ActorID)
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}

	var executed decimal.Decimal
	if req.Side == model.SideBuy {
		costDelta := price.Mul(req.Quantity)
		if err := s.limiter.CheckBuy(req.AssetID, costDelta, q.EntryFee, deployedCosts(l)); err != nil {
			metrics.TradeLimitRejections.Inc()
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		ledger.Buy(l, a, req.Quantity)
		executed = req.Quantity
	} else {
		executed = ledger.Sell(l, req.AssetID, req.Quantity, price)
	}

	if executed.IsPositive() {
		if err := s.store.PutLedger(ctx, l); err != nil {
			writeError(w, "failed to persist ledger", http.StatusInternalServerError)
			return
		}

		tr := &model.TradeRecord{
			ID:        uuid.New().String(),
			QuestID:   questID,
			ActorID:   req.ActorID,
			AssetID:   req.AssetID,
			Side:      req.Side,
			Quantity:  executed,
			Price:     price,
			Timestamp: time.Now().UTC(),
		}
		if err := s.store.InsertTrade(ctx, tr); err != nil {
			writeError(w, "failed to record trade", http.StatusInternalServerError)
			return
		}

		metrics.TradesTotal.WithLabelValues(req.Side).Inc()
		metrics.TradeLatency.WithLabelValues(req.Side).Observe(time.Since(start).Seconds())

		slog.Info("trade executed",
			"trade_id", tr.ID,
			"quest", questID,
			"actor", req.ActorID,
			"asset", req.AssetID,
			"side", req.Side,
			"qty", executed.String(),
			"price", price.String(),
		)

		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:     "trade_executed",
				QuestID:  questID,
				AssetID:  req.AssetID,
				ActorID:  req.ActorID,
				Side:     req.Side,
				Quantity: executed.String(),
				Price:    price.String(),
			})
		}

		resp := TradeResponse{
			TradeID:   tr.ID,
			QuestID:   questID,
			ActorID:   req.ActorID,
			AssetID:   req.AssetID,
			Side:      req.Side,
			Requested: req.Quantity,
			Executed:  executed,
			Price:     price,
			Portfolio: summarize(l, q.EntryFee),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	// Sell against nothing held: a no-op, not an error. Report zero executed.
	resp := TradeResponse{
		QuestID:   questID,
		ActorID:   req.ActorID,
		AssetID:   req.AssetID,
		Side:      req.Side,
		Requested: req.Quantity,
		Executed:  decimal.Zero,
		Price:     price,
		Portfolio: summarize(l, q.EntryFee),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CaptureSnapshotHandler handles POST /api/v1/quests/{questID}/snapshots/{kind}
// Captures the start or end price snapshot set for a quest.
func (s *Service) CaptureSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")
	kind := chi.URLParam(r, "kind")

	if kind != model.SnapshotStart && kind != model.SnapshotEnd {
		writeError(w, "kind must be start or end", http.StatusBadRequest)
		return
	}

	if err := s.CaptureSnapshot(r.Context(), questID, kind); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, "quest not found", http.StatusNotFound)
		case errors.Is(err, pnl.ErrDuplicateSnapshot), errors.Is(err, pnl.ErrSnapshotMissing):
			writeError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, feed.ErrPriceUnavailable):
			writeError(w, err.Error(), http.StatusServiceUnavailable)
		default:
			writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"quest_id": questID, "kind": kind})
}

// CaptureSnapshot records one immutable price per quest asset for the given
// kind. A start capture also freezes every participant's current ledger as
// the baseline for PNL. All prices must be quotable or nothing is written,
// so a retry after a partial feed outage never trips the duplicate guard.
func (s *Service) CaptureSnapshot(ctx context.Context, questID, kind string) error {
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return err
	}

	set, err := s.loadSnapshotSet(ctx, questID)
	if err != nil {
		return err
	}
	if err := pnl.CaptureGuard(set, kind); err != nil {
		metrics.SnapshotCaptures.WithLabelValues(kind, "rejected").Inc()
		return err
	}

	prices, err := s.feed.GetPrices(ctx, q.AssetIDs)
	if err != nil {
		metrics.SnapshotCaptures.WithLabelValues(kind, "error").Inc()
		return err
	}
	for _, id := range q.AssetIDs {
		if _, ok := prices[id]; !ok {
			metrics.SnapshotCaptures.WithLabelValues(kind, "error").Inc()
			return fmt.Errorf("%w: %s", feed.ErrPriceUnavailable, id)
		}
	}

	now := time.Now().UTC()
	for _, id := range q.AssetIDs {
		snap := &model.PriceSnapshot{
			ID:         uuid.New().String(),
			QuestID:    questID,
			AssetID:    id,
			Kind:       kind,
			Price:      prices[id],
			CapturedAt: now,
		}
		if err := s.store.InsertSnapshot(ctx, snap); err != nil {
			metrics.SnapshotCaptures.WithLabelValues(kind, "error").Inc()
			return err
		}
	}

	if kind == model.SnapshotStart {
		if err := s.freezeStartLedgers(ctx, questID); err != nil {
			return err
		}
	}

	metrics.SnapshotCaptures.WithLabelValues(kind, "ok").Inc()
	slog.Info("snapshot captured", "quest", questID, "kind", kind, "assets", len(q.AssetIDs))

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "snapshot_captured",
			QuestID: questID,
			Status:  kind,
		})
	}
	return nil
}

// freezeStartLedgers copies each participant's live ledger into the start
// baseline. Actors who join later simply have no baseline, which values
// their start at zero.
func (s *Service) freezeStartLedgers(ctx context.Context, questID string) error {
	participants, err := s.store.ListParticipants(ctx, questID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		l, err := s.store.GetLedger(ctx, questID, p.ActorID)
		if err != nil {
			return err
		}
		if err := s.store.PutStartLedger(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) loadSnapshotSet(ctx context.Context, questID string) (pnl.SnapshotSet, error) {
	startSnaps, err := s.store.GetSnapshots(ctx, questID, model.SnapshotStart)
	if err != nil {
		return pnl.SnapshotSet{}, err
	}
	endSnaps, err := s.store.GetSnapshots(ctx, questID, model.SnapshotEnd)
	if err != nil {
		return pnl.SnapshotSet{}, err
	}
	return pnl.SnapshotSet{Start: startSnaps, End: endSnaps}, nil
}

// GetLeaderboard handles GET /api/v1/quests/{questID}/leaderboard
// Recomputes the ranked leaderboard from snapshots and ledgers on demand.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")

	lb, err := s.BuildLeaderboard(r.Context(), questID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, "quest not found", http.StatusNotFound)
		case errors.Is(err, pnl.ErrSnapshotMissing):
			writeError(w, err.Error(), http.StatusConflict)
		default:
			writeError(w, "failed to compute leaderboard", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lb)
}

// BuildLeaderboard assembles standings from stored ledgers and snapshots and
// runs the PNL engine.
func (s *Service) BuildLeaderboard(ctx context.Context, questID string) (*model.Leaderboard, error) {
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}

	set, err := s.loadSnapshotSet(ctx, questID)
	if err != nil {
		return nil, err
	}

	participants, err := s.store.ListParticipants(ctx, questID)
	if err != nil {
		return nil, err
	}

	standings := make([]pnl.Standing, 0, len(participants))
	for _, p := range participants {
		startLedger, err := s.store.GetStartLedger(ctx, questID, p.ActorID)
		if err != nil {
			return nil, err
		}
		endLedger, err := s.store.GetLedger(ctx, questID, p.ActorID)
		if err != nil {
			return nil, err
		}
		standings = append(standings, pnl.Standing{
			ActorID:       p.ActorID,
			JoinedAt:      p.JoinedAt,
			StartHoldings: ledger.Quantities(startLedger),
			EndHoldings:   ledger.Quantities(endLedger),
		})
	}

	lb, err := pnl.ComputeLeaderboard(questID, set, standings, q.PrizePool, s.prizes)
	if err != nil {
		return nil, err
	}

	metrics.LeaderboardsComputed.Inc()
	return lb, nil
}

// GetPortfolio handles GET /api/v1/quests/{questID}/portfolio/{actorID}
// Returns the actor's current holdings, totals, and remaining budget.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")
	actorID := chi.URLParam(r, "actorID")
	ctx := r.Context()

	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		writeError(w, "quest not found", http.StatusNotFound)
		return
	}

	l, err := s.store.GetLedger(ctx, questID, actorID)
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summarize(l, q.EntryFee))
}

// GetQuestTrades handles GET /api/v1/quests/{questID}/trades
// Returns the quest's immutable trade history in execution order,
// optionally filtered by ?actor_id=<actorID>.
func (s *Service) GetQuestTrades(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")
	ctx := r.Context()

	var (
		trades []model.TradeRecord
		err    error
	)
	if actorID := r.URL.Query().Get("actor_id"); actorID != "" {
		trades, err = s.store.GetTradesByActor(ctx, questID, actorID)
	} else {
		trades, err = s.store.GetTradesByQuest(ctx, questID)
	}
	if err != nil {
		writeError(w, "failed to get trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// ListAssets handles GET /api/v1/assets
// Returns the full tradable asset catalog with last refreshed prices.
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets := make([]asset.Asset, 0, len(s.catalog.IDs()))
	for _, id := range s.catalog.IDs() {
		a, err := s.catalog.Get(id)
		if err != nil {
			continue
		}
		assets = append(assets, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assets)
}

// --- helpers ---

func summarize(l *model.Ledger, entryFee decimal.Decimal) PortfolioSummary {
	holdings := make([]model.Holding, 0, len(l.Holdings))
	for _, h := range l.Holdings {
		holdings = append(holdings, h)
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].AssetID < holdings[j].AssetID
	})

	totalCost := ledger.TotalCost(l)
	return PortfolioSummary{
		Holdings:   holdings,
		TotalCost:  totalCost,
		TotalValue: ledger.TotalValue(l),
		Budget:     entryFee,
		Remaining:  entryFee.Sub(totalCost),
	}
}

func deployedCosts(l *model.Ledger) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.Holdings))
	for id, h := range l.Holdings {
		out[id] = h.Cost
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
