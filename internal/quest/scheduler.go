package quest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/ledger"
	"github.com/blazeit/quest-engine/internal/metrics"
	"github.com/blazeit/quest-engine/internal/model"
	"github.com/blazeit/quest-engine/internal/pnl"
)

// Scheduler drives quest lifecycles against the wall clock and keeps live
// ledger valuations fresh. One pass transitions upcoming quests to active
// (capturing the start snapshot), transitions expired active quests to ended
// (capturing the end snapshot), and re-marks active ledgers at current feed
// prices.
type Scheduler struct {
	svc      *Service
	interval time.Duration
}

// NewScheduler creates a scheduler ticking at the given interval.
func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	return &Scheduler{svc: svc, interval: interval}
}

// Run executes one pass immediately and then one per interval until the
// context is cancelled. Pass errors are logged, not fatal: a feed outage on
// one tick must not kill the lifecycle loop.
func (sc *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	if err := sc.Tick(ctx); err != nil {
		slog.Error("scheduler pass failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := sc.Tick(ctx); err != nil {
				slog.Error("scheduler pass failed", "err", err)
			}
		}
	}
}

// Tick runs a single scheduler pass.
func (sc *Scheduler) Tick(ctx context.Context) error {
	quests, err := sc.svc.store.ListQuests(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	active := 0

	for i := range quests {
		q := &quests[i]
		switch q.Status {
		case model.QuestUpcoming:
			if !now.Before(q.StartsAt) {
				if err := sc.svc.activateQuest(ctx, q.ID); err != nil {
					slog.Error("quest activation failed", "quest", q.ID, "err", err)
					continue
				}
				active++
			}
		case model.QuestActive:
			if !now.Before(q.EndsAt) {
				if err := sc.svc.endQuest(ctx, q.ID); err != nil {
					slog.Error("quest end failed", "quest", q.ID, "err", err)
					active++ // still active until the end capture succeeds
				}
				continue
			}
			active++
		}
	}

	metrics.ActiveQuests.Set(float64(active))

	if err := sc.svc.RefreshPrices(ctx); err != nil {
		metrics.PriceRefreshes.WithLabelValues("error").Inc()
		return err
	}
	metrics.PriceRefreshes.WithLabelValues("ok").Inc()
	return nil
}

// activateQuest captures the start snapshot and flips the quest to active.
// A duplicate-capture error means an operator already captured it manually,
// so the transition proceeds.
func (s *Service) activateQuest(ctx context.Context, questID string) error {
	if err := s.CaptureSnapshot(ctx, questID, model.SnapshotStart); err != nil &&
		!errors.Is(err, pnl.ErrDuplicateSnapshot) {
		return err
	}
	if err := s.store.UpdateQuestStatus(ctx, questID, model.QuestActive); err != nil {
		return err
	}

	slog.Info("quest activated", "quest", questID)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "quest_status",
			QuestID: questID,
			Status:  model.QuestActive,
		})
	}
	return nil
}

// endQuest captures the end snapshot and flips the quest to ended. The
// capture happens first: if the feed is down, the quest stays active and the
// next pass retries, so a quest is never ended without its end prices.
func (s *Service) endQuest(ctx context.Context, questID string) error {
	if err := s.CaptureSnapshot(ctx, questID, model.SnapshotEnd); err != nil &&
		!errors.Is(err, pnl.ErrDuplicateSnapshot) {
		return err
	}
	if err := s.store.UpdateQuestStatus(ctx, questID, model.QuestEnded); err != nil {
		return err
	}

	slog.Info("quest ended", "quest", questID)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "quest_status",
			QuestID: questID,
			Status:  model.QuestEnded,
		})
	}
	return nil
}

// RefreshPrices pulls current prices for every catalog asset, updates the
// catalog, and re-marks the value of every active-quest ledger. Cost basis
// is untouched; only valuations move.
func (s *Service) RefreshPrices(ctx context.Context) error {
	ids := s.catalog.IDs()
	if len(ids) == 0 {
		return nil
	}

	prices, err := s.feed.GetPrices(ctx, ids)
	if err != nil {
		return err
	}

	for id, price := range prices {
		if err := s.catalog.SetPrice(id, price); err != nil {
			continue // feed returned an asset outside the catalog
		}
		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:    "price_update",
				AssetID: id,
				Price:   price.String(),
			})
		}
	}

	quests, err := s.store.ListQuests(ctx)
	if err != nil {
		return err
	}

	for _, q := range quests {
		if q.Status != model.QuestActive {
			continue
		}
		if err := s.revalueQuestLedgers(ctx, q.ID, prices); err != nil {
			slog.Error("ledger revaluation failed", "quest", q.ID, "err", err)
		}
	}
	return nil
}

// revalueQuestLedgers re-marks every participant ledger in one quest. Each
// ledger is reloaded under its pairing lock so a concurrent trade is never
// overwritten with stale holdings.
func (s *Service) revalueQuestLedgers(ctx context.Context, questID string, prices map[string]decimal.Decimal) error {
	participants, err := s.store.ListParticipants(ctx, questID)
	if err != nil {
		return err
	}

	for _, p := range participants {
		lock := s.locks.acquire(questID + "|" + p.ActorID)
		lock.Lock()

		l, err := s.store.GetLedger(ctx, questID, p.ActorID)
		if err != nil {
			lock.Unlock()
			return err
		}
		if len(l.Holdings) == 0 {
			lock.Unlock()
			continue
		}
		for assetID := range l.Holdings {
			price, ok := prices[assetID]
			if !ok {
				continue
			}
			ledger.Revalue(l, assetID, price)
		}
		err = s.store.PutLedger(ctx, l)
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
