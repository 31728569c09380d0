package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateQuest(ctx context.Context, q *model.Quest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quests (id, name, creator_id, entry_fee, prize_pool, status, asset_ids, starts_at, ends_at, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9, $10)`,
		q.ID, q.Name, q.CreatorID,
		q.EntryFee.String(), q.PrizePool.String(),
		q.Status, q.AssetIDs, q.StartsAt, q.EndsAt, q.CreatedAt,
	)
	return err
}

const questColumns = `id, name, creator_id,
	        entry_fee::TEXT, prize_pool::TEXT,
	        status, asset_ids, starts_at, ends_at, created_at,
	        (SELECT COUNT(*) FROM participants p WHERE p.quest_id = quests.id)`

func scanQuest(row pgx.Row) (*model.Quest, error) {
	var q model.Quest
	var entryFee, prizePool string

	err := row.Scan(&q.ID, &q.Name, &q.CreatorID,
		&entryFee, &prizePool,
		&q.Status, &q.AssetIDs, &q.StartsAt, &q.EndsAt, &q.CreatedAt,
		&q.Participants)
	if err != nil {
		return nil, err
	}

	q.EntryFee, _ = decimal.NewFromString(entryFee)
	q.PrizePool, _ = decimal.NewFromString(prizePool)
	return &q, nil
}

func (s *PostgresStore) GetQuest(ctx context.Context, id string) (*model.Quest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+questColumns+` FROM quests WHERE id = $1`, id)

	q, err := scanQuest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: quest %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get quest %s: %w", id, err)
	}
	return q, nil
}

func (s *PostgresStore) ListQuests(ctx context.Context) ([]model.Quest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questColumns+` FROM quests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quests []model.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

func (s *PostgresStore) UpdateQuestStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quests SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quest %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AddParticipant(ctx context.Context, p *model.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (quest_id, actor_id, joined_at)
		 VALUES ($1, $2, $3)`,
		p.QuestID, p.ActorID, p.JoinedAt,
	)
	return err
}

func (s *PostgresStore) ListParticipants(ctx context.Context, questID string) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT quest_id, actor_id, joined_at
		 FROM participants WHERE quest_id = $1 ORDER BY joined_at`, questID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.QuestID, &p.ActorID, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// Ledgers are stored one row per holding, with kind distinguishing the live
// ledger ("live") from the copy frozen at start capture ("start").

func (s *PostgresStore) getLedger(ctx context.Context, questID, actorID, kind string) (*model.Ledger, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset_id, symbol, quantity::TEXT, cost::TEXT, value::TEXT
		 FROM ledger_holdings
		 WHERE quest_id = $1 AND actor_id = $2 AND kind = $3`,
		questID, actorID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	l := &model.Ledger{
		ActorID:  actorID,
		QuestID:  questID,
		Holdings: make(map[string]model.Holding),
	}
	for rows.Next() {
		var h model.Holding
		var qtyS, costS, valueS string
		if err := rows.Scan(&h.AssetID, &h.Symbol, &qtyS, &costS, &valueS); err != nil {
			return nil, err
		}
		h.Quantity, _ = decimal.NewFromString(qtyS)
		h.Cost, _ = decimal.NewFromString(costS)
		h.Value, _ = decimal.NewFromString(valueS)
		l.Holdings[h.AssetID] = h
	}
	return l, rows.Err()
}

func (s *PostgresStore) putLedger(ctx context.Context, l *model.Ledger, kind string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Replace the full holding set: removed holdings must not linger.
	if _, err := tx.Exec(ctx,
		`DELETE FROM ledger_holdings WHERE quest_id = $1 AND actor_id = $2 AND kind = $3`,
		l.QuestID, l.ActorID, kind); err != nil {
		return err
	}

	for _, h := range l.Holdings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_holdings (quest_id, actor_id, kind, asset_id, symbol, quantity, cost, value)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC)`,
			l.QuestID, l.ActorID, kind, h.AssetID, h.Symbol,
			h.Quantity.String(), h.Cost.String(), h.Value.String()); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetLedger(ctx context.Context, questID, actorID string) (*model.Ledger, error) {
	return s.getLedger(ctx, questID, actorID, "live")
}

func (s *PostgresStore) PutLedger(ctx context.Context, l *model.Ledger) error {
	return s.putLedger(ctx, l, "live")
}

func (s *PostgresStore) GetStartLedger(ctx context.Context, questID, actorID string) (*model.Ledger, error) {
	return s.getLedger(ctx, questID, actorID, "start")
}

func (s *PostgresStore) PutStartLedger(ctx context.Context, l *model.Ledger) error {
	return s.putLedger(ctx, l, "start")
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *model.PriceSnapshot) error {
	// UNIQUE (quest_id, asset_id, kind) makes double capture a hard failure.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_snapshots (id, quest_id, asset_id, kind, price, captured_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		snap.ID, snap.QuestID, snap.AssetID, snap.Kind,
		snap.Price.String(), snap.CapturedAt,
	)
	return err
}

func (s *PostgresStore) GetSnapshots(ctx context.Context, questID, kind string) (map[string]model.PriceSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quest_id, asset_id, kind, price::TEXT, captured_at
		 FROM price_snapshots WHERE quest_id = $1 AND kind = $2`, questID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := make(map[string]model.PriceSnapshot)
	for rows.Next() {
		var snap model.PriceSnapshot
		var priceS string
		if err := rows.Scan(&snap.ID, &snap.QuestID, &snap.AssetID, &snap.Kind,
			&priceS, &snap.CapturedAt); err != nil {
			return nil, err
		}
		snap.Price, _ = decimal.NewFromString(priceS)
		snaps[snap.AssetID] = snap
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) InsertTrade(ctx context.Context, tr *model.TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, quest_id, actor_id, asset_id, side, quantity, price, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
		tr.ID, tr.QuestID, tr.ActorID, tr.AssetID, tr.Side,
		tr.Quantity.String(), tr.Price.String(), tr.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetTradesByQuest(ctx context.Context, questID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quest_id, actor_id, asset_id, side, quantity::TEXT, price::TEXT, timestamp
		 FROM trades WHERE quest_id = $1 ORDER BY timestamp`, questID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) GetTradesByActor(ctx context.Context, questID, actorID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quest_id, actor_id, asset_id, side, quantity::TEXT, price::TEXT, timestamp
		 FROM trades WHERE quest_id = $1 AND actor_id = $2 ORDER BY timestamp`, questID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]model.TradeRecord, error) {
	var trades []model.TradeRecord
	for rows.Next() {
		var tr model.TradeRecord
		var qtyS, priceS string

		if err := rows.Scan(&tr.ID, &tr.QuestID, &tr.ActorID, &tr.AssetID, &tr.Side,
			&qtyS, &priceS, &tr.Timestamp); err != nil {
			return nil, err
		}

		tr.Quantity, _ = decimal.NewFromString(qtyS)
		tr.Price, _ = decimal.NewFromString(priceS)

		trades = append(trades, tr)
	}
	return trades, rows.Err()
}
