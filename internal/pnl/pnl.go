// Package pnl computes quest leaderboards from start/end price snapshots.
//
// The engine is a stateless calculator: it reads snapshot sets and
// participant holdings and derives the ranked leaderboard, never mutating
// either. Snapshot ordering is enforced through named error conditions
// rather than locks — a start set is captured exactly once, an end set
// requires the start set, and a leaderboard requires both.
//
// All monetary values use shopspring/decimal — never float64 for money.
package pnl

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/model"
)

var (
	// ErrSnapshotMissing is returned when an end capture or leaderboard is
	// requested before its prerequisite snapshot set exists. Recoverable:
	// capture the missing snapshot and retry.
	ErrSnapshotMissing = errors.New("pnl: required price snapshot not captured")

	// ErrDuplicateSnapshot is returned when a snapshot set is captured twice
	// for the same quest. The stored prices are never overwritten — re-basing
	// PNL mid-quest would corrupt every participant's standing.
	ErrDuplicateSnapshot = errors.New("pnl: snapshot already captured for quest")
)

// State describes how far a quest's snapshot lifecycle has progressed.
type State int

const (
	NoSnapshot State = iota
	StartCaptured
	FullyCaptured
)

// SnapshotSet holds both snapshot maps for one quest, keyed by asset ID.
type SnapshotSet struct {
	Start map[string]model.PriceSnapshot
	End   map[string]model.PriceSnapshot
}

// State returns the lifecycle position implied by the captured sets.
func (s SnapshotSet) State() State {
	switch {
	case len(s.Start) == 0:
		return NoSnapshot
	case len(s.End) == 0:
		return StartCaptured
	default:
		return FullyCaptured
	}
}

// CaptureGuard validates that capturing a snapshot set of the given kind is
// legal for the current lifecycle state. The guards provide the ordering
// guarantee: a start set is provably in place before any trade counted
// toward the end valuation.
func CaptureGuard(s SnapshotSet, kind string) error {
	switch kind {
	case model.SnapshotStart:
		if len(s.Start) > 0 {
			return ErrDuplicateSnapshot
		}
	case model.SnapshotEnd:
		if len(s.Start) == 0 {
			return ErrSnapshotMissing
		}
		if len(s.End) > 0 {
			return ErrDuplicateSnapshot
		}
	}
	return nil
}

// PrizeTable maps rank → fraction of the prize pool. Ranks absent from the
// table receive zero. The table is configuration, not engine policy.
type PrizeTable map[int]decimal.Decimal

// Standing is the engine's input for one participant: holdings quantities at
// quest join and at computation time.
type Standing struct {
	ActorID       string
	JoinedAt      time.Time
	StartHoldings map[string]decimal.Decimal
	EndHoldings   map[string]decimal.Decimal
}

// valueAt prices holdings against a snapshot map. Assets without a snapshot
// price are valued at zero — never at a stale live price.
func valueAt(holdings map[string]decimal.Decimal, snaps map[string]model.PriceSnapshot) decimal.Decimal {
	total := decimal.Zero
	for assetID, qty := range holdings {
		snap, ok := snaps[assetID]
		if !ok {
			continue
		}
		total = total.Add(qty.Mul(snap.Price))
	}
	return total
}

// percentGain returns (end-start)/start × 100, defined as zero when the
// starting value is zero.
func percentGain(start, end decimal.Decimal) decimal.Decimal {
	if start.IsZero() {
		return decimal.Zero
	}
	return end.Sub(start).Div(start).Mul(decimal.NewFromInt(100))
}

// ComputeLeaderboard derives the ranked leaderboard for one quest.
//
// Participants are ordered by end value descending; ties break by ascending
// join time (earliest joiner ranks higher). Ranks are sequential from 1 and
// prizes are pool × table share for ranks present in the table. A quest with
// zero participants yields an empty (not nil) row slice.
//
// Fails with ErrSnapshotMissing unless both snapshot sets are captured.
func ComputeLeaderboard(
	questID string,
	snaps SnapshotSet,
	standings []Standing,
	prizePool decimal.Decimal,
	prizes PrizeTable,
) (*model.Leaderboard, error) {
	if snaps.State() != FullyCaptured {
		return nil, ErrSnapshotMissing
	}

	rows := make([]model.ParticipantPNL, 0, len(standings))
	for _, st := range standings {
		startValue := valueAt(st.StartHoldings, snaps.Start)
		endValue := valueAt(st.EndHoldings, snaps.End)

		rows = append(rows, model.ParticipantPNL{
			ActorID:    st.ActorID,
			JoinedAt:   st.JoinedAt,
			StartValue: startValue,
			EndValue:   endValue,
			PNLPercent: percentGain(startValue, endValue),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].EndValue.Equal(rows[j].EndValue) {
			return rows[i].EndValue.GreaterThan(rows[j].EndValue)
		}
		return rows[i].JoinedAt.Before(rows[j].JoinedAt)
	})

	for i := range rows {
		rows[i].Rank = i + 1
		rows[i].Prize = decimal.Zero
		if share, ok := prizes[rows[i].Rank]; ok {
			rows[i].Prize = prizePool.Mul(share)
		}
	}

	return &model.Leaderboard{
		QuestID:    questID,
		PrizePool:  prizePool,
		Rows:       rows,
		ComputedAt: time.Now().UTC(),
	}, nil
}
