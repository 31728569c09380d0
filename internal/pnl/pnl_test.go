package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blazeit/quest-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func snapMap(questID, kind string, prices map[string]float64) map[string]model.PriceSnapshot {
	out := make(map[string]model.PriceSnapshot, len(prices))
	for id, p := range prices {
		out[id] = model.PriceSnapshot{
			QuestID: questID,
			AssetID: id,
			Kind:    kind,
			Price:   d(p),
		}
	}
	return out
}

func fullSnaps(start, end map[string]float64) SnapshotSet {
	return SnapshotSet{
		Start: snapMap("quest1", model.SnapshotStart, start),
		End:   snapMap("quest1", model.SnapshotEnd, end),
	}
}

// --- Lifecycle / capture guard tests ---

func TestState_Progression(t *testing.T) {
	var s SnapshotSet
	if s.State() != NoSnapshot {
		t.Errorf("empty set should be NoSnapshot, got %v", s.State())
	}

	s.Start = snapMap("quest1", model.SnapshotStart, map[string]float64{"solana": 2})
	if s.State() != StartCaptured {
		t.Errorf("expected StartCaptured, got %v", s.State())
	}

	s.End = snapMap("quest1", model.SnapshotEnd, map[string]float64{"solana": 3})
	if s.State() != FullyCaptured {
		t.Errorf("expected FullyCaptured, got %v", s.State())
	}
}

func TestCaptureGuard_DuplicateStart(t *testing.T) {
	s := SnapshotSet{Start: snapMap("quest1", model.SnapshotStart, map[string]float64{"solana": 2})}
	if err := CaptureGuard(s, model.SnapshotStart); err != ErrDuplicateSnapshot {
		t.Errorf("expected ErrDuplicateSnapshot, got %v", err)
	}
}

func TestCaptureGuard_EndBeforeStart(t *testing.T) {
	var s SnapshotSet
	if err := CaptureGuard(s, model.SnapshotEnd); err != ErrSnapshotMissing {
		t.Errorf("expected ErrSnapshotMissing, got %v", err)
	}
}

func TestCaptureGuard_DuplicateEnd(t *testing.T) {
	s := fullSnaps(map[string]float64{"solana": 2}, map[string]float64{"solana": 3})
	if err := CaptureGuard(s, model.SnapshotEnd); err != ErrDuplicateSnapshot {
		t.Errorf("expected ErrDuplicateSnapshot, got %v", err)
	}
}

func TestCaptureGuard_HappyPath(t *testing.T) {
	var s SnapshotSet
	if err := CaptureGuard(s, model.SnapshotStart); err != nil {
		t.Errorf("first start capture should pass, got %v", err)
	}

	s.Start = snapMap("quest1", model.SnapshotStart, map[string]float64{"solana": 2})
	if err := CaptureGuard(s, model.SnapshotEnd); err != nil {
		t.Errorf("end capture after start should pass, got %v", err)
	}
}

// --- Leaderboard tests ---

func TestComputeLeaderboard_MissingEndSnapshot(t *testing.T) {
	s := SnapshotSet{Start: snapMap("quest1", model.SnapshotStart, map[string]float64{"solana": 2})}
	_, err := ComputeLeaderboard("quest1", s, nil, d(1000), nil)
	if err != ErrSnapshotMissing {
		t.Errorf("expected ErrSnapshotMissing, got %v", err)
	}
}

func TestComputeLeaderboard_ZeroParticipants(t *testing.T) {
	s := fullSnaps(map[string]float64{"solana": 2}, map[string]float64{"solana": 3})
	lb, err := ComputeLeaderboard("quest1", s, nil, d(1000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lb.Rows == nil {
		t.Error("rows should be empty, not nil")
	}
	if len(lb.Rows) != 0 {
		t.Errorf("expected 0 rows, got %d", len(lb.Rows))
	}
}

func TestComputeLeaderboard_PercentGain(t *testing.T) {
	s := fullSnaps(map[string]float64{"solana": 10}, map[string]float64{"solana": 15})
	standings := []Standing{{
		ActorID:       "walletA",
		StartHoldings: map[string]decimal.Decimal{"solana": d(10)}, // start 100
		EndHoldings:   map[string]decimal.Decimal{"solana": d(10)}, // end 150
	}}

	lb, err := ComputeLeaderboard("quest1", s, standings, d(1000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := lb.Rows[0]
	if !row.StartValue.Equal(d(100)) {
		t.Errorf("expected start=100, got %s", row.StartValue)
	}
	if !row.EndValue.Equal(d(150)) {
		t.Errorf("expected end=150, got %s", row.EndValue)
	}
	if !row.PNLPercent.Equal(d(50)) {
		t.Errorf("expected pnl=50%%, got %s", row.PNLPercent)
	}
}

func TestComputeLeaderboard_ZeroStartValueZeroPercent(t *testing.T) {
	s := fullSnaps(map[string]float64{"solana": 10}, map[string]float64{"solana": 15})
	standings := []Standing{{
		ActorID:       "walletA",
		StartHoldings: nil, // nothing held at join
		EndHoldings:   map[string]decimal.Decimal{"solana": d(4)},
	}}

	lb, err := ComputeLeaderboard("quest1", s, standings, d(1000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lb.Rows[0].PNLPercent.IsZero() {
		t.Errorf("pnl must be 0 when start value is 0, got %s", lb.Rows[0].PNLPercent)
	}
	if !lb.Rows[0].EndValue.Equal(d(60)) {
		t.Errorf("end value still computed: expected 60, got %s", lb.Rows[0].EndValue)
	}
}

func TestComputeLeaderboard_UnsnapshottedAssetValuedZero(t *testing.T) {
	// "newlisted" has no end snapshot — valued at 0, not at a live price.
	s := fullSnaps(map[string]float64{"solana": 10}, map[string]float64{"solana": 10})
	standings := []Standing{{
		ActorID:       "walletA",
		StartHoldings: map[string]decimal.Decimal{"solana": d(1)},
		EndHoldings: map[string]decimal.Decimal{
			"solana":    d(1),
			"newlisted": d(1000),
		},
	}}

	lb, err := ComputeLeaderboard("quest1", s, standings, d(1000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lb.Rows[0].EndValue.Equal(d(10)) {
		t.Errorf("unsnapshotted asset must contribute 0: expected end=10, got %s", lb.Rows[0].EndValue)
	}
}

func TestComputeLeaderboard_TieBrokenByJoinTime(t *testing.T) {
	// Spec scenario: A and B both end at 150; A joined earlier and ranks #1
	// despite B having identical end value.
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := fullSnaps(
		map[string]float64{"solana": 1, "bonk": 1},
		map[string]float64{"solana": 1, "bonk": 1},
	)
	standings := []Standing{
		{
			ActorID:       "walletB",
			JoinedAt:      t0.Add(5 * time.Minute),
			StartHoldings: map[string]decimal.Decimal{"solana": d(120)},
			EndHoldings:   map[string]decimal.Decimal{"solana": d(150)},
		},
		{
			ActorID:       "walletA",
			JoinedAt:      t0,
			StartHoldings: map[string]decimal.Decimal{"bonk": d(100)},
			EndHoldings:   map[string]decimal.Decimal{"bonk": d(150)},
		},
	}

	lb, err := ComputeLeaderboard("quest1", s, standings, d(1000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lb.Rows[0].ActorID != "walletA" {
		t.Errorf("expected walletA ranked #1 on tie, got %s", lb.Rows[0].ActorID)
	}
	if lb.Rows[1].ActorID != "walletB" {
		t.Errorf("expected walletB ranked #2, got %s", lb.Rows[1].ActorID)
	}
	if !lb.Rows[0].PNLPercent.Equal(d(50)) {
		t.Errorf("walletA pnl should be 50%%, got %s", lb.Rows[0].PNLPercent)
	}
	if !lb.Rows[1].PNLPercent.Equal(d(25)) {
		t.Errorf("walletB pnl should be 25%%, got %s", lb.Rows[1].PNLPercent)
	}
}

func TestComputeLeaderboard_OrderedByEndValueDesc(t *testing.T) {
	s := fullSnaps(map[string]float64{"solana": 1}, map[string]float64{"solana": 1})
	standings := []Standing{
		{ActorID: "low", EndHoldings: map[string]decimal.Decimal{"solana": d(10)}},
		{ActorID: "high", EndHoldings: map[string]decimal.Decimal{"solana": d(90)}},
		{ActorID: "mid", EndHoldings: map[string]decimal.Decimal{"solana": d(40)}},
	}

	lb, err := ComputeLeaderboard("quest1", s, standings, d(1000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"high", "mid", "low"}
	for i, actor := range want {
		if lb.Rows[i].ActorID != actor {
			t.Errorf("rank %d: expected %s, got %s", i+1, actor, lb.Rows[i].ActorID)
		}
		if lb.Rows[i].Rank != i+1 {
			t.Errorf("expected sequential rank %d, got %d", i+1, lb.Rows[i].Rank)
		}
	}
}

func TestComputeLeaderboard_PrizeDistribution(t *testing.T) {
	// Spec scenario: table {1: 50%, 2: 30%} over a $1000 pool and 3 ranked
	// participants → $500, $300, $0.
	s := fullSnaps(map[string]float64{"solana": 1}, map[string]float64{"solana": 1})
	standings := []Standing{
		{ActorID: "first", EndHoldings: map[string]decimal.Decimal{"solana": d(300)}},
		{ActorID: "second", EndHoldings: map[string]decimal.Decimal{"solana": d(200)}},
		{ActorID: "third", EndHoldings: map[string]decimal.Decimal{"solana": d(100)}},
	}
	prizes := PrizeTable{1: d(0.5), 2: d(0.3)}

	lb, err := ComputeLeaderboard("quest1", s, standings, d(1000), prizes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPrizes := []float64{500, 300, 0}
	for i, want := range wantPrizes {
		if !lb.Rows[i].Prize.Equal(d(want)) {
			t.Errorf("rank %d: expected prize %v, got %s", i+1, want, lb.Rows[i].Prize)
		}
	}
}

func TestComputeLeaderboard_PureReadNoMutation(t *testing.T) {
	s := fullSnaps(map[string]float64{"solana": 2}, map[string]float64{"solana": 3})
	holdings := map[string]decimal.Decimal{"solana": d(10)}
	standings := []Standing{{ActorID: "walletA", StartHoldings: holdings, EndHoldings: holdings}}

	if _, err := ComputeLeaderboard("quest1", s, standings, d(1000), PrizeTable{1: d(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !holdings["solana"].Equal(d(10)) {
		t.Error("holdings mutated by leaderboard computation")
	}
	if !s.Start["solana"].Price.Equal(d(2)) || !s.End["solana"].Price.Equal(d(3)) {
		t.Error("snapshots mutated by leaderboard computation")
	}
}
