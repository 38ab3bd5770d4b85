package ledger

import (
	"errors"
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCommitOpenAveragesCost(t *testing.T) {
	l := New(1_000_000, map[string]float64{"IF2509": 300})

	if err := l.Commit(Fill{Symbol: "IF2509", Buy: true, Open: true, Quantity: 2, Price: 4000, Time: time.Now()}); err != nil {
		t.Fatalf("open 2: %v", err)
	}
	if err := l.Commit(Fill{Symbol: "IF2509", Buy: true, Open: true, Quantity: 1, Price: 4030, Time: time.Now()}); err != nil {
		t.Fatalf("open 1: %v", err)
	}

	snap := l.Snapshot()
	pos, ok := snap.PositionFor("IF2509")
	if !ok {
		t.Fatal("position missing")
	}
	wantAvg := (2*4000.0 + 1*4030.0) / 3
	if pos.Direction != Long || pos.Quantity != 3 || !almostEqual(pos.AvgCost, wantAvg) {
		t.Fatalf("position = %+v, want long 3 @ %.4f", pos, wantAvg)
	}
}

func TestCommitCloseRealizesPnL(t *testing.T) {
	l := New(10_000_000, map[string]float64{"IF2509": 300})
	if err := l.Commit(Fill{Symbol: "IF2509", Buy: true, Open: true, Quantity: 2, Price: 4000}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Commit(Fill{Symbol: "IF2509", Buy: false, Open: false, Quantity: 1, Price: 4050}); err != nil {
		t.Fatalf("close: %v", err)
	}

	snap := l.Snapshot()
	// 多头平仓 1 手：(4050-4000)*300
	if !almostEqual(snap.RealizedPnL, 15_000) {
		t.Fatalf("realized = %.2f, want 15000", snap.RealizedPnL)
	}
	pos, _ := snap.PositionFor("IF2509")
	if pos.Quantity != 1 {
		t.Fatalf("remaining qty = %.1f, want 1", pos.Quantity)
	}
}

func TestCommitShortSidePnL(t *testing.T) {
	l := New(10_000_000, map[string]float64{"IC2509": 200})
	if err := l.Commit(Fill{Symbol: "IC2509", Buy: false, Open: true, Quantity: 3, Price: 5000}); err != nil {
		t.Fatalf("short open: %v", err)
	}
	// 买入平空，价格下跌盈利
	if err := l.Commit(Fill{Symbol: "IC2509", Buy: true, Open: false, Quantity: 3, Price: 4900}); err != nil {
		t.Fatalf("cover: %v", err)
	}
	snap := l.Snapshot()
	if !almostEqual(snap.RealizedPnL, 3*100*200) {
		t.Fatalf("realized = %.2f, want 60000", snap.RealizedPnL)
	}
	if _, ok := snap.PositionFor("IC2509"); ok {
		t.Fatal("position should be flat after full cover")
	}
}

func TestCommitOverCloseRejected(t *testing.T) {
	l := New(1_000_000, nil)
	if err := l.Commit(Fill{Symbol: "RB2510", Buy: true, Open: true, Quantity: 2, Price: 3500}); err != nil {
		t.Fatalf("open: %v", err)
	}
	err := l.Commit(Fill{Symbol: "RB2510", Buy: false, Open: false, Quantity: 5, Price: 3500})
	if !errors.Is(err, ErrOverClose) {
		t.Fatalf("expected ErrOverClose, got %v", err)
	}
	// 拒绝的平仓不得截断持仓
	pos, _ := l.Snapshot().PositionFor("RB2510")
	if pos.Quantity != 2 {
		t.Fatalf("position mutated: %.1f", pos.Quantity)
	}
}

func TestCommitCloseWithoutPosition(t *testing.T) {
	l := New(1_000_000, nil)
	err := l.Commit(Fill{Symbol: "RB2510", Buy: false, Open: false, Quantity: 1, Price: 3500})
	if !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}

func TestUnrealizedFollowsMark(t *testing.T) {
	l := New(10_000_000, map[string]float64{"IF2509": 300})
	if err := l.Commit(Fill{Symbol: "IF2509", Buy: true, Open: true, Quantity: 2, Price: 4000}); err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Mark("IF2509", 4020)
	snap := l.Snapshot()
	if !almostEqual(snap.UnrealizedPnL, 2*20*300) {
		t.Fatalf("unrealized = %.2f, want 12000", snap.UnrealizedPnL)
	}
}

func TestResetDay(t *testing.T) {
	l := New(10_000_000, map[string]float64{"IF2509": 300})
	if err := l.Commit(Fill{Symbol: "IF2509", Buy: true, Open: true, Quantity: 1, Price: 4000}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Commit(Fill{Symbol: "IF2509", Buy: false, Open: false, Quantity: 1, Price: 4100}); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Snapshot().RealizedPnL == 0 {
		t.Fatal("expected realized pnl before reset")
	}
	l.ResetDay()
	snap := l.Snapshot()
	if snap.RealizedPnL != 0 {
		t.Fatalf("realized after reset = %.2f", snap.RealizedPnL)
	}
	if !almostEqual(snap.DayStartEquity, snap.Equity) {
		t.Fatalf("day start %.2f != equity %.2f", snap.DayStartEquity, snap.Equity)
	}
}

func TestCompareDivergence(t *testing.T) {
	l := New(1_000_000, nil)
	if err := l.Commit(Fill{Symbol: "RB2510", Buy: true, Open: true, Quantity: 3, Price: 3500}); err != nil {
		t.Fatalf("open: %v", err)
	}

	local := l.Snapshot()
	d := l.Compare(BrokerSnapshot{Cash: local.Cash, Positions: []Position{
		{Symbol: "RB2510", Direction: Long, Quantity: 3, AvgCost: 3500},
	}})
	if d.Exceeds(1e-6) {
		t.Fatalf("no divergence expected, got %+v", d)
	}

	d = l.Compare(BrokerSnapshot{Cash: local.Cash - 100, Positions: []Position{
		{Symbol: "RB2510", Direction: Long, Quantity: 2, AvgCost: 3500},
	}})
	if !d.Exceeds(1e-6) || d.MaxQtyDiff != 1 {
		t.Fatalf("expected divergence qty 1, got %+v", d)
	}
}

func TestApplyBrokerSnapshotSequence(t *testing.T) {
	l := New(1_000_000, nil)

	ok := l.ApplyBrokerSnapshot(2, BrokerSnapshot{Cash: 900_000, Positions: []Position{
		{Symbol: "RB2510", Direction: Short, Quantity: 1, AvgCost: 3600},
	}})
	if !ok {
		t.Fatal("snapshot seq 2 should apply")
	}
	// 迟到的旧快照被丢弃
	if l.ApplyBrokerSnapshot(1, BrokerSnapshot{Cash: 500_000}) {
		t.Fatal("stale snapshot seq 1 must be discarded")
	}
	snap := l.Snapshot()
	if snap.Cash != 900_000 {
		t.Fatalf("cash = %.2f, want 900000", snap.Cash)
	}

	// 重复应用同一快照幂等
	before := l.Snapshot()
	if !l.ApplyBrokerSnapshot(2, BrokerSnapshot{Cash: 900_000, Positions: []Position{
		{Symbol: "RB2510", Direction: Short, Quantity: 1, AvgCost: 3600},
	}}) {
		t.Fatal("same-seq snapshot should apply")
	}
	after := l.Snapshot()
	if before.Cash != after.Cash || len(before.Positions) != len(after.Positions) {
		t.Fatal("reapply changed state")
	}
}
