package ledger

import (
	"time"
)

// Snapshot 账本一致性快照，风控与监控都基于它做只读判断。
type Snapshot struct {
	Cash           float64    `json:"cash"`
	Equity         float64    `json:"equity"`
	Available      float64    `json:"available"`
	RealizedPnL    float64    `json:"realized_pnl"`
	UnrealizedPnL  float64    `json:"unrealized_pnl"`
	DayStartEquity float64    `json:"day_start_equity"`
	HighWater      float64    `json:"high_water"`
	Positions      []Position `json:"positions"`
	Time           time.Time  `json:"time"`
}

// DailyPnL 当日总盈亏（已实现 + 未实现）。
func (s Snapshot) DailyPnL() float64 { return s.RealizedPnL + s.UnrealizedPnL }

// PositionFor 返回品种持仓，不存在时返回零值。
func (s Snapshot) PositionFor(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// Snapshot 在读锁下导出当前账本状态。
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		positions = append(positions, *p)
	}
	return Snapshot{
		Cash:           l.cash,
		Equity:         l.equityLocked(),
		Available:      l.cash,
		RealizedPnL:    l.realizedPnL,
		UnrealizedPnL:  l.unrealizedLocked(),
		DayStartEquity: l.dayStartEquity,
		HighWater:      l.highWater,
		Positions:      positions,
		Time:           time.Now().UTC(),
	}
}

// BrokerSnapshot 柜台回报的权威持仓与资金状态。
type BrokerSnapshot struct {
	Cash      float64    `json:"cash"`
	Positions []Position `json:"positions"`
	Time      time.Time  `json:"time"`
}

// Divergence 本地与柜台快照的最大偏差（持仓手数与资金分开衡量）。
type Divergence struct {
	MaxQtyDiff  float64
	CashDiff    float64
	DiffSymbols []string
}

// Exceeds 偏差是否超过容差。
func (d Divergence) Exceeds(tolerance float64) bool {
	return d.MaxQtyDiff > tolerance || abs(d.CashDiff) > tolerance
}

// Compare 计算本地账本与柜台快照的偏差，不修改任何状态。
func (l *Ledger) Compare(snap BrokerSnapshot) Divergence {
	local := l.Snapshot()

	var d Divergence
	d.CashDiff = local.Cash - snap.Cash

	remote := make(map[string]Position, len(snap.Positions))
	for _, p := range snap.Positions {
		remote[p.Symbol] = p
	}
	seen := make(map[string]bool)
	for _, p := range local.Positions {
		seen[p.Symbol] = true
		rp, ok := remote[p.Symbol]
		diff := p.Quantity
		if ok && rp.Direction == p.Direction {
			diff = abs(p.Quantity - rp.Quantity)
		}
		if diff > qtyEpsilon {
			d.DiffSymbols = append(d.DiffSymbols, p.Symbol)
		}
		if diff > d.MaxQtyDiff {
			d.MaxQtyDiff = diff
		}
	}
	for _, p := range snap.Positions {
		if seen[p.Symbol] {
			continue
		}
		if p.Quantity > qtyEpsilon {
			d.DiffSymbols = append(d.DiffSymbols, p.Symbol)
			if p.Quantity > d.MaxQtyDiff {
				d.MaxQtyDiff = p.Quantity
			}
		}
	}
	return d
}

// ApplyBrokerSnapshot 用柜台快照覆盖本地状态（显式对账修正）。
// seq 单调递增，迟到的旧快照返回 false 并被丢弃；
// 同一快照重复应用结果不变（幂等）。
func (l *Ledger) ApplyBrokerSnapshot(seq uint64, snap BrokerSnapshot) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq < l.reconSeq {
		return false
	}
	l.reconSeq = seq

	l.cash = snap.Cash
	l.positions = make(map[string]*Position, len(snap.Positions))
	for _, p := range snap.Positions {
		if p.Quantity < qtyEpsilon {
			continue
		}
		cp := p
		l.positions[p.Symbol] = &cp
	}
	l.updateEquityLocked()
	return true
}

// ReconSeq 返回最近一次应用的对账序号。
func (l *Ledger) ReconSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reconSeq
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
