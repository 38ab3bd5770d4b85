package risk

import (
	"sync"
	"time"

	"futures-exec-go/ledger"
	"futures-exec-go/order"
)

// 频控滑动窗口宽度。
const rateWindow = time.Minute

// Gate 风控闸门：按固定顺序（持仓 → 资金 → 订单）执行规则，
// 报告第一条失败规则。对账本只读，检查期间由账本快照保证一致性。
type Gate struct {
	limits Limits
	ledger *ledger.Ledger
	clock  Clock

	mu          sync.Mutex
	times       []time.Time
	symbolTimes map[string][]time.Time
}

// NewGate 创建风控闸门。
func NewGate(limits Limits, led *ledger.Ledger, clock Clock) *Gate {
	if clock == nil {
		clock = NowUTC
	}
	return &Gate{
		limits:      limits,
		ledger:      led,
		clock:       clock,
		symbolTimes: make(map[string][]time.Time),
	}
}

// Limits 返回会话限额（不可变）。
func (g *Gate) Limits() Limits { return g.limits }

// Check 执行全部规则。检查顺序固定，同一输入必然得到同一结论。
func (g *Gate) Check(intent order.Intent) Result {
	if !g.limits.EnableRiskControl {
		return Pass()
	}

	snap := g.ledger.Snapshot()
	mult := g.ledger.Multiplier(intent.Symbol)

	if r := CheckPosition(intent, snap, g.limits, mult); !r.Passed {
		return r
	}
	if r := CheckCapital(intent, snap, g.limits, mult); !r.Passed {
		return r
	}

	recentTotal, recentSymbol := g.windowCounts(intent.Symbol)
	refPrice := g.ledger.MarkPrice(intent.Symbol)
	if r := CheckRate(intent, recentTotal, recentSymbol, refPrice, g.limits); !r.Passed {
		return r
	}

	return Pass()
}

// RecordSubmit 登记一次实际报单，供频控窗口统计。
// 只有通过闸门并真正报出的订单才计数。
func (g *Gate) RecordSubmit(symbol string) {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.times = append(g.times, now)
	g.symbolTimes[symbol] = append(g.symbolTimes[symbol], now)
}

func (g *Gate) windowCounts(symbol string) (total, perSymbol int) {
	cutoff := g.clock.Now().Add(-rateWindow)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.times = prune(g.times, cutoff)
	g.symbolTimes[symbol] = prune(g.symbolTimes[symbol], cutoff)
	return len(g.times), len(g.symbolTimes[symbol])
}

func prune(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && times[idx].Before(cutoff) {
		idx++
	}
	return times[idx:]
}
