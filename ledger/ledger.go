package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Direction 持仓方向
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Position 单品种持仓，数量恒为非负。
type Position struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Quantity  float64   `json:"quantity"`
	AvgCost   float64   `json:"avg_cost"`
}

// Fill 提交给账本的已确认成交。
type Fill struct {
	Symbol   string
	Buy      bool // 买入为 true
	Open     bool // 开仓为 true，平仓为 false
	Quantity float64
	Price    float64
	Time     time.Time
}

var (
	// ErrOverClose 平仓数量超过持仓，属于风控或逻辑错误，绝不静默截断。
	ErrOverClose = errors.New("close quantity exceeds position")
	// ErrNoPosition 平仓时没有对应方向持仓。
	ErrNoPosition = errors.New("no position to close")
)

const qtyEpsilon = 1e-9

// Ledger 进程内权威的持仓与资金视图。
// 只能通过已确认的成交（Commit）变更持仓；柜台快照通过
// ApplyBrokerSnapshot 对账，序号回退的快照直接丢弃。
type Ledger struct {
	mu sync.RWMutex

	cash        float64
	positions   map[string]*Position // key: symbol
	marks       map[string]float64   // symbol -> 最新参考价
	multipliers map[string]float64   // symbol -> 合约乘数

	realizedPnL    float64 // 当日已实现盈亏
	dayStartEquity float64
	highWater      float64 // 当日权益高水位，用于回撤限额

	reconSeq uint64 // 已应用的对账快照序号
}

// New 创建账本。multipliers 缺失的品种按乘数 1 处理。
func New(startingCash float64, multipliers map[string]float64) *Ledger {
	m := make(map[string]float64, len(multipliers))
	for k, v := range multipliers {
		m[k] = v
	}
	l := &Ledger{
		cash:           startingCash,
		positions:      make(map[string]*Position),
		marks:          make(map[string]float64),
		multipliers:    m,
		dayStartEquity: startingCash,
		highWater:      startingCash,
	}
	return l
}

// Multiplier 返回品种合约乘数。
func (l *Ledger) Multiplier(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.multiplier(symbol)
}

func (l *Ledger) multiplier(symbol string) float64 {
	if m, ok := l.multipliers[symbol]; ok && m > 0 {
		return m
	}
	return 1
}

// Commit 提交一笔成交。
// 同向加仓重算加权平均成本；平仓按方向符号实现盈亏并回笼资金；
// 平仓量超过持仓返回 ErrOverClose，持仓保持不变。
func (l *Ledger) Commit(f Fill) error {
	if f.Quantity <= 0 {
		return fmt.Errorf("commit %s: quantity must be > 0", f.Symbol)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	mult := l.multiplier(f.Symbol)
	pos := l.positions[f.Symbol]

	if f.Open {
		dir := Long
		if !f.Buy {
			dir = Short
		}
		if pos == nil {
			l.positions[f.Symbol] = &Position{
				Symbol:    f.Symbol,
				Direction: dir,
				Quantity:  f.Quantity,
				AvgCost:   f.Price,
			}
		} else if pos.Direction == dir {
			total := pos.Quantity + f.Quantity
			pos.AvgCost = (pos.AvgCost*pos.Quantity + f.Price*f.Quantity) / total
			pos.Quantity = total
		} else {
			// 对锁不支持：反向开仓视为逻辑错误，由上层先平后开。
			return fmt.Errorf("commit %s: opposite open against %s position", f.Symbol, pos.Direction)
		}
		// 开仓占用资金（简化为全额名义占用）
		l.cash -= f.Price * f.Quantity * mult
		l.updateEquityLocked()
		return nil
	}

	// 平仓
	if pos == nil {
		return fmt.Errorf("%w: %s", ErrNoPosition, f.Symbol)
	}
	closing := Long
	if f.Buy {
		closing = Short // 买入平仓平的是空头
	}
	if pos.Direction != closing {
		return fmt.Errorf("%w: %s has %s position", ErrNoPosition, f.Symbol, pos.Direction)
	}
	if f.Quantity > pos.Quantity+qtyEpsilon {
		return fmt.Errorf("%w: %s close %.4f > held %.4f", ErrOverClose, f.Symbol, f.Quantity, pos.Quantity)
	}

	var pnl float64
	if pos.Direction == Long {
		pnl = f.Quantity * (f.Price - pos.AvgCost) * mult
	} else {
		pnl = f.Quantity * (pos.AvgCost - f.Price) * mult
	}
	l.realizedPnL += pnl
	// 回笼开仓占用 + 盈亏
	l.cash += pos.AvgCost*f.Quantity*mult + pnl

	pos.Quantity -= f.Quantity
	if pos.Quantity < qtyEpsilon {
		delete(l.positions, f.Symbol)
	}
	l.updateEquityLocked()
	return nil
}

// Mark 更新品种参考价，影响未实现盈亏与价格偏离风控。
func (l *Ledger) Mark(symbol string, price float64) {
	if price <= 0 {
		return
	}
	l.mu.Lock()
	l.marks[symbol] = price
	l.updateEquityLocked()
	l.mu.Unlock()
}

// MarkPrice 返回品种最新参考价，不存在时返回 0。
func (l *Ledger) MarkPrice(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.marks[symbol]
}

func (l *Ledger) unrealizedLocked() float64 {
	var pnl float64
	for sym, pos := range l.positions {
		mark, ok := l.marks[sym]
		if !ok {
			continue
		}
		mult := l.multiplier(sym)
		if pos.Direction == Long {
			pnl += pos.Quantity * (mark - pos.AvgCost) * mult
		} else {
			pnl += pos.Quantity * (pos.AvgCost - mark) * mult
		}
	}
	return pnl
}

func (l *Ledger) equityLocked() float64 {
	var posValue float64
	for sym, pos := range l.positions {
		price := pos.AvgCost
		if mark, ok := l.marks[sym]; ok {
			price = mark
		}
		if pos.Direction == Long {
			posValue += pos.Quantity * price * l.multiplier(sym)
		} else {
			// 空头占用按成本回算，盈亏已在 unrealized 中体现
			posValue += pos.Quantity * (2*pos.AvgCost - price) * l.multiplier(sym)
		}
	}
	return l.cash + posValue
}

func (l *Ledger) updateEquityLocked() {
	if eq := l.equityLocked(); eq > l.highWater {
		l.highWater = eq
	}
}

// ResetDay 交易日切换：重置当日盈亏基准与高水位。
func (l *Ledger) ResetDay() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.realizedPnL = 0
	l.dayStartEquity = l.equityLocked()
	l.highWater = l.dayStartEquity
}
